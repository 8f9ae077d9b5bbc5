package feed

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// SyntheticDrive generates an endless bridge stream for a car driving a
// mostly smooth road with an occasional pothole. It backs the -dev mode of
// the binary and end-to-end tests.
type SyntheticDrive struct {
	rng     *rand.Rand
	mountMM float64
	stepDeg float64

	revolution int
	lat, lon   float64
	pending    []string
}

// NewSyntheticDrive returns a deterministic generator for seed.
func NewSyntheticDrive(seed uint64) *SyntheticDrive {
	return &SyntheticDrive{
		rng:     rand.New(rand.NewPCG(seed, seed^0x5eed)),
		mountMM: 450,
		stepDeg: 2,
		lat:     51.5007,
		lon:     -0.1246,
	}
}

// PotholeEvery is the revolution period of simulated potholes.
const PotholeEvery = 25

// Next returns the next line. It never runs out.
func (d *SyntheticDrive) Next() (string, bool) {
	if len(d.pending) == 0 {
		d.pending = d.revolutionLines()
	}
	line := d.pending[0]
	d.pending = d.pending[1:]
	return line, true
}

func (d *SyntheticDrive) revolutionLines() []string {
	d.revolution++
	pothole := d.revolution%PotholeEvery == 0

	var lines []string
	if d.revolution%20 == 1 {
		lines = append(lines, fmt.Sprintf("E,%.1f,%.1f", 18+d.rng.NormFloat64()*0.2, 1009+d.rng.NormFloat64()*0.5))
	}
	d.lat += 0.00001
	lines = append(lines, fmt.Sprintf("G,%.6f,%.6f", d.lat, d.lon))

	n := int(360 / d.stepDeg)
	for i := 0; i < n; i++ {
		angle := float64(i) * d.stepDeg
		lines = append(lines, fmt.Sprintf("L,%.1f,%.1f", angle, d.distance(angle, pothole)))
		// Two accelerometer samples per revolution.
		if i == 0 || i == n/2 {
			g := 1 + d.rng.NormFloat64()*0.01
			if pothole && i == n/2 {
				g = 1.8
			}
			lines = append(lines, fmt.Sprintf("A,%.3f", g))
		}
	}
	return lines
}

func (d *SyntheticDrive) distance(angle float64, pothole bool) float64 {
	rel := angle
	if rel >= 180 {
		rel -= 360
	}
	if math.Abs(rel) > 45 {
		// Cabin and sky returns outside the downward cone.
		return 2000 + d.rng.Float64()*2000
	}
	dist := d.mountMM/math.Cos(rel*math.Pi/180) + d.rng.NormFloat64()*0.5
	if pothole && rel == 10 {
		dist += 150
	}
	return dist
}
