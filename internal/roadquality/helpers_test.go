package roadquality

import (
	"math"
	"time"

	"github.com/banshee-data/roadquality/internal/timeutil"
)

var testEpoch = time.Date(2025, 5, 14, 9, 30, 0, 0, time.UTC)

func newTestAnalyzer(opts Options) (*Analyzer, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(testEpoch)
	a := NewAnalyzer(opts, clock)
	n := 0
	a.newID = func() string {
		n++
		return "evt-" + string(rune('a'+n-1))
	}
	return a, clock
}

// flatScan returns a perfect flat-road scan for a sensor mounted at d0,
// sampled every step degrees across -35..35 and expressed in raw [0, 360)
// angles.
func flatScan(d0, step float64) []LidarPoint {
	var pts []LidarPoint
	for deg := -35.0; deg <= 35.0+1e-9; deg += step {
		raw := deg
		if raw < 0 {
			raw += 360
		}
		pts = append(pts, LidarPoint{
			AngleDeg:   raw,
			DistanceMM: d0 / math.Cos(deg*math.Pi/180),
		})
	}
	return pts
}

// displace adds delta mm to the point closest to angle (normalised degrees).
func displace(pts []LidarPoint, angle, delta float64) []LidarPoint {
	out := append([]LidarPoint(nil), pts...)
	best := 0
	for i, p := range out {
		if math.Abs(NormalizeAngle(p.AngleDeg)-angle) < math.Abs(NormalizeAngle(out[best].AngleDeg)-angle) {
			best = i
		}
	}
	out[best].DistanceMM += delta
	return out
}

func constant(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func sine(n int, freqHz, rateHz, amplitude, offset float64, start int) []float64 {
	s := make([]float64, n)
	for i := range s {
		t := float64(start+i) / rateHz
		s[i] = offset + amplitude*math.Sin(2*math.Pi*freqHz*t)
	}
	return s
}

func ptr(v float64) *float64 { return &v }

func nan() float64 { return math.NaN() }
