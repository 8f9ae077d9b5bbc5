package feed

import "github.com/banshee-data/roadquality/internal/roadquality"

// DefaultMinScanPoints is the fewest points a revolution needs to be
// emitted by a ScanAssembler.
const DefaultMinScanPoints = 8

// ScanAssembler accumulates rangefinder returns into full revolutions. A
// revolution completes when the angle jumps back by more than 180 degrees.
// Not safe for concurrent use.
type ScanAssembler struct {
	minPoints int
	lastAngle float64 // -1 until the first point
	current   []roadquality.LidarPoint
	discarded int
}

// NewScanAssembler returns an assembler that drops revolutions with fewer
// than minPoints points. Values below one use DefaultMinScanPoints.
func NewScanAssembler(minPoints int) *ScanAssembler {
	if minPoints < 1 {
		minPoints = DefaultMinScanPoints
	}
	return &ScanAssembler{minPoints: minPoints, lastAngle: -1}
}

// Add appends a point. When the point starts a new revolution, the previous
// one is returned with ok=true, provided it met the minimum point count.
func (a *ScanAssembler) Add(p roadquality.LidarPoint) (scan []roadquality.LidarPoint, ok bool) {
	wrapped := a.lastAngle >= 0 && a.lastAngle-p.AngleDeg > 180
	a.lastAngle = p.AngleDeg

	if wrapped {
		if len(a.current) >= a.minPoints {
			scan, ok = a.current, true
		} else {
			a.discarded++
		}
		a.current = nil
	}
	a.current = append(a.current, p)
	return scan, ok
}

// Pending returns the number of points in the revolution being built.
func (a *ScanAssembler) Pending() int {
	return len(a.current)
}

// Discarded returns how many revolutions were dropped for being too sparse.
func (a *ScanAssembler) Discarded() int {
	return a.discarded
}

// Reset discards the revolution in progress.
func (a *ScanAssembler) Reset() {
	a.current = nil
	a.lastAngle = -1
}
