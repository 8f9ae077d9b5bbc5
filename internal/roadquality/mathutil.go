package roadquality

import (
	"math"
	"sort"
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// median returns the midpoint of x, averaging the two central values for
// even lengths. x is not modified.
func median(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	s := make([]float64, n)
	copy(s, x)
	sort.Float64s(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// medianAbsDeviation is median(|x - median(x)|).
func medianAbsDeviation(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	m := median(x)
	dev := make([]float64, len(x))
	for i, v := range x {
		dev[i] = math.Abs(v - m)
	}
	return median(dev)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// moveToward steps v toward target by at most step.
func moveToward(v, target, step float64) float64 {
	switch {
	case v > target:
		return math.Max(target, v-step)
	case v < target:
		return math.Min(target, v+step)
	default:
		return v
	}
}

// pushBounded appends v and keeps at most limit trailing entries.
func pushBounded(buf []float64, v float64, limit int) []float64 {
	buf = append(buf, v)
	if len(buf) > limit {
		buf = append(buf[:0], buf[len(buf)-limit:]...)
	}
	return buf
}
