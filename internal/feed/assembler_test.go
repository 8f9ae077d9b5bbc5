package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/roadquality/internal/roadquality"
)

func sweep(from, to, step float64) []roadquality.LidarPoint {
	var pts []roadquality.LidarPoint
	for a := from; a < to; a += step {
		pts = append(pts, roadquality.LidarPoint{AngleDeg: a, DistanceMM: 800})
	}
	return pts
}

func TestScanAssembler_EmitsOnWrap(t *testing.T) {
	a := NewScanAssembler(8)

	for _, p := range sweep(0, 360, 10) {
		_, ok := a.Add(p)
		require.False(t, ok, "no wrap inside the first revolution")
	}
	assert.Equal(t, 36, a.Pending())

	scan, ok := a.Add(roadquality.LidarPoint{AngleDeg: 2, DistanceMM: 800})
	require.True(t, ok)
	assert.Len(t, scan, 36)
	assert.Equal(t, 0.0, scan[0].AngleDeg)
	assert.Equal(t, 350.0, scan[35].AngleDeg)
	assert.Equal(t, 1, a.Pending(), "the wrapping point starts the next revolution")
}

func TestScanAssembler_SmallBackwardJumpIsNotAWrap(t *testing.T) {
	a := NewScanAssembler(1)
	a.Add(roadquality.LidarPoint{AngleDeg: 100, DistanceMM: 1})
	_, ok := a.Add(roadquality.LidarPoint{AngleDeg: 20, DistanceMM: 1})
	assert.False(t, ok)
	assert.Equal(t, 2, a.Pending())
}

func TestScanAssembler_DropsSparseRevolution(t *testing.T) {
	a := NewScanAssembler(8)
	for _, p := range sweep(300, 360, 20) {
		a.Add(p)
	}
	_, ok := a.Add(roadquality.LidarPoint{AngleDeg: 1, DistanceMM: 800})
	assert.False(t, ok)
	assert.Equal(t, 1, a.Discarded())
}

func TestScanAssembler_Reset(t *testing.T) {
	a := NewScanAssembler(0)
	for _, p := range sweep(200, 360, 10) {
		a.Add(p)
	}
	a.Reset()
	assert.Equal(t, 0, a.Pending())

	// After a reset the next low angle is a fresh start, not a wrap.
	_, ok := a.Add(roadquality.LidarPoint{AngleDeg: 0, DistanceMM: 800})
	assert.False(t, ok)
}
