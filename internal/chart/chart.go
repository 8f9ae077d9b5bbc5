// Package chart renders the road quality timeline as a PNG (gonum/plot) and
// as an interactive HTML page (go-echarts).
package chart

import (
	"fmt"
	"image/color"
	"strconv"
	"time"

	"github.com/banshee-data/roadquality/internal/roadquality"
)

// Sample is one point on the quality timeline.
type Sample struct {
	Timestamp    time.Time
	Score        float64
	LidarScore   float64
	AccelScore   float64
	TextureScore float64
}

// Timeline is everything a quality chart shows.
type Timeline struct {
	Title   string
	Samples []Sample
	Events  []roadquality.Event
}

// classBands are the lower bounds of the named quality bands.
var classBands = []struct {
	Min   float64
	Label roadquality.Classification
}{
	{90, roadquality.Excellent},
	{75, roadquality.Good},
	{60, roadquality.Fair},
	{40, roadquality.Poor},
}

// hexColor parses the "#RRGGBB" strings produced by roadquality.ScoreToColor.
func hexColor(s string) (color.RGBA, error) {
	if len(s) != 7 || s[0] != '#' {
		return color.RGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

func scoreColor(score float64) color.Color {
	c, err := hexColor(roadquality.ScoreToColor(score))
	if err != nil {
		return color.Black
	}
	return c
}

// secondsSince returns t relative to origin in seconds.
func secondsSince(origin, t time.Time) float64 {
	return t.Sub(origin).Seconds()
}

// origin is the earliest timestamp on the timeline.
func (tl Timeline) origin() time.Time {
	var o time.Time
	for _, s := range tl.Samples {
		if o.IsZero() || s.Timestamp.Before(o) {
			o = s.Timestamp
		}
	}
	for _, e := range tl.Events {
		if o.IsZero() || e.Timestamp.Before(o) {
			o = e.Timestamp
		}
	}
	return o
}

// nearestIndex returns the index of the sample closest in time to t, or
// -1 without samples.
func (tl Timeline) nearestIndex(t time.Time) int {
	best := -1
	var bestGap time.Duration
	for i, s := range tl.Samples {
		gap := s.Timestamp.Sub(t)
		if gap < 0 {
			gap = -gap
		}
		if best < 0 || gap < bestGap {
			best, bestGap = i, gap
		}
	}
	return best
}

// nearestScore returns the score of the sample closest in time to t, or 0
// without samples.
func (tl Timeline) nearestScore(t time.Time) float64 {
	if i := tl.nearestIndex(t); i >= 0 {
		return tl.Samples[i].Score
	}
	return 0
}
