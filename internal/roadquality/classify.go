package roadquality

import (
	"fmt"
	"math"
)

// Classification is the textual band of a quality score.
type Classification string

const (
	Excellent Classification = "Excellent"
	Good      Classification = "Good"
	Fair      Classification = "Fair"
	Poor      Classification = "Poor"
	VeryPoor  Classification = "Very Poor"
)

// Classify maps a 0-100 score to its band. Boundaries are inclusive on the
// lower edge: 90 is Excellent, 89.999 is Good.
func Classify(score float64) Classification {
	switch {
	case score >= 90:
		return Excellent
	case score >= 75:
		return Good
	case score >= 60:
		return Fair
	case score >= 40:
		return Poor
	default:
		return VeryPoor
	}
}

// ScoreToColor returns a "#RRGGBB" colour ramping red to yellow over 0-50
// and yellow to green over 50-100.
func ScoreToColor(score float64) string {
	if math.IsNaN(score) {
		score = 0
	}
	score = clamp(score, 0, 100)

	var r, g int
	if score < 50 {
		r = 255
		g = int(255 * score / 50)
	} else {
		r = int(255 * (1 - (score-50)/50))
		g = 255
	}
	return fmt.Sprintf("#%02X%02X00", r, g)
}
