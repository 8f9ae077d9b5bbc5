package roadquality

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Geometry of the forward-facing cone and the flat-road model.
const (
	coneHalfAngleDeg    = 35.0
	nadirHalfAngleDeg   = 5.0
	minCosine           = 0.1
	minPointsForCrown   = 5
	crownFitDegree      = 2
	minMeasurementScale = 5.0
	minDeviationFloorMM = 5.0
)

// roadProfile is the flat-road model of one scan and its fit statistics.
// Angles are normalised degrees sorted ascending; Residuals are after crown
// removal when CrownRemoved is set.
type roadProfile struct {
	Angles    []float64
	Distances []float64
	Expected  []float64
	Residuals []float64

	MountHeight   float64
	MeanAbsDev    float64
	MaxAbsDev     float64
	StdDev        float64
	RSquared      float64
	Scale         float64
	CrownRemoved  bool
	CrownFitError error
	Degenerate    bool
}

// forwardCone normalises, filters and sorts scan points into the ±35° cone.
// Non-finite or non-positive distances are dropped and distances are scaled
// by factor.
func forwardCone(points []LidarPoint, factor float64) (angles, distances []float64) {
	type sample struct{ a, d float64 }
	kept := make([]sample, 0, len(points))
	for _, p := range points {
		if !finite(p.AngleDeg) || !finite(p.DistanceMM) || p.DistanceMM <= 0 {
			continue
		}
		a := NormalizeAngle(p.AngleDeg)
		if a < -coneHalfAngleDeg || a > coneHalfAngleDeg {
			continue
		}
		kept = append(kept, sample{a: a, d: p.DistanceMM * factor})
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].a < kept[j].a })

	angles = make([]float64, len(kept))
	distances = make([]float64, len(kept))
	for i, s := range kept {
		angles[i] = s.a
		distances[i] = s.d
	}
	return angles, distances
}

// estimateMountHeight is the median distance straight ahead (|angle| < 5°),
// or 1.05 × the nearest return when nothing is straight ahead.
func estimateMountHeight(angles, distances []float64) float64 {
	var nadir []float64
	for i, a := range angles {
		if math.Abs(a) < nadirHalfAngleDeg {
			nadir = append(nadir, distances[i])
		}
	}
	if len(nadir) > 0 {
		return median(nadir)
	}
	return floats.Min(distances) * 1.05
}

// fitRoadProfile builds the flat-road model d0/cos(θ), removes a quadratic
// crown from the residuals and computes the deviation statistics.
func fitRoadProfile(angles, distances []float64) roadProfile {
	n := len(angles)
	p := roadProfile{
		Angles:    angles,
		Distances: distances,
		Expected:  make([]float64, n),
		Residuals: make([]float64, n),
	}
	p.MountHeight = estimateMountHeight(angles, distances)

	for i, a := range angles {
		c := math.Max(math.Cos(a*math.Pi/180), minCosine)
		p.Expected[i] = p.MountHeight / c
		p.Residuals[i] = distances[i] - p.Expected[i]
	}

	if n >= minPointsForCrown {
		coeffs, err := polyFit(angles, p.Residuals, crownFitDegree)
		if err != nil {
			p.CrownFitError = err
		} else {
			for i, a := range angles {
				p.Residuals[i] -= polyVal(coeffs, a)
			}
			p.CrownRemoved = true
		}
	}

	abs := make([]float64, n)
	for i, r := range p.Residuals {
		abs[i] = math.Abs(r)
	}
	p.MeanAbsDev = stat.Mean(abs, nil)
	p.MaxAbsDev = floats.Max(abs)
	p.StdDev = stat.PopStdDev(p.Residuals, nil)

	// The adjusted model predicts distance - residual, so SS_res is the sum
	// of squared adjusted residuals.
	ssRes := floats.Dot(p.Residuals, p.Residuals)
	mean := stat.Mean(distances, nil)
	var ssTot float64
	for _, d := range distances {
		ssTot += (d - mean) * (d - mean)
	}
	if ssTot > 0 {
		p.RSquared = 1 - ssRes/ssTot
	} else {
		p.RSquared = 0
		p.Degenerate = true
	}

	p.Scale = math.Max(minMeasurementScale, median(distances)*0.001)
	return p
}

// Score converts the fit statistics to the raw 0-100 quality score,
// including the stretch of the excellent band above 90.
func (p roadProfile) Score() float64 {
	stdPenalty := math.Min(25, p.StdDev/math.Max(10, p.Scale*1.5)*25)
	maxPenalty := math.Min(30, p.MaxAbsDev/math.Max(30, p.Scale*3)*30)
	score := 98 - (1-p.RSquared)*20 - stdPenalty - maxPenalty
	if !finite(score) || score < 0 {
		score = 0
	}
	if score > 90 {
		score = math.Min(100, 90+(score-90)*2)
	}
	return score
}

// deviationThreshold is the robust residual threshold max(5, 3·MAD).
func (p roadProfile) deviationThreshold() float64 {
	return math.Max(minDeviationFloorMM, 3*medianAbsDeviation(p.Residuals))
}

// profileDefect is the peak of one contiguous run of out-of-threshold
// residuals.
type profileDefect struct {
	Index     int
	AngleDeg  float64
	Residual  float64
	Threshold float64
}

// Defects returns one defect per contiguous run of points whose absolute
// residual exceeds the robust threshold.
func (p roadProfile) Defects() []profileDefect {
	thr := p.deviationThreshold()
	var out []profileDefect
	peak := -1
	for i, r := range p.Residuals {
		if math.Abs(r) > thr {
			if peak < 0 || math.Abs(r) > math.Abs(p.Residuals[peak]) {
				peak = i
			}
			continue
		}
		if peak >= 0 {
			out = append(out, p.defectAt(peak, thr))
			peak = -1
		}
	}
	if peak >= 0 {
		out = append(out, p.defectAt(peak, thr))
	}
	return out
}

func (p roadProfile) defectAt(i int, thr float64) profileDefect {
	return profileDefect{Index: i, AngleDeg: p.Angles[i], Residual: p.Residuals[i], Threshold: thr}
}

// Type is Pothole for a longer-than-expected return and Bump otherwise.
func (d profileDefect) Type() EventType {
	if d.Residual > 0 {
		return EventPothole
	}
	return EventBump
}

// Severity scales the deviation against the threshold onto 0-100.
func (d profileDefect) Severity() int {
	return int(math.Min(100, math.Round(math.Abs(d.Residual)/d.Threshold*50)))
}
