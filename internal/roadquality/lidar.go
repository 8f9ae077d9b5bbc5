package roadquality

import (
	"math"

	"github.com/banshee-data/roadquality/internal/monitoring"
)

const (
	eventScoreGate = 75.0
	eventDropGate  = 10.0
)

// ComputeLidarQuality updates the smoothed LiDAR quality from one scan and
// returns it. Scans with too few forward-cone points, and calls arriving
// inside the rate-limit interval while the score is stable, return the
// previous score without touching any state.
func (a *Analyzer) ComputeLidarQuality(points []LidarPoint) float64 {
	now := a.clock.Now()
	if !a.lastLidarComputedAt.IsZero() &&
		now.Sub(a.lastLidarComputedAt) < a.opts.LidarRateLimit &&
		a.changeRate < a.opts.FastChangeRate {
		a.diag.Inc(monitoring.CounterLidarRateLimited)
		return a.lidarQualityScore
	}

	angles, distances := forwardCone(points, a.distanceFactor)
	if len(angles) < a.opts.MinLidarPoints {
		a.diag.Inc(monitoring.CounterInsufficientLidar)
		return a.lidarQualityScore
	}
	a.lastLidarComputedAt = now

	profile := fitRoadProfile(angles, distances)
	if profile.CrownFitError != nil {
		a.diag.Inc(monitoring.CounterFitFailure)
	}
	if profile.Degenerate {
		a.diag.Inc(monitoring.CounterDegenerateFit)
	}

	raw := profile.Score()
	previous := a.lidarQualityScore
	a.smooth(raw)

	if raw < eventScoreGate || previous-a.lidarQualityScore > eventDropGate {
		for _, d := range profile.Defects() {
			a.events = append(a.events, Event{
				ID:        a.newID(),
				Type:      d.Type(),
				Source:    SourceLidarProfile,
				Severity:  d.Severity(),
				Magnitude: d.Residual,
				AngleDeg:  d.AngleDeg,
				Timestamp: now,
				Lat:       a.gps.Lat,
				Lon:       a.gps.Lon,
			})
		}
	}
	return a.lidarQualityScore
}

// smooth folds a raw score into the exponential average. The smoothing
// factor follows the change across the last three raw scores: fast changes
// track quickly, stable roads average heavily.
func (a *Analyzer) smooth(raw float64) {
	a.lastRawScore = raw
	a.recentRawScores = pushBounded(a.recentRawScores, raw, smoothingWindowSize)
	a.lidarSegmentScores = pushBounded(a.lidarSegmentScores, raw, segmentHistorySize)

	oldest := a.recentRawScores[0]
	a.changeRate = math.Abs(raw - oldest)
	alpha := clamp(a.changeRate/50, 0.2, 0.8)

	if !a.lidarInitialized {
		a.lidarQualityScore = raw
		a.lidarInitialized = true
	} else {
		a.lidarQualityScore = (1-alpha)*a.lidarQualityScore + alpha*raw
	}
	a.lidarQualityScore = clamp(a.lidarQualityScore, 0, 100)
}
