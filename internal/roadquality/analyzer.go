package roadquality

import (
	"time"

	"github.com/banshee-data/roadquality/internal/monitoring"
	"github.com/banshee-data/roadquality/internal/timeutil"
)

const (
	segmentHistorySize  = 10
	smoothingWindowSize = 3
	initialTextureScore = 50.0
)

// Analyzer holds the calibration and smoothing state of one measurement
// session. It is not safe for concurrent use.
type Analyzer struct {
	opts  Options
	clock timeutil.Clock
	diag  *monitoring.Diagnostics
	newID func() string

	// accelerometer calibration
	accelBaseline      float64
	accelThreshold     float64
	accelThresholdBase float64
	isCalibrated       bool
	accelScore         float64
	lastAccelEvent     time.Time

	// environmental adjustment
	env            Environment
	distanceFactor float64

	// LiDAR model
	lidarQualityScore   float64
	lidarInitialized    bool
	lastRawScore        float64
	recentRawScores     []float64
	lidarSegmentScores  []float64
	changeRate          float64
	lastLidarComputedAt time.Time

	// texture
	roadTextureScore float64
	textureLabel     string
	fftWindow        []float64
	spectrum         *spectrumCache
	lastTextureAt    time.Time

	gps    GPSFix
	events []Event
}

// NewAnalyzer creates an Analyzer for a new session. A nil clock uses the
// real clock.
func NewAnalyzer(opts Options, clock timeutil.Clock) *Analyzer {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	a := &Analyzer{
		opts:  opts.withDefaults(),
		clock: clock,
		newID: newEventID,
	}
	a.Reset()
	return a
}

// SetDiagnostics attaches counters for recoverable conditions.
func (a *Analyzer) SetDiagnostics(d *monitoring.Diagnostics) {
	a.diag = d
}

// Options returns the effective options.
func (a *Analyzer) Options() Options {
	return a.opts
}

// Reset clears all session state, including calibration and events.
func (a *Analyzer) Reset() {
	a.accelBaseline = 0
	a.accelThreshold = 0
	a.accelThresholdBase = 0
	a.isCalibrated = false
	a.accelScore = 0
	a.lastAccelEvent = time.Time{}

	a.env = Environment{}
	a.distanceFactor = 1

	a.lidarQualityScore = 0
	a.lidarInitialized = false
	a.lastRawScore = 0
	a.recentRawScores = a.recentRawScores[:0]
	a.lidarSegmentScores = a.lidarSegmentScores[:0]
	a.changeRate = 0
	a.lastLidarComputedAt = time.Time{}

	a.roadTextureScore = initialTextureScore
	a.textureLabel = TextureUnknown
	a.fftWindow = a.fftWindow[:0]
	a.spectrum = nil
	a.lastTextureAt = time.Time{}

	a.gps = GPSFix{}
	a.events = nil
}

// LidarQualityScore is the smoothed LiDAR score in [0, 100].
func (a *Analyzer) LidarQualityScore() float64 { return a.lidarQualityScore }

// LastRawScore is the unsmoothed score of the most recent computation.
func (a *Analyzer) LastRawScore() float64 { return a.lastRawScore }

// SegmentScores returns a copy of the last raw scores, oldest first.
func (a *Analyzer) SegmentScores() []float64 {
	return append([]float64(nil), a.lidarSegmentScores...)
}

// Trend is newest minus oldest raw score over the segment history.
// Negative values mean the road is getting worse.
func (a *Analyzer) Trend() float64 {
	n := len(a.lidarSegmentScores)
	if n < 2 {
		return 0
	}
	return a.lidarSegmentScores[n-1] - a.lidarSegmentScores[0]
}

// IsCalibrated reports whether accelerometer calibration has completed.
func (a *Analyzer) IsCalibrated() bool { return a.isCalibrated }

// AccelBaseline is the calibrated resting acceleration in g.
func (a *Analyzer) AccelBaseline() float64 { return a.accelBaseline }

// AccelThreshold is the calibrated event threshold in g.
func (a *Analyzer) AccelThreshold() float64 { return a.accelThreshold }

// RoadTextureScore is the smoothed texture score in [0, 100].
func (a *Analyzer) RoadTextureScore() float64 { return a.roadTextureScore }

// TextureLabel is the category of the last texture classification.
func (a *Analyzer) TextureLabel() string { return a.textureLabel }

// Events returns a copy of every event detected this session.
func (a *Analyzer) Events() []Event {
	return append([]Event(nil), a.events...)
}

// SetGPS records the position attached to LiDAR events.
func (a *Analyzer) SetGPS(fix GPSFix) {
	a.gps = fix
}

// SetEnvironment applies ambient temperature to the accelerometer threshold
// and ambient pressure to LiDAR distances.
func (a *Analyzer) SetEnvironment(env Environment) {
	a.env = env
	a.distanceFactor = 1
	if env.PressureHPa != nil {
		a.distanceFactor = 1 + 0.0001*(*env.PressureHPa-a.opts.ReferencePressureHPa)
		if a.distanceFactor <= 0 || !finite(a.distanceFactor) {
			a.distanceFactor = 1
		}
	}
	a.applyTemperature()
}

// Process runs every estimator over one snapshot and returns the tagged
// result. Events detected during this call are listed in Result.NewEvents.
func (a *Analyzer) Process(s Snapshot) Result {
	before := len(a.events)

	if s.Environment != nil {
		a.SetEnvironment(*s.Environment)
	}
	a.SetGPS(s.GPS)

	a.ComputeLidarQuality(s.Points)
	if len(s.Accel) > 0 {
		a.Calibrate(s.Accel)
		a.DetectEvents(s.Accel, s.GPS)
		a.AnalyzeTexture(s.Accel)
		a.updateAccelScore(s.Accel)
	}

	r := a.Result()
	if len(a.events) > before {
		r.NewEvents = append([]Event(nil), a.events[before:]...)
	}
	return r
}

// Result reports the current state without new events.
func (a *Analyzer) Result() Result {
	score := a.authoritativeScore()
	return Result{
		Source:         a.opts.Source,
		Score:          score,
		Classification: Classify(score),
		Color:          ScoreToColor(score),
		LidarScore:     a.lidarQualityScore,
		RawLidarScore:  a.lastRawScore,
		LidarTrend:     a.Trend(),
		AccelScore:     a.accelScore,
		TextureScore:   a.roadTextureScore,
		TextureLabel:   a.textureLabel,
		Calibrated:     a.isCalibrated,
		AccelBaseline:  a.accelBaseline,
		AccelThreshold: a.accelThreshold,
		GPS:            a.gps,
		EventCount:     len(a.events),
		UpdatedAt:      a.clock.Now(),
	}
}

func (a *Analyzer) authoritativeScore() float64 {
	switch a.opts.Source {
	case QualityFromAccelerometer:
		return a.accelScore
	case QualityCombined:
		switch {
		case a.lidarInitialized && a.isCalibrated:
			return 0.7*a.lidarQualityScore + 0.3*a.accelScore
		case a.isCalibrated:
			return a.accelScore
		default:
			return a.lidarQualityScore
		}
	default:
		return a.lidarQualityScore
	}
}
