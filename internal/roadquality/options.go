package roadquality

import "time"

// Options tunes an Analyzer. Zero fields are replaced by DefaultOptions
// values in NewAnalyzer.
type Options struct {
	// MinLidarPoints is the fewest forward-cone points a scan needs.
	MinLidarPoints int
	// LidarRateLimit is the minimum spacing between LiDAR recomputations
	// while the score is stable.
	LidarRateLimit time.Duration
	// FastChangeRate bypasses the rate limit when the recent raw-score
	// change rate reaches it.
	FastChangeRate float64

	CalibrationSamples int
	// AccelMinMagnitude is the floor of the adaptive peak threshold, in g.
	AccelMinMagnitude float64
	MinEventSeverity  int
	// EventRefractory suppresses accelerometer events for this long after
	// an accepted one, so a peak still inside the sliding window is not
	// reported again on the next call.
	EventRefractory time.Duration

	TextureInterval     time.Duration
	TextureSampleRateHz float64

	ReferenceTempC       float64
	ReferencePressureHPa float64

	Source QualitySource
}

// DefaultOptions returns the stock tuning.
func DefaultOptions() Options {
	return Options{
		MinLidarPoints:       8,
		LidarRateLimit:       100 * time.Millisecond,
		FastChangeRate:       15,
		CalibrationSamples:   50,
		AccelMinMagnitude:    0.2,
		MinEventSeverity:     10,
		EventRefractory:      2 * time.Second,
		TextureInterval:      500 * time.Millisecond,
		TextureSampleRateHz:  10,
		ReferenceTempC:       20,
		ReferencePressureHPa: 1013.25,
		Source:               QualityFromLidar,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinLidarPoints <= 0 {
		o.MinLidarPoints = d.MinLidarPoints
	}
	if o.LidarRateLimit < 0 {
		o.LidarRateLimit = 0
	}
	if o.FastChangeRate <= 0 {
		o.FastChangeRate = d.FastChangeRate
	}
	if o.CalibrationSamples <= 0 {
		o.CalibrationSamples = d.CalibrationSamples
	}
	if o.AccelMinMagnitude <= 0 {
		o.AccelMinMagnitude = d.AccelMinMagnitude
	}
	if o.MinEventSeverity < 0 {
		o.MinEventSeverity = 0
	}
	if o.EventRefractory < 0 {
		o.EventRefractory = 0
	}
	if o.TextureInterval < 0 {
		o.TextureInterval = 0
	}
	if o.TextureSampleRateHz <= 0 {
		o.TextureSampleRateHz = d.TextureSampleRateHz
	}
	if o.ReferencePressureHPa <= 0 {
		o.ReferencePressureHPa = d.ReferencePressureHPa
	}
	return o
}
