package roadquality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/roadquality/internal/monitoring"
)

func TestNewAnalyzer_Defaults(t *testing.T) {
	a := NewAnalyzer(Options{}, nil)
	opts := a.Options()

	assert.Equal(t, 8, opts.MinLidarPoints)
	assert.Equal(t, 50, opts.CalibrationSamples)
	assert.Equal(t, 10.0, opts.TextureSampleRateHz)
	assert.Equal(t, initialTextureScore, a.RoadTextureScore())
	assert.Equal(t, TextureUnknown, a.TextureLabel())
	assert.False(t, a.IsCalibrated())
	assert.Empty(t, a.Events())
}

func TestProcess_LidarSource(t *testing.T) {
	a, _ := newTestAnalyzer(DefaultOptions())

	accel := constant(60, 1.0)
	accel[55] = 2.0
	res := a.Process(Snapshot{
		Points: displace(flatScan(1000, 0.5), 10, 200),
		Accel:  accel,
		GPS:    GPSFix{Lat: 40.4, Lon: -3.7},
	})

	assert.Equal(t, QualityFromLidar, res.Source)
	assert.Equal(t, a.LidarQualityScore(), res.Score)
	assert.Equal(t, Classify(res.Score), res.Classification)
	assert.Equal(t, ScoreToColor(res.Score), res.Color)
	assert.True(t, res.Calibrated)
	assert.Equal(t, GPSFix{Lat: 40.4, Lon: -3.7}, res.GPS)
	assert.Equal(t, testEpoch, res.UpdatedAt)

	require.Len(t, res.NewEvents, 2)
	assert.Equal(t, SourceLidarProfile, res.NewEvents[0].Source)
	assert.Equal(t, SourceAccel, res.NewEvents[1].Source)
	assert.Equal(t, 2, res.EventCount)
	for _, ev := range res.NewEvents {
		assert.Equal(t, 40.4, ev.Lat)
	}
}

func TestProcess_NewEventsOnlyForThisCall(t *testing.T) {
	a, clock := newTestAnalyzer(DefaultOptions())
	rough := displace(flatScan(1000, 0.5), 10, 200)

	first := a.Process(Snapshot{Points: rough})
	require.Len(t, first.NewEvents, 1)

	second := a.Process(Snapshot{Points: rough})
	assert.Empty(t, second.NewEvents, "rate limited, nothing recomputed")
	assert.Equal(t, 1, second.EventCount)

	clock.Advance(time.Second)
	third := a.Process(Snapshot{Points: rough})
	assert.Len(t, third.NewEvents, 1)
	assert.Equal(t, 2, third.EventCount)
}

func TestProcess_AccelerometerSource(t *testing.T) {
	opts := DefaultOptions()
	opts.Source = QualityFromAccelerometer
	a, _ := newTestAnalyzer(opts)

	res := a.Process(Snapshot{Points: flatScan(1000, 0.5), Accel: constant(60, 1.0)})
	assert.Equal(t, QualityFromAccelerometer, res.Source)
	assert.Equal(t, 100.0, res.AccelScore)
	assert.Equal(t, 100.0, res.Score)
	assert.Equal(t, Excellent, res.Classification)
}

func TestProcess_CombinedSource(t *testing.T) {
	opts := DefaultOptions()
	opts.Source = QualityCombined
	a, _ := newTestAnalyzer(opts)

	// before calibration only the LiDAR estimate is available
	res := a.Process(Snapshot{Points: displace(flatScan(1000, 0.5), 10, 200)})
	assert.Equal(t, res.LidarScore, res.Score)

	accel := alternating(60, 1.0, 0.2)
	a2, _ := newTestAnalyzer(opts)
	res = a2.Process(Snapshot{Points: flatScan(1000, 0.5), Accel: accel})
	require.True(t, res.Calibrated)
	// rms of ±0.2 against a 0.5 threshold costs 10 points
	assert.InDelta(t, 90, res.AccelScore, 1e-9)
	assert.InDelta(t, 0.7*res.LidarScore+0.3*res.AccelScore, res.Score, 1e-9)
}

func TestProcess_AppliesEnvironment(t *testing.T) {
	a, _ := newTestAnalyzer(DefaultOptions())
	res := a.Process(Snapshot{
		Accel:       alternating(50, 1.0, 0.2),
		Environment: &Environment{TemperatureC: ptr(30)},
	})
	assert.InDelta(t, 0.5*1.05, res.AccelThreshold, 1e-12)
}

func TestReset_ClearsSession(t *testing.T) {
	a, _ := newTestAnalyzer(DefaultOptions())
	a.Process(Snapshot{
		Points: displace(flatScan(1000, 0.5), 10, 200),
		Accel:  constant(60, 1.0),
	})
	require.NotEmpty(t, a.Events())

	a.Reset()
	assert.Empty(t, a.Events())
	assert.Empty(t, a.SegmentScores())
	assert.False(t, a.IsCalibrated())
	assert.Equal(t, 0.0, a.LidarQualityScore())
	assert.Empty(t, a.fftWindow)
}

func TestAnalyzer_Diagnostics(t *testing.T) {
	original := monitoring.Logf
	defer func() { monitoring.Logf = original }()
	monitoring.SetLogger(nil)

	a, _ := newTestAnalyzer(DefaultOptions())
	d := monitoring.NewDiagnostics(time.Minute, nil)
	a.SetDiagnostics(d)

	a.ComputeLidarQuality(nil)
	a.ComputeLidarQuality(flatScan(1000, 0.5))
	a.ComputeLidarQuality(flatScan(1000, 0.5))
	a.AnalyzeTexture(constant(5, 1))

	assert.Equal(t, int64(1), d.Count(monitoring.CounterInsufficientLidar))
	assert.Equal(t, int64(1), d.Count(monitoring.CounterLidarRateLimited))
	assert.Equal(t, int64(1), d.Count(monitoring.CounterTextureSkipped))
}
