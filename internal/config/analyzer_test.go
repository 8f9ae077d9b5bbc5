package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/roadquality/internal/roadquality"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyAnalyzerConfig()

	assert.Equal(t, 8, cfg.GetLidarMinPoints())
	assert.Equal(t, 100*time.Millisecond, cfg.GetLidarRateLimit())
	assert.Equal(t, 15.0, cfg.GetLidarFastChangeRate())
	assert.Equal(t, 100, cfg.GetAccelBufferSize())
	assert.Equal(t, 50, cfg.GetCalibrationSamples())
	assert.Equal(t, 0.2, cfg.GetAccelMinMagnitude())
	assert.Equal(t, 10, cfg.GetMinEventSeverity())
	assert.Equal(t, 2*time.Second, cfg.GetEventRefractory())
	assert.Equal(t, 500*time.Millisecond, cfg.GetTextureInterval())
	assert.Equal(t, 10.0, cfg.GetTextureSampleRateHz())
	assert.Equal(t, 20.0, cfg.GetReferenceTempC())
	assert.Equal(t, 1013.25, cfg.GetReferencePressureHPa())
	assert.Equal(t, roadquality.QualityFromLidar, cfg.GetQualitySource())
	assert.Equal(t, 8, cfg.GetSnapshotQueueSize())
	assert.Equal(t, 10*time.Second, cfg.GetDiagnosticsInterval())
}

func TestEmptyConfigMatchesAnalyzerDefaults(t *testing.T) {
	assert.Equal(t, roadquality.DefaultOptions(), EmptyAnalyzerConfig().ToAnalyzerOptions())
}

func TestLoadAnalyzerConfigPartial(t *testing.T) {
	path := writeConfig(t, "partial.json", `{
		"lidar_min_points": 12,
		"event_refractory": "750ms",
		"quality_source": "combined"
	}`)

	cfg, err := LoadAnalyzerConfig(path)
	require.NoError(t, err)

	opts := cfg.ToAnalyzerOptions()
	assert.Equal(t, 12, opts.MinLidarPoints)
	assert.Equal(t, 750*time.Millisecond, opts.EventRefractory)
	assert.Equal(t, roadquality.QualityCombined, opts.Source)
	// Untouched fields keep their defaults.
	assert.Equal(t, 50, opts.CalibrationSamples)
	assert.Equal(t, 1013.25, opts.ReferencePressureHPa)
}

func TestLoadAnalyzerConfigRejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "cfg.yaml", `{}`, ".json extension"},
		{"bad json", "bad.json", `{"lidar_min_points":`, "parse config JSON"},
		{"bad duration", "dur.json", `{"lidar_rate_limit": "soon"}`, "lidar_rate_limit"},
		{"negative duration", "neg.json", `{"texture_interval": "-1s"}`, "must not be negative"},
		{"zero points", "pts.json", `{"lidar_min_points": 0}`, "lidar_min_points"},
		{"severity range", "sev.json", `{"min_event_severity": 101}`, "min_event_severity"},
		{"unknown source", "src.json", `{"quality_source": "sonar"}`, "unknown quality source"},
		{"calibration exceeds buffer", "cal.json", `{"accel_buffer_size": 40, "calibration_samples": 50}`, "exceeds accel_buffer_size"},
		{"zero queue", "q.json", `{"snapshot_queue_size": 0}`, "snapshot_queue_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.body)
			_, err := LoadAnalyzerConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadAnalyzerConfigMissingFile(t *testing.T) {
	_, err := LoadAnalyzerConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stat config file")
}

func TestLoadAnalyzerConfigTooLarge(t *testing.T) {
	body := `{"quality_source": "lidar", "pad": "` + strings.Repeat("x", 1024*1024) + `"}`
	_, err := LoadAnalyzerConfig(writeConfig(t, "big.json", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	require.NotNil(t, cfg)

	// The checked-in defaults file spells out every field with the
	// built-in default values.
	assert.Equal(t, EmptyAnalyzerConfig().ToAnalyzerOptions(), cfg.ToAnalyzerOptions())
	assert.Equal(t, 100, cfg.GetAccelBufferSize())
	assert.Equal(t, 8, cfg.GetSnapshotQueueSize())
	assert.Equal(t, 10*time.Second, cfg.GetDiagnosticsInterval())
}

func TestAccelAliasParses(t *testing.T) {
	src := "accel"
	cfg := &AnalyzerConfig{QualitySource: &src}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, roadquality.QualityFromAccelerometer, cfg.GetQualitySource())
}
