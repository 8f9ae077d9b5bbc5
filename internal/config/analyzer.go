package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/roadquality/internal/roadquality"
)

// DefaultConfigPath is the path to the canonical analyzer defaults file.
const DefaultConfigPath = "config/roadquality.defaults.json"

// AnalyzerConfig is the JSON document that tunes the road quality analyzer
// and the pipeline around it. Unset fields fall back to the Get* defaults,
// so partial files are safe.
type AnalyzerConfig struct {
	// LiDAR model
	LidarMinPoints      *int     `json:"lidar_min_points,omitempty"`
	LidarRateLimit      *string  `json:"lidar_rate_limit,omitempty"` // duration string like "100ms"
	LidarFastChangeRate *float64 `json:"lidar_fast_change_rate,omitempty"`

	// Accelerometer
	AccelBufferSize    *int     `json:"accel_buffer_size,omitempty"`
	CalibrationSamples *int     `json:"calibration_samples,omitempty"`
	AccelMinMagnitude  *float64 `json:"accel_min_magnitude,omitempty"`
	MinEventSeverity   *int     `json:"min_event_severity,omitempty"`
	EventRefractory    *string  `json:"event_refractory,omitempty"`

	// Texture
	TextureInterval     *string  `json:"texture_interval,omitempty"`
	TextureSampleRateHz *float64 `json:"texture_sample_rate_hz,omitempty"`

	// Environmental references
	ReferenceTempC       *float64 `json:"reference_temp_c,omitempty"`
	ReferencePressureHPa *float64 `json:"reference_pressure_hpa,omitempty"`

	// Pipeline
	QualitySource       *string `json:"quality_source,omitempty"`
	SnapshotQueueSize   *int    `json:"snapshot_queue_size,omitempty"`
	DiagnosticsInterval *string `json:"diagnostics_interval,omitempty"`
}

// EmptyAnalyzerConfig returns a config with every field unset.
func EmptyAnalyzerConfig() *AnalyzerConfig {
	return &AnalyzerConfig{}
}

// LoadAnalyzerConfig reads and validates a JSON config file. The file must
// have a .json extension and be at most 1MB.
func LoadAnalyzerConfig(path string) (*AnalyzerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyAnalyzerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the working directory
// or one of its parents. It panics when the file cannot be found; it is
// intended for tests and for binaries run from the repository.
func MustLoadDefaultConfig() *AnalyzerConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadAnalyzerConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run from repository root")
}

// Validate checks ranges and that duration strings parse.
func (c *AnalyzerConfig) Validate() error {
	if c.LidarMinPoints != nil && *c.LidarMinPoints < 1 {
		return fmt.Errorf("lidar_min_points must be positive, got %d", *c.LidarMinPoints)
	}
	if c.AccelBufferSize != nil && *c.AccelBufferSize < 1 {
		return fmt.Errorf("accel_buffer_size must be positive, got %d", *c.AccelBufferSize)
	}
	if c.CalibrationSamples != nil && *c.CalibrationSamples < 2 {
		return fmt.Errorf("calibration_samples must be at least 2, got %d", *c.CalibrationSamples)
	}
	if c.CalibrationSamples != nil && c.AccelBufferSize != nil && *c.CalibrationSamples > *c.AccelBufferSize {
		return fmt.Errorf("calibration_samples (%d) exceeds accel_buffer_size (%d)", *c.CalibrationSamples, *c.AccelBufferSize)
	}
	if c.AccelMinMagnitude != nil && *c.AccelMinMagnitude <= 0 {
		return fmt.Errorf("accel_min_magnitude must be positive, got %f", *c.AccelMinMagnitude)
	}
	if c.MinEventSeverity != nil && (*c.MinEventSeverity < 0 || *c.MinEventSeverity > 100) {
		return fmt.Errorf("min_event_severity must be between 0 and 100, got %d", *c.MinEventSeverity)
	}
	if c.TextureSampleRateHz != nil && *c.TextureSampleRateHz <= 0 {
		return fmt.Errorf("texture_sample_rate_hz must be positive, got %f", *c.TextureSampleRateHz)
	}
	if c.ReferencePressureHPa != nil && *c.ReferencePressureHPa <= 0 {
		return fmt.Errorf("reference_pressure_hpa must be positive, got %f", *c.ReferencePressureHPa)
	}
	if c.SnapshotQueueSize != nil && *c.SnapshotQueueSize < 1 {
		return fmt.Errorf("snapshot_queue_size must be positive, got %d", *c.SnapshotQueueSize)
	}
	if c.QualitySource != nil {
		if _, err := roadquality.ParseQualitySource(*c.QualitySource); err != nil {
			return err
		}
	}

	for name, v := range map[string]*string{
		"lidar_rate_limit":     c.LidarRateLimit,
		"event_refractory":     c.EventRefractory,
		"texture_interval":     c.TextureInterval,
		"diagnostics_interval": c.DiagnosticsInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, *v)
		}
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetLidarMinPoints returns lidar_min_points or the default.
func (c *AnalyzerConfig) GetLidarMinPoints() int {
	if c.LidarMinPoints == nil {
		return 8
	}
	return *c.LidarMinPoints
}

// GetLidarRateLimit returns lidar_rate_limit or the default.
func (c *AnalyzerConfig) GetLidarRateLimit() time.Duration {
	return durationOr(c.LidarRateLimit, 100*time.Millisecond)
}

func (c *AnalyzerConfig) GetLidarFastChangeRate() float64 {
	if c.LidarFastChangeRate == nil {
		return 15
	}
	return *c.LidarFastChangeRate
}

// GetAccelBufferSize returns the rolling accelerometer buffer capacity.
func (c *AnalyzerConfig) GetAccelBufferSize() int {
	if c.AccelBufferSize == nil {
		return 100
	}
	return *c.AccelBufferSize
}

func (c *AnalyzerConfig) GetCalibrationSamples() int {
	if c.CalibrationSamples == nil {
		return 50
	}
	return *c.CalibrationSamples
}

func (c *AnalyzerConfig) GetAccelMinMagnitude() float64 {
	if c.AccelMinMagnitude == nil {
		return 0.2
	}
	return *c.AccelMinMagnitude
}

func (c *AnalyzerConfig) GetMinEventSeverity() int {
	if c.MinEventSeverity == nil {
		return 10
	}
	return *c.MinEventSeverity
}

func (c *AnalyzerConfig) GetEventRefractory() time.Duration {
	return durationOr(c.EventRefractory, 2*time.Second)
}

func (c *AnalyzerConfig) GetTextureInterval() time.Duration {
	return durationOr(c.TextureInterval, 500*time.Millisecond)
}

// GetTextureSampleRateHz is the assumed accelerometer rate used to convert
// FFT bins to Hz.
func (c *AnalyzerConfig) GetTextureSampleRateHz() float64 {
	if c.TextureSampleRateHz == nil {
		return 10
	}
	return *c.TextureSampleRateHz
}

func (c *AnalyzerConfig) GetReferenceTempC() float64 {
	if c.ReferenceTempC == nil {
		return 20
	}
	return *c.ReferenceTempC
}

func (c *AnalyzerConfig) GetReferencePressureHPa() float64 {
	if c.ReferencePressureHPa == nil {
		return 1013.25
	}
	return *c.ReferencePressureHPa
}

// GetQualitySource returns the configured score source, defaulting to LiDAR.
func (c *AnalyzerConfig) GetQualitySource() roadquality.QualitySource {
	if c.QualitySource == nil {
		return roadquality.QualityFromLidar
	}
	src, err := roadquality.ParseQualitySource(*c.QualitySource)
	if err != nil {
		return roadquality.QualityFromLidar
	}
	return src
}

func (c *AnalyzerConfig) GetSnapshotQueueSize() int {
	if c.SnapshotQueueSize == nil {
		return 8
	}
	return *c.SnapshotQueueSize
}

func (c *AnalyzerConfig) GetDiagnosticsInterval() time.Duration {
	return durationOr(c.DiagnosticsInterval, 10*time.Second)
}

// ToAnalyzerOptions converts the document into analyzer options.
func (c *AnalyzerConfig) ToAnalyzerOptions() roadquality.Options {
	return roadquality.Options{
		MinLidarPoints:       c.GetLidarMinPoints(),
		LidarRateLimit:       c.GetLidarRateLimit(),
		FastChangeRate:       c.GetLidarFastChangeRate(),
		CalibrationSamples:   c.GetCalibrationSamples(),
		AccelMinMagnitude:    c.GetAccelMinMagnitude(),
		MinEventSeverity:     c.GetMinEventSeverity(),
		EventRefractory:      c.GetEventRefractory(),
		TextureInterval:      c.GetTextureInterval(),
		TextureSampleRateHz:  c.GetTextureSampleRateHz(),
		ReferenceTempC:       c.GetReferenceTempC(),
		ReferencePressureHPa: c.GetReferencePressureHPa(),
		Source:               c.GetQualitySource(),
	}
}
