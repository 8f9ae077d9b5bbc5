package roadquality

import (
	"fmt"
	"time"
)

// LidarPoint is one rangefinder return.
type LidarPoint struct {
	AngleDeg   float64 `json:"angle_deg"`   // [0, 360)
	DistanceMM float64 `json:"distance_mm"` // > 0
}

// GPSFix is the position snapshot attached to events. (0, 0) means no fix.
type GPSFix struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// HasFix reports whether the fix carries a real position.
func (g GPSFix) HasFix() bool {
	return g.Lat != 0 || g.Lon != 0
}

// Environment is optional ambient context used to adjust calibration.
// Nil fields are unavailable.
type Environment struct {
	TemperatureC *float64 `json:"temperature_c,omitempty"`
	PressureHPa  *float64 `json:"pressure_hpa,omitempty"`
}

// EventType is the kind of discrete road anomaly.
type EventType string

const (
	EventPothole EventType = "Pothole"
	EventBump    EventType = "Bump"
)

// EventSource names the detector that produced an event.
type EventSource string

const (
	SourceLidarProfile EventSource = "lidar"
	SourceAccel        EventSource = "accelerometer"
)

// Event is a detected bump or pothole. Magnitude is the baseline-subtracted
// acceleration in g for accelerometer events and the residual in mm for
// LiDAR events.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Source    EventSource `json:"source"`
	Severity  int         `json:"severity"`
	Magnitude float64     `json:"magnitude"`
	AngleDeg  float64     `json:"angle_deg,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Lat       float64     `json:"lat"`
	Lon       float64     `json:"lon"`
}

// QualitySource selects which estimate becomes the authoritative score.
type QualitySource int

const (
	QualityFromLidar QualitySource = iota
	QualityFromAccelerometer
	QualityCombined
)

func (q QualitySource) String() string {
	switch q {
	case QualityFromLidar:
		return "lidar"
	case QualityFromAccelerometer:
		return "accelerometer"
	case QualityCombined:
		return "combined"
	default:
		return fmt.Sprintf("QualitySource(%d)", int(q))
	}
}

// ParseQualitySource maps a configuration string to a QualitySource.
func ParseQualitySource(s string) (QualitySource, error) {
	switch s {
	case "", "lidar":
		return QualityFromLidar, nil
	case "accelerometer", "accel":
		return QualityFromAccelerometer, nil
	case "combined":
		return QualityCombined, nil
	default:
		return QualityFromLidar, fmt.Errorf("unknown quality source %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (q QualitySource) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// Snapshot is one immutable unit of work for the analyzer: a full LiDAR
// revolution plus the accelerometer tail and context at submission time.
type Snapshot struct {
	Points      []LidarPoint `json:"points"`
	Accel       []float64    `json:"accel"`
	GPS         GPSFix       `json:"gps"`
	Environment *Environment `json:"environment,omitempty"`
	CapturedAt  time.Time    `json:"captured_at"`
}

// Result is the consumer view of the analyzer after one Process call.
type Result struct {
	Source         QualitySource  `json:"source"`
	Score          float64        `json:"score"`
	Classification Classification `json:"classification"`
	Color          string         `json:"color"`

	LidarScore    float64 `json:"lidar_score"`
	RawLidarScore float64 `json:"raw_lidar_score"`
	LidarTrend    float64 `json:"lidar_trend"`
	AccelScore    float64 `json:"accel_score"`
	TextureScore  float64 `json:"texture_score"`
	TextureLabel  string  `json:"texture_label"`

	Calibrated     bool    `json:"calibrated"`
	AccelBaseline  float64 `json:"accel_baseline"`
	AccelThreshold float64 `json:"accel_threshold"`

	GPS        GPSFix    `json:"gps"`
	NewEvents  []Event   `json:"new_events"`
	EventCount int       `json:"event_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}
