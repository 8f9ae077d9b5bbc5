package monitoring

import (
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/roadquality/internal/timeutil"
)

// Counter names for the recoverable conditions seen while processing
// sensor data.
const (
	CounterInsufficientLidar = "lidar_insufficient_points"
	CounterLidarRateLimited  = "lidar_rate_limited"
	CounterDegenerateFit     = "lidar_degenerate_geometry"
	CounterFitFailure        = "lidar_fit_failure"
	CounterTextureSkipped    = "texture_insufficient_samples"
	CounterSnapshotDropped   = "snapshot_dropped"
	CounterParseError        = "feed_parse_error"
	CounterSinkError         = "sink_error"
)

// Diagnostics keeps named counters and logs each one at most once per
// interval, reporting how many times it fired since the last log line.
type Diagnostics struct {
	mu       sync.Mutex
	clock    timeutil.Clock
	interval time.Duration
	counters map[string]*diagCounter
}

type diagCounter struct {
	total      int64
	sinceLog   int64
	lastLogged time.Time
}

// NewDiagnostics returns a Diagnostics that logs each counter at most once
// per interval. A nil clock uses the real clock.
func NewDiagnostics(interval time.Duration, clock timeutil.Clock) *Diagnostics {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Diagnostics{
		clock:    clock,
		interval: interval,
		counters: make(map[string]*diagCounter),
	}
}

// Inc increments the named counter. It is safe to call on a nil receiver.
func (d *Diagnostics) Inc(name string) {
	if d == nil {
		return
	}
	d.mu.Lock()
	c, ok := d.counters[name]
	if !ok {
		c = &diagCounter{}
		d.counters[name] = c
	}
	c.total++
	c.sinceLog++

	now := d.clock.Now()
	var emit int64
	if c.lastLogged.IsZero() || now.Sub(c.lastLogged) >= d.interval {
		emit = c.sinceLog
		c.sinceLog = 0
		c.lastLogged = now
	}
	total := c.total
	d.mu.Unlock()

	if emit > 0 {
		Logf("diagnostic %s: +%d (total %d)", name, emit, total)
	}
}

// Count returns the total for the named counter.
func (d *Diagnostics) Count(name string) int64 {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.counters[name]; ok {
		return c.total
	}
	return 0
}

// CounterValue is one entry of a Diagnostics snapshot.
type CounterValue struct {
	Name  string `json:"name"`
	Total int64  `json:"total"`
}

// Snapshot returns all counters sorted by name.
func (d *Diagnostics) Snapshot() []CounterValue {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	out := make([]CounterValue, 0, len(d.counters))
	for name, c := range d.counters {
		out = append(out, CounterValue{Name: name, Total: c.total})
	}
	d.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
