package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/roadquality/internal/monitoring"
	"github.com/banshee-data/roadquality/internal/roadquality"
	"github.com/banshee-data/roadquality/internal/timeutil"
)

var logf = monitoring.Component("feed")

// Submitter accepts completed snapshots. pipeline.Worker implements it.
type Submitter interface {
	Submit(roadquality.Snapshot) error
}

// CollectorConfig configures a Collector.
type CollectorConfig struct {
	MinScanPoints   int
	AccelBufferSize int
	Clock           timeutil.Clock
	Diagnostics     *monitoring.Diagnostics
}

// Collector routes bridge lines into a ScanAssembler, an AccelBuffer and
// the latest GPS/environment context, and submits one immutable snapshot
// per completed revolution.
type Collector struct {
	mu        sync.Mutex
	assembler *ScanAssembler
	accel     *AccelBuffer
	gps       roadquality.GPSFix
	env       *roadquality.Environment

	submitter Submitter
	clock     timeutil.Clock
	diag      *monitoring.Diagnostics

	submitted int64
	dropped   int64
}

// NewCollector returns a Collector that submits to s.
func NewCollector(s Submitter, cfg CollectorConfig) *Collector {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Collector{
		assembler: NewScanAssembler(cfg.MinScanPoints),
		accel:     NewAccelBuffer(cfg.AccelBufferSize),
		submitter: s,
		clock:     clock,
		diag:      cfg.Diagnostics,
	}
}

// HandleLine parses and routes one line. Parse errors are counted and
// returned; the caller decides whether to keep going.
func (c *Collector) HandleLine(line string) error {
	r, err := ParseLine(line)
	if err != nil {
		c.diag.Inc(monitoring.CounterParseError)
		return err
	}
	return c.HandleReading(r)
}

// HandleReading routes an already parsed reading.
func (c *Collector) HandleReading(r Reading) error {
	c.mu.Lock()
	var (
		snap  roadquality.Snapshot
		ready bool
	)
	switch r.Kind {
	case KindLidar:
		if scan, ok := c.assembler.Add(r.Point); ok {
			snap = c.snapshotLocked(scan)
			ready = true
		}
	case KindAccel:
		c.accel.Push(r.Accel)
	case KindGPS:
		c.gps = r.GPS
	case KindEnvironment:
		env := mergeEnvironment(c.env, r.Environment)
		c.env = &env
	default:
		c.mu.Unlock()
		return fmt.Errorf("%w: kind %v", ErrUnknownLine, r.Kind)
	}
	c.mu.Unlock()

	if !ready {
		return nil
	}
	return c.submit(snap)
}

// snapshotLocked copies all shared state so the snapshot stays valid after
// the collector moves on.
func (c *Collector) snapshotLocked(scan []roadquality.LidarPoint) roadquality.Snapshot {
	snap := roadquality.Snapshot{
		Points:     scan,
		Accel:      c.accel.Tail(0),
		GPS:        c.gps,
		CapturedAt: c.clock.Now(),
	}
	if c.env != nil {
		env := copyEnvironment(*c.env)
		snap.Environment = &env
	}
	return snap
}

func (c *Collector) submit(snap roadquality.Snapshot) error {
	if c.submitter == nil {
		return nil
	}
	if err := c.submitter.Submit(snap); err != nil {
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
		c.diag.Inc(monitoring.CounterSnapshotDropped)
		return fmt.Errorf("submit snapshot: %w", err)
	}
	c.mu.Lock()
	c.submitted++
	c.mu.Unlock()
	return nil
}

// Run consumes lines until ctx is done or lines is closed. Malformed and
// unknown lines are skipped; dropped snapshots are logged.
func (c *Collector) Run(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := c.HandleLine(line)
			switch {
			case err == nil:
			case errors.Is(err, ErrUnknownLine), errors.Is(err, ErrMalformedLine):
				// counted by HandleLine
			default:
				logf("dropping snapshot: %v", err)
			}
		}
	}
}

// Stats reports submitted and dropped snapshot counts.
func (c *Collector) Stats() (submitted, dropped int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitted, c.dropped
}

func mergeEnvironment(prev *roadquality.Environment, next roadquality.Environment) roadquality.Environment {
	var out roadquality.Environment
	if prev != nil {
		out = copyEnvironment(*prev)
	}
	if next.TemperatureC != nil {
		v := *next.TemperatureC
		out.TemperatureC = &v
	}
	if next.PressureHPa != nil {
		v := *next.PressureHPa
		out.PressureHPa = &v
	}
	return out
}

func copyEnvironment(e roadquality.Environment) roadquality.Environment {
	var out roadquality.Environment
	if e.TemperatureC != nil {
		v := *e.TemperatureC
		out.TemperatureC = &v
	}
	if e.PressureHPa != nil {
		v := *e.PressureHPa
		out.PressureHPa = &v
	}
	return out
}
