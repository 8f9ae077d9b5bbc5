package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/roadquality/internal/monitoring"
	"github.com/banshee-data/roadquality/internal/roadquality"
	"github.com/banshee-data/roadquality/internal/timeutil"
)

type recordingSubmitter struct {
	mu    sync.Mutex
	snaps []roadquality.Snapshot
	err   error
}

func (r *recordingSubmitter) Submit(s roadquality.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.snaps = append(r.snaps, s)
	return nil
}

func (r *recordingSubmitter) all() []roadquality.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]roadquality.Snapshot(nil), r.snaps...)
}

func revolutionLines(step float64) []string {
	var lines []string
	for a := 0.0; a < 360; a += step {
		lines = append(lines, fmt.Sprintf("L,%.1f,800", a))
	}
	return lines
}

func quietLogs(t *testing.T) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })
}

func TestCollector_SubmitsSnapshotPerRevolution(t *testing.T) {
	quietLogs(t)
	clock := timeutil.NewMockClock(time.Date(2025, 5, 14, 9, 30, 0, 0, time.UTC))
	sub := &recordingSubmitter{}
	c := NewCollector(sub, CollectorConfig{MinScanPoints: 8, AccelBufferSize: 3, Clock: clock})

	for _, line := range []string{"G,51.5,-0.12", "E,18,1000", "A,1.0", "A,1.1", "A,1.2", "A,1.3"} {
		require.NoError(t, c.HandleLine(line))
	}
	for _, line := range revolutionLines(10) {
		require.NoError(t, c.HandleLine(line))
	}
	require.Empty(t, sub.all(), "revolution completes only on wrap")

	require.NoError(t, c.HandleLine("L,0.5,800"))

	snaps := sub.all()
	require.Len(t, snaps, 1)
	s := snaps[0]
	assert.Len(t, s.Points, 36)
	assert.Equal(t, []float64{1.1, 1.2, 1.3}, s.Accel)
	assert.Equal(t, roadquality.GPSFix{Lat: 51.5, Lon: -0.12}, s.GPS)
	require.NotNil(t, s.Environment)
	assert.Equal(t, 18.0, *s.Environment.TemperatureC)
	assert.Equal(t, 1000.0, *s.Environment.PressureHPa)
	assert.Equal(t, clock.Now(), s.CapturedAt)

	submitted, dropped := c.Stats()
	assert.Equal(t, int64(1), submitted)
	assert.Equal(t, int64(0), dropped)
}

func TestCollector_SnapshotIsIndependentOfLaterReadings(t *testing.T) {
	quietLogs(t)
	sub := &recordingSubmitter{}
	c := NewCollector(sub, CollectorConfig{MinScanPoints: 8})

	require.NoError(t, c.HandleLine("E,10,1010"))
	require.NoError(t, c.HandleLine("A,1.0"))
	for _, line := range revolutionLines(30) {
		require.NoError(t, c.HandleLine(line))
	}
	require.NoError(t, c.HandleLine("L,1,800"))

	// Later readings must not leak into the submitted snapshot.
	require.NoError(t, c.HandleLine("E,30,"))
	require.NoError(t, c.HandleLine("A,2.0"))
	require.NoError(t, c.HandleLine("G,1,1"))

	s := sub.all()[0]
	assert.Equal(t, 10.0, *s.Environment.TemperatureC)
	assert.Equal(t, []float64{1.0}, s.Accel)
	assert.False(t, s.GPS.HasFix())
}

func TestCollector_EnvironmentFieldsMerge(t *testing.T) {
	sub := &recordingSubmitter{}
	c := NewCollector(sub, CollectorConfig{MinScanPoints: 1})

	require.NoError(t, c.HandleLine("E,12,"))
	require.NoError(t, c.HandleLine("E,,995"))
	require.NoError(t, c.HandleLine("L,350,800"))
	require.NoError(t, c.HandleLine("L,1,800"))

	s := sub.all()[0]
	assert.Equal(t, 12.0, *s.Environment.TemperatureC)
	assert.Equal(t, 995.0, *s.Environment.PressureHPa)
}

func TestCollector_ParseErrorsAreCounted(t *testing.T) {
	quietLogs(t)
	diag := monitoring.NewDiagnostics(time.Minute, nil)
	c := NewCollector(nil, CollectorConfig{Diagnostics: diag})

	assert.ErrorIs(t, c.HandleLine("Z,1"), ErrUnknownLine)
	assert.ErrorIs(t, c.HandleLine("A,x"), ErrMalformedLine)
	assert.Equal(t, int64(2), diag.Count(monitoring.CounterParseError))
}

func TestCollector_SubmitFailureCountsDrop(t *testing.T) {
	quietLogs(t)
	errFull := errors.New("queue full")
	diag := monitoring.NewDiagnostics(time.Minute, nil)
	c := NewCollector(&recordingSubmitter{err: errFull}, CollectorConfig{MinScanPoints: 1, Diagnostics: diag})

	require.NoError(t, c.HandleLine("L,350,800"))
	err := c.HandleLine("L,1,800")
	require.ErrorIs(t, err, errFull)

	_, dropped := c.Stats()
	assert.Equal(t, int64(1), dropped)
	assert.Equal(t, int64(1), diag.Count(monitoring.CounterSnapshotDropped))
}

func TestCollector_RunStopsOnClose(t *testing.T) {
	quietLogs(t)
	sub := &recordingSubmitter{}
	c := NewCollector(sub, CollectorConfig{MinScanPoints: 8})

	lines := make(chan string, 64)
	for _, l := range revolutionLines(20) {
		lines <- l
	}
	lines <- "garbage"
	lines <- "L,0,800"
	close(lines)

	require.NoError(t, c.Run(context.Background(), lines))
	assert.Len(t, sub.all(), 1)
}

func TestCollector_RunStopsOnCancel(t *testing.T) {
	c := NewCollector(nil, CollectorConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Run(ctx, make(chan string))
	assert.ErrorIs(t, err, context.Canceled)
}
