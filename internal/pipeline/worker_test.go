package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/roadquality/internal/monitoring"
	"github.com/banshee-data/roadquality/internal/roadquality"
	"github.com/banshee-data/roadquality/internal/timeutil"
)

// roughScan is a flat road seen from 1m with one 200mm pothole at 10°.
func roughScan() []roadquality.LidarPoint {
	var pts []roadquality.LidarPoint
	for deg := -35.0; deg <= 35.0+1e-9; deg += 0.5 {
		raw := deg
		if raw < 0 {
			raw += 360
		}
		d := 1000 / math.Cos(deg*math.Pi/180)
		if math.Abs(deg-10) < 1e-9 {
			d += 200
		}
		pts = append(pts, roadquality.LidarPoint{AngleDeg: raw, DistanceMM: d})
	}
	return pts
}

type fakeSink struct {
	mu      sync.Mutex
	results []roadquality.Result
	events  []roadquality.Event
	err     error
}

func (f *fakeSink) RecordResult(_ context.Context, r roadquality.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, r)
	return f.err
}

func (f *fakeSink) RecordEvents(_ context.Context, evs []roadquality.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evs...)
	return f.err
}

func (f *fakeSink) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results), len(f.events)
}

func newTestWorker(t *testing.T, cfg Config) (*Worker, *timeutil.MockClock) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })

	clock := timeutil.NewMockClock(time.Date(2025, 5, 14, 9, 30, 0, 0, time.UTC))
	a := roadquality.NewAnalyzer(roadquality.DefaultOptions(), clock)
	return NewWorker(a, cfg), clock
}

func startWorker(t *testing.T, w *Worker) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Error("worker did not stop")
		}
	})
	return cancel
}

func TestWorker_LatestBeforeFirstSnapshot(t *testing.T) {
	w, _ := newTestWorker(t, Config{})
	r, ok := w.Latest()
	assert.False(t, ok)
	assert.Equal(t, roadquality.QualityFromLidar, r.Source)
	assert.Equal(t, "Unknown", r.TextureLabel)
	assert.Empty(t, w.Events(0))
}

func TestWorker_ProcessesAndPersists(t *testing.T) {
	sink := &fakeSink{}
	w, _ := newTestWorker(t, Config{Sink: sink})
	startWorker(t, w)

	require.NoError(t, w.Submit(roadquality.Snapshot{Points: roughScan()}))

	require.Eventually(t, func() bool { return w.Processed() == 1 }, 2*time.Second, 5*time.Millisecond)

	r, ok := w.Latest()
	require.True(t, ok)
	assert.Len(t, r.NewEvents, 1)
	assert.Equal(t, roadquality.EventPothole, r.NewEvents[0].Type)

	events := w.Events(0)
	require.Len(t, events, 1)
	assert.Equal(t, r.NewEvents[0].ID, events[0].ID)

	results, persisted := sink.counts()
	assert.Equal(t, 1, results)
	assert.Equal(t, 1, persisted)
}

func TestWorker_SinkErrorsAreCounted(t *testing.T) {
	diag := monitoring.NewDiagnostics(time.Minute, nil)
	sink := &fakeSink{err: errors.New("disk full")}
	w, _ := newTestWorker(t, Config{Sink: sink, Diagnostics: diag})
	startWorker(t, w)

	require.NoError(t, w.Submit(roadquality.Snapshot{Points: roughScan()}))
	require.Eventually(t, func() bool { return w.Processed() == 1 }, 2*time.Second, 5*time.Millisecond)

	// One failure for the result, one for the event batch.
	assert.Eventually(t, func() bool {
		return diag.Count(monitoring.CounterSinkError) == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWorker_SubmitQueueFull(t *testing.T) {
	diag := monitoring.NewDiagnostics(time.Minute, nil)
	w, _ := newTestWorker(t, Config{QueueSize: 2, Diagnostics: diag})

	// Not running, so nothing drains the queue.
	require.NoError(t, w.Submit(roadquality.Snapshot{}))
	require.NoError(t, w.Submit(roadquality.Snapshot{}))
	err := w.Submit(roadquality.Snapshot{})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, int64(1), diag.Count(monitoring.CounterSnapshotDropped))
}

func TestWorker_SubmitAfterStop(t *testing.T) {
	w, _ := newTestWorker(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, w.Run(ctx), context.Canceled)

	assert.ErrorIs(t, w.Submit(roadquality.Snapshot{}), ErrStopped)
}

func TestWorker_Subscribe(t *testing.T) {
	w, clock := newTestWorker(t, Config{})
	ch, unsubscribe := w.Subscribe()
	startWorker(t, w)

	require.NoError(t, w.Submit(roadquality.Snapshot{Points: roughScan()}))
	select {
	case r := <-ch:
		assert.Equal(t, clock.Now(), r.UpdatedAt)
		assert.Len(t, r.NewEvents, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("no result delivered to subscriber")
	}

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open, "channel closed after unsubscribe")
}

func TestWorker_SubscribeAfterStopIsClosed(t *testing.T) {
	w, _ := newTestWorker(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = w.Run(ctx)

	ch, unsubscribe := w.Subscribe()
	defer unsubscribe()
	_, open := <-ch
	assert.False(t, open)
}

func TestWorker_EventsLimit(t *testing.T) {
	w, clock := newTestWorker(t, Config{QueueSize: 4})
	startWorker(t, w)

	for i := 0; i < 3; i++ {
		require.NoError(t, w.Submit(roadquality.Snapshot{Points: roughScan()}))
		want := int64(i + 1)
		require.Eventually(t, func() bool { return w.Processed() == want }, 2*time.Second, 5*time.Millisecond)
		clock.Advance(time.Second)
	}

	all := w.Events(0)
	require.Len(t, all, 3)
	last := w.Events(2)
	require.Len(t, last, 2)
	assert.Equal(t, all[1].ID, last[0].ID)
	assert.Equal(t, all[2].ID, last[1].ID)
}
