// Package pipeline runs the road quality analyzer on a single goroutine and
// distributes its results.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/roadquality/internal/monitoring"
	"github.com/banshee-data/roadquality/internal/roadquality"
)

// ErrQueueFull is returned by Submit when the snapshot queue is full. The
// snapshot is dropped.
var ErrQueueFull = errors.New("snapshot queue full")

// ErrStopped is returned by Submit after Run has returned.
var ErrStopped = errors.New("worker stopped")

const (
	defaultQueueSize = 8
	maxRecentEvents  = 500
	subscriberBuffer = 4
)

var logf = monitoring.Component("pipeline")

// Sink persists analyzer output. Errors are logged and counted; they never
// stop the worker.
type Sink interface {
	RecordResult(ctx context.Context, r roadquality.Result) error
	RecordEvents(ctx context.Context, events []roadquality.Event) error
}

// Worker owns an Analyzer. Producers hand it snapshots through Submit;
// consumers read results through Latest, Events and Subscribe.
type Worker struct {
	analyzer *roadquality.Analyzer
	sink     Sink
	diag     *monitoring.Diagnostics
	queue    chan roadquality.Snapshot
	done     chan struct{}

	mu        sync.RWMutex
	latest    roadquality.Result
	hasResult bool
	recent    []roadquality.Event
	processed int64

	subMu       sync.Mutex
	subscribers map[int]chan roadquality.Result
	nextSubID   int
}

// Config configures a Worker.
type Config struct {
	QueueSize   int
	Sink        Sink
	Diagnostics *monitoring.Diagnostics
}

// NewWorker wraps analyzer. The analyzer must not be used by anything else
// once the worker is running.
func NewWorker(analyzer *roadquality.Analyzer, cfg Config) *Worker {
	size := cfg.QueueSize
	if size < 1 {
		size = defaultQueueSize
	}
	analyzer.SetDiagnostics(cfg.Diagnostics)
	return &Worker{
		analyzer:    analyzer,
		sink:        cfg.Sink,
		diag:        cfg.Diagnostics,
		queue:       make(chan roadquality.Snapshot, size),
		done:        make(chan struct{}),
		latest:      analyzer.Result(),
		subscribers: make(map[int]chan roadquality.Result),
	}
}

// Submit enqueues a snapshot without blocking.
func (w *Worker) Submit(s roadquality.Snapshot) error {
	select {
	case <-w.done:
		return ErrStopped
	default:
	}
	select {
	case w.queue <- s:
		return nil
	default:
		w.diag.Inc(monitoring.CounterSnapshotDropped)
		return ErrQueueFull
	}
}

// Run processes snapshots until ctx is cancelled. Snapshots still queued at
// cancellation are discarded.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.done)
	defer w.closeSubscribers()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-w.queue:
			w.process(ctx, s)
		}
	}
}

func (w *Worker) process(ctx context.Context, s roadquality.Snapshot) {
	r := w.analyzer.Process(s)

	w.mu.Lock()
	w.latest = r
	w.hasResult = true
	w.processed++
	if len(r.NewEvents) > 0 {
		w.recent = append(w.recent, r.NewEvents...)
		if over := len(w.recent) - maxRecentEvents; over > 0 {
			w.recent = append([]roadquality.Event(nil), w.recent[over:]...)
		}
	}
	w.mu.Unlock()

	if w.sink != nil {
		if err := w.sink.RecordResult(ctx, r); err != nil {
			w.diag.Inc(monitoring.CounterSinkError)
			logf("record result: %v", err)
		}
		if len(r.NewEvents) > 0 {
			if err := w.sink.RecordEvents(ctx, r.NewEvents); err != nil {
				w.diag.Inc(monitoring.CounterSinkError)
				logf("record %d events: %v", len(r.NewEvents), err)
			}
		}
	}

	w.broadcast(r)
}

// Latest returns the most recent result and whether any snapshot has been
// processed yet. Before the first snapshot it returns the analyzer's
// initial state.
func (w *Worker) Latest() (roadquality.Result, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	r := w.latest
	r.NewEvents = append([]roadquality.Event(nil), r.NewEvents...)
	return r, w.hasResult
}

// Events returns up to limit of the most recent events, newest last.
// limit <= 0 returns all retained events.
func (w *Worker) Events(limit int) []roadquality.Event {
	w.mu.RLock()
	defer w.mu.RUnlock()
	start := 0
	if limit > 0 && limit < len(w.recent) {
		start = len(w.recent) - limit
	}
	return append([]roadquality.Event(nil), w.recent[start:]...)
}

// Processed returns the number of snapshots analysed.
func (w *Worker) Processed() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.processed
}

// Subscribe returns a channel of results and a function that cancels the
// subscription. Slow subscribers miss results rather than stall the worker.
func (w *Worker) Subscribe() (<-chan roadquality.Result, func()) {
	w.subMu.Lock()
	defer w.subMu.Unlock()

	ch := make(chan roadquality.Result, subscriberBuffer)
	if w.subscribers == nil {
		close(ch)
		return ch, func() {}
	}
	id := w.nextSubID
	w.nextSubID++
	w.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.subMu.Lock()
			defer w.subMu.Unlock()
			if c, ok := w.subscribers[id]; ok {
				delete(w.subscribers, id)
				close(c)
			}
		})
	}
}

func (w *Worker) broadcast(r roadquality.Result) {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	for _, ch := range w.subscribers {
		select {
		case ch <- r:
		default:
		}
	}
}

func (w *Worker) closeSubscribers() {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	for id, ch := range w.subscribers {
		close(ch)
		delete(w.subscribers, id)
	}
	w.subscribers = nil
}

// String describes the worker for logs.
func (w *Worker) String() string {
	return fmt.Sprintf("pipeline.Worker(source=%s, queue=%d)", w.analyzer.Options().Source, cap(w.queue))
}
