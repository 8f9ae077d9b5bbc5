package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/roadquality/internal/timeutil"
)

func TestDiagnostics_RateLimitsLogging(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var lines int
	SetLogger(func(string, ...interface{}) { lines++ })

	clock := timeutil.NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	d := NewDiagnostics(10*time.Second, clock)

	for i := 0; i < 5; i++ {
		d.Inc(CounterFitFailure)
	}
	assert.Equal(t, 1, lines, "only the first increment inside the interval logs")
	assert.Equal(t, int64(5), d.Count(CounterFitFailure))

	clock.Advance(10 * time.Second)
	d.Inc(CounterFitFailure)
	assert.Equal(t, 2, lines)
	assert.Equal(t, int64(6), d.Count(CounterFitFailure))
}

func TestDiagnostics_SnapshotSorted(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()
	SetLogger(nil)

	d := NewDiagnostics(time.Minute, nil)
	d.Inc(CounterSnapshotDropped)
	d.Inc(CounterInsufficientLidar)
	d.Inc(CounterInsufficientLidar)

	snap := d.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, CounterInsufficientLidar, snap[0].Name)
	assert.Equal(t, int64(2), snap[0].Total)
	assert.Equal(t, CounterSnapshotDropped, snap[1].Name)
}

func TestDiagnostics_NilReceiver(t *testing.T) {
	var d *Diagnostics
	d.Inc("anything")
	assert.Equal(t, int64(0), d.Count("anything"))
	assert.Nil(t, d.Snapshot())
}
