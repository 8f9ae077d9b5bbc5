package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/roadquality/internal/config"
	"github.com/banshee-data/roadquality/internal/feed"
	"github.com/banshee-data/roadquality/internal/monitoring"
	"github.com/banshee-data/roadquality/internal/pipeline"
	"github.com/banshee-data/roadquality/internal/roadquality"
	"github.com/banshee-data/roadquality/internal/serialmux"
	"github.com/banshee-data/roadquality/internal/timeutil"
)

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, ":8080", *listen)
	assert.Equal(t, "roadquality.db", *dbFile)
	assert.Equal(t, serialmux.DefaultBaudRate, *baud)
	assert.False(t, *devMode)
	assert.False(t, *migrationsCheck)
	assert.Empty(t, *fixtures)
}

func TestLoadConfig_DefaultsWhenNoFile(t *testing.T) {
	// cmd/roadquality has no config/ directory of its own.
	cfg, err := loadConfig("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, roadquality.QualityFromLidar, cfg.GetQualitySource())
	assert.Equal(t, 2*time.Second, cfg.GetEventRefractory())
}

func TestLoadConfig_ExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drive.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"quality_source": "combined", "snapshot_queue_size": 16}`), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, roadquality.QualityCombined, cfg.GetQualitySource())
	assert.Equal(t, 16, cfg.GetSnapshotQueueSize())
}

func TestLoadConfig_RejectsNonJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drive.yaml")
	require.NoError(t, os.WriteFile(path, []byte("quality_source: lidar\n"), 0o644))

	_, err := loadConfig(path)
	assert.Error(t, err)
}

func TestReadFixtures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.txt")
	require.NoError(t, os.WriteFile(path, []byte("L,0,450\n\n  A,1.02  \nG,51.5,-0.12\n"), 0o644))

	lines, err := readFixtures(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"L,0,450", "A,1.02", "G,51.5,-0.12"}, lines)

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("\n\n"), 0o644))
	_, err = readFixtures(empty)
	assert.Error(t, err)

	_, err = readFixtures(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestLogTransitions_ReturnsWhenClosed(t *testing.T) {
	results := make(chan roadquality.Result, 3)
	results <- roadquality.Result{Score: 95, Classification: roadquality.Excellent}
	results <- roadquality.Result{Score: 94, Classification: roadquality.Excellent}
	results <- roadquality.Result{Score: 30, Classification: roadquality.VeryPoor}
	close(results)

	done := make(chan struct{})
	go func() {
		logTransitions(results)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("logTransitions did not return after close")
	}
}

// TestDevReplayPipeline runs a recorded synthetic drive through the same
// bridge, collector and worker wiring main uses.
func TestDevReplayPipeline(t *testing.T) {
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(log.Printf) })

	drive := feed.NewSyntheticDrive(7)
	var sb strings.Builder
	for i := 0; i < 5*183; i++ {
		line, _ := drive.Next()
		sb.WriteString(line + "\n")
	}
	path := filepath.Join(t.TempDir(), "drive.txt")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))

	prevDev, prevFixtures, prevInterval := *devMode, *fixtures, *replayInterval
	*devMode, *fixtures, *replayInterval = true, path, 0
	t.Cleanup(func() { *devMode, *fixtures, *replayInterval = prevDev, prevFixtures, prevInterval })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge, err := openBridge(ctx)
	require.NoError(t, err)
	assert.Equal(t, "replay of "+path, bridgeName())

	cfg := config.EmptyAnalyzerConfig()
	clock := timeutil.RealClock{}
	worker := pipeline.NewWorker(roadquality.NewAnalyzer(cfg.ToAnalyzerOptions(), clock), pipeline.Config{
		QueueSize: 64,
	})
	collector := feed.NewCollector(worker, feed.CollectorConfig{Clock: clock})

	_, lines := bridge.Subscribe()
	go worker.Run(ctx)
	collected := make(chan error, 1)
	go func() { collected <- collector.Run(ctx, lines) }()

	require.NoError(t, bridge.Monitor(ctx))
	require.NoError(t, bridge.Close())
	require.NoError(t, <-collected)

	submitted, _ := collector.Stats()
	assert.Positive(t, submitted)
	require.Eventually(t, func() bool {
		_, ok := worker.Latest()
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}
