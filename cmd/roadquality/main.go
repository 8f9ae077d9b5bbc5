package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/roadquality/internal/api"
	"github.com/banshee-data/roadquality/internal/config"
	"github.com/banshee-data/roadquality/internal/db"
	"github.com/banshee-data/roadquality/internal/feed"
	"github.com/banshee-data/roadquality/internal/monitoring"
	"github.com/banshee-data/roadquality/internal/pipeline"
	"github.com/banshee-data/roadquality/internal/roadquality"
	"github.com/banshee-data/roadquality/internal/serialmux"
	"github.com/banshee-data/roadquality/internal/timeutil"
	"github.com/banshee-data/roadquality/internal/version"
)

var (
	configFile      = flag.String("config", "", "Analyzer config JSON (default: "+config.DefaultConfigPath+" if present)")
	dbFile          = flag.String("db", "roadquality.db", "SQLite database path (empty disables persistence)")
	listen          = flag.String("listen", ":8080", "Listen address")
	port            = flag.String("port", "/dev/ttyUSB0", "Sensor bridge serial port (empty disables the bridge; ignored in dev mode)")
	baud            = flag.Int("baud", serialmux.DefaultBaudRate, "Sensor bridge baud rate")
	devMode         = flag.Bool("dev", false, "Replay bridge lines instead of opening the serial port")
	fixtures        = flag.String("fixtures", "", "Bridge line file replayed in dev mode (default: synthetic drive)")
	replayInterval  = flag.Duration("replay-interval", 2*time.Millisecond, "Delay between replayed lines in dev mode")
	backupDir       = flag.String("backup-dir", "", "Directory for temporary database backups (default: OS temp dir)")
	migrationsCheck = flag.Bool("migrations-check", false, "Report database migration status and exit")
	showVersion     = flag.Bool("version", false, "Print version and exit")
)

// loadConfig reads path, or the default config when path is empty. With no
// file at all the built-in defaults apply.
func loadConfig(path string) (*config.AnalyzerConfig, error) {
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err != nil {
			return config.EmptyAnalyzerConfig(), nil
		}
		path = config.DefaultConfigPath
	}
	cfg, err := config.LoadAnalyzerConfig(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// readFixtures returns the non-empty lines of a recorded bridge capture.
func readFixtures(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixtures file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fixtures file: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("fixtures file %s is empty", path)
	}
	return lines, nil
}

// openBridge picks the line source: a replay in dev mode, the real serial
// port, or a disabled mux when no port is configured.
func openBridge(ctx context.Context) (serialmux.SerialMuxInterface, error) {
	if *devMode {
		next := feed.NewSyntheticDrive(uint64(time.Now().UnixNano())).Next
		if *fixtures != "" {
			lines, err := readFixtures(*fixtures)
			if err != nil {
				return nil, err
			}
			next = serialmux.LinesFrom(lines)
		}
		return serialmux.NewReplaySerialMux(ctx, next, *replayInterval), nil
	}
	if *port == "" {
		return serialmux.NewDisabledSerialMux(), nil
	}
	return serialmux.NewRealSerialMux(*port, serialmux.PortOptions{BaudRate: *baud})
}

func checkMigrations(path string) error {
	database, err := db.OpenDB(path)
	if err != nil {
		return err
	}
	defer database.Close()

	status, err := database.CheckMigrations(db.MigrationsFS())
	if err != nil {
		return err
	}
	fmt.Printf("current=%d latest=%d dirty=%v up_to_date=%v\n",
		status.Current, status.Latest, status.Dirty, status.UpToDate())
	if !status.UpToDate() {
		return errors.New("database schema is not up to date")
	}
	return nil
}

// logTransitions logs whenever the road classification changes.
func logTransitions(results <-chan roadquality.Result) {
	var last roadquality.Classification
	for r := range results {
		if r.Classification != last {
			log.Printf("road quality now %s (%.1f, %s)", r.Classification, r.Score, r.Source)
			last = r.Classification
		}
		for _, e := range r.NewEvents {
			log.Printf("%s severity %d from %s at %.6f,%.6f", e.Type, e.Severity, e.Source, e.Lat, e.Lon)
		}
	}
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	log.Printf("starting %s", version.String())

	if *migrationsCheck {
		if err := checkMigrations(*dbFile); err != nil {
			log.Fatalf("migration check failed: %v", err)
		}
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	clock := timeutil.RealClock{}
	diag := monitoring.NewDiagnostics(cfg.GetDiagnosticsInterval(), clock)

	analyzer := roadquality.NewAnalyzer(cfg.ToAnalyzerOptions(), clock)
	analyzer.SetDiagnostics(diag)

	var (
		database *db.DB
		sink     pipeline.Sink
		store    api.Store
	)
	if *dbFile != "" {
		database, err = db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()

		session, err := database.StartSession(context.Background(), cfg.GetQualitySource(), clock.Now(), cfg)
		if err != nil {
			log.Fatalf("failed to start session: %v", err)
		}
		log.Printf("recording session %s", session.ID)
		sink, store = session, database
	}

	worker := pipeline.NewWorker(analyzer, pipeline.Config{
		QueueSize:   cfg.GetSnapshotQueueSize(),
		Sink:        sink,
		Diagnostics: diag,
	})
	collector := feed.NewCollector(worker, feed.CollectorConfig{
		MinScanPoints:   cfg.GetLidarMinPoints(),
		AccelBufferSize: cfg.GetAccelBufferSize(),
		Clock:           clock,
		Diagnostics:     diag,
	})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bridge, err := openBridge(ctx)
	if err != nil {
		log.Fatalf("failed to open sensor bridge: %v", err)
	}
	defer bridge.Close()

	if err := bridge.Initialize(); err != nil {
		log.Fatalf("failed to initialize sensor bridge: %v", err)
	}
	log.Printf("initialized sensor bridge %s", bridgeName())

	// Subscribe before Monitor starts so a replay loses no leading lines.
	lineID, lines := bridge.Subscribe()
	results, unsubscribe := worker.Subscribe()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("analysis worker stopped: %v", err)
		}
		log.Printf("%s terminated", worker)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer unsubscribe()
		logTransitions(results)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := bridge.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor sensor bridge: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer bridge.Unsubscribe(lineID)
		if err := collector.Run(ctx, lines); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("collector stopped: %v", err)
		}
		submitted, dropped := collector.Stats()
		log.Printf("collector routine terminated: %d snapshots submitted, %d dropped", submitted, dropped)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(worker, store, diag, bridge).ServeMux()
		bridge.AttachAdminRoutes(mux)
		if database != nil {
			if err := database.AttachAdminRoutes(mux, *backupDir); err != nil {
				log.Printf("failed to attach database admin routes: %v", err)
			}
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

func bridgeName() string {
	switch {
	case *devMode && *fixtures != "":
		return "replay of " + *fixtures
	case *devMode:
		return "synthetic drive"
	case *port == "":
		return "(disabled)"
	default:
		return *port
	}
}
