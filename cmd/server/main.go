/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the planning sync service. Handles
  configuration, dependency injection, job scheduling, and graceful
  shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load YAML configuration (written with defaults if missing)
  3. Initialize SQLite store
  4. Import legacy change-detection state, if configured
  5. Build the source, calendar, and notification clients
  6. Start the job scheduler (initial fetch runs synchronously)
  7. Start the HTTP API with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to the YAML configuration file (default: config.yaml)
  -db      SQLite database path override (default: from config)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler and wait for running jobs
  4. Close database connection
  5. Exit

SEE ALSO:
  - config/config.go: Configuration format
  - jobs/scheduler.go: Job scheduling
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/planning-sync/api"
	"github.com/warp/planning-sync/calendar"
	"github.com/warp/planning-sync/config"
	"github.com/warp/planning-sync/detect"
	"github.com/warp/planning-sync/jobs"
	"github.com/warp/planning-sync/notify"
	"github.com/warp/planning-sync/source"
	"github.com/warp/planning-sync/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "config.yaml", "Path to YAML configuration file")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	// Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *dbPath != "" {
		cfg.Database = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Store
	store, err := sqlite.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Change detection, with one-time legacy state import
	detector := detect.New(store)
	if cfg.LegacyStatePath != "" {
		if err := detector.ImportLegacyState(context.Background(), cfg.LegacyStatePath); err != nil {
			log.Printf("Warning: legacy state import failed: %v", err)
		}
	}

	// Clients
	sourceClient := source.NewClient(cfg.Source.BaseURL, cfg.Source.Username, source.Session{
		BearerToken: cfg.Source.BearerToken,
	})
	calendarClient := calendar.NewClient(cfg.Calendar.URL, cfg.Calendar.Username, cfg.Calendar.Password)
	sender := notify.NewClient(cfg.Notify.Server, cfg.Notify.Topic, cfg.Notify.Enabled)

	// Jobs
	status := jobs.NewStatus()
	runner := &jobs.Runner{
		Store:         store,
		Fetcher:       sourceClient,
		Parse:         source.ParseFeed,
		Pusher:        calendarClient,
		Detector:      detector,
		Dispatcher:    notify.NewDispatcher(store, sender),
		HorizonDays:   cfg.Sync.HorizonDays,
		NotifyEnabled: cfg.Notify.Enabled,
		Status:        status,
	}

	scheduler := jobs.NewScheduler(runner,
		time.Duration(cfg.Sync.FetchIntervalMinutes)*time.Minute,
		time.Duration(cfg.Sync.CalendarIntervalMinutes)*time.Minute,
		time.Duration(cfg.Sync.NotifyIntervalMinutes)*time.Minute)

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	if err := scheduler.Start(jobCtx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// HTTP API
	handler := api.NewHandler(store, status)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://%s", cfg.Listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	cancelJobs()
	scheduler.Stop()

	log.Println("Server stopped")
}
