/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll reconciliation engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env / environment configuration
  2. Parse command-line flags (flags win over environment)
  3. Initialize SQLite store
  4. Wire the engine services (session builder, detector, resolver,
     calculator, lifecycle, import pipeline)
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -addr    HTTP listen address (default from PAYROLL_ADDR, ":8080")
  -db      SQLite database path (default from PAYROLL_DB)
           Use ":memory:" for an in-memory database
  -workers Worker pool size for detection/import (default from PAYROLL_WORKERS)
  -log-level
           logrus level name (default from LOG_LEVEL, "info")

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/payroll.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run on a different address
  ./server -addr=":3000"

SEE ALSO:
  - config/config.go: Environment configuration and logging
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/forgeline/payroll-engine/api"
	"github.com/forgeline/payroll-engine/config"
	"github.com/forgeline/payroll-engine/importer"
	"github.com/forgeline/payroll-engine/payroll"
	"github.com/forgeline/payroll-engine/store/sqlite"
)

func main() {
	cfg := config.Load()
	log := config.GetLogger()

	// Flags win over environment defaults
	addr := flag.String("addr", cfg.Addr, "HTTP listen address")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	workers := flag.Int("workers", cfg.Workers, "worker pool size for detection and import")
	logLevel := flag.String("log-level", cfg.LogLevel, "logrus level name")
	flag.Parse()

	config.SetLogLevel(*logLevel)

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	// Wire the engine
	sessions := payroll.NewSessionBuilder()

	detector := &payroll.Detector{
		Reports:       store,
		Scans:         store,
		Discrepancies: store,
		LateRecords:   store,
		Sessions:      sessions,
		Log:           log,
		Concurrency:   *workers,
	}

	resolver := &payroll.Resolver{
		Discrepancies: store,
		Reports:       store,
		Scans:         store,
		Periods:       store,
		Audit:         store,
		Sessions:      payroll.NewSessionBuilder(),
		Log:           log,
	}

	calculator := &payroll.Calculator{
		Reports:       store,
		LateRecords:   store,
		RateCards:     store,
		Discrepancies: store,
		Periods:       store,
		Log:           log,
	}

	lifecycle := &payroll.Lifecycle{
		Periods:       store,
		Discrepancies: store,
		Calculator:    calculator,
		Audit:         store,
		Log:           log,
	}

	pipeline := &importer.Pipeline{
		Events:  store,
		Log:     log,
		Workers: *workers,
	}

	handler := &api.Handler{
		Reports:       store,
		Discrepancies: store,
		Periods:       store,
		Detector:      detector,
		Resolver:      resolver,
		Lifecycle:     lifecycle,
		Importer:      pipeline,
		Log:           log,
	}

	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", *addr).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}

	log.Info("server stopped")
}
