// Package main is the entry point for the almanac trading-calendar service.
// The service mirrors the Shinny holiday list and continuous-contract roll
// table, derives the futures trading calendar from them, and serves both over
// a REST API with SSE and WebSocket event streams.
//
// Startup sequence:
// 1. Loads configuration from environment variables
// 2. Initializes logging
// 3. Opens the cache and archive databases
// 4. Builds the vendor client and calendar service, then preloads the calendar
// 5. Registers background maintenance jobs with the cron scheduler
// 6. Starts the HTTP server
// 7. Waits for a shutdown signal and performs graceful shutdown
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/almanac/internal/archive"
	"github.com/aristath/almanac/internal/calendar"
	"github.com/aristath/almanac/internal/clientdata"
	"github.com/aristath/almanac/internal/clients/shinny"
	"github.com/aristath/almanac/internal/config"
	"github.com/aristath/almanac/internal/database"
	"github.com/aristath/almanac/internal/events"
	"github.com/aristath/almanac/internal/reliability"
	"github.com/aristath/almanac/internal/scheduler"
	"github.com/aristath/almanac/internal/server"
	"github.com/aristath/almanac/internal/version"
	"github.com/aristath/almanac/pkg/logger"
)

// archiveRetention is how long raw vendor payloads are kept in the archive
// database before the weekly prune job removes them.
const archiveRetention = 365 * 24 * time.Hour

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println(version.Version)
		return
	}

	// Load configuration first to get log level.
	// Configuration is loaded from environment variables (.env file).
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		// This ensures we can log the configuration error even if config loading fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger with config level
	// Logger uses structured logging (zerolog) with configurable log levels
	// Pretty mode enables human-readable output for development
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("version", version.Version).Msg("Starting almanac")

	// Cache database: vendor payloads with TTLs, so restarts and upstream
	// outages are served from the last good copy instead of a refetch.
	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	if err := cacheDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate cache database")
	}

	// Archive database: an append-only record of every upstream fetch
	// (URL, status, size, checksum) for auditing vendor behavior.
	archiveStore, err := archive.Open(filepath.Join(cfg.DataDir, "archive.db"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open archive database")
	}
	defer archiveStore.Close()

	// Event bus distributes domain events (calendar loads, fetches, backups)
	// to the SSE and WebSocket streams. Handlers run synchronously.
	bus := events.NewBus(log)

	cacheRepo := clientdata.NewRepository(cacheDB.Conn())

	// Vendor client for the Shinny holiday list and continuous-contract
	// table. Cache, archive, and bus are all wired in so every fetch is
	// cached, recorded, and announced.
	client := shinny.NewClient(shinny.Options{
		HolidayURL:         cfg.HolidayURL,
		ContinuousTableURL: cfg.ContinuousTableURL,
		Timeout:            cfg.FetchTimeout,
		CacheRepo:          cacheRepo,
		Archive:            archiveStore,
		Bus:                bus,
	}, log)

	loc, err := cfg.MarketLocation()
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.MarketTimezone).Msg("Failed to load market timezone")
	}

	calendarService := calendar.NewService(client, loc, bus, log)

	// Warm the calendar before serving. A failure here is not fatal: the
	// service lazy-loads on the first request, and the client falls back to
	// stale cached payloads when the vendor is down.
	// Preload runs two upstream fetches back to back, so allow twice the
	// single-fetch timeout.
	preloadCtx, preloadCancel := context.WithTimeout(context.Background(), 2*cfg.FetchTimeout)
	defer preloadCancel()
	if err := calendarService.Preload(preloadCtx); err != nil {
		log.Warn().Err(err).Msg("Calendar preload failed, sources will be retried on first request")
	}

	// Backup service knows every database so maintenance and offsite backup
	// jobs operate on one registry instead of hardcoded paths.
	backupService := reliability.NewBackupService(log)
	backupService.Register("cache", cacheDB.Conn())
	backupService.Register("archive", archiveStore.DB())

	maintenanceDBs := map[string]*sql.DB{
		"cache":   cacheDB.Conn(),
		"archive": archiveStore.DB(),
	}

	// Background jobs run on cron schedules (with a seconds field):
	// - hourly: expire stale vendor payloads from the cache database
	// - daily 3 AM: WAL checkpoints, integrity checks, disk space check
	// - weekly Sunday 4 AM: vacuum both databases
	// - weekly Sunday 5 AM: prune archived fetches past retention
	sched := scheduler.New(log)

	if err := sched.AddJob("0 0 * * * *", clientdata.NewCleanupJob(cacheRepo, bus, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cache cleanup job")
	}
	if err := sched.AddJob("0 0 3 * * *", reliability.NewDailyMaintenanceJob(maintenanceDBs, cfg.DataDir, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register daily maintenance job")
	}
	if err := sched.AddJob("0 0 4 * * 0", reliability.NewWeeklyMaintenanceJob(maintenanceDBs, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register weekly maintenance job")
	}
	if err := sched.AddJob("0 0 5 * * 0", archive.NewPruneJob(archiveStore, archiveRetention, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register archive prune job")
	}

	// Offsite backups to Cloudflare R2 run daily at 2:30 AM, before the
	// maintenance window churns the WAL files. Only enabled when R2
	// credentials are configured.
	var r2Backups *reliability.R2BackupService
	var backupJob *reliability.R2BackupJob
	if cfg.R2 != nil {
		r2Client, err := reliability.NewR2Client(context.Background(),
			cfg.R2.Endpoint, cfg.R2.AccessKeyID, cfg.R2.SecretAccessKey, cfg.R2.Bucket, log)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create R2 client, offsite backups disabled")
		} else {
			r2Backups = reliability.NewR2BackupService(r2Client, backupService, cfg.DataDir, bus, log)
			backupJob = reliability.NewR2BackupJob(r2Backups, cfg.BackupRetentionDays, log)
			if err := sched.AddJob("0 30 2 * * *", backupJob); err != nil {
				log.Fatal().Err(err).Msg("Failed to register backup job")
			}
			log.Info().Str("bucket", cfg.R2.Bucket).Msg("Offsite backups enabled")
		}
	} else {
		log.Info().Msg("R2 credentials not configured, offsite backups disabled")
	}

	// Initialize HTTP server
	// The HTTP server provides REST API endpoints for:
	// - Calendar queries (valid range, day flags, trading days)
	// - Continuous-contract queries (series, rolls, cadence, active contract)
	// - Event streams (SSE and WebSocket)
	// - System operations (status, backups, archived fetches)
	srv := server.New(server.Config{
		Log:      log,
		Config:   cfg,
		Calendar: calendarService,
		Bus:      bus,
		CacheDB:  cacheDB,
		Archive:  archiveStore,
		Backups:  r2Backups,
		Port:     cfg.Port,
		DevMode:  cfg.DevMode,
	})
	if backupJob != nil {
		// Lets POST /api/system/backup trigger the registered job on demand.
		srv.SetBackupJob(backupJob)
	}

	sched.Start()
	log.Info().Msg("Scheduler started")

	// Start server in goroutine
	// The HTTP server runs in a separate goroutine so it doesn't block the
	// main thread while background jobs run concurrently.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	// The application blocks here until it receives SIGINT (Ctrl+C) or
	// SIGTERM (kill command).
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Stop the scheduler first so no job starts mid-shutdown. In-progress
	// jobs are allowed to complete.
	sched.Stop()
	log.Info().Msg("Scheduler stopped")

	// Graceful shutdown
	// The HTTP server is given up to 10 seconds to finish processing
	// in-flight requests and close connections gracefully.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
