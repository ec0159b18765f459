// Package main is the entry point for appdb, which owns the process-wide
// database engine and session factory.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gitlab.com/yelinaung/appdb/internal/config"
	"gitlab.com/yelinaung/appdb/internal/database"
	"gitlab.com/yelinaung/appdb/internal/health"
	"gitlab.com/yelinaung/appdb/internal/logger"
	"gitlab.com/yelinaung/appdb/internal/telemetry"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "version":
		fmt.Printf("appdb %s (commit: %s, built: %s)\n", version, commit, date)
		return
	case "check", "serve":
	default:
		fmt.Fprintf(os.Stderr, "usage: appdb [version|check|serve]\n")
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger.Configure(cfg.LogLevel, cfg.LogJSON)

	if cfg.UsingDefaultURL {
		logger.Log.Warn().Msg("DATABASE_URL not set, using built-in local default credentials")
	}

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to set up telemetry")
	}

	engine, err := database.NewEngine(ctx, cfg.DatabaseURL, database.WithPoolConfig(cfg.DB))
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to create database engine")
	}

	sessions := database.NewSessionFactory(engine)

	logger.Log.Info().
		Str("url", engine.URL()).
		Bool("pre_ping", engine.PrePing()).
		Bool("autocommit", sessions.AutoCommit()).
		Bool("autoflush", sessions.AutoFlush()).
		Msg("Database engine configured")

	if cfg.Telemetry.Enabled {
		if err := engine.RecordStats(); err != nil {
			logger.Log.Warn().Err(err).Msg("Pool metrics disabled")
		}
	}

	var runErr error
	if cmd == "check" {
		runErr = check(ctx, sessions)
	} else {
		runErr = serve(ctx, cancel, cfg, engine)
	}

	engine.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Log.Warn().Err(err).Msg("Failed to flush telemetry")
	}

	if runErr != nil {
		logger.Log.Error().Err(runErr).Msgf("%s failed", cmd)
		shutdownCancel()
		os.Exit(1)
	}
}

// check runs one round trip in a session and discards it.
func check(ctx context.Context, sessions *database.SessionFactory) error {
	s := sessions.New()
	defer func() { _ = s.Close(ctx) }()

	var serverVersion string
	if err := s.QueryRow(ctx, "SELECT version()").Scan(&serverVersion); err != nil {
		return fmt.Errorf("database check: %w", err)
	}

	logger.Log.Info().Str("server", serverVersion).Msg("Database reachable")
	return nil
}

// serve keeps the engine alive until SIGINT or SIGTERM.
func serve(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, engine *database.Engine) error {
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Log.Info().Msg("Shutting down...")
		cancel()
	}()

	if cfg.HealthAddr == "" {
		<-ctx.Done()
		return nil
	}

	return health.Serve(ctx, cfg.HealthAddr, health.NewHandler(engine))
}
