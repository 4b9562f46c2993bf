package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"kpi_tracker/internal/config"
	"kpi_tracker/internal/loading"
	"kpi_tracker/internal/logging"
	"kpi_tracker/internal/services"
	"kpi_tracker/internal/tasks"
)

func main() {
	cfg, found, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if !found {
		logger.Info("No .env file found, using system environment")
	}

	// Initialize Database
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL not set")
	}
	db, err := services.InitDB(cfg.DatabaseURL, logging.GormLevel(cfg.LogLevel), logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Initialize Task Registry
	registry := tasks.NewRegistry()
	tasks.DefineTasks(registry, services.NewEmailService(cfg.SMTP), cfg.AppURL, logger)

	activity := loading.NewRegistry()
	runner := tasks.NewRunner(tasks.NewGormTaskStore(db), db, registry, activity, logger)

	// Create context that cancels on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Worker started",
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Duration("shutdown_grace", cfg.WorkerShutdownGrace),
		zap.Strings("tasks", registry.Names()))

	if keys := runner.Loop(ctx, cfg.WorkerInterval, cfg.WorkerShutdownGrace); len(keys) > 0 {
		logger.Warn("Tasks still running at shutdown",
			zap.Duration("grace", cfg.WorkerShutdownGrace),
			zap.Strings("keys", keys))
	}
	logger.Info("Worker stopped")
}
