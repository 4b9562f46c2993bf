package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"kpi_tracker/internal/cli"
	"kpi_tracker/internal/config"
	"kpi_tracker/internal/logging"
	"kpi_tracker/internal/services"
	"kpi_tracker/internal/tasks"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, _, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	db, err := services.InitDB(cfg.DatabaseURL, logging.GormLevel(cfg.LogLevel), logger)
	if err != nil {
		return fmt.Errorf("failed to connect DB: %w", err)
	}

	ctx := context.Background()

	// Firebase is only needed by provision-user
	var identity services.IdentityProvider
	if authClient, err := services.InitFirebase(ctx, cfg.FirebaseCredentialsPath); err != nil {
		logger.Debug("Firebase not available", zap.Error(err))
	} else {
		identity = authClient
	}

	app := &cli.App{
		Tasks:  tasks.NewGormTaskStore(db),
		Brands: services.NewKPIService(db, nil, logger),
		Users:  services.NewUserService(db, identity, services.NewEmailService(cfg.SMTP), cfg.AppURL, logger),
		Seed: func(ctx context.Context, seed *services.SeedFile) (*services.SeedResult, error) {
			return services.ApplySeed(ctx, db, seed, logger)
		},
	}

	return cli.NewRootCmd(app).ExecuteContext(ctx)
}
