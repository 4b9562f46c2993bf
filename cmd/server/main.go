package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"kpi_tracker/internal/config"
	"kpi_tracker/internal/handlers"
	"kpi_tracker/internal/loading"
	"kpi_tracker/internal/logging"
	authMiddleware "kpi_tracker/internal/middleware"
	"kpi_tracker/internal/services"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Firebase
	authClient, err := services.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
	if err != nil {
		logger.Warn("Firebase initialization failed, auth features will not work until valid credentials are provided", zap.Error(err))
	}

	// Initialize Database
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL not set")
	}
	db, err := services.InitDB(cfg.DatabaseURL, logging.GormLevel(cfg.LogLevel), logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := services.AutoMigrate(db, logger); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Redis is optional, summaries are rebuilt on every request without it
	var cache *services.RedisCache
	if cfg.RedisURL != "" {
		cache, err = services.NewRedisCache(cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis unavailable, caching disabled", zap.Error(err))
		} else {
			defer cache.Close()
		}
	}

	mailer := services.NewEmailService(cfg.SMTP)
	activity := loading.NewRegistry()

	kpiService := services.NewKPIService(db, cache, logger)
	dashboardService := services.NewDashboardService(kpiService, cache, cfg.CacheTTL)
	userService := services.NewUserService(db, identityOf(authClient), mailer, cfg.AppURL, logger)

	router := &handlers.Router{
		Auth:      handlers.NewAuthHandler(issuerOf(authClient), cfg, logger),
		Dashboard: handlers.NewDashboardHandler(kpiService, dashboardService, activity, logger),
		KPI:       handlers.NewKPIHandler(kpiService, activity, logger),
		Users:     handlers.NewUserHandler(userService, logger),
		Admin:     handlers.NewAdminHandler(kpiService),
		Verifier:  verifierOf(authClient),
		Resolver:  userService,
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = authMiddleware.NewErrorHandler(logger)

	// Middleware
	e.Use(logging.RequestLogger(logger))
	e.Use(middleware.Recover())

	// Static file serving
	e.Static("/static", "web/static")

	router.Register(e)

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
	if keys := activity.Active(); len(keys) > 0 {
		logger.Warn("Operations still running at shutdown", zap.Strings("keys", keys))
	}
}

// The helpers below keep a nil client from becoming a non-nil interface

func issuerOf(c *auth.Client) handlers.SessionIssuer {
	if c == nil {
		return nil
	}
	return c
}

func verifierOf(c *auth.Client) authMiddleware.TokenVerifier {
	if c == nil {
		return nil
	}
	return c
}

func identityOf(c *auth.Client) services.IdentityProvider {
	if c == nil {
		return nil
	}
	return c
}
