package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime settings shared by the server, worker and kpictl
type Config struct {
	Env      string
	Port     string
	AppURL   string
	LogLevel string

	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration

	FirebaseCredentialsPath string
	FirebaseAPIKey          string
	FirebaseAuthDomain      string
	FirebaseProjectID       string
	SessionTTL              time.Duration

	SMTP SMTPConfig

	WorkerInterval      time.Duration
	WorkerShutdownGrace time.Duration
}

// SMTPConfig configures outgoing email
type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

// Configured reports whether enough settings are present to send mail
func (s SMTPConfig) Configured() bool {
	return s.Host != "" && s.Port != "" && s.User != "" && s.Password != ""
}

// IsProduction reports whether the app runs with ENV=production
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads an optional .env file and then the process environment.
// It reports whether a .env file was found so the caller can log it.
func Load(files ...string) (*Config, bool, error) {
	found := godotenv.Load(files...) == nil

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnv("PORT", "8080"),
		AppURL:   getEnv("APP_URL", "http://localhost:8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", "./firebase-service-account.json"),
		FirebaseAPIKey:          os.Getenv("FIREBASE_API_KEY"),
		FirebaseAuthDomain:      os.Getenv("FIREBASE_AUTH_DOMAIN"),
		FirebaseProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),

		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     os.Getenv("SMTP_PORT"),
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASS"),
			From:     os.Getenv("EMAIL_FROM"),
		},
	}

	var err error
	if cfg.CacheTTL, err = getDuration("CACHE_TTL", 5*time.Minute); err != nil {
		return nil, found, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 5*24*time.Hour); err != nil {
		return nil, found, err
	}
	if cfg.WorkerInterval, err = getDuration("WORKER_INTERVAL", 5*time.Minute); err != nil {
		return nil, found, err
	}
	if cfg.WorkerShutdownGrace, err = getDuration("WORKER_SHUTDOWN_GRACE", 30*time.Second); err != nil {
		return nil, found, err
	}

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return nil, found, fmt.Errorf("invalid PORT %q: %w", cfg.Port, err)
	}

	return cfg, found, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
