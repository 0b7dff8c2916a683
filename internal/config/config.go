package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBFile          string
	APIAddr         string
	UploadsPath     string
	RedisAddr       string
	LogLevel        string
	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	shutdownTimeout, err := time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	cfg := &Config{
		DBFile:          getEnv("MESSENGER_DB", "messenger.db"),
		APIAddr:         getEnv("API_ADDR", ":8080"),
		UploadsPath:     getEnv("UPLOADS_PATH", "uploads"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: shutdownTimeout,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DBFile == "" {
		return fmt.Errorf("MESSENGER_DB is required")
	}

	if c.UploadsPath == "" {
		return fmt.Errorf("UPLOADS_PATH is required")
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be greater than 0")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
