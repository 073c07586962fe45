// Package config loads process-level settings from the environment. The
// remote-service configuration (API key, model, generation options) is not
// here: that record lives in the document store and is managed through the
// configuration gateway.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	DatabasePath   string        `env:"DATABASE_PATH" envDefault:"gemdesk.db"`
	HTTPPort       string        `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"INFO"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
}

func Load(log *zap.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found, relying on environment variables")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
