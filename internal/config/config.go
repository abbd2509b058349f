// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration parsed from environment
// variables. There is no global mutable singleton — it is loaded once in
// cmd/ltq/main.go and threaded explicitly into every collaborator.
type Config struct {
	BrokerURL     string        `env:"LTQ_BROKER_URL" envDefault:"redis://localhost:6379"`
	Concurrency   int           `env:"LTQ_CONCURRENCY" envDefault:"250"`
	LogLevel      string        `env:"LTQ_LOG_LEVEL" envDefault:"info"`
	PollInterval  time.Duration `env:"LTQ_POLL_INTERVAL" envDefault:"100ms"`
	SchedulerPoll time.Duration `env:"LTQ_SCHEDULER_POLL_INTERVAL" envDefault:"10s"`
	AdminAddr     string        `env:"LTQ_ADMIN_ADDR" envDefault:":9090"`
	OTLPEndpoint  string        `env:"LTQ_OTLP_ENDPOINT" envDefault:""`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}
