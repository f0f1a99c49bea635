// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD"`
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBName     string `env:"DB_NAME" envDefault:"outreach"`

	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// AMQPURL is optional; when empty the server falls back to the
	// in-process queue and runs dispatch workers itself.
	AMQPURL string `env:"AMQP_URL"`

	SchedulerPollInterval time.Duration `env:"SCHEDULER_POLL_INTERVAL" envDefault:"15s"`
	DispatchWorkers       int           `env:"DISPATCH_WORKERS" envDefault:"4"`
	DispatchBatchSize     int           `env:"DISPATCH_BATCH_SIZE" envDefault:"50"`
	DispatchThrottle      int           `env:"DISPATCH_THROTTLE" envDefault:"10"`
	DispatchLeaseTTL      time.Duration `env:"DISPATCH_LEASE_TTL" envDefault:"5m"`
	SendTimeout           time.Duration `env:"SEND_TIMEOUT" envDefault:"10s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// MockSenderFailureRate lets local setups exercise failure paths.
	MockSenderFailureRate float64 `env:"MOCK_SENDER_FAILURE_RATE" envDefault:"0"`
}

// Load reads .env if present, then parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// DSN builds the postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}
