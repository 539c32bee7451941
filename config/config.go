// Package config loads engine configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Port     string `env:"PORT" envDefault:"8080"`

	// InitialCash is the starting balance for every new account, in whole
	// dollars.
	InitialCash int64 `env:"INITIAL_CASH" envDefault:"100000"`

	// BenchmarkSymbol is the index ticker for the market-relative signal.
	BenchmarkSymbol string `env:"BENCHMARK_SYMBOL" envDefault:"SPY"`

	Postgres Postgres
	Redis    Redis
	Oracle   Oracle
	Jobs     Jobs
}

type Postgres struct {
	// URL is the pgx connection string. Empty selects the in-memory store.
	URL string `env:"DATABASE_URL"`
}

type Redis struct {
	// URL enables the read-through cache layer when set.
	URL      string        `env:"REDIS_URL"`
	CacheTTL time.Duration `env:"REDIS_CACHE_TTL" envDefault:"30s"`
}

type Oracle struct {
	BaseURL     string        `env:"ORACLE_BASE_URL" envDefault:"http://localhost:9090"`
	Timeout     time.Duration `env:"ORACLE_TIMEOUT" envDefault:"5s"`
	Debug       bool          `env:"ORACLE_DEBUG" envDefault:"false"`
	RPS         float64       `env:"ORACLE_RPS" envDefault:"10"`
	MaxAttempts int           `env:"ORACLE_MAX_ATTEMPTS" envDefault:"3"`
	RetryDelay  time.Duration `env:"ORACLE_RETRY_DELAY" envDefault:"250ms"`
	CacheTTL    time.Duration `env:"ORACLE_CACHE_TTL" envDefault:"5m"`
}

type Jobs struct {
	WarmQuotesInterval time.Duration `env:"WARM_QUOTES_INTERVAL" envDefault:"5m"`
}

// MustLoad parses configuration or exits.
func MustLoad() *Config {
	_ = godotenv.Load(".env")

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("parse config error: %s", err)
	}
	return cfg
}
