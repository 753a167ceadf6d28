// Package config содержит логику чтения конфигурации кассового сервиса.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress      = "localhost:8080"
	defaultCommitTimeout   = 10 * time.Second
	defaultCheckoutWorkers = 4
)

// Config содержит параметры конфигурации кассового сервиса.
type Config struct {
	RunAddress      string        `env:"RUN_ADDRESS"`
	DatabaseURI     string        `env:"DATABASE_URI"`
	RedisAddress    string        `env:"REDIS_ADDRESS"`
	KafkaBrokers    string        `env:"KAFKA_BROKERS"`
	CommitTimeout   time.Duration `env:"COMMIT_TIMEOUT"`
	CheckoutWorkers int           `env:"CHECKOUT_WORKERS"`
	CurrencyScale   int
	SecretKey       string `env:"SECRET_KEY"`
}

// envConfig читает окружение. Указатель отличает CURRENCY_SCALE=0 от незаданной переменной.
type envConfig struct {
	Config
	CurrencyScale *int `env:"CURRENCY_SCALE"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Заданная переменная окружения имеет приоритет над флагом.
func Parse() (*Config, error) {
	envCfg := envConfig{}
	if err := env.Parse(&envCfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{}
	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisAddress, "c", "", "redis address for catalog cache")
	flag.StringVar(&cfg.KafkaBrokers, "k", "", "comma separated kafka brokers")
	flag.DurationVar(&cfg.CommitTimeout, "t", defaultCommitTimeout, "order commit timeout")
	flag.IntVar(&cfg.CheckoutWorkers, "w", defaultCheckoutWorkers, "checkout worker count")
	flag.IntVar(&cfg.CurrencyScale, "s", 0, "fractional digits of the currency minor unit")
	flag.StringVar(&cfg.SecretKey, "secret", "", "session cookie signing key")

	flag.Parse()

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.RedisAddress != "" {
		cfg.RedisAddress = envCfg.RedisAddress
	}
	if envCfg.KafkaBrokers != "" {
		cfg.KafkaBrokers = envCfg.KafkaBrokers
	}
	if envCfg.CommitTimeout > 0 {
		cfg.CommitTimeout = envCfg.CommitTimeout
	}
	if envCfg.CheckoutWorkers > 0 {
		cfg.CheckoutWorkers = envCfg.CheckoutWorkers
	}
	if envCfg.CurrencyScale != nil {
		cfg.CurrencyScale = *envCfg.CurrencyScale
	}
	if envCfg.SecretKey != "" {
		cfg.SecretKey = envCfg.SecretKey
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = defaultCommitTimeout
	}
	if cfg.CheckoutWorkers < 1 {
		cfg.CheckoutWorkers = defaultCheckoutWorkers
	}
	if cfg.CurrencyScale < 0 || cfg.CurrencyScale > 4 {
		return nil, fmt.Errorf("currency scale %d out of range [0, 4]", cfg.CurrencyScale)
	}

	return cfg, nil
}
