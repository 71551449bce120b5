// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"

	"github.com/jacentio/tablekv/mirror"
	"github.com/jacentio/tablekv/store"
)

// Config is the tablekv process configuration.
type Config struct {
	UpdatePolicy     string `env:"TABLEKV_UPDATE_POLICY" envDefault:"require"`
	DropEmptyRecords bool   `env:"TABLEKV_DROP_EMPTY_RECORDS" envDefault:"false"`
	MaxNameLength    int    `env:"TABLEKV_MAX_NAME_LENGTH" envDefault:"1024"`

	LogLevel string `env:"TABLEKV_LOG_LEVEL" envDefault:"info"`
	SeqURL   string `env:"TABLEKV_SEQ_URL"`

	// DynamoTable enables the DynamoDB mirror when set.
	DynamoTable  string `env:"TABLEKV_DYNAMO_TABLE"`
	DynamoShards int    `env:"TABLEKV_DYNAMO_SHARDS" envDefault:"1"`

	OTelEndpoint string `env:"TABLEKV_OTEL_ENDPOINT"`
	ServiceName  string `env:"TABLEKV_SERVICE_NAME" envDefault:"tablekv"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses a Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Store returns the store configuration.
func (c Config) Store() (store.Config, error) {
	policy, err := store.ParseUpdatePolicy(c.UpdatePolicy)
	if err != nil {
		return store.Config{}, err
	}
	cfg := store.DefaultConfig()
	cfg.UpdatePolicy = policy
	cfg.DropEmptyRecords = c.DropEmptyRecords
	cfg.MaxNameLength = c.MaxNameLength
	return cfg, nil
}

// MirrorEnabled reports whether a DynamoDB table is configured.
func (c Config) MirrorEnabled() bool {
	return c.DynamoTable != ""
}

// Mirror returns the DynamoDB mirror configuration.
func (c Config) Mirror() mirror.Config {
	cfg := mirror.DefaultConfig()
	cfg.Table = c.DynamoTable
	cfg.NumShards = c.DynamoShards
	return cfg
}

// Level parses LogLevel ("debug", "info", "warn", "error").
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}
