package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/jacentio/fgo/store"
)

// Lambda configures the burn cascade function.
type Lambda struct {
	Region            string        `env:"AWS_REGION"              envDefault:"us-east-1"`
	Endpoint          string        `env:"FGO_DYNAMODB_ENDPOINT"`
	RegistryTable     string        `env:"FGO_REGISTRY_TABLE"      envDefault:"fgo_registries"`
	ChildTable        string        `env:"FGO_CHILD_TABLE"         envDefault:"fgo_child_templates"`
	ParentTable       string        `env:"FGO_PARENT_TABLE"        envDefault:"fgo_parent_templates"`
	RelationshipTable string        `env:"FGO_RELATIONSHIP_TABLE"  envDefault:"fgo_relationships"`
	NumShards         int           `env:"FGO_NUM_SHARDS"          envDefault:"1"`
	BurnRetention     time.Duration `env:"FGO_BURN_RETENTION"      envDefault:"720h"`
	LogLevel          string        `env:"FGO_LOG_LEVEL"           envDefault:"info"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadLambda reads the burn cascade configuration from the environment.
func LoadLambda() (Lambda, error) {
	var cfg Lambda
	if err := ParseEnv(&cfg); err != nil {
		return Lambda{}, err
	}
	return cfg, nil
}

// StoreConfig returns the store configuration.
func (l Lambda) StoreConfig() store.Config {
	return store.Config{
		RegistryTable:     l.RegistryTable,
		ChildTable:        l.ChildTable,
		ParentTable:       l.ParentTable,
		RelationshipTable: l.RelationshipTable,
		NumShards:         l.NumShards,
		BurnRetention:     l.BurnRetention,
	}
}

// Level maps LogLevel to a slog level. Unknown values mean info.
func (l Lambda) Level() slog.Level {
	switch strings.ToLower(l.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
