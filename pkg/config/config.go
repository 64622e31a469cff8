// Package config loads the splitter configuration from YAML.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kass/building-limits/pkg/merge"
	"github.com/kass/building-limits/pkg/models"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverNone    = "none"
	DriverSQLite  = "sqlite"
	DriverPostGIS = "postgis"
)

// Config is the on-disk configuration.
type Config struct {
	DefaultElevation float64     `yaml:"default_elevation"`
	MergeStrategy    string      `yaml:"merge_strategy"`
	Store            StoreConfig `yaml:"store"`
	Log              LogConfig   `yaml:"log"`
}

// StoreConfig selects where runs are persisted.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite and a connection string for postgis.
	DSN string `yaml:"dsn"`
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DefaultElevation: models.DefaultElevation,
		MergeStrategy:    string(merge.StrategyAnchor),
		Store:            StoreConfig{Driver: DriverNone},
		Log:              LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default values.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the enumerated fields.
func (c Config) Validate() error {
	if _, err := merge.ParseStrategy(c.MergeStrategy); err != nil {
		return fmt.Errorf("merge_strategy: %w", err)
	}

	switch strings.ToLower(c.Store.Driver) {
	case "", DriverNone:
	case DriverSQLite, DriverPostGIS:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}

	return nil
}
