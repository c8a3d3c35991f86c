// Package config loads the coordinator configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full coordinator configuration.
type Config struct {
	Listen     string        `yaml:"listen"`
	LogLevel   string        `yaml:"log_level"`
	FrameLimit int           `yaml:"frame_limit"`
	IdleTTL    time.Duration `yaml:"idle_ttl"`

	Store   Store             `yaml:"store"`
	Devices map[string]string `yaml:"devices"`
}

// Store selects and configures the action persistence backend.
type Store struct {
	// Backend is one of sqlite, file, redis, memory.
	Backend string `yaml:"backend"`

	// Path is the database file (sqlite) or directory (file).
	Path string `yaml:"path"`

	Redis Redis `yaml:"redis"`
}

// Redis configures the redis backend.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:   ":8420",
		LogLevel: "info",
		Store: Store{
			Backend: "sqlite",
			Path:    "ensemble.db",
		},
		Devices: map[string]string{},
	}
}

// Load reads a YAML configuration file over the defaults. Unset fields keep
// their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store.Backend {
	case "sqlite", "file", "redis", "memory":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}
