// Package config loads hexatlas.yml.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/talgya/hexatlas/internal/atlas"
)

// AdminKeyEnv supplies server.admin_key when the file leaves it empty.
const AdminKeyEnv = "HEXATLAS_ADMIN_KEY"

// Config is the top-level configuration file.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Pipeline atlas.Options  `yaml:"pipeline"`

	// Map holds defaults for `generate` flags.
	Map *atlas.Request `yaml:"map,omitempty"`
}

// LogConfig controls the slog handler and optional rotating log file.
type LogConfig struct {
	Level      string `yaml:"level"`
	JSON       bool   `yaml:"json"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

// DatabaseConfig locates the run store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig configures `serve`.
type ServerConfig struct {
	Port         int    `yaml:"port"`
	AdminKey     string `yaml:"admin_key,omitempty"`
	MaxHexes     int    `yaml:"max_hexes"`
	GenerateRate int    `yaml:"generate_rate"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log:      LogConfig{Level: "info", MaxSizeMB: 50, MaxBackups: 3, MaxAgeDays: 28},
		Database: DatabaseConfig{Path: "data/hexatlas.db"},
		Server:   ServerConfig{Port: 8080, MaxHexes: 10000, GenerateRate: 30},
		Pipeline: atlas.DefaultOptions(),
	}
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// Validate performs strict validation on the configuration
func (c *Config) Validate() error {
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation limits must be >= 0")
	}

	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port)
	}
	if c.Server.MaxHexes < 0 {
		return fmt.Errorf("server.max_hexes must be >= 0 (0 = default), got %d", c.Server.MaxHexes)
	}
	if c.Server.GenerateRate < 0 {
		return fmt.Errorf("server.generate_rate must be >= 0 (0 = default), got %d", c.Server.GenerateRate)
	}

	p := c.Pipeline
	if p.Workers < 0 {
		return fmt.Errorf("pipeline.workers must be >= 0 (0 = one worker), got %d", p.Workers)
	}
	if p.BatchSize < 0 {
		return fmt.Errorf("pipeline.batch_size must be >= 0 (0 = default), got %d", p.BatchSize)
	}
	if p.PoleLimit <= 0 || p.PoleLimit > 90 {
		return fmt.Errorf("pipeline.pole_limit must be in (0, 90], got %v", p.PoleLimit)
	}
	if p.Tolerance < 0 {
		return fmt.Errorf("pipeline.tolerance must be >= 0, got %v", p.Tolerance)
	}
	if p.MaxIterations <= 0 {
		return fmt.Errorf("pipeline.max_iterations must be > 0, got %d", p.MaxIterations)
	}
	if p.MaxRebalancePasses < 0 {
		return fmt.Errorf("pipeline.max_rebalance_passes must be >= 0 (0 = default), got %d", p.MaxRebalancePasses)
	}
	if err := p.Terrain.Validate(); err != nil {
		return fmt.Errorf("pipeline.terrain: %w", err)
	}

	if c.Map != nil {
		if err := c.Map.Validate(); err != nil {
			return fmt.Errorf("map: %w", err)
		}
	}
	return nil
}

// Load reads and validates a configuration file. Keys missing from the file
// keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path, or returns the validated defaults when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		cfg.applyEnv()
		return cfg, cfg.Validate()
	}
	return Load(path)
}

func (c *Config) applyEnv() {
	if c.Server.AdminKey == "" {
		c.Server.AdminKey = os.Getenv(AdminKeyEnv)
	}
}
