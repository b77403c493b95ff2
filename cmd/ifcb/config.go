package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/meigma/ifcb"
)

// Config is the optional YAML configuration file. Flags override it.
type Config struct {
	SchemaVersion int          `yaml:"schemaVersion,omitempty"`
	Validation    string       `yaml:"validation,omitempty"`
	LogLevel      string       `yaml:"logLevel,omitempty"`
	CacheDir      string       `yaml:"cacheDir,omitempty"`
	CacheMaxBytes int64        `yaml:"cacheMaxBytes,omitempty"`
	Export        ExportConfig `yaml:"export,omitempty"`
}

// ExportConfig tunes the export command.
type ExportConfig struct {
	Workers         int   `yaml:"workers,omitempty"`
	ReadConcurrency int   `yaml:"readConcurrency,omitempty"`
	ReadAheadBytes  int64 `yaml:"readAheadBytes,omitempty"`
}

// LoadConfig reads a config file. A missing file yields the zero Config
// when optional is true.
func LoadConfig(path string, optional bool) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // user-specified config path
	if errors.Is(err, os.ErrNotExist) && optional {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every field holds a usable value.
func (c *Config) Validate() error {
	if c.SchemaVersion < 0 {
		return fmt.Errorf("schemaVersion %d is negative", c.SchemaVersion)
	}
	if _, err := ifcb.ParseValidation(c.Validation); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.CacheMaxBytes < 0 || c.Export.ReadAheadBytes < 0 {
		return errors.New("byte limits must not be negative")
	}
	return nil
}

// Level returns the configured log level, info by default.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("logLevel: %w", err)
	}
	return l, nil
}

// BinOptions returns the options every command opens bins with.
func (c *Config) BinOptions() []ifcb.Option {
	v, _ := ifcb.ParseValidation(c.Validation) //nolint:errcheck // checked by Validate
	opts := []ifcb.Option{ifcb.WithValidation(v)}
	if c.SchemaVersion > 0 {
		opts = append(opts, ifcb.WithSchemaVersion(c.SchemaVersion))
	}
	return opts
}

// ExportOptions returns the export tuning options.
func (c *Config) ExportOptions() []ifcb.ExportOption {
	return []ifcb.ExportOption{
		ifcb.ExportWithWorkers(c.Export.Workers),
		ifcb.ExportWithReadConcurrency(c.Export.ReadConcurrency),
		ifcb.ExportWithReadAheadBytes(c.Export.ReadAheadBytes),
	}
}
