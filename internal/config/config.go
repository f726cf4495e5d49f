package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Source kinds.
const (
	SourceFile   = "file"
	SourcePoll   = "poll"
	SourceManual = "manual"
)

// Config is the complete kblayout configuration.
type Config struct {
	Log      LogConfig      `toml:"log" yaml:"log"`
	Source   SourceConfig   `toml:"source" yaml:"source"`
	Dispatch DispatchConfig `toml:"dispatch" yaml:"dispatch"`
	Metrics  MetricsConfig  `toml:"metrics" yaml:"metrics"`
	Script   ScriptConfig   `toml:"script" yaml:"script"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// SourceConfig selects and tunes the layout change source.
type SourceConfig struct {
	// Kind is "file", "poll" or "manual".
	Kind string `toml:"kind" yaml:"kind"`
	// Paths are the layout configuration files watched by the file
	// source and read by the file reader. Empty means the system defaults.
	Paths []string `toml:"paths" yaml:"paths"`
	// Debounce is the file source's quiet period.
	Debounce Duration `toml:"debounce" yaml:"debounce"`
	// PollInterval is the poll source's interval.
	PollInterval Duration `toml:"poll_interval" yaml:"poll_interval"`
	// ReadTimeout bounds each layout query made by the poll source.
	ReadTimeout Duration `toml:"read_timeout" yaml:"read_timeout"`
	// Command is the query command used by the poll source.
	Command []string `toml:"command" yaml:"command"`
}

// DispatchConfig tunes the consumer loop.
type DispatchConfig struct {
	QueueSize   int      `toml:"queue_size" yaml:"queue_size"`
	PostTimeout Duration `toml:"post_timeout" yaml:"post_timeout"`
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Addr    string `toml:"addr" yaml:"addr"`
}

// ScriptConfig configures the Lua consumer.
type ScriptConfig struct {
	Path    string   `toml:"path" yaml:"path"`
	Timeout Duration `toml:"timeout" yaml:"timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Source: SourceConfig{
			Kind:         SourceFile,
			Debounce:     Duration(150 * time.Millisecond),
			PollInterval: Duration(time.Second),
			ReadTimeout:  Duration(5 * time.Second),
			Command:      []string{"setxkbmap", "-query"},
		},
		Dispatch: DispatchConfig{
			QueueSize:   64,
			PostTimeout: Duration(250 * time.Millisecond),
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9464",
		},
		Script: ScriptConfig{
			Timeout: Duration(5 * time.Second),
		},
	}
}

// DefaultPath returns the per-user config file location,
// e.g. ~/.config/kblayout/config.toml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "kblayout", "config.toml")
}

// Load returns the defaults overlaid with the file at path (if it exists)
// and the process environment. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var (
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	validFormats = map[string]bool{"auto": true, "console": true, "json": true}
	validKinds   = map[string]bool{SourceFile: true, SourcePoll: true, SourceManual: true}
)

// Validate checks every setting and returns all problems joined.
func (c *Config) Validate() error {
	var errs []error
	bad := func(path string, value any, msg string) {
		errs = append(errs, &ValidationError{Path: path, Value: value, Message: msg})
	}

	if !validLevels[c.Log.Level] {
		bad("log.level", c.Log.Level, "must be debug, info, warn or error")
	}
	if !validFormats[c.Log.Format] {
		bad("log.format", c.Log.Format, "must be auto, console or json")
	}
	if !validKinds[c.Source.Kind] {
		bad("source.kind", c.Source.Kind, "must be file, poll or manual")
	}
	if c.Source.Debounce < 0 {
		bad("source.debounce", c.Source.Debounce, "must not be negative")
	}
	if c.Source.Kind == SourcePoll {
		if c.Source.PollInterval <= 0 {
			bad("source.poll_interval", c.Source.PollInterval, "must be positive")
		}
		if c.Source.ReadTimeout <= 0 {
			bad("source.read_timeout", c.Source.ReadTimeout, "must be positive")
		}
		if len(c.Source.Command) == 0 {
			bad("source.command", c.Source.Command, "must name a command")
		}
	}
	if c.Dispatch.QueueSize <= 0 {
		bad("dispatch.queue_size", c.Dispatch.QueueSize, "must be positive")
	}
	if c.Dispatch.PostTimeout < 0 {
		bad("dispatch.post_timeout", c.Dispatch.PostTimeout, "must not be negative")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		bad("metrics.addr", c.Metrics.Addr, "required when metrics are enabled")
	}
	if c.Script.Timeout < 0 {
		bad("script.timeout", c.Script.Timeout, "must not be negative")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config: %w", errors.Join(errs...))
}
