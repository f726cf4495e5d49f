package config

import (
	"fmt"
	"strconv"
	"strings"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KBLAYOUT_"

// LookupFunc looks up an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// envSetter applies one environment value to a config.
type envSetter func(c *Config, value string) error

// envMapping maps environment variables to settings.
var envMapping = map[string]envSetter{
	"KBLAYOUT_LOG_LEVEL":             setKeyword(func(c *Config) *string { return &c.Log.Level }),
	"KBLAYOUT_LOG_FORMAT":            setKeyword(func(c *Config) *string { return &c.Log.Format }),
	"KBLAYOUT_SOURCE_KIND":           setKeyword(func(c *Config) *string { return &c.Source.Kind }),
	"KBLAYOUT_SOURCE_PATHS":          setList(func(c *Config) *[]string { return &c.Source.Paths }),
	"KBLAYOUT_SOURCE_DEBOUNCE":       setDuration(func(c *Config) *Duration { return &c.Source.Debounce }),
	"KBLAYOUT_SOURCE_POLL_INTERVAL":  setDuration(func(c *Config) *Duration { return &c.Source.PollInterval }),
	"KBLAYOUT_SOURCE_READ_TIMEOUT":   setDuration(func(c *Config) *Duration { return &c.Source.ReadTimeout }),
	"KBLAYOUT_DISPATCH_QUEUE_SIZE":   setInt(func(c *Config) *int { return &c.Dispatch.QueueSize }),
	"KBLAYOUT_DISPATCH_POST_TIMEOUT": setDuration(func(c *Config) *Duration { return &c.Dispatch.PostTimeout }),
	"KBLAYOUT_METRICS_ENABLED":       setBool(func(c *Config) *bool { return &c.Metrics.Enabled }),
	"KBLAYOUT_METRICS_ADDR":          setString(func(c *Config) *string { return &c.Metrics.Addr }),
	"KBLAYOUT_SCRIPT_PATH":           setString(func(c *Config) *string { return &c.Script.Path }),
	"KBLAYOUT_SCRIPT_TIMEOUT":        setDuration(func(c *Config) *Duration { return &c.Script.Timeout }),
}

// EnvVars returns the supported environment variable names.
func EnvVars() []string {
	names := make([]string, 0, len(envMapping))
	for name := range envMapping {
		names = append(names, name)
	}
	return names
}

// ApplyEnv overlays environment overrides on c.
// Note: Empty string values are treated as valid values, not as unset.
func ApplyEnv(c *Config, lookup LookupFunc) error {
	for name, set := range envMapping {
		val, ok := lookup(name)
		if !ok {
			continue
		}
		if err := set(c, val); err != nil {
			return &ParseError{Path: name, Message: err.Error(), Err: err}
		}
	}
	return nil
}

func setString(field func(*Config) *string) envSetter {
	return func(c *Config, v string) error {
		*field(c) = strings.TrimSpace(v)
		return nil
	}
}

func setKeyword(field func(*Config) *string) envSetter {
	return func(c *Config, v string) error {
		*field(c) = strings.ToLower(strings.TrimSpace(v))
		return nil
	}
}

func setList(field func(*Config) *[]string) envSetter {
	return func(c *Config, v string) error {
		var out []string
		for _, p := range strings.Split(v, string(listSeparator)) {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*field(c) = out
		return nil
	}
}

// listSeparator separates path lists, as in PATH.
const listSeparator = ':'

func setInt(field func(*Config) *int) envSetter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("expected an integer: %w", err)
		}
		*field(c) = n
		return nil
	}
}

func setBool(field func(*Config) *bool) envSetter {
	return func(c *Config, v string) error {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "on", "1":
			*field(c) = true
		case "false", "no", "off", "0", "":
			*field(c) = false
		default:
			return fmt.Errorf("expected a boolean, got %q", v)
		}
		return nil
	}
}

func setDuration(field func(*Config) *Duration) envSetter {
	return func(c *Config, v string) error {
		return field(c).UnmarshalText([]byte(strings.TrimSpace(v)))
	}
}
