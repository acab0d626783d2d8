// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads the host configuration from qmm.yaml and, for the
// command line tool, from flag overrides.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/qmm/internal/engine"
)

// FileName is the configuration file looked up in the host directory.
const FileName = "qmm.yaml"

// MaxStackSize bounds the QVM program stack.
const MaxStackSize = 64 << 20

// Default values.
const (
	DefaultMod       = "auto"
	DefaultLogFormat = "text"
	DefaultLogLevel  = "info"
)

// Config is the host configuration.
type Config struct {
	// Game forces a game instead of detecting it from the host filename.
	Game string `koanf:"game" json:"game,omitempty" jsonschema:"description=Game to front (detected from the host filename when empty)"`
	// Mod is the module to load, or "auto" for the engine's default.
	Mod string `koanf:"mod" json:"mod" jsonschema:"description=Mod file to load or auto,default=auto"`
	// Plugins are loaded and attached in this order.
	Plugins []string `koanf:"plugins" json:"plugins,omitempty" jsonschema:"description=Plugin libraries relative to the host directory"`
	// LogFormat is "json" or "text".
	LogFormat string `koanf:"log_format" json:"log_format" jsonschema:"enum=json,enum=text,default=text"`
	// LogLevel is a slog level name.
	LogLevel string `koanf:"log_level" json:"log_level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`
	// TraceMessages are glob patterns of message names logged at debug level.
	TraceMessages []string `koanf:"trace_messages" json:"trace_messages,omitempty" jsonschema:"description=Message name globs to trace"`
	// MetricsAddr enables the metrics and health server when set.
	MetricsAddr string `koanf:"metrics_addr" json:"metrics_addr,omitempty" jsonschema:"description=host:port of the metrics server (disabled when empty)"`
	// StackSize is the QVM program stack size in bytes; 0 uses the default.
	StackSize int `koanf:"stack_size" json:"stack_size,omitempty" jsonschema:"minimum=0"`
	// Settings are free-form values plugins read through the utility table.
	Settings map[string]any `koanf:"settings" json:"settings,omitempty"`

	settings map[string]any
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Mod:       DefaultMod,
		LogFormat: DefaultLogFormat,
		LogLevel:  DefaultLogLevel,
	}
}

// RegisterFlags adds one flag per key to flags. Flag values override the file
// only when set explicitly.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String("game", d.Game, "game to front (default: detect from filename)")
	flags.String("mod", d.Mod, "mod file to load, or auto")
	flags.StringSlice("plugins", nil, "plugin libraries, in load order")
	flags.String("log-format", d.LogFormat, "log format (json or text)")
	flags.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	flags.StringSlice("trace-messages", nil, "message name globs to trace")
	flags.String("metrics-addr", d.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	flags.Int("stack-size", d.StackSize, "QVM stack size in bytes (0 = default)")
}

// Load reads path, then applies flags that were set explicitly. A missing
// file yields defaults. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, oops.Code("CONFIG_INVALID").With("file", path).Wrapf(err, "failed to read config")
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_INVALID").With("file", path).Wrapf(err, "failed to stat config")
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_INVALID").Wrapf(err, "failed to apply flags")
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("file", path).Wrapf(err, "failed to decode config")
	}
	cfg.settings = k.Cut("settings").All()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").With("key", "log_format").
			Errorf("log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.StackSize < 0 || c.StackSize > MaxStackSize {
		return oops.Code("CONFIG_INVALID").With("key", "stack_size").
			Errorf("stack_size must be between 0 and %d, got %d", MaxStackSize, c.StackSize)
	}
	if c.Game != "" {
		if _, err := engine.Lookup(c.Game); err != nil {
			return oops.Code("CONFIG_INVALID").With("key", "game").Errorf("unknown game %q", c.Game)
		}
	}
	for i, p := range c.Plugins {
		if strings.TrimSpace(p) == "" {
			return oops.Code("CONFIG_INVALID").With("key", "plugins").With("index", i).
				Errorf("plugin path must not be empty")
		}
	}
	if _, err := engine.NewFilter(c.TraceMessages); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "trace_messages").Errorf("invalid trace pattern: %v", err)
	}
	return nil
}

// ModName returns the configured mod, with "" meaning auto.
func (c *Config) ModName() string {
	if c.Mod == "" {
		return DefaultMod
	}
	return c.Mod
}

// Level returns the configured log level. Validate guarantees it parses.
func (c *Config) Level() slog.Level {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseLevel parses a slog level name. An empty name is info.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, oops.Code("CONFIG_INVALID").With("key", "log_level").
			Errorf("log_level must be debug, info, warn or error, got %q", name)
	}
	return level, nil
}

// Int returns the integer setting at key, using "." to reach nested maps.
// Missing or non-numeric values yield fallback.
func (c *Config) Int(key string, fallback int) int {
	v, ok := c.setting(key)
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return fallback
}

func (c *Config) setting(key string) (any, bool) {
	if c.settings != nil {
		v, ok := c.settings[key]
		return v, ok
	}
	// Built in code rather than loaded: walk the nested map.
	var cur any = c.Settings
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}
