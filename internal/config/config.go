// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package config loads ggcapture settings from ggcapture.yaml, GGCAPTURE_*
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	capture "github.com/gogpu/gg-capture"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "GGCAPTURE"

// Backend names.
const (
	BackendMem    = "mem"
	BackendNoop   = "noop"
	BackendVulkan = "vulkan"
)

// ErrInvalid is returned for settings that fail validation.
var ErrInvalid = errors.New("config: invalid setting")

// Config holds ggcapture settings.
type Config struct {
	Format        string        `mapstructure:"format"`
	Backend       string        `mapstructure:"backend"`
	Adapter       string        `mapstructure:"adapter"`
	FPS           float64       `mapstructure:"fps"`
	Duration      time.Duration `mapstructure:"duration"`
	Snapshot      string        `mapstructure:"snapshot"`
	SnapshotWidth int           `mapstructure:"snapshot_width"`
	Pinned        bool          `mapstructure:"pinned"`
	DMA           bool          `mapstructure:"dma"`
	CacheSize     int           `mapstructure:"cache_size"`
	FenceTimeout  time.Duration `mapstructure:"fence_timeout"`
	StatsInterval time.Duration `mapstructure:"stats_interval"`
	LogLevel      string        `mapstructure:"log_level"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Format:        "HD1080p24/2vuy",
		Backend:       BackendMem,
		FPS:           60,
		Duration:      5 * time.Second,
		FenceTimeout:  time.Second,
		StatsInterval: time.Second,
		LogLevel:      "info",
	}
}

// New returns a viper instance carrying the defaults and environment
// binding. Flags are bound to it with BindPFlag using the mapstructure keys.
func New() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("format", d.Format)
	v.SetDefault("backend", d.Backend)
	v.SetDefault("adapter", d.Adapter)
	v.SetDefault("fps", d.FPS)
	v.SetDefault("duration", d.Duration)
	v.SetDefault("snapshot", d.Snapshot)
	v.SetDefault("snapshot_width", d.SnapshotWidth)
	v.SetDefault("pinned", d.Pinned)
	v.SetDefault("dma", d.DMA)
	v.SetDefault("cache_size", d.CacheSize)
	v.SetDefault("fence_timeout", d.FenceTimeout)
	v.SetDefault("stats_interval", d.StatsInterval)
	v.SetDefault("log_level", d.LogLevel)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads cfgFile, or ggcapture.yaml from the working directory and
// $HOME/.config/ggcapture when cfgFile is empty, and returns the merged
// validated settings. A missing default file is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("ggcapture")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/ggcapture")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings.
func (c *Config) Validate() error {
	if _, err := capture.ParseFormat(c.Format); err != nil {
		return fmt.Errorf("%w: format: %w", ErrInvalid, err)
	}
	switch c.Backend {
	case BackendMem, BackendNoop, BackendVulkan:
	default:
		return fmt.Errorf("%w: backend %q (want mem, noop or vulkan)", ErrInvalid, c.Backend)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("%w: fps %g", ErrInvalid, c.FPS)
	}
	if c.Duration < 0 {
		return fmt.Errorf("%w: duration %s", ErrInvalid, c.Duration)
	}
	if c.CacheSize < 0 || c.CacheSize > capture.MaxCacheSize {
		return fmt.Errorf("%w: cache_size %d (want 0..%d)", ErrInvalid, c.CacheSize, capture.MaxCacheSize)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log_level %q", ErrInvalid, c.LogLevel)
	}
	return l, nil
}

// Interval returns the render tick interval.
func (c *Config) Interval() time.Duration {
	if c.FPS <= 0 {
		return time.Second / 60
	}
	return time.Duration(float64(time.Second) / c.FPS)
}
