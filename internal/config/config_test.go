// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// chdir moves into a fresh directory so no ggcapture.yaml is found.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdir(t)
	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatal(err)
	}
	if *cfg != *Default() {
		t.Errorf("Load() = %+v, want defaults %+v", cfg, Default())
	}
	if got := cfg.Interval(); got != time.Second/60 {
		t.Errorf("Interval() = %v", got)
	}
}

func TestLoadFile(t *testing.T) {
	dir := chdir(t)
	yaml := `format: PAL/v210:4
backend: noop
fps: 25
duration: 2s
snapshot: out.png
pinned: true
dma: true
cache_size: 12
log_level: debug
`
	if err := os.WriteFile(filepath.Join(dir, "ggcapture.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatal(err)
	}
	want := Default()
	want.Format = "PAL/v210:4"
	want.Backend = BackendNoop
	want.FPS = 25
	want.Duration = 2 * time.Second
	want.Snapshot = "out.png"
	want.Pinned = true
	want.DMA = true
	want.CacheSize = 12
	want.LogLevel = "debug"
	if *cfg != *want {
		t.Errorf("Load() = %+v\nwant %+v", cfg, want)
	}
	if l, _ := cfg.Level(); l != slog.LevelDebug {
		t.Errorf("Level() = %v", l)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("backend: noop\nfps: 30\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GGCAPTURE_BACKEND", "vulkan")
	t.Setenv("GGCAPTURE_DURATION", "750ms")

	cfg, err := Load(New(), path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != BackendVulkan || cfg.FPS != 30 || cfg.Duration != 750*time.Millisecond {
		t.Errorf("Load() = %+v", cfg)
	}
}

func TestLoadSetOverridesEnv(t *testing.T) {
	chdir(t)
	t.Setenv("GGCAPTURE_FPS", "50")
	v := New()
	v.Set("fps", 24.0)
	cfg, err := Load(v, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.FPS != 24 {
		t.Errorf("FPS = %g, want 24", cfg.FPS)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	dir := chdir(t)
	if _, err := Load(New(), filepath.Join(dir, "nope.yaml")); err == nil {
		t.Error("Load of a missing explicit file succeeded")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"format", func(c *Config) { c.Format = "HD1080p24/xyz" }},
		{"backend", func(c *Config) { c.Backend = "metal" }},
		{"fps", func(c *Config) { c.FPS = 0 }},
		{"duration", func(c *Config) { c.Duration = -time.Second }},
		{"cache size", func(c *Config) { c.CacheSize = 33 }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			if err := c.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}
