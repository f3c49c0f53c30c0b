package capture

import (
	"log/slog"
	"time"
)

// SourceOption configures a Source during creation.
//
// Example:
//
//	src, err := capture.NewSource(dev, gfx, "HD1080p24/2vuy",
//	    capture.WithFenceTimeout(100*time.Millisecond),
//	    capture.WithLogger(logger))
type SourceOption func(*sourceOptions)

// sourceOptions holds optional configuration for Source creation.
type sourceOptions struct {
	caps         *Capabilities
	fenceTimeout time.Duration
	logger       *slog.Logger
	cacheSize    int // 0 = from format
}

// defaultSourceOptions returns the default source options.
func defaultSourceOptions() sourceOptions {
	return sourceOptions{
		fenceTimeout: 0,   // transfer.DefaultFenceTimeout
		logger:       nil, // package logger at creation
	}
}

// WithCapabilities sets the capabilities used to choose transfer
// strategies, instead of DefaultCapabilities. Use it to inject a probe
// result or to force a path off.
//
// Example:
//
//	caps := capture.ProbeCapabilities(gfx, capture.ProbeConfig{DisableDMA: true})
//	src, err := capture.NewSource(dev, gfx, format, capture.WithCapabilities(caps))
func WithCapabilities(c Capabilities) SourceOption {
	return func(o *sourceOptions) {
		o.caps = &c
	}
}

// WithFenceTimeout bounds how long one transfer waits for the GPU.
func WithFenceTimeout(d time.Duration) SourceOption {
	return func(o *sourceOptions) {
		o.fenceTimeout = d
	}
}

// WithLogger sets the logger of the Source and its components.
func WithLogger(l *slog.Logger) SourceOption {
	return func(o *sourceOptions) {
		o.logger = l
	}
}

// WithCacheSize overrides the frame buffer ceiling given in the format
// string. Values outside 1..MaxCacheSize are clamped.
func WithCacheSize(n int) SourceOption {
	return func(o *sourceOptions) {
		o.cacheSize = max(1, min(n, MaxCacheSize))
	}
}
