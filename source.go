package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/gogpu/gg-capture/device"
	"github.com/gogpu/gg-capture/transfer"
)

// Stats is a snapshot of all Source counters.
type Stats struct {
	Session     string
	Transferred uint64 // frames uploaded to the texture
	Skipped     uint64 // frames taken but not uploaded
	Cache       FrameCacheStats
	Bridge      BridgeStats
	Allocator   AllocatorStats
}

// String returns the statistics on one line.
func (s Stats) String() string {
	b := s.Allocator.Bindings
	return fmt.Sprintf(
		"transferred=%d skipped=%d arrived=%d replaced=%d taken=%d no_input=%d audio_only=%d "+
			"buffers=%d/%d/%d alloc=%d reuse=%d exhausted=%d bindings=dma:%d,pinned:%d,staging:%d",
		s.Transferred, s.Skipped, s.Cache.Arrived, s.Cache.Replaced, s.Cache.Taken,
		s.Bridge.NoInput, s.Bridge.AudioOnly,
		s.Allocator.Outstanding, s.Allocator.Cached, s.Allocator.Retired,
		s.Allocator.Allocated, s.Allocator.Reused, s.Allocator.Exhausted,
		b[transfer.KindDirectDMA], b[transfer.KindPinnedUpload], b[transfer.KindStaging])
}

// Source is a live capture source. It installs a FrameAllocator and a
// CaptureBridge on a device and, on every render tick, uploads the freshest
// frame into its texture.
//
// Start, Refresh, Stop and Close must be called from the render goroutine.
// Stats may be called from any goroutine.
type Source struct {
	id     uuid.UUID
	logger *slog.Logger
	dev    device.Device
	gfx    transfer.Graphics
	format Format
	caps   Capabilities

	alloc  *FrameAllocator
	cache  *FrameCache
	bridge *CaptureBridge
	tex    *transfer.Texture
	desc   transfer.TextureDescriptor

	started    bool
	closed     bool
	stopOnDone func() bool

	transferred atomic.Uint64
	skipped     atomic.Uint64

	warnOnce sync.Once
}

// NewSource creates a source for dev that uploads into textures of gfx.
// format is parsed with ParseFormat. Capabilities default to
// DefaultCapabilities(gfx).
func NewSource(dev device.Device, gfx transfer.Graphics, format string, opts ...SourceOption) (*Source, error) {
	if dev == nil || gfx == nil {
		return nil, errors.New("capture: nil device or graphics")
	}
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}

	o := defaultSourceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.cacheSize > 0 {
		f.CacheSize = o.cacheSize
	}

	id := uuid.New()
	logger := o.logger
	if logger == nil {
		logger = Logger()
	}
	logger = logger.With("session", id.String())
	propagateLogger(gfx, logger)

	var caps Capabilities
	if o.caps != nil {
		caps = *o.caps
	} else {
		caps = DefaultCapabilities(gfx)
	}

	allocOpts := []AllocatorOption{
		WithAllocatorCacheSize(f.CacheSize),
		WithAllocatorLogger(logger),
	}
	if o.fenceTimeout > 0 {
		allocOpts = append(allocOpts, WithAllocatorFenceTimeout(o.fenceTimeout))
	}

	cache := NewFrameCache()
	s := &Source{
		id:     id,
		logger: logger,
		dev:    dev,
		gfx:    gfx,
		format: f,
		caps:   caps,
		cache:  cache,
		bridge: NewCaptureBridge(cache, logger),
		tex:    transfer.NewTexture("capture_" + id.String()[:8]),
		desc:   DescribeTexture(f),
		alloc:  NewFrameAllocator(gfx, caps, allocOpts...),
	}

	logger.Info("capture: source created", "format", f.String(), "desc", s.desc.String(), "caps", caps.String())
	return s, nil
}

// ID returns the session id of the source.
func (s *Source) ID() uuid.UUID {
	return s.id
}

// Format returns the parsed capture format.
func (s *Source) Format() Format {
	return s.format
}

// Capabilities returns the capabilities the source selects strategies from.
func (s *Source) Capabilities() Capabilities {
	return s.caps
}

// Allocator returns the frame allocator installed on the device.
func (s *Source) Allocator() *FrameAllocator {
	return s.alloc
}

// Bridge returns the device callback of the source.
func (s *Source) Bridge() *CaptureBridge {
	return s.bridge
}

// Texture returns the destination texture. It is allocated by the first
// successful Refresh.
func (s *Source) Texture() *transfer.Texture {
	return s.tex
}

// Descriptor returns the frame layout. It may be incomplete until the first
// frame of a 12-bit format has been refreshed.
func (s *Source) Descriptor() transfer.TextureDescriptor {
	return s.desc
}

// Start installs the allocator and callback, enables the video input and
// starts streaming. Cancelling ctx stops frames from entering the cache;
// Stop is still required to release the device.
func (s *Source) Start(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.caps.PinnedMemory || s.caps.DirectDMA {
		RaiseLockLimit(s.format, s.logger)
	}

	if err := s.dev.SetAllocator(s.alloc); err != nil {
		return fmt.Errorf("capture: set allocator: %w", err)
	}
	if err := s.dev.SetCallback(s.bridge); err != nil {
		return fmt.Errorf("capture: set callback: %w", err)
	}
	if err := s.dev.EnableVideoInput(s.format.Mode, s.format.Pixel, s.format.Stereo); err != nil {
		return fmt.Errorf("capture: enable video input %s: %w", s.format, err)
	}
	s.cache.Reopen()
	if err := s.dev.StartStreams(); err != nil {
		s.cache.Shutdown()
		return errors.Join(fmt.Errorf("capture: start streams: %w", err), s.dev.DisableVideoInput())
	}

	s.stopOnDone = context.AfterFunc(ctx, s.cache.Shutdown)
	s.started = true
	s.logger.Info("capture: streaming started", "format", s.format.String())
	return nil
}

// Refresh runs one render tick: it takes the freshest frame, if any, and
// uploads it into the texture. It reports whether the texture changed.
//
// Refresh never waits for the device. Transfer errors skip the frame and
// are returned for information; the source stays usable.
func (s *Source) Refresh() (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	s.alloc.Collect()

	f := s.cache.Take()
	if f == nil {
		return false, nil
	}
	defer f.Release()

	if err := s.upload(f); err != nil {
		s.skipped.Add(1)
		s.logger.Warn("capture: frame skipped", "buffer", f.Buffer().String(), "error", err)
		return false, err
	}
	s.transferred.Add(1)
	return true, nil
}

func (s *Source) upload(f device.Frame) error {
	if !s.desc.Complete() {
		s.desc.CompleteFromRowBytes(f.RowBytes())
		s.logger.Info("capture: frame layout completed from first frame", "desc", s.desc.String())
	}
	if f.Height() != s.desc.Height || f.RowBytes() != s.desc.StrideBytes {
		return fmt.Errorf("%w: frame %dx%d stride %d, want height %d stride %d",
			ErrGeometryMismatch, f.Width(), f.Height(), f.RowBytes(), s.desc.Height, s.desc.StrideBytes)
	}

	if err := s.alloc.TransferBufferAt(f.Buffer(), s.desc, s.tex, 0); err != nil {
		return err
	}
	if !s.desc.Stereo {
		return nil
	}

	sf, ok := f.(device.StereoFrame)
	var right device.Frame
	if ok {
		right = sf.RightEye()
	}
	if right == nil {
		s.warnOnce.Do(func() {
			s.logger.Warn("capture: stereo format but device delivered a single eye")
		})
		return nil
	}
	return s.alloc.TransferBufferAt(right.Buffer(), s.desc, s.tex, s.desc.Height)
}

// Stop raises the shutdown flag, stops streaming, releases any held frame
// and decommits the allocator. It is a no-op on a stopped source.
func (s *Source) Stop() error {
	if !s.started {
		return nil
	}
	s.started = false
	if s.stopOnDone != nil {
		s.stopOnDone()
		s.stopOnDone = nil
	}

	s.cache.Shutdown()
	err := errors.Join(
		wrapErr("stop streams", s.dev.StopStreams()),
		wrapErr("disable video input", s.dev.DisableVideoInput()),
		wrapErr("decommit", s.alloc.Decommit()),
	)
	s.logger.Info("capture: streaming stopped", "stats", s.Stats().String())
	return err
}

// Close stops the source and destroys its GPU resources. Close is
// idempotent.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	err := s.Stop()
	s.closed = true
	err = errors.Join(err, s.alloc.Close())
	s.tex.Release(s.gfx)
	return err
}

// Stats returns a snapshot of the source counters.
func (s *Source) Stats() Stats {
	return Stats{
		Session:     s.id.String(),
		Transferred: s.transferred.Load(),
		Skipped:     s.skipped.Load(),
		Cache:       s.cache.Stats(),
		Bridge:      s.bridge.Stats(),
		Allocator:   s.alloc.Stats(),
	}
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("capture: %s: %w", op, err)
}
