package capture

import (
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/gg-capture/device"
)

// BridgeStats is a snapshot of CaptureBridge counters.
type BridgeStats struct {
	AudioOnly     uint64 // notifications without a video frame
	NoInput       uint64 // frames flagged as having no input signal
	FormatChanges uint64
	Forwarded     uint64
}

// CaptureBridge implements device.Callback. It forwards frames with a
// payload into a FrameCache and ignores the rest.
type CaptureBridge struct {
	cache  *FrameCache
	logger *slog.Logger

	// OnFormatChange, if set, is called from the device goroutine when the
	// device reports a new input format. The pipeline itself does not act
	// on format changes.
	OnFormatChange func(mode device.DisplayMode, pixel device.PixelFormat)

	audioOnly     atomic.Uint64
	noInput       atomic.Uint64
	formatChanges atomic.Uint64
	forwarded     atomic.Uint64
}

// NewCaptureBridge returns a bridge feeding cache.
func NewCaptureBridge(cache *FrameCache, logger *slog.Logger) *CaptureBridge {
	if logger == nil {
		logger = Logger()
	}
	return &CaptureBridge{cache: cache, logger: logger}
}

// FrameArrived implements device.Callback.
func (b *CaptureBridge) FrameArrived(frame device.Frame, _ device.AudioPacket) {
	if frame == nil {
		b.audioOnly.Add(1)
		return
	}
	if frame.Flags().Has(device.FrameHasNoInputSource) {
		if b.noInput.Add(1) == 1 {
			b.logger.Warn("capture: device reports no input signal")
		}
		return
	}
	if b.cache.Put(frame) {
		b.forwarded.Add(1)
	}
}

// FormatChanged implements device.Callback.
func (b *CaptureBridge) FormatChanged(mode device.DisplayMode, pixel device.PixelFormat) {
	b.formatChanges.Add(1)
	b.logger.Info("capture: input format changed", "mode", mode.Name, "pixel", pixel.String())
	if b.OnFormatChange != nil {
		b.OnFormatChange(mode, pixel)
	}
}

// Stats returns a snapshot of the bridge counters.
func (b *CaptureBridge) Stats() BridgeStats {
	return BridgeStats{
		AudioOnly:     b.audioOnly.Load(),
		NoInput:       b.noInput.Load(),
		FormatChanges: b.formatChanges.Load(),
		Forwarded:     b.forwarded.Load(),
	}
}

var _ device.Callback = (*CaptureBridge)(nil)
