package capture

import (
	"log/slog"

	"github.com/gogpu/gg-capture/internal/pinned"
)

// unknownStrideBytesPerPixel sizes frames of formats whose stride is only
// known once the first frame arrives. 8 bytes covers every packed format
// the device can deliver.
const unknownStrideBytesPerPixel = 8

// FrameBytes returns the host memory one delivered frame occupies, counting
// both eyes in stereo mode.
func FrameBytes(f Format) int {
	d := DescribeTexture(f)
	n := d.ByteSize
	if !d.Complete() {
		n = f.Mode.Width * f.Mode.Height * unknownStrideBytesPerPixel
	}
	if f.Stereo {
		n *= 2
	}
	return n
}

// LockBudget returns the number of bytes of lockable memory needed to pin
// every buffer the allocator may hold: the cache ceiling plus one eighth for
// in-flight frames the device has not released yet, plus one spare.
func LockBudget(f Format) uint64 {
	frame := uint64(pinned.PageAlign(FrameBytes(f)))
	n := uint64(f.CacheSize)
	return frame * (n + n/8 + 1)
}

// RaiseLockLimit asks the OS for enough lockable memory to pin the frames
// of f. Failure is not fatal: pinning then fails and transfers fall back to
// the staging path.
func RaiseLockLimit(f Format, logger *slog.Logger) uint64 {
	want := LockBudget(f)
	got, err := pinned.RaiseLockLimit(want)
	if err != nil {
		logger.Warn("capture: could not raise lockable memory limit",
			"want", want, "limit", got, "error", err)
		return got
	}
	logger.Debug("capture: lockable memory limit", "want", want, "limit", got)
	return got
}
