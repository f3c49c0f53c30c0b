package capture

import (
	"sync"

	"github.com/gogpu/gg-capture/device"
)

// FrameCacheStats is a snapshot of FrameCache counters.
type FrameCacheStats struct {
	Arrived         uint64 // frames accepted into the slot
	Replaced        uint64 // frames overwritten by a fresher one before being taken
	DroppedShutdown uint64 // frames refused after Shutdown
	Taken           uint64 // frames handed to the consumer
}

// FrameCache is a single-slot hand-off of the most recent frame from the
// device goroutine to the render goroutine.
//
// The slot holds at most one frame reference. A new frame replaces an
// unconsumed one, so the consumer always sees the freshest frame and never
// a queue of stale ones. Frames are released outside the lock.
type FrameCache struct {
	mu     sync.Mutex
	frame  device.Frame // nil = empty
	closed bool
	stats  FrameCacheStats
}

// NewFrameCache returns an empty, open cache.
func NewFrameCache() *FrameCache {
	return &FrameCache{}
}

// Put offers a frame. The cache takes its own reference; the caller keeps
// its reference. Put reports whether the frame was accepted.
func (c *FrameCache) Put(f device.Frame) bool {
	c.mu.Lock()
	if c.closed {
		c.stats.DroppedShutdown++
		c.mu.Unlock()
		return false
	}
	f.AddRef()
	old := c.frame
	c.frame = f
	c.stats.Arrived++
	if old != nil {
		c.stats.Replaced++
	}
	c.mu.Unlock()

	if old != nil {
		old.Release()
	}
	return true
}

// Take removes and returns the held frame, or nil if the slot is empty. It
// never blocks on the producer. The caller owns the returned reference and
// must Release it.
func (c *FrameCache) Take() device.Frame {
	c.mu.Lock()
	f := c.frame
	c.frame = nil
	if f != nil {
		c.stats.Taken++
	}
	c.mu.Unlock()
	return f
}

// Shutdown makes the cache refuse new frames and releases the held one.
// It is idempotent.
func (c *FrameCache) Shutdown() {
	c.mu.Lock()
	c.closed = true
	f := c.frame
	c.frame = nil
	c.mu.Unlock()

	if f != nil {
		f.Release()
	}
}

// Reopen accepts frames again after Shutdown.
func (c *FrameCache) Reopen() {
	c.mu.Lock()
	c.closed = false
	c.mu.Unlock()
}

// Held returns the number of frame references in the slot: 0 or 1.
func (c *FrameCache) Held() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frame != nil {
		return 1
	}
	return 0
}

// Stats returns a snapshot of the cache counters.
func (c *FrameCache) Stats() FrameCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
