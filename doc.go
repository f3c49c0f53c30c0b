// Package capture moves live video frames from a hardware capture device
// into a GPU texture with as few copies as the platform allows.
//
// # Overview
//
// A capture device delivers frames on its own goroutine. The pipeline is:
//
//	device ──► CaptureBridge ──► FrameCache ──► Source.Refresh ──► transfer.Binding ──► texture
//	device ◄── FrameAllocator (AllocateBuffer/ReleaseBuffer/Commit/Decommit)
//
// [FrameAllocator] is installed as the device's buffer allocator. It hands
// out page-aligned buffers, caps their number at the format's cache size,
// and reuses released buffers most-recently-released first. The first time
// a buffer is uploaded it is bound to the fastest transfer strategy that
// works: hardware DMA, pinned upload, or staging upload.
//
// [FrameCache] holds only the freshest frame. A frame that arrives before
// the previous one was consumed replaces it; the render goroutine never
// sees a queue of stale frames and never blocks on the device.
//
// # Quick Start
//
//	gfx, err := native.Open(native.Config{Backend: "vulkan"})
//	...
//	src, err := capture.NewSource(dev, gfx, "HD1080p24/2vuy")
//	if err != nil {
//	    return err
//	}
//	defer src.Close()
//
//	if err := src.Start(ctx); err != nil {
//	    return err
//	}
//	for range ticker.C {
//	    updated, err := src.Refresh()
//	    ...
//	}
//
// # Formats
//
// Formats are written "<displayMode>/<pixelFormat>[/3D][:<cacheSize>]".
// "/3D" selects dual-stream capture: both eyes share one texture of twice
// the height, left eye on top. The cache size defaults to 8.
//
// # Threading
//
// FrameAllocator's allocation entry points and CaptureBridge are called by
// the device goroutine. Source methods, FrameAllocator.TransferBuffer and
// everything that touches GPU resources run on the render goroutine. The
// cache slot and the allocation table are guarded by two independent locks
// that are never held together.
//
// # Logging
//
// capture is silent by default. See [SetLogger].
package capture

// Version is the current version of the library.
const Version = "0.1.0"
