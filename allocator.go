package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gogpu/gg-capture/device"
	"github.com/gogpu/gg-capture/internal/pinned"
	"github.com/gogpu/gg-capture/transfer"
)

// allocation is one entry of the allocation table.
type allocation struct {
	handle device.BufferHandle
	mem    *pinned.Buffer

	// binding is created and destroyed by the render goroutine only, and
	// assigned under the allocator lock.
	binding *transfer.Binding

	// transferring is set while the render goroutine uses the entry outside
	// the lock. Finalizing such an entry defers its teardown.
	transferring bool
}

// AllocatorStats is a snapshot of FrameAllocator counters.
type AllocatorStats struct {
	Outstanding int // buffers held by the device
	Cached      int // released buffers kept for reuse
	Retired     int // finalized buffers awaiting GPU teardown

	Allocated      uint64 // fresh allocations
	Reused         uint64 // allocations served from the cache
	Exhausted      uint64 // allocations refused at the ceiling
	Finalized      uint64
	UnknownHandles uint64

	// Bindings counts transfer bindings created per strategy.
	Bindings [transfer.KindCount]uint64
}

// AllocatorOption configures a FrameAllocator.
type AllocatorOption func(*FrameAllocator)

// WithAllocatorCacheSize sets the buffer ceiling. Values outside
// 1..MaxCacheSize are clamped.
func WithAllocatorCacheSize(n int) AllocatorOption {
	return func(a *FrameAllocator) {
		a.cacheSize = max(1, min(n, MaxCacheSize))
	}
}

// WithAllocatorLogger sets the allocator logger.
func WithAllocatorLogger(l *slog.Logger) AllocatorOption {
	return func(a *FrameAllocator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithAllocatorFenceTimeout bounds GPU completion waits of transfers.
func WithAllocatorFenceTimeout(d time.Duration) AllocatorOption {
	return func(a *FrameAllocator) {
		a.fenceTimeout = d
	}
}

// FrameAllocator implements device.Allocator with page-aligned buffers and
// binds each buffer to a transfer strategy on first use.
//
// The allocation table is guarded by one mutex and may be used from the
// device goroutine. TransferBuffer, Collect and Close touch GPU resources
// and must be called from the render goroutine.
type FrameAllocator struct {
	logger       *slog.Logger
	gfx          transfer.Graphics
	caps         Capabilities
	cacheSize    int
	fenceTimeout time.Duration

	mu         sync.Mutex
	nextHandle device.BufferHandle
	table      map[device.BufferHandle]*allocation
	cache      []*allocation // LIFO
	retired    []*allocation
	disabled   [transfer.KindCount]bool
	closed     bool
	stats      AllocatorStats
}

// NewFrameAllocator returns an allocator that uploads into gfx using the
// strategies allowed by caps.
func NewFrameAllocator(gfx transfer.Graphics, caps Capabilities, opts ...AllocatorOption) *FrameAllocator {
	a := &FrameAllocator{
		logger:       Logger(),
		gfx:          gfx,
		caps:         caps,
		cacheSize:    DefaultCacheSize,
		fenceTimeout: transfer.DefaultFenceTimeout,
		table:        make(map[device.BufferHandle]*allocation),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CacheSize returns the buffer ceiling.
func (a *FrameAllocator) CacheSize() int {
	return a.cacheSize
}

// AllocateBuffer implements device.Allocator. The most recently released
// buffer that is large enough is reused first. A fresh buffer is allocated
// only while the table is below the ceiling; a full table with no fitting
// cached buffer evicts the oldest cached one to make room.
func (a *FrameAllocator) AllocateBuffer(size int) (device.BufferHandle, []byte, error) {
	if size <= 0 {
		return 0, nil, fmt.Errorf("capture: allocate %d bytes: %w", size, pinned.ErrInvalidSize)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0, nil, fmt.Errorf("%w: %w", device.ErrOutOfMemory, ErrClosed)
	}

	for i := len(a.cache) - 1; i >= 0; i-- {
		e := a.cache[i]
		if e.mem.Size() >= size {
			a.cache = slices.Delete(a.cache, i, i+1)
			a.stats.Reused++
			return e.handle, e.mem.Bytes()[:size], nil
		}
	}

	if len(a.table) >= a.cacheSize {
		if len(a.cache) == 0 {
			a.stats.Exhausted++
			return 0, nil, device.ErrOutOfMemory
		}
		oldest := a.cache[0]
		a.cache = a.cache[1:]
		a.finalizeLocked(oldest)
	}

	mem, err := pinned.Alloc(size)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", device.ErrOutOfMemory, err)
	}
	a.nextHandle++
	e := &allocation{handle: a.nextHandle, mem: mem}
	a.table[e.handle] = e
	a.stats.Allocated++
	a.logger.Debug("capture: buffer allocated", "buffer", e.handle.String(), "bytes", size)
	return e.handle, mem.Bytes(), nil
}

// ReleaseBuffer implements device.Allocator. Released buffers are cached for
// reuse while the cache has room and finalized otherwise.
func (a *FrameAllocator) ReleaseBuffer(h device.BufferHandle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.table[h]
	if !ok {
		a.stats.UnknownHandles++
		a.logger.Warn("capture: release of unknown buffer", "buffer", h.String())
		return
	}
	if slices.Contains(a.cache, e) {
		a.stats.UnknownHandles++
		a.logger.Warn("capture: buffer released twice", "buffer", h.String())
		return
	}
	if a.closed || len(a.cache) >= a.cacheSize {
		a.finalizeLocked(e)
		return
	}
	a.cache = append(a.cache, e)
}

// Commit implements device.Allocator.
func (a *FrameAllocator) Commit() error {
	return nil
}

// Decommit implements device.Allocator. It finalizes every cached buffer.
// Calling it again with an empty cache does nothing.
func (a *FrameAllocator) Decommit() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.cache {
		a.finalizeLocked(e)
	}
	a.cache = nil
	return nil
}

// finalizeLocked removes e from the table. Its memory is freed now if no
// GPU resource refers to it, and by Collect otherwise.
func (a *FrameAllocator) finalizeLocked(e *allocation) {
	delete(a.table, e.handle)
	a.stats.Finalized++
	if e.binding != nil || e.transferring {
		a.retired = append(a.retired, e)
		return
	}
	if err := e.mem.Free(); err != nil {
		a.logger.Warn("capture: free buffer", "buffer", e.handle.String(), "error", err)
	}
}

// Collect tears down finalized buffers that still had GPU resources.
// Call it from the render goroutine.
func (a *FrameAllocator) Collect() {
	a.mu.Lock()
	retired := a.retired
	a.retired = nil
	a.mu.Unlock()

	for _, e := range retired {
		if e.binding != nil {
			e.binding.Destroy()
			e.binding = nil
		}
		if err := e.mem.Free(); err != nil {
			a.logger.Warn("capture: free buffer", "buffer", e.handle.String(), "error", err)
		}
	}
}

// TransferBuffer uploads the content of buffer h into tex, allocating the
// texture for desc if needed. It is TransferBufferAt with origin row 0.
func (a *FrameAllocator) TransferBuffer(h device.BufferHandle, desc transfer.TextureDescriptor, tex *transfer.Texture) error {
	return a.TransferBufferAt(h, desc, tex, 0)
}

// TransferBufferAt uploads buffer h into tex starting at row originY. The
// first transfer of a buffer binds it to the fastest strategy that works;
// later transfers reuse the binding while texture and layout are unchanged.
//
// An unknown handle is logged and returns ErrUnknownBuffer without touching
// the texture. Any other error means this frame was not uploaded.
func (a *FrameAllocator) TransferBufferAt(h device.BufferHandle, desc transfer.TextureDescriptor, tex *transfer.Texture, originY int) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	e, ok := a.table[h]
	if !ok {
		a.stats.UnknownHandles++
		a.mu.Unlock()
		a.logger.Warn("capture: transfer of unknown buffer", "buffer", h.String())
		return fmt.Errorf("%w: %s", ErrUnknownBuffer, h)
	}
	e.transferring = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		e.transferring = false
		a.mu.Unlock()
	}()

	if _, err := tex.Ensure(a.gfx, desc); err != nil {
		return err
	}
	if e.binding == nil || !e.binding.Matches(tex, desc) {
		if err := a.rebind(e, tex, desc); err != nil {
			return err
		}
	}
	return e.binding.PerformTransfer(originY)
}

// rebind replaces the binding of e with one for tex and desc, trying the
// allowed strategies fastest first. A strategy that fails to bind is not
// tried again by this allocator.
func (a *FrameAllocator) rebind(e *allocation, tex *transfer.Texture, desc transfer.TextureDescriptor) error {
	if old := e.binding; old != nil {
		a.mu.Lock()
		e.binding = nil
		a.mu.Unlock()
		old.Destroy()
	}

	a.mu.Lock()
	disabled := a.disabled
	a.mu.Unlock()

	var errs []error
	for _, kind := range a.caps.Kinds() {
		if disabled[kind] || (kind == transfer.KindDirectDMA && desc.Stereo) {
			continue
		}
		b, err := transfer.Bind(kind, transfer.Params{
			Graphics:     a.gfx,
			DMA:          a.caps.DMA,
			Memory:       e.mem,
			Texture:      tex,
			Desc:         desc,
			FenceTimeout: a.fenceTimeout,
		})
		if err != nil {
			errs = append(errs, err)
			if kind != transfer.KindStaging {
				a.mu.Lock()
				a.disabled[kind] = true
				a.mu.Unlock()
				a.logger.Info("capture: transfer strategy disabled", "kind", kind.String(), "error", err)
			}
			continue
		}

		a.mu.Lock()
		e.binding = b
		a.stats.Bindings[kind]++
		a.mu.Unlock()
		a.logger.Debug("capture: buffer bound", "buffer", e.handle.String(), "kind", kind.String())
		return nil
	}
	return fmt.Errorf("capture: bind %s: %w", e.handle, errors.Join(errs...))
}

// Kind returns the strategy bound to buffer h, if any.
func (a *FrameAllocator) Kind(h device.BufferHandle) (transfer.Kind, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.table[h]
	if !ok || e.binding == nil {
		return 0, false
	}
	return e.binding.Kind(), true
}

// Close finalizes every cached buffer and destroys all GPU resources.
// Buffers still held by the device keep their memory and are freed when
// released. Call it from the render goroutine after streaming stopped.
func (a *FrameAllocator) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	for _, e := range a.cache {
		a.finalizeLocked(e)
	}
	a.cache = nil
	var outstanding []*allocation
	for _, e := range a.table {
		if e.binding != nil {
			outstanding = append(outstanding, e)
		}
	}
	held := len(a.table)
	a.mu.Unlock()

	a.Collect()
	for _, e := range outstanding {
		b := e.binding
		a.mu.Lock()
		e.binding = nil
		a.mu.Unlock()
		b.Destroy()
	}
	// Buffers released while the bindings above were torn down were retired
	// instead of freed.
	a.Collect()
	if held > 0 {
		a.logger.Warn("capture: allocator closed with buffers held by the device", "count", held)
	}
	return nil
}

// Stats returns a snapshot of the allocator counters.
func (a *FrameAllocator) Stats() AllocatorStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.stats
	s.Outstanding = len(a.table) - len(a.cache)
	s.Cached = len(a.cache)
	s.Retired = len(a.retired)
	return s
}

var _ device.Allocator = (*FrameAllocator)(nil)
