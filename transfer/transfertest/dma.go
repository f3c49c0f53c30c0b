// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package transfertest

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gogpu/gg-capture/transfer"
)

// ErrSyncTimeout is returned by DMA.MemcpyLined when the source semaphore
// has not reached the acquire value.
var ErrSyncTimeout = errors.New("transfertest: semaphore acquire timed out")

type dmaBuffer struct {
	host   *transfer.HostBufferDesc
	native uint64
	bound  bool
	mapped int // +1 on end-api, -1 on end-dvp
}

// DMA is a software transfer.DMAEngine that copies host lines into the
// textures of a Graphics. It enforces the semaphore and mapping protocol so
// tests catch misordered calls.
type DMA struct {
	mu sync.Mutex

	gfx   *Graphics
	major int
	minor int

	nextID  uint64
	buffers map[transfer.DMABuffer]*dmaBuffer
	syncs   map[transfer.DMASync][]byte

	inBatch bool
	copies  int
	calls   []string

	// FailRegister makes RegisterHostBuffer fail when set.
	FailRegister bool

	// FailMemcpy makes MemcpyLined fail when set.
	FailMemcpy bool
}

// NewDMA returns a DMA engine writing into gfx that reports the given
// library version.
func NewDMA(gfx *Graphics, major, minor int) *DMA {
	return &DMA{
		gfx:     gfx,
		major:   major,
		minor:   minor,
		nextID:  1,
		buffers: make(map[transfer.DMABuffer]*dmaBuffer),
		syncs:   make(map[transfer.DMASync][]byte),
	}
}

func (d *DMA) record(call string) {
	d.calls = append(d.calls, call)
}

// Calls returns the ordered list of protocol calls made so far.
func (d *DMA) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// Copies returns the number of completed line copies.
func (d *DMA) Copies() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.copies
}

// Live returns the number of registered buffers and sync objects.
func (d *DMA) Live() (buffers, syncs int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers), len(d.syncs)
}

// Version implements transfer.DMAEngine.
func (d *DMA) Version() (major, minor int) {
	return d.major, d.minor
}

// Begin implements transfer.DMAEngine.
func (d *DMA) Begin() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inBatch {
		return errors.New("transfertest: nested dma batch")
	}
	d.inBatch = true
	d.record("begin")
	return nil
}

// End implements transfer.DMAEngine.
func (d *DMA) End() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.inBatch {
		return errors.New("transfertest: end without begin")
	}
	d.inBatch = false
	d.record("end")
	return nil
}

// RegisterHostBuffer implements transfer.DMAEngine.
func (d *DMA) RegisterHostBuffer(desc transfer.HostBufferDesc) (transfer.DMABuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailRegister {
		return 0, errors.New("transfertest: register failure injected")
	}
	if desc.Stride*desc.Height > len(desc.Mem) {
		return 0, fmt.Errorf("transfertest: host buffer of %d bytes too small for %d rows of %d", len(desc.Mem), desc.Height, desc.Stride)
	}
	id := transfer.DMABuffer(d.nextID)
	d.nextID++
	d.buffers[id] = &dmaBuffer{host: &desc}
	return id, nil
}

// RegisterTexture implements transfer.DMAEngine.
func (d *DMA) RegisterTexture(native uint64) (transfer.DMABuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := transfer.DMABuffer(d.nextID)
	d.nextID++
	d.buffers[id] = &dmaBuffer{native: native}
	return id, nil
}

func (d *DMA) buffer(id transfer.DMABuffer) (*dmaBuffer, error) {
	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: dma buffer %d", ErrNotFound, id)
	}
	return b, nil
}

// BindBuffer implements transfer.DMAEngine.
func (d *DMA) BindBuffer(id transfer.DMABuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.buffer(id)
	if err != nil {
		return err
	}
	b.bound = true
	return nil
}

// UnbindBuffer implements transfer.DMAEngine.
func (d *DMA) UnbindBuffer(id transfer.DMABuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.buffer(id)
	if err != nil {
		return err
	}
	b.bound = false
	return nil
}

// DestroyBuffer implements transfer.DMAEngine.
func (d *DMA) DestroyBuffer(id transfer.DMABuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.buffer(id); err != nil {
		return err
	}
	delete(d.buffers, id)
	return nil
}

// ImportSync implements transfer.DMAEngine.
func (d *DMA) ImportSync(sem []byte) (transfer.DMASync, error) {
	if len(sem) < 4 {
		return 0, errors.New("transfertest: semaphore shorter than 4 bytes")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := transfer.DMASync(d.nextID)
	d.nextID++
	d.syncs[id] = sem
	return id, nil
}

// FreeSync implements transfer.DMAEngine.
func (d *DMA) FreeSync(s transfer.DMASync) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.syncs[s]; !ok {
		return fmt.Errorf("%w: sync %d", ErrNotFound, s)
	}
	delete(d.syncs, s)
	return nil
}

func (d *DMA) mapCall(name string, id transfer.DMABuffer, delta int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.buffer(id)
	if err != nil {
		return err
	}
	b.mapped += delta
	d.record(name)
	return nil
}

// MapBufferEndAPI implements transfer.DMAEngine. Releasing a texture the
// graphics API does not own is an error.
func (d *DMA) MapBufferEndAPI(id transfer.DMABuffer) error {
	d.mu.Lock()
	b, err := d.buffer(id)
	mapped := err == nil && b.mapped > 0
	d.mu.Unlock()
	if mapped {
		return fmt.Errorf("transfertest: buffer %d already released to dma", id)
	}
	return d.mapCall("end-api", id, 1)
}

// MapBufferWaitDVP implements transfer.DMAEngine.
func (d *DMA) MapBufferWaitDVP(id transfer.DMABuffer) error {
	return d.mapCall("wait-dvp", id, 0)
}

// MapBufferEndDVP implements transfer.DMAEngine.
func (d *DMA) MapBufferEndDVP(id transfer.DMABuffer) error {
	return d.mapCall("end-dvp", id, -1)
}

// MapBufferWaitAPI implements transfer.DMAEngine.
func (d *DMA) MapBufferWaitAPI(id transfer.DMABuffer) error {
	return d.mapCall("wait-api", id, 0)
}

func semWord(sem []byte) *uint32 {
	return (*uint32)(unsafe.Pointer(&sem[0]))
}

// MemcpyLined implements transfer.DMAEngine. The copy only happens inside a
// batch, with the destination released by the graphics API and the source
// semaphore at or past acquire.
func (d *DMA) MemcpyLined(src transfer.DMABuffer, srcSync transfer.DMASync, acquire uint32, _ time.Duration,
	dst transfer.DMABuffer, dstSync transfer.DMASync, release uint32, startLine, numLines int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("memcpy")

	if d.FailMemcpy {
		return errors.New("transfertest: memcpy failed")
	}
	if !d.inBatch {
		return errors.New("transfertest: memcpy outside batch")
	}
	sb, err := d.buffer(src)
	if err != nil {
		return err
	}
	db, err := d.buffer(dst)
	if err != nil {
		return err
	}
	if sb.host == nil || db.host != nil {
		return errors.New("transfertest: memcpy must go from host buffer to texture")
	}
	if !sb.bound || !db.bound {
		return errors.New("transfertest: memcpy on unbound buffer")
	}
	if db.mapped <= 0 {
		return errors.New("transfertest: texture still owned by graphics api")
	}
	srcSem, ok := d.syncs[srcSync]
	if !ok {
		return fmt.Errorf("%w: sync %d", ErrNotFound, srcSync)
	}
	dstSem, ok := d.syncs[dstSync]
	if !ok {
		return fmt.Errorf("%w: sync %d", ErrNotFound, dstSync)
	}
	if got := atomic.LoadUint32(semWord(srcSem)); got < acquire {
		return fmt.Errorf("%w: value %d, want %d", ErrSyncTimeout, got, acquire)
	}

	h := sb.host
	if err := d.gfx.writeNative(db.native, h.Mem, h.Stride, startLine, numLines); err != nil {
		return err
	}
	atomic.StoreUint32(semWord(dstSem), release)
	d.copies++
	return nil
}

// Close implements transfer.DMAEngine.
func (d *DMA) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.buffers) != 0 || len(d.syncs) != 0 {
		return fmt.Errorf("transfertest: %d buffers and %d sync objects leaked", len(d.buffers), len(d.syncs))
	}
	return nil
}

var _ transfer.DMAEngine = (*DMA)(nil)
