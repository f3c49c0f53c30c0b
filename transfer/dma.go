// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package transfer

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gogpu/gg-capture/internal/pinned"
)

// DMABuffer and DMASync are handles issued by a DMAEngine.
type (
	DMABuffer uint64
	DMASync   uint64
)

// HostBufferDesc describes host frame memory registered with a DMA engine.
type HostBufferDesc struct {
	Mem    []byte
	Width  int // texels per row
	Height int
	Stride int // bytes per row
	Layout TexelFormat
}

// DMAEngine is the hardware DMA support library surface. The method set
// mirrors the vendor library: buffers are registered once and bound to the
// graphics context, and every copy is ordered by two semaphore objects
// living in host memory.
type DMAEngine interface {
	// Version returns the library version.
	Version() (major, minor int)

	// Begin and End bracket a batch of DMA operations.
	Begin() error
	End() error

	// RegisterHostBuffer registers system memory as a DMA source.
	RegisterHostBuffer(desc HostBufferDesc) (DMABuffer, error)

	// RegisterTexture registers a driver texture as a DMA destination.
	RegisterTexture(native uint64) (DMABuffer, error)

	// BindBuffer and UnbindBuffer attach a buffer to the graphics context.
	BindBuffer(buf DMABuffer) error
	UnbindBuffer(buf DMABuffer) error

	// DestroyBuffer releases a registered buffer.
	DestroyBuffer(buf DMABuffer) error

	// ImportSync registers a 4-byte semaphore word living in sem.
	ImportSync(sem []byte) (DMASync, error)

	// FreeSync releases a semaphore registration.
	FreeSync(s DMASync) error

	// MapBufferEndAPI signals that the graphics API is done with buf.
	MapBufferEndAPI(buf DMABuffer) error

	// MapBufferWaitDVP makes the DMA engine wait until buf is released by the API.
	MapBufferWaitDVP(buf DMABuffer) error

	// MapBufferEndDVP signals that the DMA engine is done with buf.
	MapBufferEndDVP(buf DMABuffer) error

	// MapBufferWaitAPI makes the graphics context wait for the DMA engine.
	MapBufferWaitAPI(buf DMABuffer) error

	// MemcpyLined copies numLines rows starting at startLine from src to dst
	// once srcSync reaches acquire, then releases dstSync with release.
	MemcpyLined(src DMABuffer, srcSync DMASync, acquire uint32, timeout time.Duration,
		dst DMABuffer, dstSync DMASync, release uint32, startLine, numLines int) error

	// Close shuts the library down.
	Close() error
}

// syncObject is a semaphore word in pinned host memory shared with the DMA
// engine. Values increase monotonically.
type syncObject struct {
	mem     *pinned.Buffer
	handle  DMASync
	release uint32
}

func newSyncObject(engine DMAEngine) (*syncObject, error) {
	mem, err := pinned.Alloc(pinned.PageSize())
	if err != nil {
		return nil, err
	}
	// The engine polls the word, so it must not be paged out. Lock limits
	// may forbid it; the engine then polls pageable memory.
	_ = mem.Pin()

	h, err := engine.ImportSync(mem.Bytes()[:4])
	if err != nil {
		_ = mem.Free()
		return nil, fmt.Errorf("import sync object: %w", err)
	}
	return &syncObject{mem: mem, handle: h}, nil
}

func (s *syncObject) word() *uint32 {
	return (*uint32)(unsafe.Pointer(&s.mem.Bytes()[0]))
}

// signal advances the semaphore and publishes the value from the CPU side.
func (s *syncObject) signal() uint32 {
	s.release++
	atomic.StoreUint32(s.word(), s.release)
	return s.release
}

func (s *syncObject) free(engine DMAEngine) error {
	err := engine.FreeSync(s.handle)
	return errors.Join(err, s.mem.Free())
}

// dmaBinding holds the engine-side registrations for one host buffer and
// one texture.
type dmaBinding struct {
	engine  DMAEngine
	sysBuf  DMABuffer
	texBuf  DMABuffer
	extSync *syncObject // host side: buffer filled by the device
	gpuSync *syncObject // GPU side: DMA copy finished
}

func bindDMA(p Params, tex TextureID) (db *dmaBinding, err error) {
	if p.DMA == nil {
		return nil, fmt.Errorf("%w: no DMA engine", ErrUnsupported)
	}
	if p.Desc.Stereo {
		return nil, fmt.Errorf("%w: stereo textures", ErrUnsupported)
	}
	exporter, ok := p.Graphics.(NativeTextureExporter)
	if !ok {
		return nil, fmt.Errorf("%w: graphics does not export native textures", ErrUnsupported)
	}
	native, err := exporter.NativeTexture(tex)
	if err != nil {
		return nil, fmt.Errorf("native texture: %w", err)
	}

	// The library pins registered memory itself; locking here only keeps
	// the pinned flag accurate when the lock limit allows it.
	if err := p.Memory.Pin(); err != nil {
		slogger().Debug("transfer: dma host buffer left unpinned", "error", err)
	}

	db = &dmaBinding{engine: p.DMA}
	defer func() {
		if err != nil {
			db.destroy()
		}
	}()

	db.sysBuf, err = p.DMA.RegisterHostBuffer(HostBufferDesc{
		Mem:    p.Memory.Bytes(),
		Width:  p.Desc.Width,
		Height: p.Desc.Height,
		Stride: p.Desc.StrideBytes,
		Layout: p.Desc.Layout,
	})
	if err != nil {
		return db, fmt.Errorf("register host buffer: %w", err)
	}
	if err = p.DMA.BindBuffer(db.sysBuf); err != nil {
		return db, fmt.Errorf("bind host buffer: %w", err)
	}
	db.texBuf, err = p.DMA.RegisterTexture(native)
	if err != nil {
		return db, fmt.Errorf("register texture: %w", err)
	}
	if err = p.DMA.BindBuffer(db.texBuf); err != nil {
		return db, fmt.Errorf("bind texture: %w", err)
	}
	if db.extSync, err = newSyncObject(p.DMA); err != nil {
		return db, err
	}
	if db.gpuSync, err = newSyncObject(p.DMA); err != nil {
		return db, err
	}
	return db, nil
}

// perform runs one ordered DMA copy:
//
//  1. the graphics API releases the texture
//  2. a DMA batch begins
//  3. the host semaphore is signaled (frame bytes are ready)
//  4. the engine waits for the texture, then copies the lines
//  5. the engine releases the texture and the batch ends
//  6. the graphics context waits for the engine to finish
func (db *dmaBinding) perform(region Region, timeout time.Duration) (err error) {
	if region.OriginY != 0 {
		return fmt.Errorf("%w: dma copies cannot offset rows", ErrGeometryMismatch)
	}
	e := db.engine
	if err := e.MapBufferEndAPI(db.texBuf); err != nil {
		return fmt.Errorf("end api access: %w", err)
	}
	// Once released, the texture goes back to the graphics API whatever
	// happens below.
	defer func() {
		if waitErr := e.MapBufferWaitAPI(db.texBuf); waitErr != nil && err == nil {
			err = fmt.Errorf("wait api access: %w", waitErr)
		}
	}()
	if err := e.Begin(); err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() {
		if endErr := e.End(); endErr != nil && err == nil {
			err = fmt.Errorf("end batch: %w", endErr)
		}
	}()

	acquire := db.extSync.signal()
	if err := e.MapBufferWaitDVP(db.texBuf); err != nil {
		return fmt.Errorf("wait dma access: %w", err)
	}
	copyErr := e.MemcpyLined(db.sysBuf, db.extSync.handle, acquire, timeout,
		db.texBuf, db.gpuSync.handle, db.gpuSync.release+1, 0, region.Height)
	if copyErr == nil {
		db.gpuSync.release++
	}
	if err := e.MapBufferEndDVP(db.texBuf); err != nil && copyErr == nil {
		return fmt.Errorf("end dma access: %w", err)
	}
	if copyErr != nil {
		return fmt.Errorf("memcpy lined: %w", copyErr)
	}
	return nil
}

func (db *dmaBinding) destroy() {
	e := db.engine
	var errs []error
	if db.texBuf != 0 {
		errs = append(errs, e.UnbindBuffer(db.texBuf), e.DestroyBuffer(db.texBuf))
		db.texBuf = 0
	}
	if db.sysBuf != 0 {
		errs = append(errs, e.UnbindBuffer(db.sysBuf), e.DestroyBuffer(db.sysBuf))
		db.sysBuf = 0
	}
	if db.extSync != nil {
		errs = append(errs, db.extSync.free(e))
		db.extSync = nil
	}
	if db.gpuSync != nil {
		errs = append(errs, db.gpuSync.free(e))
		db.gpuSync = nil
	}
	if err := errors.Join(errs...); err != nil {
		slogger().Warn("transfer: dma binding teardown", "error", err)
	}
}
