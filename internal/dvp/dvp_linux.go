// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build linux

package dvp

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/gogpu/gg-capture/transfer"
)

// sysmemBufferDesc mirrors DVPSysmemBufferDesc.
type sysmemBufferDesc struct {
	width   uint32
	height  uint32
	stride  uint32
	size    uint32
	format  uint32
	typ     uint32
	bufAddr uintptr
}

// syncObjectDesc mirrors DVPSyncObjectDesc.
type syncObjectDesc struct {
	sem        uintptr
	flags      uint32
	_          uint32
	clientWait uintptr
}

var (
	loadOnce sync.Once
	loadErr  error
	lib      uintptr

	dvpInitGLContext      func(flags uint32) uint32
	dvpCloseGLContext     func() uint32
	dvpGetLibrayVersion   func(major, minor *uint32) uint32
	dvpBegin              func() uint32
	dvpEnd                func() uint32
	dvpCreateBuffer       func(desc *sysmemBufferDesc, h *uint64) uint32
	dvpDestroyBuffer      func(h uint64) uint32
	dvpBindToGLCtx        func(h uint64) uint32
	dvpUnbindFromGLCtx    func(h uint64) uint32
	dvpCreateGPUTextureGL func(tex uint32, h *uint64) uint32
	dvpImportSyncObject   func(desc *syncObjectDesc, h *uint64) uint32
	dvpFreeSyncObject     func(h uint64) uint32
	dvpMapBufferEndAPI    func(h uint64) uint32
	dvpMapBufferWaitDVP   func(h uint64) uint32
	dvpMapBufferEndDVP    func(h uint64) uint32
	dvpMapBufferWaitAPI   func(h uint64) uint32
	dvpMemcpyLined        func(src, srcSync uint64, acquire uint32, timeout uint64,
		dst, dstSync uint64, release, startLine, numLines uint32) uint32
)

func load() error {
	loadOnce.Do(func() {
		var errs []error
		for _, name := range libraryNames {
			h, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
			if err == nil {
				lib = h
				break
			}
			errs = append(errs, err)
		}
		if lib == 0 {
			loadErr = fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
			return
		}

		purego.RegisterLibFunc(&dvpInitGLContext, lib, "dvpInitGLContext")
		purego.RegisterLibFunc(&dvpCloseGLContext, lib, "dvpCloseGLContext")
		purego.RegisterLibFunc(&dvpGetLibrayVersion, lib, "dvpGetLibrayVersion")
		purego.RegisterLibFunc(&dvpBegin, lib, "dvpBegin")
		purego.RegisterLibFunc(&dvpEnd, lib, "dvpEnd")
		purego.RegisterLibFunc(&dvpCreateBuffer, lib, "dvpCreateBuffer")
		purego.RegisterLibFunc(&dvpDestroyBuffer, lib, "dvpDestroyBuffer")
		purego.RegisterLibFunc(&dvpBindToGLCtx, lib, "dvpBindToGLCtx")
		purego.RegisterLibFunc(&dvpUnbindFromGLCtx, lib, "dvpUnbindFromGLCtx")
		purego.RegisterLibFunc(&dvpCreateGPUTextureGL, lib, "dvpCreateGPUTextureGL")
		purego.RegisterLibFunc(&dvpImportSyncObject, lib, "dvpImportSyncObject")
		purego.RegisterLibFunc(&dvpFreeSyncObject, lib, "dvpFreeSyncObject")
		purego.RegisterLibFunc(&dvpMapBufferEndAPI, lib, "dvpMapBufferEndAPI")
		purego.RegisterLibFunc(&dvpMapBufferWaitDVP, lib, "dvpMapBufferWaitDVP")
		purego.RegisterLibFunc(&dvpMapBufferEndDVP, lib, "dvpMapBufferEndDVP")
		purego.RegisterLibFunc(&dvpMapBufferWaitAPI, lib, "dvpMapBufferWaitAPI")
		purego.RegisterLibFunc(&dvpMemcpyLined, lib, "dvpMemcpyLined")
	})
	return loadErr
}

// Engine is a loaded DMA library bound to the current graphics context.
// It implements transfer.DMAEngine.
type Engine struct {
	major, minor int
	closed       bool
}

// Open loads the library and initializes it for the current graphics
// context. The caller must make that context current beforehand.
func Open() (*Engine, error) {
	if err := load(); err != nil {
		return nil, err
	}
	var major, minor uint32
	if err := check("dvpGetLibrayVersion", dvpGetLibrayVersion(&major, &minor)); err != nil {
		return nil, err
	}
	if err := check("dvpInitGLContext", dvpInitGLContext(0)); err != nil {
		return nil, err
	}
	return &Engine{major: int(major), minor: int(minor)}, nil
}

// Probe loads the library and returns its version without touching any
// graphics context.
func Probe() (major, minor int, err error) {
	if err := load(); err != nil {
		return 0, 0, err
	}
	var ma, mi uint32
	if err := check("dvpGetLibrayVersion", dvpGetLibrayVersion(&ma, &mi)); err != nil {
		return 0, 0, err
	}
	return int(ma), int(mi), nil
}

// Version implements transfer.DMAEngine.
func (e *Engine) Version() (major, minor int) {
	return e.major, e.minor
}

// Begin implements transfer.DMAEngine.
func (e *Engine) Begin() error {
	return check("dvpBegin", dvpBegin())
}

// End implements transfer.DMAEngine.
func (e *Engine) End() error {
	return check("dvpEnd", dvpEnd())
}

// RegisterHostBuffer implements transfer.DMAEngine.
func (e *Engine) RegisterHostBuffer(desc transfer.HostBufferDesc) (transfer.DMABuffer, error) {
	if len(desc.Mem) == 0 {
		return 0, errors.New("dvp: empty host buffer")
	}
	format := uint32(formatRGBA)
	if desc.Layout == transfer.TexelBGRA8 {
		format = formatBGRA
	}
	d := sysmemBufferDesc{
		width:   uint32(desc.Width),
		height:  uint32(desc.Height),
		stride:  uint32(desc.Stride),
		size:    uint32(desc.Stride * desc.Height),
		format:  format,
		typ:     typeUnsignedByte,
		bufAddr: uintptr(unsafe.Pointer(&desc.Mem[0])),
	}
	var h uint64
	if err := check("dvpCreateBuffer", dvpCreateBuffer(&d, &h)); err != nil {
		return 0, err
	}
	return transfer.DMABuffer(h), nil
}

// RegisterTexture implements transfer.DMAEngine.
func (e *Engine) RegisterTexture(native uint64) (transfer.DMABuffer, error) {
	var h uint64
	if err := check("dvpCreateGPUTextureGL", dvpCreateGPUTextureGL(uint32(native), &h)); err != nil {
		return 0, err
	}
	return transfer.DMABuffer(h), nil
}

// BindBuffer implements transfer.DMAEngine.
func (e *Engine) BindBuffer(buf transfer.DMABuffer) error {
	return check("dvpBindToGLCtx", dvpBindToGLCtx(uint64(buf)))
}

// UnbindBuffer implements transfer.DMAEngine.
func (e *Engine) UnbindBuffer(buf transfer.DMABuffer) error {
	return check("dvpUnbindFromGLCtx", dvpUnbindFromGLCtx(uint64(buf)))
}

// DestroyBuffer implements transfer.DMAEngine.
func (e *Engine) DestroyBuffer(buf transfer.DMABuffer) error {
	return check("dvpDestroyBuffer", dvpDestroyBuffer(uint64(buf)))
}

// ImportSync implements transfer.DMAEngine. sem must be at least 4 bytes of
// memory that outlives the sync object.
func (e *Engine) ImportSync(sem []byte) (transfer.DMASync, error) {
	if len(sem) < 4 {
		return 0, errors.New("dvp: semaphore shorter than 4 bytes")
	}
	d := syncObjectDesc{
		sem:   uintptr(unsafe.Pointer(&sem[0])),
		flags: syncFlagsSysmem,
	}
	var h uint64
	if err := check("dvpImportSyncObject", dvpImportSyncObject(&d, &h)); err != nil {
		return 0, err
	}
	return transfer.DMASync(h), nil
}

// FreeSync implements transfer.DMAEngine.
func (e *Engine) FreeSync(s transfer.DMASync) error {
	return check("dvpFreeSyncObject", dvpFreeSyncObject(uint64(s)))
}

// MapBufferEndAPI implements transfer.DMAEngine.
func (e *Engine) MapBufferEndAPI(buf transfer.DMABuffer) error {
	return check("dvpMapBufferEndAPI", dvpMapBufferEndAPI(uint64(buf)))
}

// MapBufferWaitDVP implements transfer.DMAEngine.
func (e *Engine) MapBufferWaitDVP(buf transfer.DMABuffer) error {
	return check("dvpMapBufferWaitDVP", dvpMapBufferWaitDVP(uint64(buf)))
}

// MapBufferEndDVP implements transfer.DMAEngine.
func (e *Engine) MapBufferEndDVP(buf transfer.DMABuffer) error {
	return check("dvpMapBufferEndDVP", dvpMapBufferEndDVP(uint64(buf)))
}

// MapBufferWaitAPI implements transfer.DMAEngine.
func (e *Engine) MapBufferWaitAPI(buf transfer.DMABuffer) error {
	return check("dvpMapBufferWaitAPI", dvpMapBufferWaitAPI(uint64(buf)))
}

// MemcpyLined implements transfer.DMAEngine. A non-positive timeout waits
// without bound.
func (e *Engine) MemcpyLined(src transfer.DMABuffer, srcSync transfer.DMASync, acquire uint32, timeout time.Duration,
	dst transfer.DMABuffer, dstSync transfer.DMASync, release uint32, startLine, numLines int) error {
	ns := timeoutIgnored
	if timeout > 0 {
		ns = uint64(timeout.Nanoseconds())
	}
	return check("dvpMemcpyLined", dvpMemcpyLined(uint64(src), uint64(srcSync), acquire, ns,
		uint64(dst), uint64(dstSync), release, uint32(startLine), uint32(numLines)))
}

// Close implements transfer.DMAEngine. It is idempotent.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return check("dvpCloseGLContext", dvpCloseGLContext())
}

var _ transfer.DMAEngine = (*Engine)(nil)
