// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package transfertest provides in-memory implementations of the transfer
// interfaces for tests and GPU-less runs.
package transfertest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gg-capture/transfer"
)

// ErrNotFound is returned for unknown resource handles.
var ErrNotFound = errors.New("transfertest: resource not found")

type memTexture struct {
	spec transfer.TextureSpec
	data []byte // tightly packed rows
}

type memBuffer struct {
	data     []byte
	imported bool // aliases host memory
}

// Graphics is an in-memory transfer.Graphics. Textures are byte slices and
// uploads are synchronous, so fences are always signaled.
//
// Graphics is safe for concurrent use.
type Graphics struct {
	mu sync.Mutex

	info       transfer.AdapterInfo
	extensions map[string]bool
	align      int

	nextID   uint64
	textures map[transfer.TextureID]*memTexture
	buffers  map[transfer.BufferID]*memBuffer
	fences   map[transfer.FenceID]bool

	// FailUploads makes UploadTexture fail when set.
	FailUploads bool

	// StallFences makes WaitFence report a timeout when set.
	StallFences bool

	uploads   int
	created   int
	destroyed int
}

// Option configures a Graphics.
type Option func(*Graphics)

// WithRenderer sets the adapter renderer string.
func WithRenderer(vendor, renderer string) Option {
	return func(g *Graphics) {
		g.info = transfer.AdapterInfo{Vendor: vendor, Renderer: renderer}
	}
}

// WithPinnedMemory advertises transfer.ExtPinnedMemory.
func WithPinnedMemory() Option {
	return func(g *Graphics) {
		g.extensions[transfer.ExtPinnedMemory] = true
	}
}

// WithCopyPitchAlignment sets the buffer-to-texture row pitch alignment.
func WithCopyPitchAlignment(align int) Option {
	return func(g *Graphics) {
		g.align = align
	}
}

// NewGraphics returns an empty in-memory Graphics.
func NewGraphics(opts ...Option) *Graphics {
	g := &Graphics{
		info:       transfer.AdapterInfo{Vendor: "gogpu", Renderer: "transfertest memory"},
		extensions: make(map[string]bool),
		align:      1,
		nextID:     1,
		textures:   make(map[transfer.TextureID]*memTexture),
		buffers:    make(map[transfer.BufferID]*memBuffer),
		fences:     make(map[transfer.FenceID]bool),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Graphics) newID() uint64 {
	id := g.nextID
	g.nextID++
	return id
}

// AdapterInfo implements transfer.Graphics.
func (g *Graphics) AdapterInfo() transfer.AdapterInfo {
	return g.info
}

// HasExtension implements transfer.Graphics.
func (g *Graphics) HasExtension(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.extensions[name]
}

// CreateTexture implements transfer.Graphics.
func (g *Graphics) CreateTexture(spec transfer.TextureSpec) (transfer.TextureID, error) {
	if spec.Width <= 0 || spec.Height <= 0 {
		return 0, fmt.Errorf("transfertest: invalid texture size %dx%d", spec.Width, spec.Height)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	id := transfer.TextureID(g.newID())
	g.textures[id] = &memTexture{
		spec: spec,
		data: make([]byte, spec.Width*spec.Height*spec.Format.BytesPerTexel()),
	}
	g.created++
	return id, nil
}

// DestroyTexture implements transfer.Graphics.
func (g *Graphics) DestroyTexture(id transfer.TextureID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.textures[id]; ok {
		delete(g.textures, id)
		g.destroyed++
	}
}

// CreateBuffer implements transfer.Graphics.
func (g *Graphics) CreateBuffer(_ string, size int) (transfer.BufferID, error) {
	if size <= 0 {
		return 0, fmt.Errorf("transfertest: invalid buffer size %d", size)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	id := transfer.BufferID(g.newID())
	g.buffers[id] = &memBuffer{data: make([]byte, size)}
	g.created++
	return id, nil
}

// ImportHostBuffer implements transfer.HostBufferImporter. The buffer
// aliases mem; no bytes are copied.
func (g *Graphics) ImportHostBuffer(_ string, mem []byte) (transfer.BufferID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.extensions[transfer.ExtPinnedMemory] {
		return 0, transfer.ErrUnsupported
	}
	id := transfer.BufferID(g.newID())
	g.buffers[id] = &memBuffer{data: mem, imported: true}
	g.created++
	return id, nil
}

// DestroyBuffer implements transfer.Graphics.
func (g *Graphics) DestroyBuffer(id transfer.BufferID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.buffers[id]; ok {
		delete(g.buffers, id)
		g.destroyed++
	}
}

// WriteBuffer implements transfer.Graphics.
func (g *Graphics) WriteBuffer(id transfer.BufferID, offset int, data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.buffers[id]
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrNotFound, id)
	}
	if offset < 0 || offset+len(data) > len(b.data) {
		return fmt.Errorf("transfertest: write %d bytes at %d overflows buffer of %d", len(data), offset, len(b.data))
	}
	copy(b.data[offset:], data)
	return nil
}

// CopyPitchAlignment implements transfer.Graphics.
func (g *Graphics) CopyPitchAlignment() int {
	return g.align
}

// UploadTexture implements transfer.Graphics.
func (g *Graphics) UploadTexture(src transfer.BufferID, dst transfer.TextureID, r transfer.Region) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailUploads {
		return errors.New("transfertest: upload failure injected")
	}
	b, ok := g.buffers[src]
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrNotFound, src)
	}
	t, ok := g.textures[dst]
	if !ok {
		return fmt.Errorf("%w: texture %d", ErrNotFound, dst)
	}
	return g.copyRowsLocked(t, b.data, r)
}

func (g *Graphics) copyRowsLocked(t *memTexture, src []byte, r transfer.Region) error {
	rowBytes := t.spec.Width * t.spec.Format.BytesPerTexel()
	n := r.Width * t.spec.Format.BytesPerTexel()
	if r.Width > t.spec.Width || r.OriginY < 0 || r.OriginY+r.Height > t.spec.Height {
		return fmt.Errorf("transfertest: region %+v outside texture %dx%d", r, t.spec.Width, t.spec.Height)
	}
	if (r.Height-1)*r.BytesPerRow+n > len(src) {
		return fmt.Errorf("transfertest: region %+v overruns source of %d bytes", r, len(src))
	}
	for row := 0; row < r.Height; row++ {
		dst := t.data[(r.OriginY+row)*rowBytes:]
		copy(dst[:n], src[row*r.BytesPerRow:row*r.BytesPerRow+n])
	}
	g.uploads++
	return nil
}

// InsertFence implements transfer.Graphics.
func (g *Graphics) InsertFence() (transfer.FenceID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := transfer.FenceID(g.newID())
	g.fences[id] = true
	return id, nil
}

// WaitFence implements transfer.Graphics.
func (g *Graphics) WaitFence(id transfer.FenceID, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.fences[id] {
		return false, fmt.Errorf("%w: fence %d", ErrNotFound, id)
	}
	return !g.StallFences, nil
}

// DestroyFence implements transfer.Graphics.
func (g *Graphics) DestroyFence(id transfer.FenceID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.fences, id)
}

// NativeTexture implements transfer.NativeTextureExporter. The native name
// equals the texture ID.
func (g *Graphics) NativeTexture(id transfer.TextureID) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.textures[id]; !ok {
		return 0, fmt.Errorf("%w: texture %d", ErrNotFound, id)
	}
	return uint64(id), nil
}

// ReadTexture implements transfer.TextureReader.
func (g *Graphics) ReadTexture(id transfer.TextureID) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.textures[id]
	if !ok {
		return nil, fmt.Errorf("%w: texture %d", ErrNotFound, id)
	}
	out := make([]byte, len(t.data))
	copy(out, t.data)
	return out, nil
}

// writeNative copies rows into the texture with the given native name.
// Used by DMA.
func (g *Graphics) writeNative(native uint64, src []byte, stride, startLine, numLines int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.textures[transfer.TextureID(native)]
	if !ok {
		return fmt.Errorf("%w: native texture %d", ErrNotFound, native)
	}
	r := transfer.Region{OriginY: startLine, Width: t.spec.Width, Height: numLines, BytesPerRow: stride}
	return g.copyRowsLocked(t, src[startLine*stride:], r)
}

// Stats reports live resources and the number of texture uploads.
type Stats struct {
	Textures  int
	Buffers   int
	Fences    int
	Uploads   int
	Created   int
	Destroyed int
}

// Stats returns resource counters.
func (g *Graphics) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{
		Textures:  len(g.textures),
		Buffers:   len(g.buffers),
		Fences:    len(g.fences),
		Uploads:   g.uploads,
		Created:   g.created,
		Destroyed: g.destroyed,
	}
}

var (
	_ transfer.Graphics              = (*Graphics)(nil)
	_ transfer.HostBufferImporter    = (*Graphics)(nil)
	_ transfer.NativeTextureExporter = (*Graphics)(nil)
	_ transfer.TextureReader         = (*Graphics)(nil)
)
