// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package transfer

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gg-capture/internal/pinned"
)

// Transfer errors.
var (
	// ErrUnsupported is returned by Bind when the requested kind cannot be
	// used with the given graphics backend.
	ErrUnsupported = errors.New("transfer: strategy not supported by graphics backend")

	// ErrPinFailed is returned by Bind when host memory could not be pinned.
	ErrPinFailed = errors.New("transfer: pin host memory failed")

	// ErrGeometryMismatch is returned when a frame does not fit the buffer
	// or the texture.
	ErrGeometryMismatch = errors.New("transfer: frame geometry mismatch")

	// ErrFenceTimeout is returned when the GPU did not finish an upload in
	// time. The texture content is undefined for that frame.
	ErrFenceTimeout = errors.New("transfer: fence wait timed out")

	// ErrBindingDestroyed is returned when using a destroyed binding.
	ErrBindingDestroyed = errors.New("transfer: binding destroyed")
)

// DefaultFenceTimeout bounds GPU completion waits.
const DefaultFenceTimeout = 250 * time.Millisecond

// Kind selects the mechanism that moves frame bytes into a texture.
type Kind uint8

const (
	// KindStaging copies host memory into a GPU staging buffer, then
	// uploads from it. Always available.
	KindStaging Kind = iota

	// KindPinnedUpload wraps pinned host memory as a GPU buffer and uploads
	// from it without an intermediate copy.
	KindPinnedUpload

	// KindDirectDMA has a hardware DMA engine copy lines from host memory
	// straight into the texture.
	KindDirectDMA

	kindCount
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindStaging:
		return "staging"
	case KindPinnedUpload:
		return "pinned"
	case KindDirectDMA:
		return "dma"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// KindCount is the number of strategy kinds.
const KindCount = int(kindCount)

// Params are the inputs for Bind.
type Params struct {
	// Graphics is the GPU surface. Required.
	Graphics Graphics

	// DMA is the hardware DMA engine. Required for KindDirectDMA.
	DMA DMAEngine

	// Memory is the host frame buffer. Required.
	Memory *pinned.Buffer

	// Texture is the destination. It must be allocated.
	Texture *Texture

	// Desc is the frame layout.
	Desc TextureDescriptor

	// FenceTimeout bounds GPU completion waits. Zero selects DefaultFenceTimeout.
	FenceTimeout time.Duration
}

// Binding associates one host frame buffer with the GPU resources prepared
// to upload it into one texture. Bindings are created once per buffer and
// reused for every frame delivered in that buffer.
//
// A Binding is owned by the render goroutine.
type Binding struct {
	kind         Kind
	gfx          Graphics
	mem          *pinned.Buffer
	texID        TextureID
	texHeight    int
	desc         TextureDescriptor
	fenceTimeout time.Duration

	dma     *dmaBinding
	pinned  *pinnedBinding
	staging *stagingBinding

	transfers uint64
	destroyed bool
}

// Bind prepares a binding of the given kind. On failure no resources are
// left allocated.
func Bind(kind Kind, p Params) (*Binding, error) {
	if p.Graphics == nil || p.Memory == nil || p.Texture == nil || !p.Texture.Allocated() {
		return nil, fmt.Errorf("transfer: bind %s: missing graphics, memory or texture", kind)
	}
	if !p.Desc.Complete() {
		return nil, ErrIncompleteDescriptor
	}
	if p.Desc.ByteSize > p.Memory.Size() {
		return nil, fmt.Errorf("%w: frame %d bytes, buffer %d bytes", ErrGeometryMismatch, p.Desc.ByteSize, p.Memory.Size())
	}
	timeout := p.FenceTimeout
	if timeout <= 0 {
		timeout = DefaultFenceTimeout
	}

	b := &Binding{
		kind:         kind,
		gfx:          p.Graphics,
		mem:          p.Memory,
		texID:        p.Texture.ID(),
		texHeight:    p.Texture.Descriptor().TextureHeight(),
		desc:         p.Desc,
		fenceTimeout: timeout,
	}

	var err error
	switch kind {
	case KindDirectDMA:
		b.dma, err = bindDMA(p, b.texID)
	case KindPinnedUpload:
		b.pinned, err = bindPinned(p)
	case KindStaging:
		b.staging, err = bindStaging(p)
	default:
		err = fmt.Errorf("%w: unknown kind %d", ErrUnsupported, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("transfer: bind %s: %w", kind, err)
	}

	slogger().Debug("transfer: binding created", "kind", kind.String(), "bytes", p.Desc.ByteSize, "texture", uint64(b.texID))
	return b, nil
}

// Kind returns the strategy of the binding.
func (b *Binding) Kind() Kind {
	return b.kind
}

// TextureID returns the texture the binding was prepared for.
func (b *Binding) TextureID() TextureID {
	return b.texID
}

// Transfers returns the number of successful transfers.
func (b *Binding) Transfers() uint64 {
	return b.transfers
}

// Matches reports whether the binding can serve the texture and descriptor.
func (b *Binding) Matches(tex *Texture, desc TextureDescriptor) bool {
	return !b.destroyed && tex.ID() == b.texID && b.desc == desc
}

// PerformTransfer uploads the buffer's current content into the texture,
// starting at destination row originY. On error the texture content for
// this frame is undefined and the caller should skip the frame.
func (b *Binding) PerformTransfer(originY int) error {
	if b.destroyed {
		return ErrBindingDestroyed
	}
	if originY < 0 || originY+b.desc.Height > b.texHeight {
		return fmt.Errorf("%w: rows %d..%d outside texture height %d", ErrGeometryMismatch, originY, originY+b.desc.Height, b.texHeight)
	}
	region := Region{
		OriginY:     originY,
		Width:       b.desc.Width,
		Height:      b.desc.Height,
		BytesPerRow: b.desc.StrideBytes,
	}

	var err error
	switch b.kind {
	case KindDirectDMA:
		err = b.dma.perform(region, b.fenceTimeout)
	case KindPinnedUpload:
		err = b.pinned.perform(b.gfx, b.texID, region, b.fenceTimeout)
	case KindStaging:
		err = b.staging.perform(b.gfx, b.mem, b.texID, region)
	}
	if err != nil {
		return fmt.Errorf("transfer: %s: %w", b.kind, err)
	}
	b.transfers++
	return nil
}

// Destroy releases the GPU resources of the binding. The host memory is
// not freed. Destroy is idempotent.
func (b *Binding) Destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true
	switch b.kind {
	case KindDirectDMA:
		b.dma.destroy()
	case KindPinnedUpload:
		b.pinned.destroy(b.gfx)
	case KindStaging:
		b.staging.destroy(b.gfx)
	}
}

// alignUp rounds n up to a multiple of align (align > 0).
func alignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}
