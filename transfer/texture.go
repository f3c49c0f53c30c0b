// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package transfer

import (
	"errors"
	"fmt"
)

// Texture-related errors.
var (
	// ErrIncompleteDescriptor is returned when a descriptor's stride is
	// still unknown.
	ErrIncompleteDescriptor = errors.New("transfer: texture descriptor incomplete")

	// ErrTextureReleased is returned when uploading into a released texture.
	ErrTextureReleased = errors.New("transfer: texture has been released")
)

// TextureDescriptor describes the memory layout of one captured frame and
// the texture it is uploaded into.
type TextureDescriptor struct {
	// Width is the frame width in texels (StrideBytes / 4).
	Width int

	// Height is the frame height in rows (one eye).
	Height int

	// StrideBytes is the number of bytes per source row. Zero means unknown
	// until the first frame arrives.
	StrideBytes int

	// ByteSize is StrideBytes * Height.
	ByteSize int

	// Layout is the texel layout of the texture.
	Layout TexelFormat

	// Component is how texel bits are interpreted.
	Component ComponentType

	// Stereo doubles the texture height; the right eye occupies the lower half.
	Stereo bool
}

// Complete reports whether the stride is known.
func (d TextureDescriptor) Complete() bool {
	return d.StrideBytes > 0 && d.Height > 0
}

// CompleteFromRowBytes fills in an unknown stride from an observed frame row
// size. It is a no-op on a complete descriptor.
func (d *TextureDescriptor) CompleteFromRowBytes(rowBytes int) {
	if d.StrideBytes > 0 || rowBytes <= 0 {
		return
	}
	d.StrideBytes = rowBytes
	d.ByteSize = rowBytes * d.Height
	d.Width = rowBytes / d.Layout.BytesPerTexel()
}

// TextureHeight returns the texture height in rows, accounting for stereo.
func (d TextureDescriptor) TextureHeight() int {
	if d.Stereo {
		return d.Height * 2
	}
	return d.Height
}

// Spec returns the texture storage spec for this descriptor.
func (d TextureDescriptor) Spec(label string) TextureSpec {
	return TextureSpec{Label: label, Width: d.Width, Height: d.TextureHeight(), Format: d.Layout}
}

// String returns a compact description.
func (d TextureDescriptor) String() string {
	s := fmt.Sprintf("%dx%d stride=%d size=%d %s/%s", d.Width, d.Height, d.StrideBytes, d.ByteSize, d.Layout, d.Component)
	if d.Stereo {
		s += " stereo"
	}
	return s
}

// Texture is the destination of frame uploads. Its storage is allocated
// lazily by the first transfer that targets it.
//
// Texture is owned by the render goroutine and is not safe for concurrent use.
type Texture struct {
	label    string
	id       TextureID
	desc     TextureDescriptor
	released bool
}

// NewTexture returns an unallocated texture.
func NewTexture(label string) *Texture {
	return &Texture{label: label}
}

// ID returns the GPU texture handle, or 0 if storage is not allocated.
func (t *Texture) ID() TextureID {
	return t.id
}

// Allocated reports whether texture storage exists.
func (t *Texture) Allocated() bool {
	return t.id != 0
}

// Descriptor returns the descriptor the storage was allocated for.
func (t *Texture) Descriptor() TextureDescriptor {
	return t.desc
}

// Ensure allocates storage for desc, reallocating if the size or layout
// changed. It reports whether storage was (re)allocated.
func (t *Texture) Ensure(gfx Graphics, desc TextureDescriptor) (bool, error) {
	if t.released {
		return false, ErrTextureReleased
	}
	if !desc.Complete() {
		return false, ErrIncompleteDescriptor
	}
	if t.id != 0 && t.desc.Width == desc.Width && t.desc.TextureHeight() == desc.TextureHeight() && t.desc.Layout == desc.Layout {
		t.desc = desc
		return false, nil
	}
	if t.id != 0 {
		gfx.DestroyTexture(t.id)
		t.id = 0
	}
	id, err := gfx.CreateTexture(desc.Spec(t.label))
	if err != nil {
		return false, fmt.Errorf("transfer: create texture %s: %w", desc, err)
	}
	t.id = id
	t.desc = desc
	slogger().Debug("transfer: texture allocated", "label", t.label, "desc", desc.String())
	return true, nil
}

// Release destroys the texture storage. The texture cannot be reused.
func (t *Texture) Release(gfx Graphics) {
	if t.released {
		return
	}
	if t.id != 0 {
		gfx.DestroyTexture(t.id)
		t.id = 0
	}
	t.released = true
}
