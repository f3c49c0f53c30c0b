// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package transfer

import (
	"fmt"
	"time"
)

// pinnedBinding wraps the pinned frame memory itself as a GPU buffer.
type pinnedBinding struct {
	buf BufferID
}

func bindPinned(p Params) (*pinnedBinding, error) {
	importer, ok := p.Graphics.(HostBufferImporter)
	if !ok || !p.Graphics.HasExtension(ExtPinnedMemory) {
		return nil, ErrUnsupported
	}
	if align := p.Graphics.CopyPitchAlignment(); p.Desc.StrideBytes%align != 0 {
		return nil, fmt.Errorf("%w: stride %d not a multiple of %d", ErrUnsupported, p.Desc.StrideBytes, align)
	}
	if err := p.Memory.Pin(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPinFailed, err)
	}
	buf, err := importer.ImportHostBuffer("capture_pinned", p.Memory.Bytes())
	if err != nil {
		return nil, fmt.Errorf("import pinned memory: %w", err)
	}
	return &pinnedBinding{buf: buf}, nil
}

// perform uploads straight from the pinned buffer and waits for the GPU to
// finish reading it, so the device may refill the memory afterwards.
func (pb *pinnedBinding) perform(gfx Graphics, tex TextureID, region Region, timeout time.Duration) error {
	if err := gfx.UploadTexture(pb.buf, tex, region); err != nil {
		return fmt.Errorf("upload from pinned buffer: %w", err)
	}
	fence, err := gfx.InsertFence()
	if err != nil {
		return fmt.Errorf("insert fence: %w", err)
	}
	defer gfx.DestroyFence(fence)

	ok, err := gfx.WaitFence(fence, timeout)
	if err != nil {
		return fmt.Errorf("wait fence: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w after %v", ErrFenceTimeout, timeout)
	}
	return nil
}

func (pb *pinnedBinding) destroy(gfx Graphics) {
	gfx.DestroyBuffer(pb.buf)
}
