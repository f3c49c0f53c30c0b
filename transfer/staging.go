// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package transfer

import (
	"fmt"

	"github.com/gogpu/gg-capture/internal/pinned"
)

// stagingBinding owns a GPU upload buffer sized for one full frame.
type stagingBinding struct {
	buf   BufferID
	pitch int // staging row pitch, aligned for buffer-to-texture copies
}

func bindStaging(p Params) (*stagingBinding, error) {
	pitch := alignUp(p.Desc.StrideBytes, p.Graphics.CopyPitchAlignment())
	buf, err := p.Graphics.CreateBuffer("capture_staging", pitch*p.Desc.Height)
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	return &stagingBinding{buf: buf, pitch: pitch}, nil
}

// perform copies host rows into the staging buffer, then uploads from it.
// Rows are written one by one only when the copy pitch differs from the
// source stride.
func (s *stagingBinding) perform(gfx Graphics, mem *pinned.Buffer, tex TextureID, region Region) error {
	src := mem.Bytes()
	if src == nil {
		return pinned.ErrFreed
	}
	stride := region.BytesPerRow
	if need := stride * region.Height; need > len(src) {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrGeometryMismatch, need, len(src))
	}

	if s.pitch == stride {
		if err := gfx.WriteBuffer(s.buf, 0, src[:stride*region.Height]); err != nil {
			return fmt.Errorf("write staging buffer: %w", err)
		}
	} else {
		for row := 0; row < region.Height; row++ {
			line := src[row*stride : (row+1)*stride]
			if err := gfx.WriteBuffer(s.buf, row*s.pitch, line); err != nil {
				return fmt.Errorf("write staging row %d: %w", row, err)
			}
		}
	}

	region.BytesPerRow = s.pitch
	if err := gfx.UploadTexture(s.buf, tex, region); err != nil {
		return fmt.Errorf("upload from staging buffer: %w", err)
	}
	return nil
}

func (s *stagingBinding) destroy(gfx Graphics) {
	gfx.DestroyBuffer(s.buf)
}
