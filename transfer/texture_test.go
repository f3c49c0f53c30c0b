// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package transfer_test

import (
	"errors"
	"testing"

	"github.com/gogpu/gg-capture/transfer"
	"github.com/gogpu/gg-capture/transfer/transfertest"
)

func TestDescriptorCompleteFromRowBytes(t *testing.T) {
	d := transfer.TextureDescriptor{Height: 1080, Layout: transfer.TexelRGBA8, Component: transfer.ComponentPacked12}
	if d.Complete() {
		t.Fatal("descriptor without stride reports complete")
	}
	d.CompleteFromRowBytes(6912)
	if !d.Complete() {
		t.Fatal("descriptor incomplete after observing row bytes")
	}
	if d.Width != 1728 || d.ByteSize != 6912*1080 {
		t.Errorf("got width %d size %d", d.Width, d.ByteSize)
	}

	// A complete descriptor is not changed.
	d.CompleteFromRowBytes(100)
	if d.StrideBytes != 6912 {
		t.Errorf("stride changed to %d", d.StrideBytes)
	}
}

func TestTextureEnsure(t *testing.T) {
	gfx := transfertest.NewGraphics()
	tex := transfer.NewTexture("video")
	if tex.Allocated() {
		t.Fatal("new texture is allocated")
	}

	d := testDesc(16, 8)
	tests := []struct {
		name    string
		mutate  func(*transfer.TextureDescriptor)
		realloc bool
	}{
		{"first", func(*transfer.TextureDescriptor) {}, true},
		{"same", func(*transfer.TextureDescriptor) {}, false},
		{"component only", func(d *transfer.TextureDescriptor) { d.Component = transfer.ComponentUInt2101010 }, false},
		{"stereo", func(d *transfer.TextureDescriptor) { d.Stereo = true }, true},
		{"wider", func(d *transfer.TextureDescriptor) { d.Width, d.StrideBytes = 32, 128 }, true},
	}
	for _, tt := range tests {
		tt.mutate(&d)
		d.ByteSize = d.StrideBytes * d.Height
		got, err := tex.Ensure(gfx, d)
		if err != nil {
			t.Fatalf("%s: Ensure: %v", tt.name, err)
		}
		if got != tt.realloc {
			t.Errorf("%s: reallocated = %v, want %v", tt.name, got, tt.realloc)
		}
	}
	if st := gfx.Stats(); st.Textures != 1 {
		t.Errorf("%d live textures, want 1", st.Textures)
	}

	tex.Release(gfx)
	tex.Release(gfx)
	if st := gfx.Stats(); st.Textures != 0 {
		t.Errorf("%d live textures after Release", st.Textures)
	}
	if _, err := tex.Ensure(gfx, d); !errors.Is(err, transfer.ErrTextureReleased) {
		t.Errorf("Ensure after Release = %v, want ErrTextureReleased", err)
	}
}
