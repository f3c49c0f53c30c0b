// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package transfer

import (
	"fmt"
	"time"
)

// ExtPinnedMemory is the extension name a Graphics implementation advertises
// when it can wrap pinned host memory as a GPU-visible buffer.
const ExtPinnedMemory = "GL_AMD_pinned_memory"

// TextureID, BufferID and FenceID are opaque resource handles issued by a
// Graphics implementation. Zero is invalid.
type (
	TextureID uint64
	BufferID  uint64
	FenceID   uint64
)

// TexelFormat is the GPU texel layout a frame is uploaded as.
type TexelFormat uint8

const (
	// TexelRGBA8 is four 8-bit components per texel. Packed YUV and packed
	// 10/12-bit formats are uploaded as raw 32-bit words in this format.
	TexelRGBA8 TexelFormat = iota

	// TexelBGRA8 is four 8-bit components in BGRA order.
	TexelBGRA8
)

// String returns a human-readable name for the format.
func (f TexelFormat) String() string {
	switch f {
	case TexelRGBA8:
		return "RGBA8"
	case TexelBGRA8:
		return "BGRA8"
	default:
		return fmt.Sprintf("TexelFormat(%d)", uint8(f))
	}
}

// BytesPerTexel returns the size of one texel in bytes.
func (f TexelFormat) BytesPerTexel() int {
	return 4
}

// ComponentType describes how the bits of a texel are to be interpreted by
// the shader that samples the texture.
type ComponentType uint8

const (
	// ComponentUnsignedByte is one byte per component.
	ComponentUnsignedByte ComponentType = iota

	// ComponentUInt2101010 is 10-bit components packed in a 32-bit word.
	ComponentUInt2101010

	// ComponentPacked12 is 12-bit components packed across 32-bit words.
	ComponentPacked12
)

// String returns a human-readable name for the component type.
func (c ComponentType) String() string {
	switch c {
	case ComponentUnsignedByte:
		return "UnsignedByte"
	case ComponentUInt2101010:
		return "UInt2101010"
	case ComponentPacked12:
		return "Packed12"
	default:
		return fmt.Sprintf("ComponentType(%d)", uint8(c))
	}
}

// AdapterInfo identifies the GPU behind a Graphics implementation.
type AdapterInfo struct {
	// Vendor is the GPU vendor name, e.g. "NVIDIA Corporation".
	Vendor string

	// Renderer is the GPU product string, e.g. "Quadro RTX 5000/PCIe/SSE2".
	Renderer string
}

// TextureSpec describes the storage of a destination texture.
type TextureSpec struct {
	Label  string
	Width  int
	Height int
	Format TexelFormat
}

// Region is a row range of a texture written by one upload.
type Region struct {
	// OriginY is the first destination row.
	OriginY int

	// Width and Height are the region size in texels.
	Width  int
	Height int

	// BytesPerRow is the source row pitch.
	BytesPerRow int
}

// Graphics is the GPU capability surface the transfer strategies drive.
//
// All methods are called from the render goroutine only.
type Graphics interface {
	// AdapterInfo returns the vendor and renderer strings.
	AdapterInfo() AdapterInfo

	// HasExtension reports whether the driver advertises the named extension.
	HasExtension(name string) bool

	// CreateTexture allocates texture storage.
	CreateTexture(spec TextureSpec) (TextureID, error)

	// DestroyTexture releases a texture. Unknown IDs are ignored.
	DestroyTexture(id TextureID)

	// CreateBuffer allocates a GPU-side upload buffer of size bytes.
	CreateBuffer(label string, size int) (BufferID, error)

	// DestroyBuffer releases a buffer. Unknown IDs are ignored.
	DestroyBuffer(id BufferID)

	// WriteBuffer copies data into a buffer at offset.
	WriteBuffer(id BufferID, offset int, data []byte) error

	// CopyPitchAlignment returns the required row pitch alignment in bytes
	// for buffer-to-texture copies.
	CopyPitchAlignment() int

	// UploadTexture copies region rows from a buffer into a texture. Source
	// rows are read at the buffer's pitch: region.BytesPerRow.
	UploadTexture(src BufferID, dst TextureID, region Region) error

	// InsertFence returns a fence signaled once all previously issued
	// commands have completed.
	InsertFence() (FenceID, error)

	// WaitFence blocks until the fence is signaled or timeout elapses.
	// It returns false on timeout.
	WaitFence(id FenceID, timeout time.Duration) (bool, error)

	// DestroyFence releases a fence.
	DestroyFence(id FenceID)
}

// HostBufferImporter is implemented by Graphics backends that can wrap pinned
// host memory as a GPU buffer without copying it. Backends implementing it
// should advertise ExtPinnedMemory.
type HostBufferImporter interface {
	// ImportHostBuffer creates a buffer backed by mem. mem must stay valid
	// and pinned until the buffer is destroyed.
	ImportHostBuffer(label string, mem []byte) (BufferID, error)
}

// NativeTextureExporter is implemented by Graphics backends whose textures
// can be handed to a hardware DMA engine.
type NativeTextureExporter interface {
	// NativeTexture returns the driver-level texture name.
	NativeTexture(id TextureID) (uint64, error)
}

// TextureReader is implemented by Graphics backends that support texture
// readback.
type TextureReader interface {
	// ReadTexture returns tightly packed texel rows of the whole texture.
	ReadTexture(id TextureID) ([]byte, error)
}
