// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package device declares the contract between a hardware capture device and
// the gg-capture pipeline.
//
// The device itself (enumeration, open/enable/start/stop protocol, vendor
// SDK) is an external collaborator. This package only names the entry points
// the pipeline calls on the device and the entry points the device calls back
// into the pipeline:
//
//	device ──AllocateBuffer/ReleaseBuffer/Commit/Decommit──► Allocator
//	device ──FrameArrived/FormatChanged──────────────────────► Callback
//
// Both callback directions may run on the device's own delivery goroutine.
package device

import (
	"errors"
	"fmt"
)

// ErrOutOfMemory is returned by Allocator.AllocateBuffer when the buffer
// ceiling has been reached. Devices treat it as a signal to stop requesting
// speculative lookahead buffers.
var ErrOutOfMemory = errors.New("device: out of frame buffers")

// BufferHandle identifies one frame buffer handed out by an Allocator.
// Handles are never reused after the buffer is finalized. Zero is invalid.
type BufferHandle uint64

// String returns the handle in the form "buf#N".
func (h BufferHandle) String() string {
	return fmt.Sprintf("buf#%d", uint64(h))
}

// FrameFlags carries per-frame status bits reported by the device.
type FrameFlags uint32

const (
	// FrameHasNoInputSource is set when the device had no signal on its
	// input while producing the frame. Such frames are blank or stale.
	FrameHasNoInputSource FrameFlags = 1 << iota

	// FrameFlipVertical is set when rows are stored bottom-up.
	FrameFlipVertical
)

// Has reports whether all bits in f2 are set in f.
func (f FrameFlags) Has(f2 FrameFlags) bool {
	return f&f2 == f2
}

// Frame is one video frame delivered by the device.
//
// Frames are reference counted: the device creates them with one reference,
// drops it after FrameArrived returns, and reclaims the underlying buffer
// (via Allocator.ReleaseBuffer) when the count reaches zero.
type Frame interface {
	// AddRef takes a reference and returns the new count.
	AddRef() int32

	// Release drops a reference and returns the new count.
	Release() int32

	// Width returns the frame width in pixels.
	Width() int

	// Height returns the frame height in pixels.
	Height() int

	// RowBytes returns the number of bytes per row, including padding.
	RowBytes() int

	// Flags returns the device status bits for this frame.
	Flags() FrameFlags

	// Buffer returns the handle of the allocator buffer holding the pixels.
	Buffer() BufferHandle
}

// StereoFrame is implemented by frames captured in dual-stream (3D) mode.
type StereoFrame interface {
	Frame

	// RightEye returns the right-eye frame, or nil if the device delivered
	// only the left eye. The returned frame shares the lifetime of its
	// parent and must not be released separately.
	RightEye() Frame
}

// AudioPacket is the auxiliary audio payload delivered alongside frames.
// The pipeline never inspects it.
type AudioPacket interface {
	SampleFrameCount() int
}

// Allocator is the buffer lifecycle contract a device calls to obtain frame
// memory. Implementations must be safe for concurrent use.
type Allocator interface {
	// AllocateBuffer returns a writable buffer of at least size bytes.
	// It returns ErrOutOfMemory when no more buffers may be created.
	AllocateBuffer(size int) (BufferHandle, []byte, error)

	// ReleaseBuffer hands a buffer back to the allocator.
	ReleaseBuffer(h BufferHandle)

	// Commit is called before streaming starts.
	Commit() error

	// Decommit is called at stream teardown; cached buffers are dropped.
	Decommit() error
}

// Callback receives frame notifications from the device.
type Callback interface {
	// FrameArrived delivers a video frame and an audio packet. Either may be
	// nil. The callee must AddRef the frame to keep it past the call.
	FrameArrived(frame Frame, audio AudioPacket)

	// FormatChanged reports an input format change detected by the device.
	FormatChanged(mode DisplayMode, pixel PixelFormat)
}

// Device is the command surface of a capture device used by the pipeline.
type Device interface {
	// SetAllocator installs the frame buffer allocator. Must precede
	// EnableVideoInput.
	SetAllocator(a Allocator) error

	// SetCallback installs the frame notification sink.
	SetCallback(cb Callback) error

	// EnableVideoInput configures the video input.
	EnableVideoInput(mode DisplayMode, pixel PixelFormat, stereo bool) error

	// DisableVideoInput releases the video input configuration.
	DisableVideoInput() error

	// StartStreams begins frame delivery.
	StartStreams() error

	// StopStreams ends frame delivery. No FrameArrived call starts after
	// StopStreams returns.
	StopStreams() error
}
