// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package simdevice

import (
	"sync/atomic"

	"github.com/gogpu/gg-capture/device"
)

// Frame is a simulated frame. It implements device.StereoFrame; RightEye
// is nil for mono capture.
type Frame struct {
	dev    *Device
	alloc  device.Allocator
	handle device.BufferHandle
	mem    []byte
	seq    uint64
	right  *Frame

	width, height, rowBytes int
	flags                   device.FrameFlags

	refs atomic.Int32
}

// AddRef implements device.Frame.
func (f *Frame) AddRef() int32 {
	return f.refs.Add(1)
}

// Release implements device.Frame. Dropping the last reference hands the
// buffers of both eyes back to the allocator.
func (f *Frame) Release() int32 {
	n := f.refs.Add(-1)
	if n == 0 {
		f.giveBack()
		if f.right != nil {
			f.right.giveBack()
		}
	}
	return n
}

func (f *Frame) giveBack() {
	f.alloc.ReleaseBuffer(f.handle)
	f.dev.live.Add(-1)
}

// Refs returns the current reference count.
func (f *Frame) Refs() int32 {
	return f.refs.Load()
}

// Width implements device.Frame.
func (f *Frame) Width() int { return f.width }

// Height implements device.Frame.
func (f *Frame) Height() int { return f.height }

// RowBytes implements device.Frame.
func (f *Frame) RowBytes() int { return f.rowBytes }

// Flags implements device.Frame.
func (f *Frame) Flags() device.FrameFlags { return f.flags }

// Buffer implements device.Frame.
func (f *Frame) Buffer() device.BufferHandle { return f.handle }

// Seq returns the delivery sequence number.
func (f *Frame) Seq() uint64 { return f.seq }

// Bytes returns the pixel memory of the frame.
func (f *Frame) Bytes() []byte { return f.mem }

// RightEye implements device.StereoFrame.
func (f *Frame) RightEye() device.Frame {
	if f.right == nil {
		return nil
	}
	return f.right
}

type audioPacket struct {
	samples int
}

func (p audioPacket) SampleFrameCount() int { return p.samples }

var _ device.StereoFrame = (*Frame)(nil)
