// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package simdevice simulates a hardware capture device.
//
// The simulated device follows the device contract closely: it obtains frame
// memory from the installed allocator, delivers reference-counted frames on
// its own goroutine, releases its own reference after each callback, and
// hands buffers back once the last reference is dropped. Frames can also be
// delivered synchronously with Deliver, which tests use for exact control.
package simdevice

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gg-capture/device"
)

// Errors returned by Device.
var (
	ErrNotConfigured = errors.New("simdevice: allocator, callback or video input not configured")
	ErrRunning       = errors.New("simdevice: streams already running")
	ErrNotRunning    = errors.New("simdevice: streams not running")
)

// PatternFunc fills the pixels of one eye of frame seq.
type PatternFunc func(seq uint64, eye int, rowBytes int, pix []byte)

// DefaultPattern writes a byte ramp that shifts with seq and eye, so every
// frame differs from its neighbours.
func DefaultPattern(seq uint64, eye int, rowBytes int, pix []byte) {
	for i := range pix {
		y, x := i/rowBytes, i%rowBytes
		pix[i] = byte(x + 3*y + int(seq)*7 + eye*101)
	}
}

// Config configures a simulated device.
type Config struct {
	// Interval between frames delivered by the streaming goroutine. Zero
	// selects the display mode's frame duration; negative disables the
	// goroutine so frames are only delivered with Deliver.
	Interval time.Duration

	// Pattern fills frame pixels. Nil selects DefaultPattern.
	Pattern PatternFunc

	// AudioOnlyEvery makes the streaming goroutine send an audio-only
	// notification after every n frames. Zero disables it.
	AudioOnlyEvery int
}

// Device is a simulated capture device. It implements device.Device.
type Device struct {
	cfg Config

	mu      sync.Mutex
	alloc   device.Allocator
	cb      device.Callback
	mode    device.DisplayMode
	pixel   device.PixelFormat
	stereo  bool
	enabled bool
	running bool
	stop    chan struct{}
	done    chan struct{}

	noInput   atomic.Bool
	seq       atomic.Uint64
	live      atomic.Int64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// New returns a simulated device.
func New(cfg Config) *Device {
	if cfg.Pattern == nil {
		cfg.Pattern = DefaultPattern
	}
	return &Device{cfg: cfg}
}

// SetAllocator implements device.Device.
func (d *Device) SetAllocator(a device.Allocator) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrRunning
	}
	d.alloc = a
	return nil
}

// SetCallback implements device.Device.
func (d *Device) SetCallback(cb device.Callback) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrRunning
	}
	d.cb = cb
	return nil
}

// EnableVideoInput implements device.Device.
func (d *Device) EnableVideoInput(mode device.DisplayMode, pixel device.PixelFormat, stereo bool) error {
	if RowBytes(pixel, mode.Width) <= 0 {
		return fmt.Errorf("simdevice: unsupported pixel format %v", pixel)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrRunning
	}
	if d.alloc == nil {
		return ErrNotConfigured
	}
	d.mode, d.pixel, d.stereo, d.enabled = mode, pixel, stereo, true
	return nil
}

// DisableVideoInput implements device.Device. It decommits the allocator,
// as the hardware service does when the input is released.
func (d *Device) DisableVideoInput() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrRunning
	}
	d.enabled = false
	a := d.alloc
	d.mu.Unlock()
	if a != nil {
		return a.Decommit()
	}
	return nil
}

// StartStreams implements device.Device.
func (d *Device) StartStreams() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrRunning
	}
	if !d.enabled || d.cb == nil || d.alloc == nil {
		return ErrNotConfigured
	}
	if err := d.alloc.Commit(); err != nil {
		return fmt.Errorf("simdevice: commit allocator: %w", err)
	}
	d.running = true
	d.stop = make(chan struct{})
	d.done = make(chan struct{})

	interval := d.cfg.Interval
	if interval == 0 {
		interval = frameDuration(d.mode)
	}
	if interval < 0 {
		close(d.done)
		return nil
	}
	go d.stream(interval, d.stop, d.done)
	return nil
}

// StopStreams implements device.Device. It waits for the streaming
// goroutine, so no FrameArrived starts after it returns.
func (d *Device) StopStreams() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	close(d.stop)
	done := d.done
	d.mu.Unlock()

	<-done
	return nil
}

func (d *Device) stream(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	n := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_, _ = d.deliver()
			n++
			if every := d.cfg.AudioOnlyEvery; every > 0 && n%every == 0 {
				d.DeliverAudioOnly()
			}
		}
	}
}

// SetNoInput makes subsequent frames carry device.FrameHasNoInputSource.
func (d *Device) SetNoInput(v bool) {
	d.noInput.Store(v)
}

// Deliver produces one frame on the calling goroutine and returns its
// sequence number. Streams must be running.
func (d *Device) Deliver() (uint64, error) {
	d.mu.Lock()
	running := d.running
	d.mu.Unlock()
	if !running {
		return 0, ErrNotRunning
	}
	return d.deliver()
}

func (d *Device) deliver() (uint64, error) {
	d.mu.Lock()
	alloc, cb := d.alloc, d.cb
	mode, pixel, stereo := d.mode, d.pixel, d.stereo
	d.mu.Unlock()

	seq := d.seq.Add(1)
	rowBytes := RowBytes(pixel, mode.Width)
	var flags device.FrameFlags
	if d.noInput.Load() {
		flags |= device.FrameHasNoInputSource
	}

	left, err := d.newFrame(alloc, seq, 0, mode, rowBytes, flags)
	if err != nil {
		d.dropped.Add(1)
		return seq, err
	}
	if stereo {
		right, err := d.newFrame(alloc, seq, 1, mode, rowBytes, flags)
		if err != nil {
			left.Release()
			d.dropped.Add(1)
			return seq, err
		}
		left.right = right
	}

	cb.FrameArrived(left, audioPacket{samples: 1600})
	left.Release()
	d.delivered.Add(1)
	return seq, nil
}

func (d *Device) newFrame(alloc device.Allocator, seq uint64, eye int, mode device.DisplayMode, rowBytes int, flags device.FrameFlags) (*Frame, error) {
	h, mem, err := alloc.AllocateBuffer(rowBytes * mode.Height)
	if err != nil {
		return nil, err
	}
	d.cfg.Pattern(seq, eye, rowBytes, mem)
	f := &Frame{
		dev:      d,
		alloc:    alloc,
		handle:   h,
		mem:      mem,
		seq:      seq,
		width:    mode.Width,
		height:   mode.Height,
		rowBytes: rowBytes,
		flags:    flags,
	}
	f.refs.Store(1)
	d.live.Add(1)
	return f, nil
}

// DeliverAudioOnly sends a notification without a video frame.
func (d *Device) DeliverAudioOnly() {
	d.mu.Lock()
	cb := d.cb
	d.mu.Unlock()
	if cb != nil {
		cb.FrameArrived(nil, audioPacket{samples: 1600})
	}
}

// ChangeFormat reports a format change to the callback.
func (d *Device) ChangeFormat(mode device.DisplayMode, pixel device.PixelFormat) {
	d.mu.Lock()
	cb := d.cb
	d.mu.Unlock()
	if cb != nil {
		cb.FormatChanged(mode, pixel)
	}
}

// Stats reports delivered and dropped frames, and frames (per eye) whose
// buffers have not been handed back yet.
func (d *Device) Stats() (delivered, dropped uint64, live int64) {
	return d.delivered.Load(), d.dropped.Load(), d.live.Load()
}

// RowBytes returns the row size the simulated device uses for pixel at the
// given width. Formats whose stride the pipeline cannot derive up front
// get a packed 36-bit-per-pixel row rounded to 4 bytes.
func RowBytes(pixel device.PixelFormat, width int) int {
	if n := pixel.RowBytes(width); n > 0 {
		return n
	}
	switch pixel {
	case device.PixelFormat12BitRGB, device.PixelFormat12BitRGBLE:
		return ((width*36+7)/8 + 3) / 4 * 4
	}
	return 0
}

func frameDuration(m device.DisplayMode) time.Duration {
	if m.RateNum <= 0 || m.RateDen <= 0 {
		return time.Second / 60
	}
	return time.Duration(int64(time.Second) * int64(m.RateDen) / int64(m.RateNum))
}

var _ device.Device = (*Device)(nil)
