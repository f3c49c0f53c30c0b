//go:build !nogpu

// Package native implements transfer.Graphics on the gogpu/wgpu hardware
// abstraction layer.
//
// Uploads go through GPU buffers and buffer-to-texture copies, so the
// backend serves the staging strategy. Completion is tracked with one
// timeline fence per Graphics: every submission signals the next value,
// and a transfer fence is simply the value of the latest submission.
package native

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gg-capture/transfer"
)

// CopyPitchAlignment is the row pitch alignment buffer-to-texture copies
// require.
const CopyPitchAlignment = 256

// readbackTimeout bounds the GPU wait of ReadTexture.
const readbackTimeout = 5 * time.Second

type texture struct {
	raw  hal.Texture
	spec transfer.TextureSpec
}

type buffer struct {
	raw  hal.Buffer
	size int
}

type pendingCommands struct {
	cmd    hal.CommandBuffer
	serial uint64
}

// Graphics is a transfer.Graphics on a HAL device and queue.
//
// Like every transfer.Graphics it is driven from the render goroutine; the
// mutex only protects the resource maps against Stats and Close.
type Graphics struct {
	mu     sync.Mutex
	logger *slog.Logger
	device hal.Device
	queue  hal.Queue
	info   transfer.AdapterInfo

	// release tears down what Open created; nil for provider devices.
	release func()

	timeline hal.Fence
	serial   uint64 // last submitted timeline value
	pending  []pendingCommands

	nextID   uint64
	textures map[transfer.TextureID]*texture
	buffers  map[transfer.BufferID]*buffer
	fences   map[transfer.FenceID]uint64
	closed   bool
}

func newGraphics(device hal.Device, queue hal.Queue, info transfer.AdapterInfo, release func()) (*Graphics, error) {
	timeline, err := device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("native: create fence: %w", err)
	}
	return &Graphics{
		logger:   slog.New(nopHandler{}),
		device:   device,
		queue:    queue,
		info:     info,
		release:  release,
		timeline: timeline,
		textures: make(map[transfer.TextureID]*texture),
		buffers:  make(map[transfer.BufferID]*buffer),
		fences:   make(map[transfer.FenceID]uint64),
	}, nil
}

// SetLogger sets the backend logger. Nil restores silence.
func (g *Graphics) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	g.mu.Lock()
	g.logger = l
	g.mu.Unlock()
}

func (g *Graphics) newIDLocked() uint64 {
	g.nextID++
	return g.nextID
}

// AdapterInfo implements transfer.Graphics.
func (g *Graphics) AdapterInfo() transfer.AdapterInfo {
	return g.info
}

// HasExtension implements transfer.Graphics. The HAL exposes no host
// memory import, so no extension is advertised.
func (g *Graphics) HasExtension(string) bool {
	return false
}

func texelFormat(f transfer.TexelFormat) gputypes.TextureFormat {
	if f == transfer.TexelBGRA8 {
		return gputypes.TextureFormatBGRA8Unorm
	}
	return gputypes.TextureFormatRGBA8Unorm
}

// CreateTexture implements transfer.Graphics.
func (g *Graphics) CreateTexture(spec transfer.TextureSpec) (transfer.TextureID, error) {
	if spec.Width <= 0 || spec.Height <= 0 {
		return 0, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, spec.Width, spec.Height)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0, ErrClosed
	}
	raw, err := g.device.CreateTexture(&hal.TextureDescriptor{
		Label:         spec.Label,
		Size:          hal.Extent3D{Width: uint32(spec.Width), Height: uint32(spec.Height), DepthOrArrayLayers: 1}, //nolint:gosec // validated positive
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        texelFormat(spec.Format),
		Usage:         gputypes.TextureUsageCopyDst | gputypes.TextureUsageCopySrc | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		return 0, fmt.Errorf("native: create texture %s: %w", spec.Label, err)
	}
	id := transfer.TextureID(g.newIDLocked())
	g.textures[id] = &texture{raw: raw, spec: spec}
	g.logger.Debug("native: texture created", "id", id, "width", spec.Width, "height", spec.Height, "format", spec.Format.String())
	return id, nil
}

// DestroyTexture implements transfer.Graphics.
func (g *Graphics) DestroyTexture(id transfer.TextureID) {
	g.mu.Lock()
	t, ok := g.textures[id]
	delete(g.textures, id)
	g.mu.Unlock()
	if ok {
		g.device.DestroyTexture(t.raw)
	}
}

// CreateBuffer implements transfer.Graphics.
func (g *Graphics) CreateBuffer(label string, size int) (transfer.BufferID, error) {
	if size <= 0 {
		return 0, fmt.Errorf("%w: buffer of %d bytes", ErrInvalidDimensions, size)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0, ErrClosed
	}
	raw, err := g.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(size),
		Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return 0, fmt.Errorf("native: create buffer %s: %w", label, err)
	}
	id := transfer.BufferID(g.newIDLocked())
	g.buffers[id] = &buffer{raw: raw, size: size}
	return id, nil
}

// DestroyBuffer implements transfer.Graphics.
func (g *Graphics) DestroyBuffer(id transfer.BufferID) {
	g.mu.Lock()
	b, ok := g.buffers[id]
	delete(g.buffers, id)
	g.mu.Unlock()
	if ok {
		g.device.DestroyBuffer(b.raw)
	}
}

// WriteBuffer implements transfer.Graphics.
func (g *Graphics) WriteBuffer(id transfer.BufferID, offset int, data []byte) error {
	g.mu.Lock()
	b, ok := g.buffers[id]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrNotFound, id)
	}
	if offset < 0 || offset+len(data) > b.size {
		return fmt.Errorf("%w: write of %d bytes at %d into %d", ErrOutOfRange, len(data), offset, b.size)
	}
	g.queue.WriteBuffer(b.raw, uint64(offset), data) //nolint:gosec // checked non-negative
	return nil
}

// CopyPitchAlignment implements transfer.Graphics.
func (g *Graphics) CopyPitchAlignment() int {
	return CopyPitchAlignment
}

// UploadTexture implements transfer.Graphics. The copy is recorded and
// submitted at once; completion is observed through InsertFence.
func (g *Graphics) UploadTexture(src transfer.BufferID, dst transfer.TextureID, r transfer.Region) error {
	g.mu.Lock()
	b, okB := g.buffers[src]
	t, okT := g.textures[dst]
	g.mu.Unlock()
	if !okB {
		return fmt.Errorf("%w: buffer %d", ErrNotFound, src)
	}
	if !okT {
		return fmt.Errorf("%w: texture %d", ErrNotFound, dst)
	}
	if r.Width <= 0 || r.Height <= 0 || r.Width > t.spec.Width || r.OriginY < 0 || r.OriginY+r.Height > t.spec.Height {
		return fmt.Errorf("%w: region %+v in %dx%d texture", ErrOutOfRange, r, t.spec.Width, t.spec.Height)
	}
	if r.BytesPerRow%CopyPitchAlignment != 0 || r.BytesPerRow*r.Height > b.size {
		return fmt.Errorf("%w: pitch %d for %d rows in %d-byte buffer", ErrOutOfRange, r.BytesPerRow, r.Height, b.size)
	}

	encoder, err := g.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "capture_upload_encoder"})
	if err != nil {
		return fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("capture_upload"); err != nil {
		return fmt.Errorf("native: begin encoding: %w", err)
	}
	encoder.CopyBufferToTexture(b.raw, t.raw, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: uint32(r.BytesPerRow), RowsPerImage: uint32(r.Height)}, //nolint:gosec // validated
		TextureBase:  hal.ImageCopyTexture{Texture: t.raw, MipLevel: 0, Origin: hal.Origin3D{Y: uint32(r.OriginY)}},       //nolint:gosec // validated
		Size:         hal.Extent3D{Width: uint32(r.Width), Height: uint32(r.Height), DepthOrArrayLayers: 1},                 //nolint:gosec // validated
	}})
	cmd, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("native: end encoding: %w", err)
	}
	return g.submit(cmd)
}

// submit queues cmd with the next timeline value. A nil cmd only advances
// the timeline. Command buffers of earlier submissions that have completed
// are freed.
func (g *Graphics) submit(cmd hal.CommandBuffer) error {
	if err := g.enqueue(cmd); err != nil {
		return err
	}
	g.reclaimCompleted()
	return nil
}

func (g *Graphics) enqueue(cmd hal.CommandBuffer) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		if cmd != nil {
			g.device.FreeCommandBuffer(cmd)
		}
		return ErrClosed
	}
	serial := g.serial + 1
	var cmds []hal.CommandBuffer
	if cmd != nil {
		cmds = []hal.CommandBuffer{cmd}
	}
	if err := g.queue.Submit(cmds, g.timeline, serial); err != nil {
		if cmd != nil {
			g.device.FreeCommandBuffer(cmd)
		}
		return fmt.Errorf("native: submit: %w", err)
	}
	g.serial = serial
	if cmd != nil {
		g.pending = append(g.pending, pendingCommands{cmd: cmd, serial: serial})
	}
	return nil
}

// InsertFence implements transfer.Graphics.
func (g *Graphics) InsertFence() (transfer.FenceID, error) {
	g.mu.Lock()
	needSubmit := g.serial == 0
	g.mu.Unlock()
	if needSubmit {
		if err := g.submit(nil); err != nil {
			return 0, err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0, ErrClosed
	}
	id := transfer.FenceID(g.newIDLocked())
	g.fences[id] = g.serial
	return id, nil
}

// WaitFence implements transfer.Graphics. Command buffers whose
// submission has completed are freed.
func (g *Graphics) WaitFence(id transfer.FenceID, timeout time.Duration) (bool, error) {
	g.mu.Lock()
	value, ok := g.fences[id]
	g.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("%w: fence %d", ErrNotFound, id)
	}
	done, err := g.device.Wait(g.timeline, value, timeout)
	if err != nil {
		return false, fmt.Errorf("native: wait fence: %w", err)
	}
	if done {
		g.reclaim(value)
	}
	return done, nil
}

// reclaimCompleted frees the pending command buffers the GPU has finished
// with, without blocking.
func (g *Graphics) reclaimCompleted() {
	g.mu.Lock()
	serials := make([]uint64, len(g.pending))
	for i, p := range g.pending {
		serials[i] = p.serial
	}
	g.mu.Unlock()

	var completed uint64
	for _, serial := range serials {
		done, err := g.device.Wait(g.timeline, serial, 0)
		if err != nil || !done {
			break
		}
		completed = serial
	}
	if completed > 0 {
		g.reclaim(completed)
	}
}

func (g *Graphics) reclaim(completed uint64) {
	g.mu.Lock()
	n := 0
	for n < len(g.pending) && g.pending[n].serial <= completed {
		n++
	}
	done := g.pending[:n]
	g.pending = append([]pendingCommands(nil), g.pending[n:]...)
	g.mu.Unlock()

	for _, p := range done {
		g.device.FreeCommandBuffer(p.cmd)
	}
}

// DestroyFence implements transfer.Graphics.
func (g *Graphics) DestroyFence(id transfer.FenceID) {
	g.mu.Lock()
	delete(g.fences, id)
	g.mu.Unlock()
}

// ReadTexture implements transfer.TextureReader. It copies the texture into
// a readback buffer, waits for the GPU and strips the row padding.
func (g *Graphics) ReadTexture(id transfer.TextureID) ([]byte, error) {
	g.mu.Lock()
	t, ok := g.textures[id]
	g.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: texture %d", ErrNotFound, id)
	}

	w, h := uint32(t.spec.Width), uint32(t.spec.Height) //nolint:gosec // validated at creation
	bytesPerRow := w * 4
	alignedBytesPerRow := (bytesPerRow + CopyPitchAlignment - 1) &^ (CopyPitchAlignment - 1)
	size := uint64(alignedBytesPerRow) * uint64(h)

	staging, err := g.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "capture_readback",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create readback buffer: %w", err)
	}
	defer g.device.DestroyBuffer(staging)

	encoder, err := g.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "capture_readback_encoder"})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("capture_readback"); err != nil {
		return nil, fmt.Errorf("native: begin encoding: %w", err)
	}
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.raw,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopyDst,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	encoder.CopyTextureToBuffer(t.raw, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: alignedBytesPerRow, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: t.raw, MipLevel: 0},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.raw,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageCopyDst,
		},
	}})
	cmd, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("native: end encoding: %w", err)
	}
	if err := g.submit(cmd); err != nil {
		return nil, err
	}

	g.mu.Lock()
	value := g.serial
	g.mu.Unlock()
	done, err := g.device.Wait(g.timeline, value, readbackTimeout)
	if err != nil {
		return nil, fmt.Errorf("native: wait for readback: %w", err)
	}
	if !done {
		return nil, fmt.Errorf("native: readback not done after %s", readbackTimeout)
	}
	g.reclaim(value)

	readback := make([]byte, size)
	if err := g.queue.ReadBuffer(staging, 0, readback); err != nil {
		return nil, fmt.Errorf("native: readback: %w", err)
	}
	if alignedBytesPerRow == bytesPerRow {
		return readback, nil
	}
	tight := make([]byte, int(bytesPerRow)*int(h))
	for row := 0; row < int(h); row++ {
		copy(tight[row*int(bytesPerRow):(row+1)*int(bytesPerRow)], readback[row*int(alignedBytesPerRow):])
	}
	return tight, nil
}

// Stats reports the number of live textures, buffers, fences and command
// buffers awaiting completion.
func (g *Graphics) Stats() (textures, buffers, fences, pending int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.textures), len(g.buffers), len(g.fences), len(g.pending)
}

// Close waits for outstanding work, destroys every resource still alive and
// releases the device when Open created it. Close is idempotent.
func (g *Graphics) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	serial := g.serial
	textures, buffers := g.textures, g.buffers
	g.textures, g.buffers = nil, nil
	g.fences = nil
	g.mu.Unlock()

	if serial > 0 {
		if ok, err := g.device.Wait(g.timeline, serial, readbackTimeout); err != nil || !ok {
			g.logger.Warn("native: GPU did not drain before close", "ok", ok, "error", err)
		}
	}
	g.reclaim(serial)
	if len(textures)+len(buffers) > 0 {
		g.logger.Warn("native: closing with live resources", "textures", len(textures), "buffers", len(buffers))
	}
	for _, t := range textures {
		g.device.DestroyTexture(t.raw)
	}
	for _, b := range buffers {
		g.device.DestroyBuffer(b.raw)
	}
	g.device.DestroyFence(g.timeline)
	if g.release != nil {
		g.release()
	}
	return nil
}

var (
	_ transfer.Graphics      = (*Graphics)(nil)
	_ transfer.TextureReader = (*Graphics)(nil)
)
