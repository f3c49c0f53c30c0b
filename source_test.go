package capture

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/gg-capture/internal/simdevice"
	"github.com/gogpu/gg-capture/transfer"
	"github.com/gogpu/gg-capture/transfer/transfertest"
)

type sourceFixture struct {
	gfx *transfertest.Graphics
	dev *simdevice.Device
	src *Source
}

func newSourceFixture(t *testing.T, format string, caps Capabilities, gfxOpts ...transfertest.Option) *sourceFixture {
	t.Helper()
	gfx := transfertest.NewGraphics(gfxOpts...)
	dev := simdevice.New(simdevice.Config{Interval: -1})
	src, err := NewSource(dev, gfx, format, WithCapabilities(caps))
	if err != nil {
		t.Fatalf("NewSource(%q): %v", format, err)
	}
	t.Cleanup(func() { _ = src.Close() })
	return &sourceFixture{gfx: gfx, dev: dev, src: src}
}

func (fx *sourceFixture) start(t *testing.T) {
	t.Helper()
	if err := fx.src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func (fx *sourceFixture) deliver(t *testing.T) uint64 {
	t.Helper()
	seq, err := fx.dev.Deliver()
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	return seq
}

func (fx *sourceFixture) refresh(t *testing.T) {
	t.Helper()
	changed, err := fx.src.Refresh()
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !changed {
		t.Fatal("Refresh reported no new frame")
	}
}

func (fx *sourceFixture) texture(t *testing.T) []byte {
	t.Helper()
	got, err := fx.gfx.ReadTexture(fx.src.Texture().ID())
	if err != nil {
		t.Fatalf("ReadTexture: %v", err)
	}
	return got
}

func expectedEye(seq uint64, eye, rowBytes, height int) []byte {
	b := make([]byte, rowBytes*height)
	simdevice.DefaultPattern(seq, eye, rowBytes, b)
	return b
}

func TestSourceRefreshPixelExact(t *testing.T) {
	tests := []struct {
		name   string
		format string
		caps   func(*transfertest.Graphics) Capabilities
		opts   []transfertest.Option
		want   transfer.Kind
	}{
		{
			name:   "staging",
			format: "PAL/BGRA:4",
			caps:   func(*transfertest.Graphics) Capabilities { return Capabilities{} },
			want:   transfer.KindStaging,
		},
		{
			name:   "staging aligned",
			format: "PAL/2vuy:4",
			caps:   func(*transfertest.Graphics) Capabilities { return Capabilities{} },
			opts:   []transfertest.Option{transfertest.WithCopyPitchAlignment(256)},
			want:   transfer.KindStaging,
		},
		{
			name:   "dma",
			format: "PAL/v210:4",
			caps: func(g *transfertest.Graphics) Capabilities {
				return Capabilities{DirectDMA: true, DMA: transfertest.NewDMA(g, 1, 63), Renderer: "Quadro"}
			},
			want: transfer.KindDirectDMA,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gfx := transfertest.NewGraphics(tt.opts...)
			dev := simdevice.New(simdevice.Config{Interval: -1})
			src, err := NewSource(dev, gfx, tt.format, WithCapabilities(tt.caps(gfx)))
			if err != nil {
				t.Fatal(err)
			}
			t.Cleanup(func() { _ = src.Close() })
			fx := &sourceFixture{gfx: gfx, dev: dev, src: src}
			fx.start(t)

			d := src.Descriptor()
			for range 3 {
				seq := fx.deliver(t)
				fx.refresh(t)
				if got := fx.texture(t); !bytes.Equal(got, expectedEye(seq, 0, d.StrideBytes, d.Height)) {
					t.Fatalf("texture does not match frame %d", seq)
				}
			}
			st := src.Stats()
			if st.Transferred != 3 || st.Allocator.Bindings[tt.want] == 0 {
				t.Errorf("stats: %s", st)
			}
			if err := src.Close(); err != nil {
				t.Fatal(err)
			}
			if gs := gfx.Stats(); gs.Textures != 0 || gs.Buffers != 0 || gs.Fences != 0 {
				t.Errorf("GPU resources leaked: %+v", gs)
			}
			if dma, ok := src.Capabilities().DMA.(*transfertest.DMA); ok {
				if bufs, syncs := dma.Live(); bufs != 0 || syncs != 0 {
					t.Errorf("DMA registrations leaked: %d buffers, %d syncs", bufs, syncs)
				}
			}
		})
	}
}

func TestSourceRefreshOnlyFreshest(t *testing.T) {
	fx := newSourceFixture(t, "PAL/BGRA:4", Capabilities{})
	fx.start(t)

	fx.deliver(t)
	fx.deliver(t)
	last := fx.deliver(t)
	fx.refresh(t)

	d := fx.src.Descriptor()
	if !bytes.Equal(fx.texture(t), expectedEye(last, 0, d.StrideBytes, d.Height)) {
		t.Error("texture does not hold the freshest frame")
	}
	if changed, err := fx.src.Refresh(); changed || err != nil {
		t.Errorf("second Refresh = %v, %v; want nothing new", changed, err)
	}
	st := fx.src.Stats()
	if st.Cache.Replaced != 2 || st.Transferred != 1 {
		t.Errorf("stats: %s", st)
	}
	if _, _, live := fx.dev.Stats(); live != 0 {
		t.Errorf("%d frame buffers not handed back", live)
	}
}

func TestSourceStereo(t *testing.T) {
	fx := newSourceFixture(t, "PAL/BGRA/3D:4", Capabilities{})
	fx.start(t)

	seq := fx.deliver(t)
	fx.refresh(t)

	d := fx.src.Descriptor()
	want := append(expectedEye(seq, 0, d.StrideBytes, d.Height), expectedEye(seq, 1, d.StrideBytes, d.Height)...)
	if got := fx.texture(t); !bytes.Equal(got, want) {
		t.Error("stereo texture does not hold left over right eye")
	}
	if fx.src.Texture().Descriptor().TextureHeight() != 2*576 {
		t.Errorf("texture descriptor %s", fx.src.Texture().Descriptor())
	}
}

func TestSourceStereoNeverUsesDMA(t *testing.T) {
	gfx := transfertest.NewGraphics()
	caps := Capabilities{DirectDMA: true, DMA: transfertest.NewDMA(gfx, 1, 63)}
	dev := simdevice.New(simdevice.Config{Interval: -1})
	src, err := NewSource(dev, gfx, "PAL/BGRA/3D:4", WithCapabilities(caps))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = src.Close() })
	fx := &sourceFixture{gfx: gfx, dev: dev, src: src}
	fx.start(t)

	fx.deliver(t)
	fx.refresh(t)
	b := src.Stats().Allocator.Bindings
	if b[transfer.KindDirectDMA] != 0 || b[transfer.KindStaging] != 2 {
		t.Errorf("bindings = %v, want two staging", b)
	}
}

func TestSourceCompletesLayoutFromFirstFrame(t *testing.T) {
	fx := newSourceFixture(t, "PAL/R12B:4", Capabilities{})
	if fx.src.Descriptor().Complete() {
		t.Fatal("12-bit descriptor complete before any frame")
	}
	fx.start(t)

	seq := fx.deliver(t)
	fx.refresh(t)

	d := fx.src.Descriptor()
	rowBytes := simdevice.RowBytes(fx.src.Format().Pixel, 720)
	if !d.Complete() || d.StrideBytes != rowBytes || d.Width != rowBytes/4 {
		t.Fatalf("descriptor after first frame: %s", d)
	}
	if !bytes.Equal(fx.texture(t), expectedEye(seq, 0, rowBytes, 576)) {
		t.Error("texture does not match 12-bit frame")
	}
}

func TestSourceSkipsNoInputFrames(t *testing.T) {
	fx := newSourceFixture(t, "PAL/BGRA:4", Capabilities{})
	fx.start(t)

	fx.dev.SetNoInput(true)
	fx.deliver(t)
	fx.dev.DeliverAudioOnly()
	if changed, err := fx.src.Refresh(); changed || err != nil {
		t.Errorf("Refresh = %v, %v", changed, err)
	}
	if fx.src.Texture().Allocated() || fx.gfx.Stats().Uploads != 0 {
		t.Error("no-input frame reached the texture")
	}
	st := fx.src.Stats()
	if st.Bridge.NoInput != 1 || st.Bridge.AudioOnly != 1 || st.Cache.Arrived != 0 {
		t.Errorf("stats: %s", st)
	}

	fx.dev.SetNoInput(false)
	fx.deliver(t)
	fx.refresh(t)
}

func TestSourceGeometryMismatch(t *testing.T) {
	fx := newSourceFixture(t, "PAL/BGRA:4", Capabilities{})
	fx.start(t)

	var retains, releases atomic.Int64
	fx.src.Bridge().FrameArrived(newCountingFrame(1, &retains, &releases), nil)
	changed, err := fx.src.Refresh()
	if changed || !errors.Is(err, ErrGeometryMismatch) {
		t.Fatalf("Refresh = %v, %v; want ErrGeometryMismatch", changed, err)
	}
	if retains.Load() != releases.Load() {
		t.Error("skipped frame not released")
	}
	if fx.src.Stats().Skipped != 1 {
		t.Errorf("Skipped = %d", fx.src.Stats().Skipped)
	}

	// The source stays usable.
	fx.deliver(t)
	fx.refresh(t)
}

func TestSourceTransferFailureSkipsFrame(t *testing.T) {
	fx := newSourceFixture(t, "PAL/BGRA:4", Capabilities{})
	fx.start(t)

	fx.gfx.FailUploads = true
	fx.deliver(t)
	if changed, err := fx.src.Refresh(); changed || err == nil {
		t.Fatalf("Refresh with failing uploads = %v, %v", changed, err)
	}
	fx.gfx.FailUploads = false
	fx.deliver(t)
	fx.refresh(t)
	if st := fx.src.Stats(); st.Skipped != 1 || st.Transferred != 1 {
		t.Errorf("stats: %s", st)
	}
}

func TestSourceLifecycle(t *testing.T) {
	fx := newSourceFixture(t, "PAL/BGRA:2", Capabilities{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := fx.src.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Start(cancelled) = %v", err)
	}

	fx.start(t)
	if err := fx.src.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v", err)
	}
	fx.deliver(t)
	fx.deliver(t)

	if err := fx.src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := fx.src.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if _, _, live := fx.dev.Stats(); live != 0 {
		t.Errorf("%d buffers held after Stop", live)
	}
	if changed, _ := fx.src.Refresh(); changed {
		t.Error("Refresh after Stop produced a frame")
	}

	// A stopped source can be started again.
	fx.start(t)
	fx.deliver(t)
	fx.refresh(t)

	if err := fx.src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := fx.src.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := fx.src.Refresh(); !errors.Is(err, ErrClosed) {
		t.Errorf("Refresh after Close = %v", err)
	}
	if err := fx.src.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Close = %v", err)
	}
	if gs := fx.gfx.Stats(); gs.Textures != 0 || gs.Buffers != 0 {
		t.Errorf("GPU resources leaked: %+v", gs)
	}
	if st := fx.src.Allocator().Stats(); st.Outstanding != 0 || st.Cached != 0 || st.Retired != 0 {
		t.Errorf("allocator not drained: %+v", st)
	}
}

func TestSourceStreaming(t *testing.T) {
	if testing.Short() {
		t.Skip("streaming test skipped in short mode")
	}
	gfx := transfertest.NewGraphics()
	dev := simdevice.New(simdevice.Config{Interval: time.Millisecond, AudioOnlyEvery: 5})
	src, err := NewSource(dev, gfx, "PAL/BGRA:4", WithCapabilities(Capabilities{}))
	if err != nil {
		t.Fatal(err)
	}
	if err := src.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for src.Stats().Transferred < 50 && time.Now().Before(deadline) {
		if _, err := src.Refresh(); err != nil {
			t.Fatalf("Refresh: %v", err)
		}
		time.Sleep(500 * time.Microsecond)
	}
	if src.Stats().Transferred == 0 {
		t.Fatal("no frame transferred while streaming")
	}

	if err := src.Close(); err != nil {
		t.Fatal(err)
	}
	delivered, _, live := dev.Stats()
	if live != 0 {
		t.Errorf("%d buffers held after Close", live)
	}
	st := src.Stats()
	if st.Cache.Arrived > delivered || st.Transferred > st.Cache.Taken {
		t.Errorf("inconsistent counters, delivered %d: %s", delivered, st)
	}
	if st.Allocator.Outstanding+st.Allocator.Cached > 4 {
		t.Errorf("allocator exceeded its ceiling: %+v", st.Allocator)
	}
	if !strings.Contains(st.String(), "transferred=") {
		t.Errorf("Stats.String() = %q", st.String())
	}
}

func TestNewSourceErrors(t *testing.T) {
	gfx := transfertest.NewGraphics()
	dev := simdevice.New(simdevice.Config{Interval: -1})
	if _, err := NewSource(nil, gfx, "PAL/BGRA"); err == nil {
		t.Error("NewSource(nil device) succeeded")
	}
	if _, err := NewSource(dev, gfx, "PAL"); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("NewSource(bad format) = %v", err)
	}
	src, err := NewSource(dev, gfx, "PAL/BGRA:4", WithCapabilities(Capabilities{}), WithCacheSize(99))
	if err != nil {
		t.Fatal(err)
	}
	if src.Format().CacheSize != MaxCacheSize || src.Allocator().CacheSize() != MaxCacheSize {
		t.Errorf("cache size %d/%d, want %d", src.Format().CacheSize, src.Allocator().CacheSize(), MaxCacheSize)
	}
	_ = src.Close()
}
