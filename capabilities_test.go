package capture

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/gg-capture/transfer"
	"github.com/gogpu/gg-capture/transfer/transfertest"
)

func fakeDMALoader(gfx *transfertest.Graphics, major, minor int) func() (transfer.DMAEngine, error) {
	return func() (transfer.DMAEngine, error) {
		return transfertest.NewDMA(gfx, major, minor), nil
	}
}

func TestProbeCapabilities(t *testing.T) {
	tests := []struct {
		name     string
		renderer string
		pinned   bool
		load     func(*transfertest.Graphics) func() (transfer.DMAEngine, error)
		wantDMA  bool
		wantPin  bool
		kinds    []transfer.Kind
	}{
		{
			name:     "consumer gpu",
			renderer: "GeForce RTX 4090/PCIe/SSE2",
			load:     func(g *transfertest.Graphics) func() (transfer.DMAEngine, error) { return fakeDMALoader(g, 1, 70) },
			kinds:    []transfer.Kind{transfer.KindStaging},
		},
		{
			name:     "quadro with dma",
			renderer: "Quadro RTX 5000/PCIe/SSE2",
			load:     func(g *transfertest.Graphics) func() (transfer.DMAEngine, error) { return fakeDMALoader(g, 1, 63) },
			wantDMA:  true,
			kinds:    []transfer.Kind{transfer.KindDirectDMA, transfer.KindStaging},
		},
		{
			name:     "rtx a-series old library",
			renderer: "NVIDIA RTX A6000",
			load:     func(g *transfertest.Graphics) func() (transfer.DMAEngine, error) { return fakeDMALoader(g, 1, 62) },
			kinds:    []transfer.Kind{transfer.KindStaging},
		},
		{
			name:     "wrong major",
			renderer: "Quadro P4000",
			load:     func(g *transfertest.Graphics) func() (transfer.DMAEngine, error) { return fakeDMALoader(g, 2, 80) },
			kinds:    []transfer.Kind{transfer.KindStaging},
		},
		{
			name:     "library missing",
			renderer: "Quadro P4000",
			load: func(*transfertest.Graphics) func() (transfer.DMAEngine, error) {
				return func() (transfer.DMAEngine, error) { return nil, errors.New("not found") }
			},
			pinned:  true,
			wantPin: true,
			kinds:   []transfer.Kind{transfer.KindPinnedUpload, transfer.KindStaging},
		},
		{
			name:     "everything",
			renderer: "Quadro RTX 8000",
			load:     func(g *transfertest.Graphics) func() (transfer.DMAEngine, error) { return fakeDMALoader(g, 1, 64) },
			pinned:   true,
			wantDMA:  true,
			wantPin:  true,
			kinds:    []transfer.Kind{transfer.KindDirectDMA, transfer.KindPinnedUpload, transfer.KindStaging},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []transfertest.Option{transfertest.WithRenderer("NVIDIA Corporation", tt.renderer)}
			if tt.pinned {
				opts = append(opts, transfertest.WithPinnedMemory())
			}
			gfx := transfertest.NewGraphics(opts...)
			caps := ProbeCapabilities(gfx, ProbeConfig{LoadDMA: tt.load(gfx)})

			if caps.DirectDMA != tt.wantDMA || caps.PinnedMemory != tt.wantPin {
				t.Errorf("caps = %s", caps)
			}
			if caps.DirectDMA != (caps.DMA != nil) {
				t.Errorf("DirectDMA=%v but DMA engine %v", caps.DirectDMA, caps.DMA)
			}
			if got := caps.Kinds(); !slices.Equal(got, tt.kinds) {
				t.Errorf("Kinds() = %v, want %v", got, tt.kinds)
			}
			if caps.Renderer != tt.renderer {
				t.Errorf("Renderer = %q", caps.Renderer)
			}
		})
	}
}

func TestProbeCapabilitiesDisable(t *testing.T) {
	gfx := transfertest.NewGraphics(
		transfertest.WithRenderer("NVIDIA Corporation", "Quadro RTX 5000"),
		transfertest.WithPinnedMemory())
	loaded := false
	caps := ProbeCapabilities(gfx, ProbeConfig{
		DisableDMA:    true,
		DisablePinned: true,
		LoadDMA: func() (transfer.DMAEngine, error) {
			loaded = true
			return nil, errors.New("unexpected")
		},
	})
	if caps.DirectDMA || caps.PinnedMemory {
		t.Errorf("caps = %s", caps)
	}
	if loaded {
		t.Error("DMA library loaded although disabled")
	}
}

func TestProbeCapabilitiesCustomMarkers(t *testing.T) {
	gfx := transfertest.NewGraphics(transfertest.WithRenderer("Acme", "Acme Pro 9000"))
	caps := ProbeCapabilities(gfx, ProbeConfig{
		ProfessionalMarkers: []string{"Pro"},
		LoadDMA:             fakeDMALoader(gfx, 1, 63),
	})
	if !caps.DirectDMA || caps.DMAVersion != "1.63" {
		t.Errorf("caps = %s", caps)
	}
}

func TestDefaultCapabilitiesMemoized(t *testing.T) {
	a := DefaultCapabilities(transfertest.NewGraphics(transfertest.WithRenderer("x", "first")))
	b := DefaultCapabilities(transfertest.NewGraphics(transfertest.WithRenderer("x", "second")))
	if a.Renderer != b.Renderer {
		t.Errorf("DefaultCapabilities probed twice: %q then %q", a.Renderer, b.Renderer)
	}
}
