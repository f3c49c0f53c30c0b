package main

import (
	"fmt"
	"log/slog"

	capture "github.com/gogpu/gg-capture"
	"github.com/gogpu/gg-capture/backend/native"
	"github.com/gogpu/gg-capture/internal/config"
	"github.com/gogpu/gg-capture/transfer"
	"github.com/gogpu/gg-capture/transfer/transfertest"
)

// Renderer reported by the mem backend when the DMA path is requested.
const (
	memVendor          = "NVIDIA Corporation"
	memDMARenderer     = "Quadro RTX 5000/PCIe/SSE2"
	memDefaultRenderer = "ggcapture in-memory"
)

// graphics is an opened backend. gfx is the backend itself, not a wrapper,
// so optional interfaces such as transfer.TextureReader stay visible.
type graphics struct {
	gfx   transfer.Graphics
	probe capture.ProbeConfig
	close func() error
}

// openGraphics opens the backend selected by cfg. The probe config it
// returns honours the --pinned and --dma switches; the mem backend also
// supplies an in-memory DMA engine.
func openGraphics(cfg *config.Config, logger *slog.Logger) (*graphics, error) {
	probe := capture.ProbeConfig{
		DisableDMA:    !cfg.DMA,
		DisablePinned: !cfg.Pinned,
		Logger:        logger,
	}

	switch cfg.Backend {
	case config.BackendMem:
		var opts []transfertest.Option
		renderer := memDefaultRenderer
		if cfg.DMA {
			renderer = memDMARenderer
		}
		opts = append(opts, transfertest.WithRenderer(memVendor, renderer))
		if cfg.Pinned {
			opts = append(opts, transfertest.WithPinnedMemory())
		}
		g := transfertest.NewGraphics(opts...)
		dma := transfertest.NewDMA(g, 1, 63)
		probe.LoadDMA = func() (transfer.DMAEngine, error) { return dma, nil }
		return &graphics{gfx: g, probe: probe, close: dma.Close}, nil

	case config.BackendNoop, config.BackendVulkan:
		g, err := native.Open(native.Config{Backend: cfg.Backend, Adapter: cfg.Adapter})
		if err != nil {
			return nil, fmt.Errorf("open %s backend: %w", cfg.Backend, err)
		}
		g.SetLogger(logger)
		return &graphics{gfx: g, probe: probe, close: g.Close}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}
