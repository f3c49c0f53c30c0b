package capture

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gogpu/gg-capture/internal/dvp"
	"github.com/gogpu/gg-capture/transfer"
)

// DMA library version requirements.
const (
	dmaMajorVersion    = 1
	dmaMinMinorVersion = 63
)

// DefaultProfessionalMarkers are renderer substrings identifying GPUs on
// which the vendor DMA library is supported.
var DefaultProfessionalMarkers = []string{"Quadro", "RTX A"}

// Capabilities records which zero-copy transfer paths are usable with a
// graphics backend. It is computed once and passed to allocators.
type Capabilities struct {
	// DirectDMA is set when the hardware DMA library is loaded, has a
	// supported version and the GPU is of a supported class.
	DirectDMA bool

	// PinnedMemory is set when the backend can wrap pinned host memory.
	PinnedMemory bool

	// Renderer is the GPU product string that was probed.
	Renderer string

	// DMAVersion is the DMA library version, empty if it did not load.
	DMAVersion string

	// DMA is the loaded engine when DirectDMA is set.
	DMA transfer.DMAEngine
}

// Kinds returns the transfer strategies to try, fastest first.
func (c Capabilities) Kinds() []transfer.Kind {
	kinds := make([]transfer.Kind, 0, transfer.KindCount)
	if c.DirectDMA && c.DMA != nil {
		kinds = append(kinds, transfer.KindDirectDMA)
	}
	if c.PinnedMemory {
		kinds = append(kinds, transfer.KindPinnedUpload)
	}
	return append(kinds, transfer.KindStaging)
}

// String returns a one-line summary.
func (c Capabilities) String() string {
	dma := "no"
	if c.DirectDMA {
		dma = "yes (" + c.DMAVersion + ")"
	}
	return fmt.Sprintf("renderer=%q dma=%s pinned=%t", c.Renderer, dma, c.PinnedMemory)
}

// ProbeConfig controls ProbeCapabilities.
type ProbeConfig struct {
	// ProfessionalMarkers overrides DefaultProfessionalMarkers.
	ProfessionalMarkers []string

	// LoadDMA loads the DMA library. Nil selects the platform loader.
	LoadDMA func() (transfer.DMAEngine, error)

	// DisableDMA and DisablePinned turn paths off regardless of support.
	DisableDMA    bool
	DisablePinned bool

	// Logger receives probe decisions. Nil selects the package logger.
	Logger *slog.Logger
}

func loadPlatformDMA() (transfer.DMAEngine, error) {
	e, err := dvp.Open()
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ProbeCapabilities queries gfx and the DMA library. Paths that are absent
// or unsupported are disabled without error.
func ProbeCapabilities(gfx transfer.Graphics, cfg ProbeConfig) Capabilities {
	logger := cfg.Logger
	if logger == nil {
		logger = Logger()
	}
	info := gfx.AdapterInfo()
	caps := Capabilities{Renderer: info.Renderer}

	_, importer := gfx.(transfer.HostBufferImporter)
	caps.PinnedMemory = !cfg.DisablePinned && importer && gfx.HasExtension(transfer.ExtPinnedMemory)

	if !cfg.DisableDMA {
		caps.DMA, caps.DMAVersion = probeDMA(gfx, info, cfg, logger)
		caps.DirectDMA = caps.DMA != nil
	}

	logger.Info("capture: capabilities probed",
		"renderer", caps.Renderer,
		"dma", caps.DirectDMA,
		"dma_version", caps.DMAVersion,
		"pinned", caps.PinnedMemory)
	return caps
}

func probeDMA(gfx transfer.Graphics, info transfer.AdapterInfo, cfg ProbeConfig, logger *slog.Logger) (transfer.DMAEngine, string) {
	markers := cfg.ProfessionalMarkers
	if markers == nil {
		markers = DefaultProfessionalMarkers
	}
	if !containsAny(info.Renderer, markers) {
		logger.Debug("capture: dma disabled, renderer not professional class", "renderer", info.Renderer)
		return nil, ""
	}
	if _, ok := gfx.(transfer.NativeTextureExporter); !ok {
		logger.Info("capture: dma disabled, graphics backend cannot export textures")
		return nil, ""
	}

	load := cfg.LoadDMA
	if load == nil {
		load = loadPlatformDMA
	}
	engine, err := load()
	if err != nil {
		logger.Info("capture: dma disabled, library not loaded", "error", err)
		return nil, ""
	}

	major, minor := engine.Version()
	version := fmt.Sprintf("%d.%d", major, minor)
	if major != dmaMajorVersion || minor < dmaMinMinorVersion {
		logger.Info("capture: dma disabled, unsupported library version",
			"version", version, "want", fmt.Sprintf("%d.%d+", dmaMajorVersion, dmaMinMinorVersion))
		if err := engine.Close(); err != nil {
			logger.Warn("capture: close dma library", "error", err)
		}
		return nil, version
	}
	return engine, version
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var (
	defaultCapsOnce sync.Once
	defaultCaps     Capabilities
)

// DefaultCapabilities probes gfx with the default configuration the first
// time it is called and returns the same result for the rest of the process.
// Use ProbeCapabilities and WithCapabilities for explicit control.
func DefaultCapabilities(gfx transfer.Graphics) Capabilities {
	defaultCapsOnce.Do(func() {
		defaultCaps = ProbeCapabilities(gfx, ProbeConfig{})
	})
	return defaultCaps
}
