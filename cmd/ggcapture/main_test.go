package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	capture "github.com/gogpu/gg-capture"
	"github.com/gogpu/gg-capture/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPrintFormats(t *testing.T) {
	var buf bytes.Buffer
	if err := printFormats(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"HD1080p24", "1920x1080", "interlaced", "2vuy", "3840", "R12B", "from first frame"} {
		if !strings.Contains(out, want) {
			t.Errorf("formats output lacks %q", want)
		}
	}
}

func TestPrintProbe(t *testing.T) {
	tests := []struct {
		name   string
		pinned bool
		dma    bool
		paths  string
	}{
		{"staging only", false, false, "paths:        staging"},
		{"pinned", true, false, "paths:        pinned staging"},
		{"dma", false, true, "paths:        dma staging"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Pinned = tt.pinned
			cfg.DMA = tt.dma
			backend, err := openGraphics(cfg, discardLogger())
			if err != nil {
				t.Fatal(err)
			}
			t.Cleanup(func() { _ = backend.close() })

			caps := capture.ProbeCapabilities(backend.gfx, backend.probe)
			format, err := capture.ParseFormat(cfg.Format)
			if err != nil {
				t.Fatal(err)
			}
			var buf bytes.Buffer
			printProbe(&buf, backend, caps, format)
			if out := buf.String(); !strings.Contains(out, tt.paths) || !strings.Contains(out, "lock budget:") {
				t.Errorf("probe output:\n%s\nlacks %q", out, tt.paths)
			}
		})
	}
}

func TestRunCaptureSnapshot(t *testing.T) {
	if testing.Short() {
		t.Skip("streams for a fraction of a second")
	}
	tests := []struct {
		name   string
		format string
		dma    bool
	}{
		{"bgra staging", "PAL/BGRA", false},
		{"uyvy dma", "PAL/2vuy", true},
		{"stereo", "PAL/2vuy/3D", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Format = tt.format
			cfg.DMA = tt.dma
			cfg.FPS = 200
			cfg.Duration = 300 * time.Millisecond
			cfg.StatsInterval = 0
			cfg.SnapshotWidth = 100
			cfg.Snapshot = filepath.Join(t.TempDir(), "frame.png")

			if err := runCapture(context.Background(), cfg, discardLogger()); err != nil {
				t.Fatalf("runCapture: %v", err)
			}
			fi, err := os.Stat(cfg.Snapshot)
			if err != nil || fi.Size() == 0 {
				t.Errorf("snapshot not written: %v", err)
			}
		})
	}
}

func TestRunCaptureUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "metal"
	if err := runCapture(context.Background(), cfg, discardLogger()); err == nil {
		t.Error("runCapture with unknown backend succeeded")
	}
}
