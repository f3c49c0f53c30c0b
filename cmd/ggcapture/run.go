package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	capture "github.com/gogpu/gg-capture"
	"github.com/gogpu/gg-capture/internal/config"
	"github.com/gogpu/gg-capture/internal/simdevice"
	"github.com/gogpu/gg-capture/internal/snapshot"
	"github.com/gogpu/gg-capture/transfer"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Stream the simulated device into a texture",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runCapture(ctx, cfg, logger)
	},
}

func init() {
	f := runCmd.Flags()
	f.Float64("fps", 60, "render ticks per second")
	f.Duration("duration", 5*time.Second, "how long to stream, 0 until interrupted")
	f.String("snapshot", "", "write the last texture to this .png, .bmp or .tiff file")
	f.Int("snapshot-width", 0, "scale the snapshot down to this width")
	f.Int("cache-size", 0, "frame buffer ceiling, overrides the format suffix")
	f.Duration("fence-timeout", time.Second, "GPU fence wait timeout")
	f.Duration("stats-interval", time.Second, "statistics log interval")
	bind(f.Lookup("fps"), "fps")
	bind(f.Lookup("duration"), "duration")
	bind(f.Lookup("snapshot"), "snapshot")
	bind(f.Lookup("snapshot-width"), "snapshot_width")
	bind(f.Lookup("cache-size"), "cache_size")
	bind(f.Lookup("fence-timeout"), "fence_timeout")
	bind(f.Lookup("stats-interval"), "stats_interval")
}

// runCapture streams until ctx is done or the configured duration elapses.
func runCapture(ctx context.Context, cfg *config.Config, logger *slog.Logger) (err error) {
	backend, err := openGraphics(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, backend.close()) }()
	gfx := backend.gfx

	caps := capture.ProbeCapabilities(gfx, backend.probe)
	opts := []capture.SourceOption{
		capture.WithCapabilities(caps),
		capture.WithLogger(logger),
		capture.WithFenceTimeout(cfg.FenceTimeout),
	}
	if cfg.CacheSize > 0 {
		opts = append(opts, capture.WithCacheSize(cfg.CacheSize))
	}
	dev := simdevice.New(simdevice.Config{})
	src, err := capture.NewSource(dev, gfx, cfg.Format, opts...)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, src.Close()) }()

	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}
	if err := src.Start(ctx); err != nil {
		return err
	}

	render := time.NewTicker(cfg.Interval())
	defer render.Stop()
	var statsC <-chan time.Time
	if cfg.StatsInterval > 0 {
		stats := time.NewTicker(cfg.StatsInterval)
		defer stats.Stop()
		statsC = stats.C
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-render.C:
			// Skipped frames are logged by the source.
			_, _ = src.Refresh()
		case <-statsC:
			logger.Info("ggcapture: stats", "stats", src.Stats().String())
		}
	}

	if err := src.Stop(); err != nil {
		return err
	}
	delivered, dropped, _ := dev.Stats()
	logger.Info("ggcapture: done",
		"delivered", delivered,
		"device_dropped", dropped,
		"stats", src.Stats().String())

	if cfg.Snapshot != "" {
		return writeSnapshot(gfx, src, cfg, logger)
	}
	return nil
}

// writeSnapshot reads the texture back and saves it as an image.
func writeSnapshot(gfx transfer.Graphics, src *capture.Source, cfg *config.Config, logger *slog.Logger) error {
	reader, ok := gfx.(transfer.TextureReader)
	if !ok {
		return fmt.Errorf("snapshot: %s backend cannot read textures back", cfg.Backend)
	}
	tex := src.Texture()
	if !tex.Allocated() {
		return errors.New("snapshot: no frame was transferred")
	}
	pix, err := reader.ReadTexture(tex.ID())
	if err != nil {
		return fmt.Errorf("snapshot: read texture: %w", err)
	}

	desc := src.Descriptor()
	format := src.Format()
	img, err := snapshot.Convert(snapshot.Frame{
		Pixel:    format.Pixel,
		Width:    format.Mode.Width,
		Height:   desc.TextureHeight(),
		RowBytes: desc.Width * desc.Layout.BytesPerTexel(),
		Data:     pix,
	})
	if err != nil {
		return err
	}
	if err := snapshot.Save(cfg.Snapshot, snapshot.Thumbnail(img, cfg.SnapshotWidth)); err != nil {
		return err
	}
	logger.Info("ggcapture: snapshot written", "path", cfg.Snapshot)
	return nil
}
