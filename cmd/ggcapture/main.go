// Command ggcapture streams frames from a simulated capture device into a
// GPU texture and reports what the transfer pipeline did.
//
// Usage:
//
//	ggcapture run --format HD1080p24/2vuy --backend mem --duration 5s --snapshot out.png
//	ggcapture probe --backend vulkan
//	ggcapture formats
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	capture "github.com/gogpu/gg-capture"
	"github.com/gogpu/gg-capture/internal/config"
)

var (
	version = "0.1.0"
	cfgFile string
	v       = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "ggcapture",
	Short: "Live video capture to GPU texture",
	Long: `ggcapture drives a capture device through the gg-capture pipeline:
frames land in page-aligned host buffers and are uploaded into a GPU
texture with the fastest transfer path the GPU supports.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ggcapture v%s\n", version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ./ggcapture.yaml)")
	pf.String("backend", config.BackendMem, "graphics backend: mem, noop or vulkan")
	pf.String("adapter", "", "GPU adapter name substring")
	pf.String("format", "HD1080p24/2vuy", "capture format <mode>/<pixel>[/3D][:<cache>]")
	pf.Bool("pinned", false, "allow the pinned-memory upload path")
	pf.Bool("dma", false, "allow the direct DMA path")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	bind(pf.Lookup("backend"), "backend")
	bind(pf.Lookup("adapter"), "adapter")
	bind(pf.Lookup("format"), "format")
	bind(pf.Lookup("pinned"), "pinned")
	bind(pf.Lookup("dma"), "dma")
	bind(pf.Lookup("log-level"), "log_level")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(formatsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bind ties a flag to a config key so that an explicitly set flag wins
// over the file and the environment.
func bind(f *pflag.Flag, key string) {
	cobra.CheckErr(v.BindPFlag(key, f))
}

// loadConfig reads the merged settings and installs the logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, nil, err
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	capture.SetLogger(logger)
	return cfg, logger, nil
}
