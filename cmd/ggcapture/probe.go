package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	capture "github.com/gogpu/gg-capture"
	"github.com/gogpu/gg-capture/internal/dvp"
	"github.com/gogpu/gg-capture/internal/pinned"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Print the transfer paths available on a backend",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		backend, err := openGraphics(cfg, logger)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, backend.close()) }()

		caps := capture.ProbeCapabilities(backend.gfx, backend.probe)
		format, err := capture.ParseFormat(cfg.Format)
		if err != nil {
			return err
		}
		printProbe(cmd.OutOrStdout(), backend, caps, format)
		return nil
	},
}

func printProbe(w io.Writer, backend *graphics, caps capture.Capabilities, format capture.Format) {
	info := backend.gfx.AdapterInfo()
	fmt.Fprintf(w, "adapter:      %s (%s)\n", info.Renderer, info.Vendor)
	fmt.Fprintf(w, "capabilities: %s\n", caps)
	fmt.Fprint(w, "paths:       ")
	for _, k := range caps.Kinds() {
		fmt.Fprintf(w, " %s", k)
	}
	fmt.Fprintln(w)

	if major, minor, err := dvp.Probe(); err != nil {
		fmt.Fprintf(w, "dma library:  %v\n", err)
	} else {
		fmt.Fprintf(w, "dma library:  %d.%d\n", major, minor)
	}

	fmt.Fprintf(w, "format:       %s (%s)\n", format, capture.DescribeTexture(format))
	fmt.Fprintf(w, "frame bytes:  %d\n", capture.FrameBytes(format))
	fmt.Fprintf(w, "lock budget:  %d\n", capture.LockBudget(format))
	if soft, hard, err := pinned.LockLimit(); err != nil {
		fmt.Fprintf(w, "lock limit:   %v\n", err)
	} else {
		fmt.Fprintf(w, "lock limit:   soft=%d hard=%d\n", soft, hard)
	}
}
