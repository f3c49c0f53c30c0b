package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gogpu/gg-capture/device"
)

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List display modes and pixel formats",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printFormats(cmd.OutOrStdout())
	},
}

func printFormats(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "MODE\tSIZE\tRATE\tSCAN")
	for _, m := range device.DisplayModes() {
		scan := "progressive"
		if m.Interlaced {
			scan = "interlaced"
		}
		fmt.Fprintf(tw, "%s\t%dx%d\t%.3f\t%s\n", m.Name, m.Width, m.Height, m.FrameRate(), scan)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "PIXEL\tROW BYTES @1920")
	for _, p := range device.PixelFormats() {
		row := "from first frame"
		if n := p.RowBytes(1920); n > 0 {
			row = fmt.Sprint(n)
		}
		fmt.Fprintf(tw, "%s\t%s\n", p, row)
	}
	return tw.Flush()
}
