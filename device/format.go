// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package device

import (
	"fmt"
	"sort"
)

// DisplayMode describes a video signal: resolution, rate and scan type.
type DisplayMode struct {
	// Name is the short mode identifier, e.g. "HD1080p24".
	Name string

	// Width and Height are the active picture size in pixels.
	Width  int
	Height int

	// RateNum/RateDen is the frame rate as a rational, e.g. 24000/1001.
	RateNum int
	RateDen int

	// Interlaced is true for field-based modes.
	Interlaced bool
}

// FrameRate returns the frame rate in frames per second.
func (m DisplayMode) FrameRate() float64 {
	if m.RateDen == 0 {
		return 0
	}
	return float64(m.RateNum) / float64(m.RateDen)
}

// String returns a human-readable description of the mode.
func (m DisplayMode) String() string {
	scan := "p"
	if m.Interlaced {
		scan = "i"
	}
	return fmt.Sprintf("%s[%dx%d%s %.3f]", m.Name, m.Width, m.Height, scan, m.FrameRate())
}

var displayModes = map[string]DisplayMode{
	"NTSC":        {Name: "NTSC", Width: 720, Height: 486, RateNum: 30000, RateDen: 1001, Interlaced: true},
	"NTSC2398":    {Name: "NTSC2398", Width: 720, Height: 486, RateNum: 24000, RateDen: 1001, Interlaced: true},
	"PAL":         {Name: "PAL", Width: 720, Height: 576, RateNum: 25, RateDen: 1, Interlaced: true},
	"NTSCp":       {Name: "NTSCp", Width: 720, Height: 486, RateNum: 60000, RateDen: 1001},
	"PALp":        {Name: "PALp", Width: 720, Height: 576, RateNum: 50, RateDen: 1},
	"HD720p50":    {Name: "HD720p50", Width: 1280, Height: 720, RateNum: 50, RateDen: 1},
	"HD720p5994":  {Name: "HD720p5994", Width: 1280, Height: 720, RateNum: 60000, RateDen: 1001},
	"HD720p60":    {Name: "HD720p60", Width: 1280, Height: 720, RateNum: 60, RateDen: 1},
	"HD1080p2398": {Name: "HD1080p2398", Width: 1920, Height: 1080, RateNum: 24000, RateDen: 1001},
	"HD1080p24":   {Name: "HD1080p24", Width: 1920, Height: 1080, RateNum: 24, RateDen: 1},
	"HD1080p25":   {Name: "HD1080p25", Width: 1920, Height: 1080, RateNum: 25, RateDen: 1},
	"HD1080p2997": {Name: "HD1080p2997", Width: 1920, Height: 1080, RateNum: 30000, RateDen: 1001},
	"HD1080p30":   {Name: "HD1080p30", Width: 1920, Height: 1080, RateNum: 30, RateDen: 1},
	"HD1080p50":   {Name: "HD1080p50", Width: 1920, Height: 1080, RateNum: 50, RateDen: 1},
	"HD1080p5994": {Name: "HD1080p5994", Width: 1920, Height: 1080, RateNum: 60000, RateDen: 1001},
	"HD1080p6000": {Name: "HD1080p6000", Width: 1920, Height: 1080, RateNum: 60, RateDen: 1},
	"HD1080i50":   {Name: "HD1080i50", Width: 1920, Height: 1080, RateNum: 25, RateDen: 1, Interlaced: true},
	"HD1080i5994": {Name: "HD1080i5994", Width: 1920, Height: 1080, RateNum: 30000, RateDen: 1001, Interlaced: true},
	"HD1080i6000": {Name: "HD1080i6000", Width: 1920, Height: 1080, RateNum: 30, RateDen: 1, Interlaced: true},
	"2k2398":      {Name: "2k2398", Width: 2048, Height: 1556, RateNum: 24000, RateDen: 1001},
	"2k24":        {Name: "2k24", Width: 2048, Height: 1556, RateNum: 24, RateDen: 1},
	"2k25":        {Name: "2k25", Width: 2048, Height: 1556, RateNum: 25, RateDen: 1},
	"4K2160p2398": {Name: "4K2160p2398", Width: 3840, Height: 2160, RateNum: 24000, RateDen: 1001},
	"4K2160p24":   {Name: "4K2160p24", Width: 3840, Height: 2160, RateNum: 24, RateDen: 1},
	"4K2160p25":   {Name: "4K2160p25", Width: 3840, Height: 2160, RateNum: 25, RateDen: 1},
	"4K2160p2997": {Name: "4K2160p2997", Width: 3840, Height: 2160, RateNum: 30000, RateDen: 1001},
	"4K2160p30":   {Name: "4K2160p30", Width: 3840, Height: 2160, RateNum: 30, RateDen: 1},
	"4K2160p50":   {Name: "4K2160p50", Width: 3840, Height: 2160, RateNum: 50, RateDen: 1},
	"4K2160p5994": {Name: "4K2160p5994", Width: 3840, Height: 2160, RateNum: 60000, RateDen: 1001},
	"4K2160p60":   {Name: "4K2160p60", Width: 3840, Height: 2160, RateNum: 60, RateDen: 1},
}

// LookupDisplayMode returns the display mode with the given name.
func LookupDisplayMode(name string) (DisplayMode, bool) {
	m, ok := displayModes[name]
	return m, ok
}

// DisplayModes returns all known display modes sorted by name.
func DisplayModes() []DisplayMode {
	modes := make([]DisplayMode, 0, len(displayModes))
	for _, m := range displayModes {
		modes = append(modes, m)
	}
	sort.Slice(modes, func(i, j int) bool { return modes[i].Name < modes[j].Name })
	return modes
}

// PixelFormat is the in-memory layout of captured pixels.
type PixelFormat uint8

const (
	// PixelFormatUnknown is the zero value.
	PixelFormatUnknown PixelFormat = iota

	// PixelFormat8BitYUV is packed 4:2:2 UYVY ("2vuy").
	PixelFormat8BitYUV

	// PixelFormat10BitYUV is packed 4:2:2 in 128-byte groups of 48 pixels ("v210").
	PixelFormat10BitYUV

	// PixelFormat8BitARGB is 32-bit ARGB.
	PixelFormat8BitARGB

	// PixelFormat8BitBGRA is 32-bit BGRA.
	PixelFormat8BitBGRA

	// PixelFormat10BitRGB is big-endian 10-bit RGB in 256-byte groups of 64 pixels ("r210").
	PixelFormat10BitRGB

	// PixelFormat12BitRGB is big-endian 12-bit RGB ("R12B").
	PixelFormat12BitRGB

	// PixelFormat12BitRGBLE is little-endian 12-bit RGB ("R12L").
	PixelFormat12BitRGBLE

	// PixelFormat10BitRGBXLE is little-endian 10-bit RGBX ("R10l").
	PixelFormat10BitRGBXLE

	// PixelFormat10BitRGBX is big-endian 10-bit RGBX ("R10b").
	PixelFormat10BitRGBX
)

var pixelFormatCodes = [...]string{
	PixelFormatUnknown:     "",
	PixelFormat8BitYUV:     "2vuy",
	PixelFormat10BitYUV:    "v210",
	PixelFormat8BitARGB:    "ARGB",
	PixelFormat8BitBGRA:    "BGRA",
	PixelFormat10BitRGB:    "r210",
	PixelFormat12BitRGB:    "R12B",
	PixelFormat12BitRGBLE:  "R12L",
	PixelFormat10BitRGBXLE: "R10l",
	PixelFormat10BitRGBX:   "R10b",
}

// String returns the four-character code of the format.
func (p PixelFormat) String() string {
	if int(p) < len(pixelFormatCodes) && p != PixelFormatUnknown {
		return pixelFormatCodes[p]
	}
	return fmt.Sprintf("PixelFormat(%d)", uint8(p))
}

// LookupPixelFormat returns the pixel format with the given four-character code.
func LookupPixelFormat(code string) (PixelFormat, bool) {
	for i, c := range pixelFormatCodes {
		if c != "" && c == code {
			return PixelFormat(i), true
		}
	}
	return PixelFormatUnknown, false
}

// PixelFormats returns all known pixel formats.
func PixelFormats() []PixelFormat {
	out := make([]PixelFormat, 0, len(pixelFormatCodes)-1)
	for i := 1; i < len(pixelFormatCodes); i++ {
		out = append(out, PixelFormat(i))
	}
	return out
}

// RowBytes returns the number of bytes per row for a frame of the given
// width, or 0 when the stride is chosen by the device and only known once a
// frame arrives.
func (p PixelFormat) RowBytes(width int) int {
	switch p {
	case PixelFormat8BitYUV:
		return width * 2
	case PixelFormat10BitYUV:
		return ((width + 47) / 48) * 128
	case PixelFormat8BitARGB, PixelFormat8BitBGRA, PixelFormat10BitRGBXLE, PixelFormat10BitRGBX:
		return width * 4
	case PixelFormat10BitRGB:
		return ((width + 63) / 64) * 256
	default:
		return 0
	}
}
