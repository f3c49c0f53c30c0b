// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package snapshot turns captured frame bytes into images and writes them
// as PNG, BMP or TIFF.
//
// 8-bit YUV frames are converted with BT.709 coefficients; ARGB and BGRA
// frames are reordered. Deep-color formats are not decoded.
package snapshot

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	"github.com/gogpu/gg-capture/device"
)

// Snapshot errors.
var (
	// ErrUnsupportedFormat is returned for pixel or file formats that
	// cannot be converted or encoded.
	ErrUnsupportedFormat = errors.New("snapshot: unsupported format")

	// ErrShortData is returned when data holds fewer rows than height.
	ErrShortData = errors.New("snapshot: frame data too short")
)

// Frame describes raw frame bytes.
type Frame struct {
	Pixel    device.PixelFormat
	Width    int // pixels
	Height   int
	RowBytes int
	Data     []byte
}

// Convert decodes f into an NRGBA image.
func Convert(f Frame) (*image.NRGBA, error) {
	if f.Width <= 0 || f.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrShortData, f.Width, f.Height)
	}
	need := f.Pixel.RowBytes(f.Width)
	if need <= 0 {
		return nil, fmt.Errorf("%w: pixel format %s", ErrUnsupportedFormat, f.Pixel)
	}
	if f.RowBytes < need || len(f.Data) < f.RowBytes*(f.Height-1)+need {
		return nil, fmt.Errorf("%w: %d bytes for %d rows of %d", ErrShortData, len(f.Data), f.Height, f.RowBytes)
	}

	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := range f.Height {
		src := f.Data[y*f.RowBytes:]
		dst := img.Pix[y*img.Stride:]
		switch f.Pixel {
		case device.PixelFormat8BitBGRA:
			for x := range f.Width {
				s, d := src[x*4:x*4+4], dst[x*4:x*4+4]
				d[0], d[1], d[2], d[3] = s[2], s[1], s[0], s[3]
			}
		case device.PixelFormat8BitARGB:
			for x := range f.Width {
				s, d := src[x*4:x*4+4], dst[x*4:x*4+4]
				d[0], d[1], d[2], d[3] = s[1], s[2], s[3], s[0]
			}
		case device.PixelFormat8BitYUV:
			uyvyRow(dst, src, f.Width)
		default:
			return nil, fmt.Errorf("%w: pixel format %s", ErrUnsupportedFormat, f.Pixel)
		}
	}
	return img, nil
}

// uyvyRow converts one row of packed 4:2:2 UYVY with video-range levels.
func uyvyRow(dst, src []byte, width int) {
	for x := 0; x < width; x += 2 {
		g := src[x*2 : x*2+4]
		u, y0, v, y1 := g[0], g[1], g[2], g[3]
		ycc(dst[x*4:], y0, u, v)
		if x+1 < width {
			ycc(dst[(x+1)*4:], y1, u, v)
		}
	}
}

// ycc writes one BT.709 video-range YCbCr sample as opaque RGBA.
func ycc(dst []byte, y, cb, cr byte) {
	// 16.16 fixed point: 255/219 luma scale, 1.793, 0.213, 0.533, 2.112.
	yy := (int32(y) - 16) * 76309
	u := int32(cb) - 128
	v := int32(cr) - 128
	r := (yy + 117506*v + 1<<15) >> 16
	g := (yy - 13959*u - 34931*v + 1<<15) >> 16
	b := (yy + 138412*u + 1<<15) >> 16
	dst[0], dst[1], dst[2], dst[3] = clamp(r), clamp(g), clamp(b), 0xff
}

func clamp(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// Thumbnail scales img so that it is at most maxWidth pixels wide. Images
// already small enough are returned unchanged.
func Thumbnail(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := max(1, b.Dy()*maxWidth/b.Dx())
	dst := image.NewNRGBA(image.Rect(0, 0, maxWidth, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// Encode writes img in the named file format: "png", "bmp" or "tiff".
func Encode(w io.Writer, img image.Image, format string) error {
	var err error
	switch strings.ToLower(format) {
	case "png":
		err = png.Encode(w, img)
	case "bmp":
		err = bmp.Encode(w, img)
	case "tif", "tiff":
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("%w: file format %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return fmt.Errorf("snapshot: encode %s: %w", format, err)
	}
	return nil
}

// Save writes img to path, choosing the file format from the extension.
func Save(path string, img image.Image) error {
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("snapshot: create file: %w", err)
	}
	if err := Encode(f, img, format); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}
