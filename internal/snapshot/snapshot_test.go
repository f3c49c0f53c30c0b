// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package snapshot

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/gogpu/gg-capture/device"
)

func TestConvertRGB(t *testing.T) {
	tests := []struct {
		name  string
		pixel device.PixelFormat
		px    [4]byte
	}{
		{"bgra", device.PixelFormat8BitBGRA, [4]byte{30, 20, 10, 255}},
		{"argb", device.PixelFormat8BitARGB, [4]byte{255, 10, 20, 30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Two rows of two pixels with a padded stride.
			data := make([]byte, 2*12)
			for _, off := range []int{0, 4, 12, 16} {
				copy(data[off:], tt.px[:])
			}
			img, err := Convert(Frame{Pixel: tt.pixel, Width: 2, Height: 2, RowBytes: 12, Data: data})
			if err != nil {
				t.Fatal(err)
			}
			want := color.NRGBA{R: 10, G: 20, B: 30, A: 255}
			for y := range 2 {
				for x := range 2 {
					if got := img.NRGBAAt(x, y); got != want {
						t.Errorf("(%d,%d) = %v, want %v", x, y, got, want)
					}
				}
			}
		})
	}
}

func TestConvertUYVYLevels(t *testing.T) {
	tests := []struct {
		y    byte
		want byte
	}{
		{16, 0},
		{235, 255},
		{0, 0},
		{255, 255},
		{126, 128},
	}
	for _, tt := range tests {
		data := []byte{128, tt.y, 128, tt.y}
		img, err := Convert(Frame{Pixel: device.PixelFormat8BitYUV, Width: 2, Height: 1, RowBytes: 4, Data: data})
		if err != nil {
			t.Fatal(err)
		}
		for x := range 2 {
			c := img.NRGBAAt(x, 0)
			if c.R != tt.want || c.G != tt.want || c.B != tt.want || c.A != 255 {
				t.Errorf("Y=%d pixel %d = %v, want gray %d", tt.y, x, c, tt.want)
			}
		}
	}
}

func TestConvertUYVYChroma(t *testing.T) {
	// Strong Cr with mid luma is red-dominant, strong Cb blue-dominant.
	img, err := Convert(Frame{
		Pixel: device.PixelFormat8BitYUV, Width: 4, Height: 1, RowBytes: 8,
		Data: []byte{128, 100, 240, 100, 240, 100, 128, 100},
	})
	if err != nil {
		t.Fatal(err)
	}
	red, blue := img.NRGBAAt(0, 0), img.NRGBAAt(2, 0)
	if red.R <= red.G || red.R <= red.B {
		t.Errorf("Cr=240 gave %v", red)
	}
	if blue.B <= blue.R || blue.B <= blue.G {
		t.Errorf("Cb=240 gave %v", blue)
	}
}

func TestConvertErrors(t *testing.T) {
	if _, err := Convert(Frame{Pixel: device.PixelFormat10BitYUV, Width: 48, Height: 1, RowBytes: 128, Data: make([]byte, 128)}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("v210: %v", err)
	}
	if _, err := Convert(Frame{Pixel: device.PixelFormat12BitRGB, Width: 8, Height: 1, RowBytes: 36, Data: make([]byte, 36)}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("R12B: %v", err)
	}
	if _, err := Convert(Frame{Pixel: device.PixelFormat8BitBGRA, Width: 4, Height: 4, RowBytes: 16, Data: make([]byte, 40)}); !errors.Is(err, ErrShortData) {
		t.Errorf("short data: %v", err)
	}
	if _, err := Convert(Frame{Pixel: device.PixelFormat8BitBGRA, Width: 4, Height: 1, RowBytes: 8, Data: make([]byte, 16)}); !errors.Is(err, ErrShortData) {
		t.Errorf("short stride: %v", err)
	}
}

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 8))
	for y := range 8 {
		for x := range 16 {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 16), G: uint8(y * 32), B: 77, A: 255})
		}
	}
	return img
}

func TestEncode(t *testing.T) {
	src := testImage()
	for _, format := range []string{"png", "bmp", "tiff"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Encode(&buf, src, format); err != nil {
				t.Fatal(err)
			}
			img, name, err := image.Decode(&buf)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if name != format {
				t.Errorf("decoded as %q", name)
			}
			for _, p := range []image.Point{{0, 0}, {15, 7}, {5, 3}} {
				r1, g1, b1, _ := img.At(p.X, p.Y).RGBA()
				r2, g2, b2, _ := src.At(p.X, p.Y).RGBA()
				if r1>>8 != r2>>8 || g1>>8 != g2>>8 || b1>>8 != b2>>8 {
					t.Errorf("pixel %v differs after %s round trip", p, format)
				}
			}
		})
	}
	if err := Encode(&bytes.Buffer{}, src, "gif"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Encode(gif) = %v", err)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.png")
	if err := Save(path, testImage()); err != nil {
		t.Fatal(err)
	}
	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		t.Errorf("stat %s: %v", path, err)
	}

	bad := filepath.Join(dir, "frame.jpg")
	if err := Save(bad, testImage()); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Save(.jpg) = %v", err)
	}
	if _, err := os.Stat(bad); !os.IsNotExist(err) {
		t.Error("failed save left a file behind")
	}
}

func TestThumbnail(t *testing.T) {
	src := testImage()
	if got := Thumbnail(src, 32); got != image.Image(src) {
		t.Error("small image was rescaled")
	}
	th := Thumbnail(src, 4)
	if b := th.Bounds(); b.Dx() != 4 || b.Dy() != 2 {
		t.Errorf("thumbnail bounds %v", b)
	}
}
