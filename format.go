package capture

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/gg-capture/device"
	"github.com/gogpu/gg-capture/transfer"
)

// Frame buffer cache size bounds.
const (
	DefaultCacheSize = 8
	MaxCacheSize     = 32
)

// Format is a parsed capture format.
type Format struct {
	Mode   device.DisplayMode
	Pixel  device.PixelFormat
	Stereo bool

	// CacheSize is the frame buffer ceiling of the allocator.
	CacheSize int
}

// ParseFormat parses "<displayMode>/<pixelFormat>[/3D][:<cacheSize>]",
// for example "HD1080p24/2vuy" or "HD720p60/v210/3D:12".
func ParseFormat(s string) (Format, error) {
	f := Format{CacheSize: DefaultCacheSize}

	spec, cache, hasCache := strings.Cut(s, ":")
	if hasCache {
		n, err := strconv.Atoi(cache)
		if err != nil || n < 1 || n > MaxCacheSize {
			return Format{}, fmt.Errorf("%w: cache size %q not in 1..%d", ErrInvalidFormat, cache, MaxCacheSize)
		}
		f.CacheSize = n
	}

	parts := strings.Split(spec, "/")
	if len(parts) < 2 || len(parts) > 3 {
		return Format{}, fmt.Errorf("%w: %q: want <mode>/<pixel>[/3D][:<cache>]", ErrInvalidFormat, s)
	}

	mode, ok := device.LookupDisplayMode(parts[0])
	if !ok {
		return Format{}, fmt.Errorf("%w: unknown display mode %q", ErrInvalidFormat, parts[0])
	}
	f.Mode = mode

	pixel, ok := device.LookupPixelFormat(parts[1])
	if !ok {
		return Format{}, fmt.Errorf("%w: unknown pixel format %q", ErrInvalidFormat, parts[1])
	}
	f.Pixel = pixel

	if len(parts) == 3 {
		if parts[2] != "3D" {
			return Format{}, fmt.Errorf("%w: unknown option %q", ErrInvalidFormat, parts[2])
		}
		f.Stereo = true
	}
	return f, nil
}

// String returns the format in the form accepted by ParseFormat.
func (f Format) String() string {
	var b strings.Builder
	b.WriteString(f.Mode.Name)
	b.WriteByte('/')
	b.WriteString(f.Pixel.String())
	if f.Stereo {
		b.WriteString("/3D")
	}
	if f.CacheSize != DefaultCacheSize {
		fmt.Fprintf(&b, ":%d", f.CacheSize)
	}
	return b.String()
}

// DescribeTexture derives the frame layout for a format. The stride of
// 12-bit RGB formats is not known up front; those descriptors are
// incomplete until CompleteFromRowBytes is called with the first frame.
func DescribeTexture(f Format) transfer.TextureDescriptor {
	d := transfer.TextureDescriptor{
		Height: f.Mode.Height,
		Layout: transfer.TexelRGBA8,
		Stereo: f.Stereo,
	}
	switch f.Pixel {
	case device.PixelFormat8BitYUV:
		d.Component = transfer.ComponentUnsignedByte
	case device.PixelFormat8BitARGB:
		d.Component = transfer.ComponentUnsignedByte
	case device.PixelFormat8BitBGRA:
		d.Component = transfer.ComponentUnsignedByte
		d.Layout = transfer.TexelBGRA8
	case device.PixelFormat10BitYUV, device.PixelFormat10BitRGB,
		device.PixelFormat10BitRGBX, device.PixelFormat10BitRGBXLE:
		d.Component = transfer.ComponentUInt2101010
	case device.PixelFormat12BitRGB, device.PixelFormat12BitRGBLE:
		d.Component = transfer.ComponentPacked12
	}

	if stride := f.Pixel.RowBytes(f.Mode.Width); stride > 0 {
		d.StrideBytes = stride
		d.ByteSize = stride * d.Height
		d.Width = stride / d.Layout.BytesPerTexel()
	}
	return d
}
