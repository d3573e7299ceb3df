// Package depthmap converts between depth buffers and images.
//
// Depth is stored as one float32 per texel in [0, 1]. Images are read
// through their luminance: 16-bit grayscale keeps full precision, other
// models are converted with the standard color.Gray16Model.
package depthmap

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// I/O errors.
var (
	// ErrUnsupportedFormat is returned when the image format is not supported.
	ErrUnsupportedFormat = errors.New("depthmap: unsupported format")

	// ErrEmptyData is returned when image data is empty.
	ErrEmptyData = errors.New("depthmap: empty data")

	// ErrSizeMismatch is returned when texel data does not match the dimensions.
	ErrSizeMismatch = errors.New("depthmap: data does not match dimensions")
)

// Depth is a depth buffer in row-major order.
type Depth struct {
	Width  int
	Height int
	Data   []float32
}

// At returns the depth at (x, y).
func (d *Depth) At(x, y int) float32 {
	return d.Data[y*d.Width+x]
}

// Load loads a depth image from the given file path. The format is
// detected from content (see Decode); the extension is ignored.
func Load(path string) (*Depth, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("depthmap: open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Decode(f)
}

// LoadFromBytes decodes a depth image from a byte slice, auto-detecting the format.
func LoadFromBytes(data []byte) (*Depth, error) {
	if len(data) == 0 {
		return nil, ErrEmptyData
	}
	return Decode(bytes.NewReader(data))
}

// Signatures of the self-identifying formats. TGA has no signature and is
// the fallback.
var (
	pngMagic = []byte("\x89PNG\r\n\x1a\n")
	bmpMagic = []byte("BM")
)

// Decode decodes a depth image from the given reader. PNG and BMP are
// recognized by their signature; anything else is decoded as TGA.
//
// image.Decode is not used: TGA registers an empty magic string, which
// matches every stream.
func Decode(r io.Reader) (*Depth, error) {
	br := bufio.NewReader(r)
	magic, _ := br.Peek(len(pngMagic))
	if len(magic) == 0 {
		return nil, ErrEmptyData
	}

	var (
		img image.Image
		err error
	)
	switch {
	case bytes.HasPrefix(magic, pngMagic):
		if img, err = png.Decode(br); err != nil {
			return nil, fmt.Errorf("depthmap: decode PNG: %w", err)
		}
	case bytes.HasPrefix(magic, bmpMagic):
		if img, err = bmp.Decode(br); err != nil {
			return nil, fmt.Errorf("depthmap: decode BMP: %w", err)
		}
	default:
		if img, err = tga.Decode(br); err != nil {
			return nil, fmt.Errorf("%w: not PNG or BMP, TGA decode: %w", ErrUnsupportedFormat, err)
		}
	}
	return FromImage(img), nil
}

// FromImage reads depth from the luminance of img.
func FromImage(img image.Image) *Depth {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	d := &Depth{Width: width, Height: height, Data: make([]float32, width*height)}

	// Fast path for 16-bit grayscale
	if g, ok := img.(*image.Gray16); ok {
		for y := range height {
			for x := range width {
				d.Data[y*width+x] = float32(g.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y) / 0xffff
			}
		}
		return d
	}

	for y := range height {
		for x := range width {
			c := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			d.Data[y*width+x] = float32(c.Y) / 0xffff
		}
	}
	return d
}

// ToImage converts texels to a 16-bit grayscale image. Values are clamped
// to [0, 1].
func ToImage(data []float32, width, height int) (*image.Gray16, error) {
	if width <= 0 || height <= 0 || len(data) != width*height {
		return nil, fmt.Errorf("%w: %d texels for %dx%d", ErrSizeMismatch, len(data), width, height)
	}
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			v := min(max(data[y*width+x], 0), 1)
			img.SetGray16(x, y, color.Gray16{Y: uint16(v*0xffff + 0.5)})
		}
	}
	return img, nil
}

// Upscale enlarges img by an integer factor with nearest-neighbor sampling,
// so every texel stays a solid block and no extrema are blended.
func Upscale(img image.Image, factor int) image.Image {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	dst := image.NewGray16(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Save writes img to path. The format is chosen by extension: .webp
// (lossless) or .png.
func Save(path string, img image.Image) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("depthmap: create file: %w", err)
	}
	if err := Encode(f, img, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Encode writes img in the named format ("webp" or "png").
func Encode(w io.Writer, img image.Image, format string) error {
	switch format {
	case "webp":
		if err := nativewebp.Encode(w, img, nil); err != nil {
			return fmt.Errorf("depthmap: encode WebP: %w", err)
		}
	case "png":
		if err := png.Encode(w, img); err != nil {
			return fmt.Errorf("depthmap: encode PNG: %w", err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return nil
}
