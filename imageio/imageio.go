// Package imageio converts image files to and from the flat sample
// buffers used by stegpack.
//
// Decoded images are normalized to 8-bit, 3 channel buffers in BGR order,
// alpha dropped. This is the layout OpenCV produces for colour images, so
// files written by OpenCV based tools share the same bit positions.
//
// Hidden bits only survive lossless formats. Any registered format can be
// read as a cover image, but Encode refuses lossy ones.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	// Cover images may arrive in any of these formats
	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/justicz/stegpack"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrLossyFormat       = errors.New("format would destroy hidden bits")
	ErrUnsupportedLayout = errors.New("unsupported channel layout")
)

// Format names an image file format
type Format string

const (
	PNG  Format = "png"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
	JPEG Format = "jpeg"
	GIF  Format = "gif"
	WebP Format = "webp"
)

// Lossless reports whether f can carry hidden bits
func (f Format) Lossless() bool {
	switch f {
	case PNG, BMP, TIFF:
		return true
	}
	return false
}

// ParseFormat accepts a format name or common file extension
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "png":
		return PNG, nil
	case "bmp", "dib":
		return BMP, nil
	case "tif", "tiff":
		return TIFF, nil
	case "jpg", "jpeg", "jpe":
		return JPEG, nil
	case "gif":
		return GIF, nil
	case "webp":
		return WebP, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// FormatFromPath picks the format from a file name's extension
func FormatFromPath(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension", ErrUnsupportedFormat, path)
	}
	return ParseFormat(ext)
}

// Decode reads an image in any registered format and returns its
// normalized sample buffer
func Decode(r io.Reader) (*stegpack.PixelBuffer, Format, error) {
	img, name, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("decoding image: %w", err)
	}

	format, err := ParseFormat(name)
	if err != nil {
		return nil, "", err
	}

	return FromImage(img), format, nil
}

// Encode writes pb to w in a lossless format
func Encode(w io.Writer, pb *stegpack.PixelBuffer, format Format) error {
	if !format.Lossless() {
		return fmt.Errorf("%w: %s", ErrLossyFormat, format)
	}

	img, err := ToImage(pb)
	if err != nil {
		return err
	}

	switch format {
	case PNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(w, img)
	case BMP:
		err = bmp.Encode(w, img)
	case TIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	}
	if err != nil {
		return fmt.Errorf("encoding %s: %w", format, err)
	}

	return nil
}

// FromImage flattens img into a 3 channel BGR buffer
func FromImage(src image.Image) *stegpack.PixelBuffer {
	img := toNRGBA(src)

	width, height := img.Rect.Dx(), img.Rect.Dy()
	samples := make([]byte, 0, width*height*3)
	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for x := 0; x < len(row); x += 4 {
			samples = append(samples, row[x+2], row[x+1], row[x])
		}
	}

	return &stegpack.PixelBuffer{
		Width:    width,
		Height:   height,
		Channels: 3,
		Samples:  samples,
	}
}

// toNRGBA returns src as an NRGBA image anchored at the origin. NRGBA
// sources are used as is so fully transparent pixels keep their colour.
func toNRGBA(src image.Image) *image.NRGBA {
	if img, ok := src.(*image.NRGBA); ok && img.Rect.Min == (image.Point{}) {
		return img
	}

	// convert to NRGBA so colour values are not premultiplied
	b := src.Bounds()
	img := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(img, img.Bounds(), src, b.Min, draw.Src)
	return img
}

// ToImage rebuilds an image from a gray (1), BGR (3) or BGRA (4) buffer.
// Gray and BGR pixels come out opaque.
func ToImage(pb *stegpack.PixelBuffer) (*image.NRGBA, error) {
	if err := pb.Validate(); err != nil {
		return nil, err
	}
	if pb.Channels != 1 && pb.Channels != 3 && pb.Channels != 4 {
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedLayout, pb.Channels)
	}

	img := image.NewNRGBA(image.Rect(0, 0, pb.Width, pb.Height))
	for y := 0; y < pb.Height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+pb.Width*4]
		src := pb.Samples[y*pb.Width*pb.Channels : (y+1)*pb.Width*pb.Channels]
		for x := 0; x < pb.Width; x++ {
			px := row[x*4 : x*4+4]
			s := src[x*pb.Channels : (x+1)*pb.Channels]
			switch pb.Channels {
			case 1:
				px[0], px[1], px[2], px[3] = s[0], s[0], s[0], 0xFF
			case 3:
				px[0], px[1], px[2], px[3] = s[2], s[1], s[0], 0xFF
			case 4:
				px[0], px[1], px[2], px[3] = s[2], s[1], s[0], s[3]
			}
		}
	}

	return img, nil
}
