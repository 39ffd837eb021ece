package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 1280
	DefaultQuality      = 85
	// DefaultMaxPixels bounds the decoded size of a photo, about 200 MB as RGBA
	DefaultMaxPixels = 50_000_000
)

var (
	ErrEmptyImage        = errors.New("image is empty")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrTooManyPixels     = errors.New("image has too many pixels")
)

// Options controls how photos are prepared before upload
type Options struct {
	MaxDimension int
	Quality      int
	MaxPixels    int
}

// Image is a normalized JPEG ready to be uploaded
type Image struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
	// Format of the decoded source ("jpeg", "png", ...)
	SourceFormat string
}

// Normalize decodes a captured photo, scales it down so the longer side fits
// MaxDimension and re-encodes it as JPEG. Smaller images are never upscaled.
// EXIF orientation is applied and transparent areas become white.
func Normalize(data []byte, opts Options) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = DefaultMaxDimension
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}

	// the header is enough to refuse images that would not fit in memory
	srcWidth, srcHeight, err := Dimensions(data)
	if err != nil {
		return nil, err
	}
	if err := CheckPixels(srcWidth, srcHeight, opts.MaxPixels); err != nil {
		return nil, err
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	bounds := src.Bounds()
	width, height := FitWithin(bounds.Dx(), bounds.Dy(), opts.MaxDimension)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if width != bounds.Dx() || height != bounds.Dy() {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	} else {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	}

	var out image.Image = dst
	if format == "jpeg" {
		out = applyOrientation(dst, readOrientation(data))
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}

	return &Image{
		Data:         buf.Bytes(),
		ContentType:  "image/jpeg",
		Width:        out.Bounds().Dx(),
		Height:       out.Bounds().Dy(),
		SourceFormat: format,
	}, nil
}

// CheckPixels rejects images whose decoded size exceeds maxPixels.
// A non-positive maxPixels means DefaultMaxPixels.
func CheckPixels(width, height, maxPixels int) error {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if int64(width)*int64(height) > int64(maxPixels) {
		return fmt.Errorf("%w: %dx%d exceeds %d", ErrTooManyPixels, width, height, maxPixels)
	}
	return nil
}

// FitWithin returns the largest size no bigger than max on either side
// that keeps the aspect ratio of width x height.
func FitWithin(width, height, max int) (int, int) {
	if width <= 0 || height <= 0 || max <= 0 {
		return width, height
	}
	if width <= max && height <= max {
		return width, height
	}
	if width >= height {
		h := height * max / width
		if h < 1 {
			h = 1
		}
		return max, h
	}
	w := width * max / height
	if w < 1 {
		w = 1
	}
	return w, max
}

// Dimensions reads the width and height without decoding the full image
func Dimensions(data []byte) (int, int, error) {
	if len(data) == 0 {
		return 0, 0, ErrEmptyImage
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return cfg.Width, cfg.Height, nil
}
