// Package imaging decodes uploaded photos and re-encodes them as JPEG.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// JPEGQuality matches the quality used for stored results
	JPEGQuality = 95

	// MaxDimension caps the longest side sent to the enhancer
	MaxDimension = 4096

	// ContentType of every normalized image
	ContentType = "image/jpeg"
)

// ErrUnsupported is returned for data no registered decoder understands
var ErrUnsupported = errors.New("unsupported or corrupt image")

// Info describes a decoded image
type Info struct {
	Format string
	Width  int
	Height int
}

// ToJPEG decodes png, jpeg, gif or webp data, flattens transparency onto
// white, downsizes anything larger than MaxDimension and encodes the result
// as JPEG.
func ToJPEG(data []byte) ([]byte, Info, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, Info{}, fmt.Errorf("%w: %w", ErrUnsupported, err)
	}

	bounds := src.Bounds()
	info := Info{Format: format, Width: bounds.Dx(), Height: bounds.Dy()}
	if info.Width == 0 || info.Height == 0 {
		return nil, info, fmt.Errorf("%w: empty image", ErrUnsupported)
	}

	w, h := fit(info.Width, info.Height, MaxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	if w == info.Width && h == info.Height {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, info, fmt.Errorf("encode jpeg: %w", err)
	}

	return buf.Bytes(), info, nil
}

// fit scales w x h down so that neither side exceeds limit
func fit(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		return limit, max(1, h*limit/w)
	}
	return max(1, w*limit/h), limit
}
