// Package imaging converts reference images and saved artifacts into the
// base64 JPEG payloads the worker protocol and task previews expect.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif" // register decoders for the formats workers upload
	"image/jpeg"
	_ "image/png"
	"os"
	"strings"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultMaxRefBytes is the size budget for a compressed reference image.
const DefaultMaxRefBytes = 768 * 1024

// Processor re-encodes images as JPEG within a byte budget.
type Processor struct {
	MaxRefBytes int
}

// NewProcessor returns a Processor with the default reference-image budget.
func NewProcessor() *Processor {
	return &Processor{MaxRefBytes: DefaultMaxRefBytes}
}

// IsInlinePayload reports whether s already carries base64 image data rather
// than a filesystem path. JPEG payloads start with "/9j/", PNG with "iVBOR".
func IsInlinePayload(s string) bool {
	return strings.HasPrefix(s, "/9j/") || strings.HasPrefix(s, "iVBOR")
}

// CompressFileToBase64 reads an image file and returns it as base64 JPEG no
// larger than MaxRefBytes. Quality is stepped down first, then the image is
// scaled down; if even the smallest rendition is over budget, it is returned
// anyway.
func (p *Processor) CompressFileToBase64(path string) (string, error) {
	src, err := decodeFile(path)
	if err != nil {
		return "", err
	}
	flat := flatten(src)

	var buf bytes.Buffer
	for q := 95; q > 5; q -= 5 {
		buf.Reset()
		if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: q}); err != nil {
			return "", fmt.Errorf("encode %s: %w", path, err)
		}
		if buf.Len() <= p.MaxRefBytes {
			return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
		}
	}

	b := flat.Bounds()
	for scale := 0.9; scale > 0.1; scale -= 0.1 {
		w := int(float64(b.Dx()) * scale)
		h := int(float64(b.Dy()) * scale)
		if w < 1 || h < 1 {
			break
		}
		resized := scaleTo(flat, w, h)
		buf.Reset()
		if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
			return "", fmt.Errorf("encode %s: %w", path, err)
		}
		if buf.Len() <= p.MaxRefBytes {
			return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
		}
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ThumbnailBase64 returns a base64 JPEG thumbnail of the image at path that
// fits within maxW x maxH, preserving aspect ratio. Images already within
// bounds are not enlarged.
func (p *Processor) ThumbnailBase64(path string, maxW, maxH int) (string, error) {
	src, err := decodeFile(path)
	if err != nil {
		return "", err
	}
	flat := flatten(src)

	b := flat.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > maxW || h > maxH {
		ratio := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
		w = max(int(float64(w)*ratio), 1)
		h = max(int(float64(h)*ratio), 1)
		flat = scaleTo(flat, w, h)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: 85}); err != nil {
		return "", fmt.Errorf("encode thumbnail %s: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path) //nolint:gosec // G304: paths come from task records
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// flatten composites the image over a white background, dropping any alpha
// channel so the result encodes cleanly as JPEG.
func flatten(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

func scaleTo(src *image.RGBA, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}
