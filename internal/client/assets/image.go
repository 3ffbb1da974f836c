package assets

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/dmitrijs2005/tradebook/internal/common"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 1600
	DefaultMaxBytes     = 1 << 20
)

// DefaultQualities are tried in order until the encoded image fits.
var DefaultQualities = []int{85, 75, 65, 55, 45}

// ImageBudget bounds uploaded attachments.
type ImageBudget struct {
	MaxDimension int
	MaxBytes     int
	Qualities    []int
}

func (b ImageBudget) withDefaults() ImageBudget {
	if b.MaxDimension <= 0 {
		b.MaxDimension = DefaultMaxDimension
	}
	if b.MaxBytes <= 0 {
		b.MaxBytes = DefaultMaxBytes
	}
	if len(b.Qualities) == 0 {
		b.Qualities = DefaultQualities
	}
	return b
}

// NormalizeImage decodes a JPEG, PNG, GIF or WebP image, scales it so the
// longer side is at most MaxDimension, flattens transparency onto white and
// re-encodes it as JPEG, lowering quality until it fits MaxBytes.
func NormalizeImage(blob []byte, budget ImageBudget) ([]byte, error) {
	budget = budget.withDefaults()

	src, format, err := image.Decode(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("%w: unsupported image: %w", common.ErrValidation, err)
	}

	w, h := fitWithin(src.Bounds().Dx(), src.Bounds().Dy(), budget.MaxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	for _, q := range budget.Qualities {
		buf.Reset()
		if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: q}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		if buf.Len() <= budget.MaxBytes {
			return buf.Bytes(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s image exceeds %d bytes at lowest quality", common.ErrValidation, format, budget.MaxBytes)
}

func fitWithin(w, h, max int) (int, int) {
	if w <= max && h <= max {
		return w, h
	}
	if w >= h {
		nh := h * max / w
		if nh < 1 {
			nh = 1
		}
		return max, nh
	}
	nw := w * max / h
	if nw < 1 {
		nw = 1
	}
	return nw, max
}
