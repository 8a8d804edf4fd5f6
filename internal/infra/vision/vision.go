// Package vision provides the image-side helpers of the pipeline: perceptual
// hashing for the cheap identity pre-filter and frame preprocessing for OCR.
package vision

import (
	"fmt"
	"image"
	"image/color"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
)

// Hasher computes fixed-size perceptual hash tokens (64-bit pHash). Tokens of
// visually unchanged frames compare equal; minor noise and sub-pixel shifts do
// not alter the token.
type Hasher struct{}

func NewHasher() *Hasher {
	return &Hasher{}
}

func (h *Hasher) Hash(img image.Image) (string, error) {
	ph, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", fmt.Errorf("perception hash: %w", err)
	}
	return ph.ToString(), nil
}

// PrepareForOCR normalizes a frame for text recognition: grayscale, a light
// gaussian blur to knock down sensor noise, then an adaptive threshold so text
// keeps contrast under uneven slide lighting.
func PrepareForOCR(img image.Image) image.Image {
	gray := imaging.Grayscale(img)
	blurred := imaging.Blur(gray, 0.8)
	return adaptiveThreshold(blurred, 11, 2)
}

// adaptiveThreshold binarizes a grayscale image against the mean of each
// pixel's block x block neighborhood minus a constant c, the standard
// adaptive-mean scheme for document images.
func adaptiveThreshold(img *image.NRGBA, block, c int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	// Summed-area table for O(1) neighborhood means.
	integral := make([]int64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var rowSum int64
		for x := 0; x < w; x++ {
			px := img.NRGBAAt(bounds.Min.X+x, bounds.Min.Y+y)
			rowSum += int64(px.R)
			integral[(y+1)*(w+1)+x+1] = integral[y*(w+1)+x+1] + rowSum
		}
	}

	r := block / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0, y0 := max(0, x-r), max(0, y-r)
			x1, y1 := min(w-1, x+r), min(h-1, y+r)
			count := int64((x1 - x0 + 1) * (y1 - y0 + 1))

			sum := integral[(y1+1)*(w+1)+x1+1] -
				integral[y0*(w+1)+x1+1] -
				integral[(y1+1)*(w+1)+x0] +
				integral[y0*(w+1)+x0]
			mean := sum / count

			v := int64(img.NRGBAAt(bounds.Min.X+x, bounds.Min.Y+y).R)
			if v > mean-int64(c) {
				out.SetGray(x, y, color.Gray{Y: 255})
			} else {
				out.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return out
}
