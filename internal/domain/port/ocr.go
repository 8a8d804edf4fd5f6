package port

import (
	"context"
	"image"

	"github.com/slidecast/slide-extraction-service/internal/domain/entity"
)

// TextRecognizer extracts text plus a normalized confidence from a frame.
// Implementations must fail at construction, not first use, when the
// underlying engine is missing (entity.ErrEngineUnavailable).
type TextRecognizer interface {
	Recognize(ctx context.Context, img image.Image) (entity.OCRResult, error)
}

// FrameHasher produces a fixed-size perceptual hash token. Two frames with the
// same coarse visual structure hash identically.
type FrameHasher interface {
	Hash(img image.Image) (string, error)
}
