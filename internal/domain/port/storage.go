package port

import (
	"context"
	"image"

	"github.com/slidecast/slide-extraction-service/internal/domain/entity"
)

// SlideStore persists the extraction output: source video download plus
// per-slide images and one metadata document per video.
type SlideStore interface {
	DownloadVideo(ctx context.Context, objectKey string, destPath string) error
	UploadSlideImage(ctx context.Context, objectKey string, img image.Image, format string, quality int) error
	UploadMetadata(ctx context.Context, objectKey string, doc entity.ExtractionMetadata) error
}
