package port

import (
	"context"

	"github.com/slidecast/slide-extraction-service/internal/domain/entity"
)

// FrameStream is a lazy, finite, non-restartable sequence of frames ordered by
// strictly increasing timestamp. Next returns false when the stream ends.
type FrameStream interface {
	Next(ctx context.Context) (entity.Frame, bool, error)
	// Count is the total number of frames the stream will yield, for
	// progress reporting.
	Count() int
	Close() error
}

// FrameSource samples a video at the given rate (frames per second of source
// video) into a FrameStream. Rates above the native frame rate yield every
// native frame.
type FrameSource interface {
	Open(ctx context.Context, videoPath, workDir string, sampleRate float64) (FrameStream, error)
}

// VideoProber reads basic metadata from a video file. Missing or unreadable
// files are reported as entity.ErrInputVideo.
type VideoProber interface {
	Probe(ctx context.Context, videoPath string) (entity.VideoInfo, error)
}
