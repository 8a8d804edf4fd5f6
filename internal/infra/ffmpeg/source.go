// Package ffmpeg samples video frames and probes video metadata by shelling
// out to ffmpeg/ffprobe, the same way the rest of the pipeline's media tooling
// does.
package ffmpeg

import (
	"context"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/slidecast/slide-extraction-service/internal/domain/entity"
	"github.com/slidecast/slide-extraction-service/internal/domain/port"
)

// Source extracts frames at a fixed sample rate into a job's working
// directory and streams them back in timestamp order.
type Source struct {
	logger *zap.Logger
}

func NewSource(logger *zap.Logger) *Source {
	return &Source{logger: logger}
}

// Open runs the extraction for videoPath and returns a lazy stream over the
// sampled frames. Timestamps are derived from the frame index and the sample
// rate; requesting a rate above the native frame rate yields every native
// frame (ffmpeg clamps the filter).
func (s *Source) Open(ctx context.Context, videoPath, workDir string, sampleRate float64) (port.FrameStream, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %v must be positive", entity.ErrConfiguration, sampleRate)
	}

	framesDir := filepath.Join(workDir, "frames")
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create frames dir: %w", err)
	}

	// Intermediate frames are PNG: lossless, so OCR never fights JPEG
	// artifacts on slide text.
	pattern := filepath.Join(framesDir, "frame_%06d.png")
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=%g", sampleRate),
		"-y",
		pattern,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg: %v, output: %s", entity.ErrInputVideo, err, out)
	}

	paths, err := filepath.Glob(filepath.Join(framesDir, "frame_*.png"))
	if err != nil {
		return nil, fmt.Errorf("glob frames: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no frames extracted", entity.ErrInputVideo)
	}
	sort.Strings(paths)

	s.logger.Info("frames extracted",
		zap.Int("count", len(paths)),
		zap.Float64("sample_rate", sampleRate),
	)

	return &frameStream{paths: paths, sampleRate: sampleRate}, nil
}

// frameStream lazily decodes extracted frames one at a time. It is finite,
// ordered by strictly increasing timestamp, and not restartable.
type frameStream struct {
	paths      []string
	sampleRate float64
	next       int
}

func (f *frameStream) Next(ctx context.Context) (entity.Frame, bool, error) {
	if err := ctx.Err(); err != nil {
		return entity.Frame{}, false, err
	}
	if f.next >= len(f.paths) {
		return entity.Frame{}, false, nil
	}

	path := f.paths[f.next]
	idx := f.next
	f.next++

	file, err := os.Open(path)
	if err != nil {
		return entity.Frame{}, false, fmt.Errorf("%w: open frame %s: %v", entity.ErrInputVideo, path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return entity.Frame{}, false, fmt.Errorf("%w: decode frame %s: %v", entity.ErrInputVideo, path, err)
	}

	return entity.Frame{
		Image:       img,
		TimestampMS: int64(float64(idx) / f.sampleRate * 1000.0),
	}, true, nil
}

func (f *frameStream) Count() int {
	return len(f.paths)
}

func (f *frameStream) Close() error {
	f.next = len(f.paths)
	return nil
}
