package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/slidecast/slide-extraction-service/internal/domain/entity"
)

// Prober reads duration, resolution and frame rate with ffprobe.
type Prober struct{}

func NewProber() *Prober {
	return &Prober{}
}

func (p *Prober) Probe(ctx context.Context, videoPath string) (entity.VideoInfo, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return entity.VideoInfo{}, fmt.Errorf("%w: %s: %v", entity.ErrInputVideo, videoPath, err)
	}

	info := entity.VideoInfo{Filename: filepath.Base(videoPath)}

	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1",
		videoPath,
	).Output()
	if err != nil {
		return entity.VideoInfo{}, fmt.Errorf("%w: ffprobe %s: %v", entity.ErrInputVideo, videoPath, err)
	}

	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "duration":
			info.DurationSeconds, _ = strconv.ParseFloat(value, 64)
		case "width":
			info.Width, _ = strconv.Atoi(value)
		case "height":
			info.Height, _ = strconv.Atoi(value)
		case "r_frame_rate":
			info.FPS = parseFrameRate(value)
		}
	}

	if info.DurationSeconds <= 0 {
		return entity.VideoInfo{}, fmt.Errorf("%w: %s reports no duration", entity.ErrInputVideo, videoPath)
	}
	return info, nil
}

// parseFrameRate handles ffprobe's rational notation, e.g. "30000/1001".
func parseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
