// Package detector turns an ordered frame stream into a deduplicated list of
// slides. The segmenter is strictly sequential: every decision depends on the
// previous frame's hash, the open slide and its reference text, so frames must
// arrive in timestamp order and a Segmenter must not be shared across
// goroutines.
package detector

import (
	"fmt"
	"sync/atomic"

	"github.com/slidecast/slide-extraction-service/internal/domain/entity"
	"github.com/slidecast/slide-extraction-service/internal/domain/textsim"
)

// Config carries the segmentation thresholds. Validate before use; the zero
// value is not runnable.
type Config struct {
	// SimilarityThreshold is the hybrid-similarity score below which a frame
	// starts a new slide, in (0, 1].
	SimilarityThreshold float64
	// MinSlideDuration is the minimum lifetime in seconds a slide must span
	// to be emitted at close.
	MinSlideDuration float64
	// OCRConfidenceThreshold gates frames whose recognition confidence is
	// too low to trust, in [0, 1].
	OCRConfidenceThreshold float64
	// IncrementalMerge merges progressively revealed content (bullets
	// appearing one at a time) into a single slide.
	IncrementalMerge bool
}

func (c Config) Validate() error {
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity threshold %v outside (0, 1]", entity.ErrConfiguration, c.SimilarityThreshold)
	}
	if c.OCRConfidenceThreshold < 0 || c.OCRConfidenceThreshold > 1 {
		return fmt.Errorf("%w: ocr confidence threshold %v outside [0, 1]", entity.ErrConfiguration, c.OCRConfidenceThreshold)
	}
	if c.MinSlideDuration < 0 {
		return fmt.Errorf("%w: min slide duration %v is negative", entity.ErrConfiguration, c.MinSlideDuration)
	}
	return nil
}

// Progress is a point-in-time snapshot of a segmentation run. The caller polls
// it; the segmenter never blocks on reporting.
type Progress struct {
	FrameCount  int
	TotalFrames int
	Percent     float64
	SlidesFound int

	// Frames whose text was not considered: SkippedHash counts OCR calls
	// avoided by the perceptual-hash pre-filter, SkippedNoise counts reads
	// discarded as low-confidence or empty.
	SkippedHash  int
	SkippedNoise int
}

// RecognizeFunc extracts text from the current frame. The segmenter invokes it
// only when the perceptual-hash pre-filter has not ruled the frame identical
// to its predecessor.
type RecognizeFunc func(entity.Frame) (entity.OCRResult, error)

// openSlide is the mutable accumulator for the slide currently being built.
// It is distinct from entity.Slide so that emitted slides are immutable.
type openSlide struct {
	frame       entity.Frame
	startTimeMS int64
	endTimeMS   int64
	text        string
	confidence  float64
}

func (o *openSlide) close() entity.Slide {
	return entity.Slide{
		Frame:         o.frame.Image,
		StartTimeMS:   o.startTimeMS,
		EndTimeMS:     o.endTimeMS,
		ExtractedText: o.text,
		OCRConfidence: o.confidence,
	}
}

// Segmenter is the streaming slide-boundary state machine. It has two states:
// idle (no open slide) and accumulating (exactly one open slide).
type Segmenter struct {
	cfg Config

	open     *openSlide
	refText  string
	prevHash string

	slides       []entity.Slide
	frameCount   int
	totalFrames  int
	skippedHash  int
	skippedNoise int

	progress atomic.Pointer[Progress]
}

// NewSegmenter builds a segmenter for a stream of totalFrames frames
// (totalFrames may be 0 when unknown; progress percent is then reported as 0).
func NewSegmenter(cfg Config, totalFrames int) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Segmenter{cfg: cfg, totalFrames: totalFrames}
	s.progress.Store(&Progress{TotalFrames: totalFrames})
	return s, nil
}

// Process consumes one frame in stream order. hash is the frame's perceptual
// hash token; recognize is called at most once, and not at all when hash
// matches the previous frame's. Returned errors come solely from recognize and
// abort the run per the caller's policy.
func (s *Segmenter) Process(frame entity.Frame, hash string, recognize RecognizeFunc) error {
	s.frameCount++
	defer s.updateProgress()

	// Identical visual structure: trust that the visible text is unchanged
	// and skip the OCR call entirely. This trades a sliver of accuracy for
	// throughput; a hash collision would extend the open slide rather than
	// split it.
	if s.prevHash != "" && hash == s.prevHash {
		s.skippedHash++
		if s.open != nil {
			s.open.endTimeMS = frame.TimestampMS
		}
		return nil
	}
	s.prevHash = hash

	res, err := recognize(frame)
	if err != nil {
		return err
	}

	// Low-confidence or empty reads are transient noise: keep the open slide
	// alive without touching its text. A single bad read must never truncate
	// an otherwise good slide.
	if res.Confidence < s.cfg.OCRConfidenceThreshold || res.Text == "" {
		s.skippedNoise++
		if s.open != nil {
			s.open.endTimeMS = frame.TimestampMS
		}
		return nil
	}

	if s.open == nil {
		s.openNew(frame, res)
		return nil
	}

	sim, err := textsim.Similarity(s.refText, res.Text, textsim.MethodHybrid)
	if err != nil {
		return err
	}

	incremental := false
	if s.cfg.IncrementalMerge {
		incremental = textsim.IsIncremental(s.refText, res.Text)
	}

	// Incremental growth wins over the similarity threshold: an early reveal
	// (one bullet vs. four) can have low lexical overlap with its complete
	// form without being a new slide.
	if sim < s.cfg.SimilarityThreshold && !incremental {
		s.open.endTimeMS = frame.TimestampMS
		s.closeOpen()
		s.openNew(frame, res)
		return nil
	}

	s.open.endTimeMS = frame.TimestampMS
	if incremental && len(res.Text) > len(s.refText) {
		// Keep the most complete rendition of a progressively revealed
		// slide: all bullets present rather than the first one.
		s.open.text = res.Text
		s.open.confidence = res.Confidence
		s.open.frame = frame
		s.refText = res.Text
	}
	return nil
}

// Flush closes the slide still open at stream end, applying the same
// minimum-duration gate as any other closure, and returns the chronologically
// ordered slide list. The segmenter must not be reused afterwards.
func (s *Segmenter) Flush() []entity.Slide {
	if s.open != nil {
		s.closeOpen()
		s.open = nil
	}
	s.updateProgress()
	return s.slides
}

// Progress returns the latest snapshot. Safe for concurrent readers.
func (s *Segmenter) Progress() Progress {
	return *s.progress.Load()
}

func (s *Segmenter) openNew(frame entity.Frame, res entity.OCRResult) {
	s.open = &openSlide{
		frame:       frame,
		startTimeMS: frame.TimestampMS,
		endTimeMS:   frame.TimestampMS,
		text:        res.Text,
		confidence:  res.Confidence,
	}
	s.refText = res.Text
}

// closeOpen appends the open slide to the output unless it lived shorter than
// the configured minimum, in which case it is silently dropped.
func (s *Segmenter) closeOpen() {
	duration := float64(s.open.endTimeMS-s.open.startTimeMS) / 1000.0
	if duration >= s.cfg.MinSlideDuration {
		s.slides = append(s.slides, s.open.close())
	}
}

func (s *Segmenter) updateProgress() {
	p := Progress{
		FrameCount:   s.frameCount,
		TotalFrames:  s.totalFrames,
		SlidesFound:  len(s.slides),
		SkippedHash:  s.skippedHash,
		SkippedNoise: s.skippedNoise,
	}
	if s.totalFrames > 0 {
		p.Percent = float64(s.frameCount) / float64(s.totalFrames) * 100.0
	}
	s.progress.Store(&p)
}
