package detector

import (
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slidecast/slide-extraction-service/internal/domain/entity"
)

func testConfig() Config {
	return Config{
		SimilarityThreshold:    0.75,
		MinSlideDuration:       3.0,
		OCRConfidenceThreshold: 0.70,
		IncrementalMerge:       true,
	}
}

type scriptedFrame struct {
	tsMS       int64
	hash       string
	text       string
	confidence float64
}

// runScript feeds frames through a segmenter with a recognizer that replays
// the scripted OCR results, and returns the flushed slides plus the number of
// OCR invocations.
func runScript(t *testing.T, cfg Config, script []scriptedFrame) ([]entity.Slide, int) {
	t.Helper()

	seg, err := NewSegmenter(cfg, len(script))
	require.NoError(t, err)

	ocrCalls := 0
	for _, sf := range script {
		sf := sf
		frame := entity.Frame{Image: image.NewGray(image.Rect(0, 0, 4, 4)), TimestampMS: sf.tsMS}
		err := seg.Process(frame, sf.hash, func(entity.Frame) (entity.OCRResult, error) {
			ocrCalls++
			return entity.OCRResult{Text: sf.text, Confidence: sf.confidence}, nil
		})
		require.NoError(t, err)
	}
	return seg.Flush(), ocrCalls
}

func TestSegmenterTwoSlides(t *testing.T) {
	// Synthetic 10-second video at 1 fps: five frames of "Slide One", five of
	// "Slide Two".
	var script []scriptedFrame
	for i := 0; i < 10; i++ {
		text := "Slide One"
		if i >= 5 {
			text = "Slide Two"
		}
		script = append(script, scriptedFrame{
			tsMS:       int64(i) * 1000,
			hash:       fmt.Sprintf("h%d", i),
			text:       text,
			confidence: 0.9,
		})
	}

	slides, _ := runScript(t, testConfig(), script)
	require.Len(t, slides, 2)

	assert.Equal(t, int64(0), slides[0].StartTimeMS)
	assert.Equal(t, int64(5000), slides[0].EndTimeMS)
	assert.Equal(t, "Slide One", slides[0].ExtractedText)

	assert.Equal(t, int64(5000), slides[1].StartTimeMS)
	assert.Equal(t, int64(9000), slides[1].EndTimeMS)
	assert.Equal(t, "Slide Two", slides[1].ExtractedText)
}

func TestHashFilterSkipsOCR(t *testing.T) {
	// Frames 1-4 and 6-9 repeat the previous frame's hash, so only the two
	// distinct frames are recognized. This assumes same hash implies same
	// visible text; the filter is a throughput optimization bought with that
	// assumption, and a collision would stretch a slide rather than split it.
	var script []scriptedFrame
	for i := 0; i < 10; i++ {
		text, hash := "Slide One", "hash-a"
		if i >= 5 {
			text, hash = "Slide Two", "hash-b"
		}
		script = append(script, scriptedFrame{
			tsMS:       int64(i) * 1000,
			hash:       hash,
			text:       text,
			confidence: 0.9,
		})
	}

	slides, ocrCalls := runScript(t, testConfig(), script)
	assert.Equal(t, 2, ocrCalls)
	require.Len(t, slides, 2)
	assert.Equal(t, int64(5000), slides[0].EndTimeMS)
	assert.Equal(t, int64(9000), slides[1].EndTimeMS)
}

func TestMinimumDurationGate(t *testing.T) {
	// The first slide spans only 2000ms before the boundary and is dropped;
	// the second spans 3500ms and survives.
	script := []scriptedFrame{
		{0, "h0", "Brief transition screen", 0.9},
		{2000, "h1", "Main lecture content begins here", 0.9},
		{5500, "h2", "Main lecture content begins here", 0.9},
	}

	slides, _ := runScript(t, testConfig(), script)
	require.Len(t, slides, 1)
	assert.Equal(t, "Main lecture content begins here", slides[0].ExtractedText)
	assert.Equal(t, int64(2000), slides[0].StartTimeMS)
	assert.Equal(t, int64(5500), slides[0].EndTimeMS)
}

func TestNoiseExtendsWithoutClosing(t *testing.T) {
	// A low-confidence read and an empty read in the middle of a slide extend
	// its end time but leave its text untouched.
	script := []scriptedFrame{
		{0, "h0", "Stable slide text", 0.9},
		{1000, "h1", "garbled read", 0.2},
		{2000, "h2", "", 0.9},
		{3000, "h3", "Stable slide text", 0.9},
	}

	slides, _ := runScript(t, testConfig(), script)
	require.Len(t, slides, 1)
	assert.Equal(t, "Stable slide text", slides[0].ExtractedText)
	assert.Equal(t, int64(0), slides[0].StartTimeMS)
	assert.Equal(t, int64(3000), slides[0].EndTimeMS)
}

func TestNoiseOnlyStreamEmitsNothing(t *testing.T) {
	script := []scriptedFrame{
		{0, "h0", "", 0.9},
		{1000, "h1", "static", 0.1},
		{2000, "h2", "", 0.0},
	}
	slides, _ := runScript(t, testConfig(), script)
	assert.Empty(t, slides)
}

func TestIncrementalRevealMergesAndKeepsCompleteText(t *testing.T) {
	full := "Topics:\n- Machine Learning\n- Deep Learning\n- Neural Networks\n- Reinforcement Learning"
	script := []scriptedFrame{
		{0, "h0", "Topics:\n- Machine Learning", 0.85},
		{2000, "h1", full, 0.92},
		{6000, "h2", full, 0.92},
	}

	slides, _ := runScript(t, testConfig(), script)
	require.Len(t, slides, 1)
	// The emitted slide carries the most complete rendition, its confidence,
	// and spans the whole reveal.
	assert.Equal(t, full, slides[0].ExtractedText)
	assert.Equal(t, 0.92, slides[0].OCRConfidence)
	assert.Equal(t, int64(0), slides[0].StartTimeMS)
	assert.Equal(t, int64(6000), slides[0].EndTimeMS)
}

func TestIncrementalMergeDisabledSplits(t *testing.T) {
	cfg := testConfig()
	cfg.IncrementalMerge = false

	full := "Topics:\n- Machine Learning\n- Deep Learning\n- Neural Networks\n- Reinforcement Learning"
	script := []scriptedFrame{
		{0, "h0", "Topics:\n- Machine Learning", 0.85},
		{4000, "h1", full, 0.92},
		{8000, "h2", full, 0.92},
	}

	slides, _ := runScript(t, cfg, script)
	require.Len(t, slides, 2)
	assert.Equal(t, "Topics:\n- Machine Learning", slides[0].ExtractedText)
	assert.Equal(t, full, slides[1].ExtractedText)
}

func TestFlushClosesOpenSlide(t *testing.T) {
	script := []scriptedFrame{
		{0, "h0", "Only slide", 0.9},
		{4000, "h1", "Only slide", 0.9},
	}
	slides, _ := runScript(t, testConfig(), script)
	require.Len(t, slides, 1)

	// A second flush of an idle segmenter adds nothing.
	seg, err := NewSegmenter(testConfig(), 0)
	require.NoError(t, err)
	assert.Empty(t, seg.Flush())
}

func TestRecognizeErrorPropagates(t *testing.T) {
	seg, err := NewSegmenter(testConfig(), 1)
	require.NoError(t, err)

	boom := errors.New("engine crashed")
	err = seg.Process(entity.Frame{TimestampMS: 0}, "h0", func(entity.Frame) (entity.OCRResult, error) {
		return entity.OCRResult{}, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestProgressSnapshot(t *testing.T) {
	script := []scriptedFrame{
		{0, "h0", "First slide content", 0.9},
		{1000, "h0", "First slide content", 0.9},
		{2000, "h1", "garbled", 0.2},
		{3000, "h2", "Completely different second topic", 0.9},
	}

	seg, err := NewSegmenter(testConfig(), 8)
	require.NoError(t, err)
	for _, sf := range script {
		sf := sf
		require.NoError(t, seg.Process(
			entity.Frame{TimestampMS: sf.tsMS},
			sf.hash,
			func(entity.Frame) (entity.OCRResult, error) {
				return entity.OCRResult{Text: sf.text, Confidence: sf.confidence}, nil
			},
		))
	}

	p := seg.Progress()
	assert.Equal(t, 4, p.FrameCount)
	assert.Equal(t, 8, p.TotalFrames)
	assert.InDelta(t, 50.0, p.Percent, 1e-9)
	assert.Equal(t, 1, p.SkippedHash)
	assert.Equal(t, 1, p.SkippedNoise)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"similarity zero", func(c *Config) { c.SimilarityThreshold = 0 }},
		{"similarity above one", func(c *Config) { c.SimilarityThreshold = 1.5 }},
		{"confidence negative", func(c *Config) { c.OCRConfidenceThreshold = -0.1 }},
		{"confidence above one", func(c *Config) { c.OCRConfidenceThreshold = 1.1 }},
		{"negative duration", func(c *Config) { c.MinSlideDuration = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, entity.ErrConfiguration)

			_, err = NewSegmenter(cfg, 0)
			assert.ErrorIs(t, err, entity.ErrConfiguration)
		})
	}

	assert.NoError(t, testConfig().Validate())
}

func TestFinalize(t *testing.T) {
	slides := []entity.Slide{
		{StartTimeMS: 0, EndTimeMS: 5000, ExtractedText: "a"},
		{StartTimeMS: 5000, EndTimeMS: 9500, ExtractedText: "b"},
	}

	out := Finalize(slides)
	require.Len(t, out, 2)

	assert.Equal(t, "00:00:00", out[0].StartTime)
	assert.Equal(t, "00:00:05", out[0].EndTime)
	assert.Equal(t, 5.0, out[0].DurationSeconds)
	assert.Equal(t, 1, out[0].Sequence)

	assert.Equal(t, "00:00:05", out[1].StartTime)
	assert.Equal(t, "00:00:09", out[1].EndTime)
	assert.Equal(t, 4.5, out[1].DurationSeconds)
	assert.Equal(t, 2, out[1].Sequence)

	// Inputs are not mutated.
	assert.Zero(t, slides[0].Sequence)
}
