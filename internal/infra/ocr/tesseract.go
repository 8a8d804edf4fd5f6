// Package ocr wraps the Tesseract engine behind the domain's TextRecognizer
// contract.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"

	"github.com/slidecast/slide-extraction-service/internal/domain/entity"
	"github.com/slidecast/slide-extraction-service/internal/infra/vision"
)

// Engine recognizes slide text with Tesseract. Frames are preprocessed
// (grayscale, blur, adaptive threshold) before recognition. The underlying
// client holds per-call state, so an Engine is sequential; concurrent jobs
// each construct their own.
type Engine struct {
	client *gosseract.Client
	logger *zap.Logger
}

// NewEngine probes the Tesseract installation eagerly and returns
// entity.ErrEngineUnavailable when the native library or the requested
// language data is missing, so callers fail at boot rather than on the first
// frame.
func NewEngine(language string, logger *zap.Logger) (*Engine, error) {
	client := gosseract.NewClient()

	if err := client.SetLanguage(language); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: set language %q: %v", entity.ErrEngineUnavailable, language, err)
	}
	// PSM 6: assume a uniform block of text, the usual shape of a slide.
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: set page segmentation mode: %v", entity.ErrEngineUnavailable, err)
	}

	// Force full initialization with a throwaway recognition; a missing
	// tessdata directory only surfaces here.
	probe := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range probe.Pix {
		probe.Pix[i] = 255
	}
	if err := recognizeRaw(client, probe); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: probe recognition: %v", entity.ErrEngineUnavailable, err)
	}

	logger.Info("ocr engine initialized", zap.String("language", language))
	return &Engine{client: client, logger: logger}, nil
}

// Recognize extracts text from one frame. Confidence is the mean of per-word
// confidences normalized to [0, 1]; words the engine reports with unknown
// (non-positive) confidence are excluded from the mean. Whitespace-only output
// normalizes to the empty string with zero confidence.
func (e *Engine) Recognize(ctx context.Context, img image.Image) (entity.OCRResult, error) {
	if err := ctx.Err(); err != nil {
		return entity.OCRResult{}, err
	}

	prepared := vision.PrepareForOCR(img)

	buf, err := encodePNG(prepared)
	if err != nil {
		return entity.OCRResult{}, fmt.Errorf("encode frame: %w", err)
	}
	if err := e.client.SetImageFromBytes(buf); err != nil {
		return entity.OCRResult{}, fmt.Errorf("set image: %w", err)
	}

	text, err := e.client.Text()
	if err != nil {
		return entity.OCRResult{}, fmt.Errorf("recognize text: %w", err)
	}
	text = CleanText(text)
	if text == "" {
		return entity.OCRResult{}, nil
	}

	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return entity.OCRResult{}, fmt.Errorf("word confidences: %w", err)
	}

	var sum float64
	var n int
	for _, b := range boxes {
		if b.Confidence <= 0 {
			continue
		}
		sum += b.Confidence
		n++
	}
	confidence := 0.0
	if n > 0 {
		confidence = sum / float64(n) / 100.0
	}

	return entity.OCRResult{Text: text, Confidence: confidence}, nil
}

func (e *Engine) Close() error {
	return e.client.Close()
}

// CleanText trims every line and drops blank ones, collapsing OCR output to
// its content lines.
func CleanText(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func recognizeRaw(client *gosseract.Client, img image.Image) error {
	buf, err := encodePNG(img)
	if err != nil {
		return err
	}
	if err := client.SetImageFromBytes(buf); err != nil {
		return err
	}
	_, err = client.Text()
	return err
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
