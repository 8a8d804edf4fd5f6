package entity

import "image"

// Frame is a sampled video frame with its capture offset from the start of the
// video. Frames are consumed transiently by the hash filter and the OCR engine;
// only the representative frame of the slide being accumulated is retained.
type Frame struct {
	Image       image.Image
	TimestampMS int64
}

// OCRResult is the text recognized on a single frame together with the
// engine's confidence, normalized to [0, 1].
type OCRResult struct {
	Text       string
	Confidence float64
}

// Slide is a closed, immutable slide interval. Instances are produced by the
// segmenter once a boundary is detected and are never mutated afterwards.
type Slide struct {
	Frame         image.Image
	StartTimeMS   int64
	EndTimeMS     int64
	StartTime     string
	EndTime       string
	ExtractedText string
	OCRConfidence float64

	// Filled in by Finalize.
	DurationSeconds float64
	Sequence        int
}

// SlideMetadata is one entry of the metadata document written next to the
// slide images. Field names match the published JSON schema.
type SlideMetadata struct {
	ImageFile     string  `json:"imageFile"`
	StartTime     string  `json:"startTime"`
	EndTime       string  `json:"endTime"`
	StartTimeMS   int64   `json:"startTimeMs"`
	EndTimeMS     int64   `json:"endTimeMs"`
	Duration      float64 `json:"duration"`
	ExtractedText string  `json:"extractedText,omitempty"`
	OCRConfidence float64 `json:"ocrConfidence,omitempty"`
}

// ExtractionMetadata is the top-level metadata document for one video.
type ExtractionMetadata struct {
	VideoFile      string          `json:"videoFile"`
	TotalSlides    int             `json:"totalSlides"`
	ProcessingTime float64         `json:"processingTime"`
	ExtractionDate string          `json:"extractionDate"`
	Slides         []SlideMetadata `json:"slides"`
}

// VideoInfo describes the probed source video.
type VideoInfo struct {
	Filename        string
	DurationSeconds float64
	Width           int
	Height          int
	FPS             float64
}
