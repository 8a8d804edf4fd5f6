package entity

import "errors"

// Failure taxonomy for a slide extraction run. All three are fatal for the job
// they occur in; low-confidence OCR on a single frame is a segmenter policy,
// not an error, and never surfaces as one of these.
var (
	// ErrInputVideo marks a missing or unreadable source video.
	ErrInputVideo = errors.New("input video unreadable")

	// ErrConfiguration marks an invalid extraction setting. It is returned by
	// config validation before any processing starts.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrEngineUnavailable marks a missing OCR backend. It is returned at
	// engine construction so the worker fails at boot, not on the first job.
	ErrEngineUnavailable = errors.New("ocr engine unavailable")
)
