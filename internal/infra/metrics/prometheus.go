package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slides_jobs_processed_total",
		Help: "Total number of extraction jobs processed, by status",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slides_stage_duration_seconds",
		Help:    "Duration of extraction pipeline stages",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slides_frames_processed_total",
		Help: "Total number of sampled frames fed to the segmenter",
	})

	OCRSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slides_ocr_skipped_total",
		Help: "Frames that skipped or discarded OCR, by reason (hash, noise)",
	}, []string{"reason"})

	SlidesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slides_extracted_total",
		Help: "Total number of slides emitted across all jobs",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slides_active_workers",
		Help: "Number of workers currently processing a job",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slides_retry_total",
		Help: "Total number of job retries",
	}, []string{"attempt"})
)
