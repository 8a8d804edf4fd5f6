package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/slidecast/slide-extraction-service/internal/domain/detector"
	"github.com/slidecast/slide-extraction-service/internal/domain/entity"
	"github.com/slidecast/slide-extraction-service/internal/domain/port"
	"github.com/slidecast/slide-extraction-service/internal/infra/metrics"
)

// ExtractSlidesUseCase consumes extraction requests and runs the full
// pipeline: download, probe, frame sampling, slide segmentation,
// deduplication and persistence of images plus metadata.
type ExtractSlidesUseCase struct {
	repo       port.JobRepository
	storage    port.SlideStore
	frames     port.FrameSource
	prober     port.VideoProber
	hasher     port.FrameHasher
	recognizer port.TextRecognizer
	publisher  port.StatusPublisher
	dlq        port.DLQPublisher
	notifier   port.FailureNotifier
	logger     *zap.Logger
	cfg        ExtractSlidesConfig
}

type ExtractSlidesConfig struct {
	TempDir    string
	MaxRetries int

	Detector         detector.Config
	SampleRate       float64
	RemoveDuplicates bool

	ImageFormat       string
	ImageQuality      int
	IncludeTextInJSON bool
}

func NewExtractSlidesUseCase(
	repo port.JobRepository,
	storage port.SlideStore,
	frames port.FrameSource,
	prober port.VideoProber,
	hasher port.FrameHasher,
	recognizer port.TextRecognizer,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ExtractSlidesConfig,
) *ExtractSlidesUseCase {
	return &ExtractSlidesUseCase{
		repo:       repo,
		storage:    storage,
		frames:     frames,
		prober:     prober,
		hasher:     hasher,
		recognizer: recognizer,
		publisher:  publisher,
		dlq:        dlq,
		notifier:   notifier,
		logger:     logger,
		cfg:        cfg,
	}
}

func (uc *ExtractSlidesUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ExtractSlidesUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.ExtractionRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		job = entity.NewJob(msg.UserID, msg.VideoKey, msg.FileSize, uc.cfg.MaxRetries)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		_ = uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded")
		return nil
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}
	uc.publishStatus(ctx, job, log)

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.runPipeline(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}

	metrics.StageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())
	return nil
}

func (uc *ExtractSlidesUseCase) runPipeline(
	ctx context.Context,
	job *entity.Job,
	msg entity.ExtractionRequestMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")
	started := time.Now()

	workDir := filepath.Join(uc.cfg.TempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download the source video.
	dlStart := time.Now()
	dlCtx, spanDl := tracer.Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, "input"+filepath.Ext(msg.VideoKey))
	if err := uc.storage.DownloadVideo(dlCtx, msg.VideoKey, videoPath); err != nil {
		spanDl.End()
		log.Error("failed to download video", zap.Error(err))
		return uc.handleFailure(ctx, job, msg, rawMsg, "download_video: "+err.Error(), log)
	}
	spanDl.End()
	metrics.StageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Probe duration and resolution; an unreadable file fails permanently.
	probeCtx, spanProbe := tracer.Start(ctx, "probe_video")
	info, err := uc.prober.Probe(probeCtx, videoPath)
	spanProbe.End()
	if err != nil {
		log.Error("video probe failed", zap.Error(err))
		if errors.Is(err, entity.ErrInputVideo) {
			return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "probe_video: "+err.Error())
		}
		return uc.handleFailure(ctx, job, msg, rawMsg, "probe_video: "+err.Error(), log)
	}
	log.Info("video probed",
		zap.Float64("duration_secs", info.DurationSeconds),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.Float64("fps", info.FPS),
	)

	// Sample frames and run the segmenter over them in timestamp order.
	segStart := time.Now()
	segCtx, spanSeg := tracer.Start(ctx, "segment_slides")
	slides, frameCount, err := uc.segmentVideo(segCtx, videoPath, workDir, log)
	spanSeg.End()
	if err != nil {
		log.Error("slide segmentation failed", zap.Error(err))
		if errors.Is(err, entity.ErrInputVideo) {
			return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "segment_slides: "+err.Error())
		}
		return uc.handleFailure(ctx, job, msg, rawMsg, "segment_slides: "+err.Error(), log)
	}
	metrics.StageDuration.WithLabelValues("segment").Observe(time.Since(segStart).Seconds())

	slides = detector.Finalize(slides)
	if uc.cfg.RemoveDuplicates {
		before := len(slides)
		slides = detector.Dedupe(slides)
		if dropped := before - len(slides); dropped > 0 {
			log.Info("consecutive duplicate slides removed", zap.Int("dropped", dropped))
		}
	}
	metrics.SlidesExtractedTotal.Add(float64(len(slides)))

	// Persist slide images and the metadata document.
	persistStart := time.Now()
	persistCtx, spanPersist := tracer.Start(ctx, "persist_slides")
	slidesPrefix := fmt.Sprintf("%s/%s", msg.UserID, job.ID.String())
	if err := uc.persistSlides(persistCtx, slidesPrefix, info, slides, time.Since(started)); err != nil {
		spanPersist.End()
		log.Error("failed to persist slides", zap.Error(err))
		return uc.handleFailure(ctx, job, msg, rawMsg, "persist_slides: "+err.Error(), log)
	}
	spanPersist.End()
	metrics.StageDuration.WithLabelValues("persist").Observe(time.Since(persistStart).Seconds())

	job.MarkCompleted(slidesPrefix, len(slides), frameCount, info.DurationSeconds)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}
	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()

	uc.publishStatus(ctx, job, log)

	log.Info("job completed successfully",
		zap.Int("slide_count", len(slides)),
		zap.Int("frame_count", frameCount),
		zap.String("slides_prefix", slidesPrefix),
	)

	return nil
}

// segmentVideo streams sampled frames through the hash filter, the OCR engine
// and the segmenter. The loop is strictly sequential; every decision depends
// on the previous frame's state.
func (uc *ExtractSlidesUseCase) segmentVideo(ctx context.Context, videoPath, workDir string, log *zap.Logger) ([]entity.Slide, int, error) {
	stream, err := uc.frames.Open(ctx, videoPath, workDir, uc.cfg.SampleRate)
	if err != nil {
		return nil, 0, err
	}
	defer stream.Close()

	seg, err := detector.NewSegmenter(uc.cfg.Detector, stream.Count())
	if err != nil {
		return nil, 0, err
	}

	// Progress is a snapshot the reporter polls; segmentation never blocks
	// on it.
	reportCtx, stopReport := context.WithCancel(ctx)
	defer stopReport()
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-reportCtx.Done():
				return
			case <-ticker.C:
				p := seg.Progress()
				log.Debug("segmentation progress",
					zap.Int("frame_count", p.FrameCount),
					zap.Int("total_frames", p.TotalFrames),
					zap.Float64("percent", p.Percent),
					zap.Int("slides_found", p.SlidesFound),
				)
			}
		}
	}()

	frameCount := 0
	for {
		frame, ok, err := stream.Next(ctx)
		if err != nil {
			return nil, frameCount, err
		}
		if !ok {
			break
		}
		frameCount++
		metrics.FramesProcessedTotal.Inc()

		hash, err := uc.hasher.Hash(frame.Image)
		if err != nil {
			return nil, frameCount, fmt.Errorf("hash frame at %dms: %w", frame.TimestampMS, err)
		}

		err = seg.Process(frame, hash, func(f entity.Frame) (entity.OCRResult, error) {
			res, err := uc.recognizer.Recognize(ctx, f.Image)
			if err != nil {
				return entity.OCRResult{}, fmt.Errorf("ocr frame at %dms: %w", f.TimestampMS, err)
			}
			return res, nil
		})
		if err != nil {
			return nil, frameCount, err
		}
	}

	final := seg.Progress()
	metrics.OCRSkippedTotal.WithLabelValues("hash").Add(float64(final.SkippedHash))
	metrics.OCRSkippedTotal.WithLabelValues("noise").Add(float64(final.SkippedNoise))

	return seg.Flush(), frameCount, nil
}

func (uc *ExtractSlidesUseCase) persistSlides(
	ctx context.Context,
	prefix string,
	info entity.VideoInfo,
	slides []entity.Slide,
	elapsed time.Duration,
) error {
	ext := uc.cfg.ImageFormat
	if ext == "jpeg" {
		ext = "jpg"
	}

	meta := entity.ExtractionMetadata{
		VideoFile:      info.Filename,
		TotalSlides:    len(slides),
		ProcessingTime: float64(elapsed.Milliseconds()) / 1000.0,
		ExtractionDate: time.Now().UTC().Format(time.RFC3339),
		Slides:         make([]entity.SlideMetadata, 0, len(slides)),
	}

	for _, slide := range slides {
		imageFile := fmt.Sprintf("slide_%03d.%s", slide.Sequence, ext)
		objectKey := prefix + "/" + imageFile
		if err := uc.storage.UploadSlideImage(ctx, objectKey, slide.Frame, uc.cfg.ImageFormat, uc.cfg.ImageQuality); err != nil {
			return err
		}

		entry := entity.SlideMetadata{
			ImageFile:   imageFile,
			StartTime:   slide.StartTime,
			EndTime:     slide.EndTime,
			StartTimeMS: slide.StartTimeMS,
			EndTimeMS:   slide.EndTimeMS,
			Duration:    slide.DurationSeconds,
		}
		if uc.cfg.IncludeTextInJSON {
			entry.ExtractedText = slide.ExtractedText
			entry.OCRConfidence = slide.OCRConfidence
		}
		meta.Slides = append(meta.Slides, entry)
	}

	return uc.storage.UploadMetadata(ctx, prefix+"/slides_metadata.json", meta)
}

// handleFailure records a failed attempt and decides between requeue and the
// DLQ. The returned error (when non-nil) makes the consumer nack with
// requeue.
func (uc *ExtractSlidesUseCase) handleFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.ExtractionRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *ExtractSlidesUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.ExtractionRequestMessage,
	rawMsg []byte,
	errMsg string,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, uc.logger)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.VideoKey, errMsg)
	}

	return nil
}

func (uc *ExtractSlidesUseCase) publishStatus(ctx context.Context, job *entity.Job, log *zap.Logger) {
	statusMsg := entity.ExtractionStatusMessage{
		JobID:        job.ID,
		UserID:       job.UserID,
		Status:       job.Status,
		VideoKey:     job.VideoKey,
		SlidesPrefix: job.SlidesPrefix,
		SlideCount:   job.SlideCount,
		FrameCount:   job.FrameCount,
		Duration:     job.VideoDuration,
		ErrorMessage: job.ErrorMessage,
		Attempt:      job.Attempt,
		MaxAttempts:  job.MaxAttempts,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
