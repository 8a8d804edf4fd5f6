package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slidecast/slide-extraction-service/internal/domain/detector"
	"github.com/slidecast/slide-extraction-service/internal/domain/entity"
	"github.com/slidecast/slide-extraction-service/internal/domain/port"
)

type fakeRepo struct {
	jobs map[uuid.UUID]*entity.Job
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{jobs: map[uuid.UUID]*entity.Job{}}
}

func (r *fakeRepo) Create(_ context.Context, job *entity.Job) error {
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *fakeRepo) Update(_ context.Context, job *entity.Job) error {
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *fakeRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s not found", id)
	}
	cp := *job
	return &cp, nil
}

type fakeStore struct {
	downloadErr  error
	uploadedKeys []string
	metadataKey  string
	metadata     entity.ExtractionMetadata
}

func (s *fakeStore) DownloadVideo(_ context.Context, _, _ string) error {
	return s.downloadErr
}

func (s *fakeStore) UploadSlideImage(_ context.Context, objectKey string, _ image.Image, _ string, _ int) error {
	s.uploadedKeys = append(s.uploadedKeys, objectKey)
	return nil
}

func (s *fakeStore) UploadMetadata(_ context.Context, objectKey string, doc entity.ExtractionMetadata) error {
	s.metadataKey = objectKey
	s.metadata = doc
	return nil
}

type fakeStream struct {
	frames []entity.Frame
	idx    int
}

func (s *fakeStream) Next(_ context.Context) (entity.Frame, bool, error) {
	if s.idx >= len(s.frames) {
		return entity.Frame{}, false, nil
	}
	f := s.frames[s.idx]
	s.idx++
	return f, true, nil
}

func (s *fakeStream) Count() int { return len(s.frames) }

func (s *fakeStream) Close() error { return nil }

type fakeSource struct {
	frames []entity.Frame
}

func (s *fakeSource) Open(_ context.Context, _, _ string, _ float64) (port.FrameStream, error) {
	return &fakeStream{frames: s.frames}, nil
}

type fakeProber struct {
	info entity.VideoInfo
	err  error
}

func (p *fakeProber) Probe(_ context.Context, _ string) (entity.VideoInfo, error) {
	return p.info, p.err
}

// fakeHasher returns a distinct token per call so the hash pre-filter never
// suppresses OCR in these tests.
type fakeHasher struct{ calls int }

func (h *fakeHasher) Hash(_ image.Image) (string, error) {
	h.calls++
	return fmt.Sprintf("hash-%d", h.calls), nil
}

// fakeRecognizer replays scripted OCR results in frame order.
type fakeRecognizer struct {
	results []entity.OCRResult
	idx     int
}

func (r *fakeRecognizer) Recognize(_ context.Context, _ image.Image) (entity.OCRResult, error) {
	if r.idx >= len(r.results) {
		return entity.OCRResult{}, nil
	}
	res := r.results[r.idx]
	r.idx++
	return res, nil
}

type fakePublisher struct{ payloads [][]byte }

func (p *fakePublisher) PublishStatus(_ context.Context, msg []byte) error {
	p.payloads = append(p.payloads, msg)
	return nil
}

type fakeDLQ struct {
	payloads [][]byte
	reasons  []string
}

func (d *fakeDLQ) PublishToDLQ(_ context.Context, msg []byte, reason string) error {
	d.payloads = append(d.payloads, msg)
	d.reasons = append(d.reasons, reason)
	return nil
}

type fakeNotifier struct {
	emails []string
}

func (n *fakeNotifier) NotifyFailure(_ context.Context, userEmail, _, _, _ string) error {
	n.emails = append(n.emails, userEmail)
	return nil
}

type fixture struct {
	uc         *ExtractSlidesUseCase
	repo       *fakeRepo
	store      *fakeStore
	source     *fakeSource
	prober     *fakeProber
	recognizer *fakeRecognizer
	publisher  *fakePublisher
	dlq        *fakeDLQ
	notifier   *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:       newFakeRepo(),
		store:      &fakeStore{},
		source:     &fakeSource{},
		prober:     &fakeProber{info: entity.VideoInfo{Filename: "lecture.mp4", DurationSeconds: 10, Width: 1280, Height: 720, FPS: 30}},
		recognizer: &fakeRecognizer{},
		publisher:  &fakePublisher{},
		dlq:        &fakeDLQ{},
		notifier:   &fakeNotifier{},
	}

	f.uc = NewExtractSlidesUseCase(
		f.repo, f.store, f.source, f.prober, &fakeHasher{}, f.recognizer,
		f.publisher, f.dlq, f.notifier,
		zap.NewNop(),
		ExtractSlidesConfig{
			TempDir:    t.TempDir(),
			MaxRetries: 3,
			Detector: detector.Config{
				SimilarityThreshold:    0.75,
				MinSlideDuration:       3.0,
				OCRConfidenceThreshold: 0.70,
				IncrementalMerge:       true,
			},
			SampleRate:        1.0,
			RemoveDuplicates:  true,
			ImageFormat:       "jpg",
			ImageQuality:      85,
			IncludeTextInJSON: true,
		},
	)
	return f
}

func requestMessage(t *testing.T) (entity.ExtractionRequestMessage, []byte) {
	t.Helper()
	msg := entity.ExtractionRequestMessage{
		JobID:     uuid.New(),
		UserID:    "user-1",
		VideoKey:  "uploads/lecture.mp4",
		FileSize:  1 << 20,
		UserEmail: "student@example.com",
	}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	return msg, raw
}

// twoSlideFrames is ten frames at 1 fps, the first five showing one slide and
// the rest another.
func twoSlideFrames(f *fixture) {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := 0; i < 10; i++ {
		f.source.frames = append(f.source.frames, entity.Frame{Image: img, TimestampMS: int64(i) * 1000})
		text := "Introduction to Distributed Systems"
		if i >= 5 {
			text = "Consensus Algorithms and Raft"
		}
		f.recognizer.results = append(f.recognizer.results, entity.OCRResult{Text: text, Confidence: 0.92})
	}
}

func TestExecuteHappyPath(t *testing.T) {
	f := newFixture(t)
	twoSlideFrames(f)
	msg, raw := requestMessage(t)

	err := f.uc.Execute(context.Background(), raw)
	require.NoError(t, err)

	job, err := f.repo.FindByID(context.Background(), msg.JobID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.SlideCount)
	assert.Equal(t, 10, job.FrameCount)

	prefix := fmt.Sprintf("user-1/%s", msg.JobID)
	assert.Equal(t, []string{prefix + "/slide_001.jpg", prefix + "/slide_002.jpg"}, f.store.uploadedKeys)
	assert.Equal(t, prefix+"/slides_metadata.json", f.store.metadataKey)

	require.Len(t, f.store.metadata.Slides, 2)
	assert.Equal(t, "lecture.mp4", f.store.metadata.VideoFile)
	assert.Equal(t, 2, f.store.metadata.TotalSlides)
	assert.Equal(t, "slide_001.jpg", f.store.metadata.Slides[0].ImageFile)
	assert.Equal(t, "00:00:00", f.store.metadata.Slides[0].StartTime)
	assert.Equal(t, "00:00:05", f.store.metadata.Slides[0].EndTime)
	assert.Equal(t, "Introduction to Distributed Systems", f.store.metadata.Slides[0].ExtractedText)

	require.NotEmpty(t, f.publisher.payloads)
	var status entity.ExtractionStatusMessage
	require.NoError(t, json.Unmarshal(f.publisher.payloads[len(f.publisher.payloads)-1], &status))
	assert.Equal(t, entity.JobStatusCompleted, status.Status)
	assert.Equal(t, 2, status.SlideCount)

	assert.Empty(t, f.dlq.payloads)
	assert.Empty(t, f.notifier.emails)
}

func TestExecuteTextExcludedFromMetadata(t *testing.T) {
	f := newFixture(t)
	f.uc.cfg.IncludeTextInJSON = false
	twoSlideFrames(f)
	_, raw := requestMessage(t)

	require.NoError(t, f.uc.Execute(context.Background(), raw))

	require.Len(t, f.store.metadata.Slides, 2)
	assert.Empty(t, f.store.metadata.Slides[0].ExtractedText)
	assert.Zero(t, f.store.metadata.Slides[0].OCRConfidence)
}

func TestExecuteMalformedMessageGoesToDLQ(t *testing.T) {
	f := newFixture(t)

	err := f.uc.Execute(context.Background(), []byte("{not json"))
	require.NoError(t, err)

	require.Len(t, f.dlq.payloads, 1)
	assert.Contains(t, f.dlq.reasons[0], "unmarshal_error")
}

func TestExecuteDownloadFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.store.downloadErr = fmt.Errorf("connection refused")
	msg, raw := requestMessage(t)

	err := f.uc.Execute(context.Background(), raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retryable failure")

	job, findErr := f.repo.FindByID(context.Background(), msg.JobID)
	require.NoError(t, findErr)
	assert.Equal(t, entity.JobStatusFailed, job.Status)
	assert.Equal(t, 1, job.Attempt)

	assert.Empty(t, f.dlq.payloads, "first failure must not hit the DLQ")
}

func TestExecuteUnreadableVideoFailsPermanently(t *testing.T) {
	f := newFixture(t)
	f.prober.err = fmt.Errorf("%w: no such file", entity.ErrInputVideo)
	_, raw := requestMessage(t)

	err := f.uc.Execute(context.Background(), raw)
	require.NoError(t, err, "permanent failures are acked, not requeued")

	require.Len(t, f.dlq.payloads, 1)
	assert.Equal(t, []string{"student@example.com"}, f.notifier.emails)
}

func TestExecuteExhaustedRetriesGoToDLQ(t *testing.T) {
	f := newFixture(t)
	msg, raw := requestMessage(t)

	exhausted := entity.NewJob(msg.UserID, msg.VideoKey, msg.FileSize, 3)
	exhausted.ID = msg.JobID
	exhausted.Attempt = 3
	require.NoError(t, f.repo.Create(context.Background(), exhausted))

	err := f.uc.Execute(context.Background(), raw)
	require.NoError(t, err)

	require.Len(t, f.dlq.payloads, 1)
	assert.Contains(t, f.dlq.reasons[0], "max retries")
}
