package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/slidecast/slide-extraction-service/internal/domain/detector"
	"github.com/slidecast/slide-extraction-service/internal/infra/config"
	"github.com/slidecast/slide-extraction-service/internal/infra/email"
	"github.com/slidecast/slide-extraction-service/internal/infra/ffmpeg"
	"github.com/slidecast/slide-extraction-service/internal/infra/metrics"
	miniostorage "github.com/slidecast/slide-extraction-service/internal/infra/minio"
	"github.com/slidecast/slide-extraction-service/internal/infra/ocr"
	"github.com/slidecast/slide-extraction-service/internal/infra/postgres"
	"github.com/slidecast/slide-extraction-service/internal/infra/rabbitmq"
	"github.com/slidecast/slide-extraction-service/internal/infra/tracing"
	"github.com/slidecast/slide-extraction-service/internal/infra/vision"
	"github.com/slidecast/slide-extraction-service/internal/usecase"
	"github.com/slidecast/slide-extraction-service/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting slide-extraction-service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	// Migrations
	if err := postgres.RunMigrations(cfg.DatabaseURL, "migrations"); err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     cfg.MinIOEndpoint,
		AccessKey:    cfg.MinIOAccessKey,
		SecretKey:    cfg.MinIOSecretKey,
		UseSSL:       cfg.MinIOUseSSL,
		VideoBucket:  cfg.MinIOVideoBucket,
		SlidesBucket: cfg.MinIOSlidesBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// Infra adapters
	repo := postgres.NewJobRepository(pool)
	frames := ffmpeg.NewSource(log)
	prober := ffmpeg.NewProber()
	hasher := vision.NewHasher()
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	// One OCR engine per worker; a missing Tesseract install aborts startup.
	recognizer, err := ocr.NewPool(cfg.WorkerCount, cfg.OCRLanguage, log)
	fatalOnErr(err, "init ocr engines")
	defer recognizer.Close()

	// Use case
	uc := usecase.NewExtractSlidesUseCase(
		repo, storage, frames, prober, hasher, recognizer,
		statusPub, dlqPub, notifier,
		log,
		usecase.ExtractSlidesConfig{
			TempDir:    cfg.TempDir,
			MaxRetries: cfg.MaxRetries,
			Detector: detector.Config{
				SimilarityThreshold:    cfg.SimilarityThreshold,
				MinSlideDuration:       cfg.MinSlideDuration,
				OCRConfidenceThreshold: cfg.OCRConfidenceThreshold,
				IncrementalMerge:       cfg.IncrementalMerge,
			},
			SampleRate:        cfg.SampleRate,
			RemoveDuplicates:  cfg.RemoveDuplicates,
			ImageFormat:       cfg.ImageFormat,
			ImageQuality:      cfg.ImageQuality,
			IncludeTextInJSON: cfg.IncludeTextInJSON,
		},
	)

	// Metrics server
	metricsSrv := metrics.StartServer(ctx, cfg.MetricsPort, log)

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQExtractionQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("slide-extraction-service started, consuming messages")

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("slide-extraction-service stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
