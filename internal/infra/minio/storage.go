package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/slidecast/slide-extraction-service/internal/domain/entity"
)

// Storage holds the two buckets of a slide extraction run: the source videos
// and the extracted slide images plus metadata.
type Storage struct {
	client       *miniogo.Client
	videoBucket  string
	slidesBucket string
}

type StorageConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	VideoBucket  string
	SlidesBucket string
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Storage{
		client:       client,
		videoBucket:  cfg.VideoBucket,
		slidesBucket: cfg.SlidesBucket,
	}, nil
}

func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.videoBucket, s.slidesBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{}); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

func (s *Storage) DownloadVideo(ctx context.Context, objectKey string, destPath string) error {
	return s.client.FGetObject(ctx, s.videoBucket, objectKey, destPath, miniogo.GetObjectOptions{})
}

// UploadSlideImage encodes the representative frame in the configured format
// and writes it to the slides bucket.
func (s *Storage) UploadSlideImage(ctx context.Context, objectKey string, img image.Image, format string, quality int) error {
	var buf bytes.Buffer
	contentType := "image/jpeg"

	switch format {
	case "jpg", "jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return fmt.Errorf("encode slide jpeg: %w", err)
		}
	case "png":
		contentType = "image/png"
		if err := png.Encode(&buf, img); err != nil {
			return fmt.Errorf("encode slide png: %w", err)
		}
	default:
		return fmt.Errorf("%w: unsupported image format %q", entity.ErrConfiguration, format)
	}

	_, err := s.client.PutObject(ctx, s.slidesBucket, objectKey, &buf, int64(buf.Len()), miniogo.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload slide image %s: %w", objectKey, err)
	}
	return nil
}

func (s *Storage) UploadMetadata(ctx context.Context, objectKey string, doc entity.ExtractionMetadata) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.client.PutObject(ctx, s.slidesBucket, objectKey, bytes.NewReader(data), int64(len(data)), miniogo.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("upload metadata %s: %w", objectKey, err)
	}
	return nil
}
