// Package storage hands out presigned S3 URLs so the browser can upload
// source images for image-to-video and audio-to-video jobs directly.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrUnsupportedContentType is returned for uploads outside the allow-list.
var ErrUnsupportedContentType = errors.New("unsupported content type")

const defaultURLTTL = 15 * time.Minute

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"audio/mpeg": ".mp3",
	"audio/wav":  ".wav",
}

type Config struct {
	Region   string
	Bucket   string
	Endpoint string // optional, e.g. MinIO or LocalStack
	URLTTL   time.Duration
}

// Presigner is the subset of *s3.PresignClient used here.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Upload describes a presigned PUT the client performs itself.
type Upload struct {
	Key       string            `json:"key"`
	UploadURL string            `json:"upload_url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	ObjectURL string            `json:"object_url"`
	ExpiresAt time.Time         `json:"expires_at"`
}

type Uploader struct {
	presigner Presigner
	bucket    string
	objectURL func(key string) string
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewUploader(ctx context.Context, cfg Config, logger *zap.Logger) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Info("s3 uploader initialized",
		zap.String("bucket", cfg.Bucket),
		zap.String("endpoint", cfg.Endpoint),
	)

	return newUploader(s3.NewPresignClient(client), cfg, logger), nil
}

func newUploader(p Presigner, cfg Config, logger *zap.Logger) *Uploader {
	ttl := cfg.URLTTL
	if ttl <= 0 {
		ttl = defaultURLTTL
	}
	objectURL := func(key string) string {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", cfg.Bucket, cfg.Region, key)
	}
	if cfg.Endpoint != "" {
		base := strings.TrimRight(cfg.Endpoint, "/")
		objectURL = func(key string) string {
			return fmt.Sprintf("%s/%s/%s", base, cfg.Bucket, key)
		}
	}
	return &Uploader{
		presigner: p,
		bucket:    cfg.Bucket,
		objectURL: objectURL,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

// ObjectKey namespaces uploads per user: uploads/{user}/{uuid}{ext}.
func ObjectKey(userID, contentType string) (string, error) {
	ext, ok := extensions[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}
	if userID == "" {
		return "", errors.New("user id is required")
	}
	return fmt.Sprintf("uploads/%s/%s%s", userID, uuid.NewString(), ext), nil
}

// PresignUpload returns a PUT URL valid for the configured TTL.
func (u *Uploader) PresignUpload(ctx context.Context, userID, contentType string) (*Upload, error) {
	key, err := ObjectKey(userID, contentType)
	if err != nil {
		return nil, err
	}

	req, err := u.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(u.ttl))
	if err != nil {
		u.logger.Error("failed to presign upload",
			zap.Error(err),
			zap.String("key", key),
		)
		return nil, fmt.Errorf("presign failed: %w", err)
	}

	return &Upload{
		Key:       key,
		UploadURL: req.URL,
		Method:    req.Method,
		Headers:   map[string]string{"Content-Type": contentType},
		ObjectURL: u.objectURL(key),
		ExpiresAt: u.now().Add(u.ttl),
	}, nil
}
