package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/linkup/backend/internal/config"
)

// ErrEmptyKey is returned when an object name has no usable characters.
var ErrEmptyKey = errors.New("s3 storage: empty key")

const (
	partSize          = 5 * 1024 * 1024
	mediaCacheControl = "public, max-age=31536000, immutable"
	fallbackType      = "application/octet-stream"
)

// S3Storage puts post, story and avatar media into an S3 compatible bucket.
type S3Storage struct {
	uploader *manager.Uploader
	bucket   string
	region   string
	endpoint string
	baseURL  string
}

// NewS3Storage builds an uploader for cfg. A custom endpoint switches the client to path style
// addressing so MinIO and similar services work unchanged.
func NewS3Storage(ctx context.Context, cfg config.ObjectStoreConfig) (*S3Storage, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("s3 storage: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimSuffix(strings.TrimSpace(cfg.Endpoint), "/")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = partSize
		}),
		bucket:   bucket,
		region:   cfg.Region,
		endpoint: endpoint,
		baseURL:  strings.TrimSuffix(strings.TrimSpace(cfg.PublicBaseURL), "/"),
	}, nil
}

// Save streams r to the bucket under name and returns the URL clients load it from.
func (s *S3Storage) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	key := strings.TrimLeft(path.Clean("/"+name), "/")
	if key == "" {
		return "", ErrEmptyKey
	}

	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         r,
		ACL:          s3types.ObjectCannedACLPublicRead,
		ContentType:  aws.String(contentType(key)),
		CacheControl: aws.String(mediaCacheControl),
	}); err != nil {
		return "", fmt.Errorf("s3 storage upload %s: %w", key, err)
	}

	return s.publicURL(key), nil
}

// publicURL prefers the configured CDN, then the custom endpoint, then the regional AWS host.
func (s *S3Storage) publicURL(key string) string {
	switch {
	case s.baseURL != "":
		return s.baseURL + "/" + key
	case s.endpoint != "":
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	}
}

func contentType(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return fallbackType
}
