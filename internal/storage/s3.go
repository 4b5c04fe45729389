package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds connection settings for the S3-compatible bucket.
type S3Config struct {
	Endpoint  string // e.g. "fra1.digitaloceanspaces.com"
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	// PublicBaseURL is the CDN or custom domain objects are served from.
	// When empty, URLs are built from the endpoint and bucket.
	PublicBaseURL string
}

// S3Store stores attachments in an S3-compatible bucket.
type S3Store struct {
	client *minio.Client
	config S3Config
}

// NewS3Store connects to the configured endpoint and verifies the bucket
// exists.
func NewS3Store(ctx context.Context, config S3Config) (*S3Store, error) {
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: check bucket %s: %w", config.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("storage: bucket %s does not exist", config.Bucket)
	}

	return &S3Store{client: client, config: config}, nil
}

// Put uploads the object and returns its public URL.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.config.Bucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return "", fmt.Errorf("storage: put %s: %w", key, err)
	}
	return s.objectURL(key), nil
}

func (s *S3Store) objectURL(key string) string {
	if s.config.PublicBaseURL != "" {
		return fmt.Sprintf("%s/%s", s.config.PublicBaseURL, key)
	}
	scheme := "http"
	if s.config.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.config.Endpoint, s.config.Bucket, key)
}
