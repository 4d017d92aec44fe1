package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// S3Config holds the settings for the S3-backed store. Endpoint and
// PublicBaseURL support MinIO-style deployments where the bucket is served
// from a fixed host rather than a virtual-hosted AWS URL.
type S3Config struct {
	Bucket        string
	Region        string
	Endpoint      string
	PublicBaseURL string
}

// S3BlobStore stores attachments in an S3 (or S3-compatible) bucket. Object
// keys are "<patientRef>/<uuid>/<fileName>" so a patient's images group under
// a common prefix.
type S3BlobStore struct {
	client *s3.Client
	cfg    S3Config
}

// NewS3BlobStore builds an S3 client from the ambient AWS configuration
// (environment, shared credentials file, or instance role).
func NewS3BlobStore(ctx context.Context, cfg S3Config) (*S3BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("blobstore: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	opts := s3.Options{
		Region:       awsCfg.Region,
		Credentials:  awsCfg.Credentials,
		HTTPClient:   awsCfg.HTTPClient,
		BaseEndpoint: awsCfg.BaseEndpoint,
		UsePathStyle: true,
	}
	if cfg.Region != "" {
		opts.Region = cfg.Region
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = &cfg.Endpoint
	}

	return &S3BlobStore{client: s3.New(opts), cfg: cfg}, nil
}

func (s *S3BlobStore) objectKey(meta BlobMetadata) string {
	ref := meta.PatientRef
	if ref == "" {
		ref = "unassigned"
	}
	return fmt.Sprintf("%s/%s/%s", ref, meta.ID, meta.FileName)
}

func (s *S3BlobStore) publicURL(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}

// Upload streams the content to S3 and returns metadata with the public URL
// filled in.
func (s *S3BlobStore) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	if err := validateUpload(meta); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	h := sha256.Sum256(data)

	meta.ID = uuid.New().String()
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", h)
	meta.CreatedAt = time.Now().UTC()

	key := s.objectKey(meta)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.cfg.Bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &meta.ContentType,
	})
	if err != nil {
		return nil, fmt.Errorf("putting object %s: %w", key, err)
	}

	meta.URL = s.publicURL(key)
	log.Debug().Str("key", key).Int64("size", meta.Size).Msg("uploaded attachment")

	out := meta
	return &out, nil
}

// Download fetches the object content. The id is the full object key; callers
// holding only a URL can recover the key with KeyFromURL.
func (s *S3BlobStore) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.cfg.Bucket,
		Key:    &id,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("getting object %s: %w", id, err)
	}

	meta := &BlobMetadata{ID: id}
	if out.ContentType != nil {
		meta.ContentType = *out.ContentType
	}
	if out.ContentLength != nil {
		meta.Size = *out.ContentLength
	}
	return out.Body, meta, nil
}

// Delete removes the object identified by key.
func (s *S3BlobStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.cfg.Bucket,
		Key:    &id,
	})
	if err != nil {
		return fmt.Errorf("deleting object %s: %w", id, err)
	}
	return nil
}

// KeyFromURL extracts the object key from a URL produced by publicURL.
// Returns the input unchanged when it does not look like one of ours.
func (s *S3BlobStore) KeyFromURL(url string) string {
	if s.cfg.PublicBaseURL != "" {
		base := strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/"
		if strings.HasPrefix(url, base) {
			return strings.TrimPrefix(url, base)
		}
	}
	host := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", s.cfg.Bucket, s.cfg.Region)
	if strings.HasPrefix(url, host) {
		return strings.TrimPrefix(url, host)
	}
	return url
}
