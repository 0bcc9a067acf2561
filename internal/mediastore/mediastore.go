// Package mediastore implements the blob store: content-addressed media
// objects backing C7's moderation payload_reference, and the supplemented
// profile-history snapshot archive keyed by account and time (SPEC_FULL.md §6). Adapted from the teacher's
// internal/services/storage_service.go MinIO client usage.
package mediastore

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"github.com/jutuon/afrodite-backend-sub001/config"
	"github.com/jutuon/afrodite-backend-sub001/internal/apierr"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store wraps a MinIO client scoped to the media bucket plus a separate
// archive bucket for cold-storage profile-history snapshots.
type Store struct {
	client       *minio.Client
	bucket       string
	archiveBucket string
	publicURL    string
}

func New(cfg *config.Config) (*Store, error) {
	client, err := minio.New(cfg.StorageEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.StorageAccessKey, cfg.StorageSecretKey, ""),
		Secure: cfg.StorageUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	ctx := context.Background()
	if err := ensureBucket(ctx, client, cfg.StorageBucket); err != nil {
		return nil, err
	}
	if err := ensureBucket(ctx, client, cfg.ProfileHistoryBucket); err != nil {
		return nil, err
	}

	return &Store{client: client, bucket: cfg.StorageBucket, archiveBucket: cfg.ProfileHistoryBucket, publicURL: cfg.StoragePublicURL}, nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}

// PutMedia stores a moderation-pending media payload under the SHA-256 of
// its bytes and returns that content reference (used as
// moderation.Item.PayloadReference).
func (s *Store) PutMedia(ctx context.Context, ext string, contentType string, data io.Reader, size int64) (string, error) {
	buf, err := io.ReadAll(data)
	if err != nil {
		return "", apierr.Internal(err)
	}
	objectName := fmt.Sprintf("media/%x%s", sha256.Sum256(buf), ext)
	if _, err := s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(buf), int64(len(buf)), minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return "", apierr.Internal(err)
	}
	return objectName, nil
}

// GetMedia opens a previously stored media object for reading.
func (s *Store) GetMedia(ctx context.Context, reference string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, reference, minio.GetObjectOptions{})
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return obj, nil
}

// DeleteMedia removes a previously stored media object (e.g. after a
// rejected moderation item is cleaned up).
func (s *Store) DeleteMedia(ctx context.Context, reference string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, reference, minio.RemoveObjectOptions{}); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// MediaURL builds the externally reachable URL for a stored media
// reference.
func (s *Store) MediaURL(reference string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicURL, s.bucket, reference)
}

// PutProfileSnapshot archives a gzip-compressed JSON snapshot of an
// account's profile history (supplemented feature, §6), repurposing the
// teacher's UploadArchive tiered-storage path.
func (s *Store) PutProfileSnapshot(ctx context.Context, account int64, data []byte) (string, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return "", apierr.Internal(err)
	}
	if err := gz.Close(); err != nil {
		return "", apierr.Internal(err)
	}

	objectPath := fmt.Sprintf("profile-history/%d/%d.json.gz", account, time.Now().UnixNano())
	_, err := s.client.PutObject(ctx, s.archiveBucket, objectPath, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "application/gzip", ContentEncoding: "gzip",
	})
	if err != nil {
		return "", apierr.Internal(err)
	}
	return objectPath, nil
}

// GetProfileSnapshot downloads and decompresses a previously archived
// profile-history snapshot.
func (s *Store) GetProfileSnapshot(ctx context.Context, objectPath string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.archiveBucket, objectPath, minio.GetObjectOptions{})
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer obj.Close()

	gz, err := gzip.NewReader(obj)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return data, nil
}
