package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"frame-worker/internal/config"
	"frame-worker/internal/domain/ports/adapter"
)

var _ adapter.Storage = (*ObjectStore)(nil)

// ObjectStore keeps job inputs and output archives in one S3-compatible bucket.
// References are object keys inside that bucket.
type ObjectStore struct {
	client *minio.Client
	bucket string
	log    *zerolog.Logger
}

func NewClient(cfg config.StorageConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return client, nil
}

func NewObjectStore(client *minio.Client, bucket string, logger *zerolog.Logger) *ObjectStore {
	compLog := logger.With().Str("component", "ObjectStore").Logger()
	return &ObjectStore{client: client, bucket: bucket, log: &compLog}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("s3 bucket exists: %w", err)
	}
	if ok {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		// another worker may have won the race
		if code := minio.ToErrorResponse(err).Code; code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return fmt.Errorf("s3 make bucket: %w", err)
	}
	s.log.Info().Str("bucket", s.bucket).Msg("created bucket")
	return nil
}

// Ping checks that the bucket is reachable.
func (s *ObjectStore) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("s3 ping: %w", err)
	}
	return nil
}

func (s *ObjectStore) Fetch(ctx context.Context, ref, dir string) (string, error) {
	local := filepath.Join(dir, "input"+filepath.Ext(ref))
	if err := s.client.FGetObject(ctx, s.bucket, ref, local, minio.GetObjectOptions{}); err != nil {
		return "", fmt.Errorf("s3 get object %s: %w", ref, err)
	}
	return local, nil
}

func (s *ObjectStore) Store(ctx context.Context, localPath, key string) (string, error) {
	_, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put object %s: %w", key, err)
	}
	return key, nil
}

func (s *ObjectStore) Remove(ctx context.Context, ref string) error {
	err := s.client.RemoveObject(ctx, s.bucket, ref, minio.RemoveObjectOptions{})
	if err == nil || isNoSuchKey(err) {
		return nil
	}
	return fmt.Errorf("s3 remove object %s: %w", ref, err)
}

func isNoSuchKey(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey"
	}
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func contentType(key string) string {
	switch filepath.Ext(key) {
	case ".zip":
		return "application/zip"
	case ".mp4":
		return "video/mp4"
	}
	return "application/octet-stream"
}
