package keystore

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MaxBundleSize bounds the size of a PKCS#12 object
const MaxBundleSize = 1 << 20

// MinIOConfig holds the S3 compatible endpoint settings
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOBlobStore reads PKCS#12 objects from an S3 compatible bucket
type MinIOBlobStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOBlobStore creates a store for cfg.Bucket
func NewMinIOBlobStore(cfg MinIOConfig) (*MinIOBlobStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}
	return &MinIOBlobStore{client: client, bucket: cfg.Bucket}, nil
}

// Fetch implements BlobStore
func (s *MinIOBlobStore) Fetch(ctx context.Context, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapError(name, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, MaxBundleSize+1))
	if err != nil {
		return nil, s.mapError(name, err)
	}
	if len(data) > MaxBundleSize {
		return nil, fmt.Errorf("certificate bundle %s exceeds %d bytes", name, MaxBundleSize)
	}
	return data, nil
}

func (s *MinIOBlobStore) mapError(name string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s/%s", ErrBlobNotFound, s.bucket, name)
	}
	return fmt.Errorf("reading %s/%s: %w", s.bucket, name, err)
}
