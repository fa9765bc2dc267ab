package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig configures a [MinioStore].
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

// MinioStore keeps artifacts in an S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to the endpoint and creates the bucket if it does
// not exist.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return NewMinioStoreFromClient(client, cfg.Bucket), nil
}

// NewMinioStoreFromClient wraps an existing client.
func NewMinioStoreFromClient(client *minio.Client, bucket string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket}
}

func (s *MinioStore) location(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}

func (s *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	if err := validateKey(key); err != nil {
		return Object{}, err
	}
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return Object{}, fmt.Errorf("upload artifact: %w", err)
	}
	return Object{
		Key:         key,
		Size:        info.Size,
		ContentType: contentType,
		Location:    s.location(key),
		StoredAt:    time.Now().UTC(),
	}, nil
}

func (s *MinioStore) Get(ctx context.Context, key string) ([]byte, Object, error) {
	if err := validateKey(key); err != nil {
		return nil, Object{}, err
	}
	stat, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, Object{}, notFound(key)
		}
		return nil, Object{}, fmt.Errorf("stat artifact: %w", err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, Object{}, fmt.Errorf("download artifact: %w", err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, Object{}, fmt.Errorf("download artifact: %w", err)
	}
	return data, Object{
		Key:         key,
		Size:        stat.Size,
		ContentType: stat.ContentType,
		Location:    s.location(key),
		StoredAt:    stat.LastModified.UTC(),
	}, nil
}

func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}

// PresignedURL returns a time-limited download URL for key.
func (s *MinioStore) PresignedURL(ctx context.Context, key string, expiry time.Duration) (*url.URL, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	return s.client.PresignedGetObject(ctx, s.bucket, key, expiry, url.Values{})
}

var _ Store = (*MinioStore)(nil)
