package media

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioBackend stores objects in a MinIO/S3 compatible bucket.
type MinioBackend struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
}

// NewMinioBackend connects to MinIO and ensures the bucket exists.
// publicBaseURL defaults to the endpoint's bucket URL.
func NewMinioBackend(endpoint, accessKey, secretKey, bucket string, useSSL bool, publicBaseURL string) (*MinioBackend, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	if publicBaseURL == "" || strings.HasPrefix(publicBaseURL, "/") {
		scheme := "http"
		if useSSL {
			scheme = "https"
		}
		publicBaseURL = fmt.Sprintf("%s://%s/%s", scheme, endpoint, bucket)
	}

	return &MinioBackend{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

func (m *MinioBackend) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return m.publicBaseURL + "/" + key, nil
}

func (m *MinioBackend) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
