package media

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioPresigner struct {
	client *minio.Client
	bucket string
}

// NewMinioPresigner does not contact the server: with the region set, URLs
// are signed locally.
func NewMinioPresigner(endpoint, accessKey, secretKey, bucket, region string, useSSL bool) (*MinioPresigner, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &MinioPresigner{client: client, bucket: bucket}, nil
}

func (p *MinioPresigner) PresignUpload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := p.client.PresignedPutObject(ctx, p.bucket, key, ttl)
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", key, err)
	}
	return u.String(), nil
}

func (p *MinioPresigner) PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := p.client.PresignedGetObject(ctx, p.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", key, err)
	}
	return u.String(), nil
}

func (p *MinioPresigner) ObjectKey(ref string) (string, bool) {
	return keyFromURL(ref, p.bucket)
}
