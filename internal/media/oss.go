package media

import (
	"context"
	"fmt"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

type OSSPresigner struct {
	bucket *oss.Bucket
	name   string
}

func NewOSSPresigner(endpoint, accessKeyID, accessKeySecret, bucketName string) (*OSSPresigner, error) {
	client, err := oss.New(endpoint, accessKeyID, accessKeySecret, oss.Timeout(10, 60))
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}
	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}
	return &OSSPresigner{bucket: bucket, name: bucketName}, nil
}

func (p *OSSPresigner) PresignUpload(_ context.Context, key string, ttl time.Duration) (string, error) {
	signed, err := p.bucket.SignURL(key, oss.HTTPPut, int64(ttl.Seconds()))
	if err != nil {
		return "", fmt.Errorf("sign put %s: %w", key, err)
	}
	return signed, nil
}

func (p *OSSPresigner) PresignDownload(_ context.Context, key string, ttl time.Duration) (string, error) {
	signed, err := p.bucket.SignURL(key, oss.HTTPGet, int64(ttl.Seconds()))
	if err != nil {
		return "", fmt.Errorf("sign get %s: %w", key, err)
	}
	return signed, nil
}

func (p *OSSPresigner) ObjectKey(ref string) (string, bool) {
	return keyFromURL(ref, p.name)
}
