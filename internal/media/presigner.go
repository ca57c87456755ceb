package media

import (
	"context"
	"fmt"
	"time"

	"inpeak-backend/config"
)

// Presigner signs time-limited URLs for one bucket.
type Presigner interface {
	PresignUpload(ctx context.Context, key string, ttl time.Duration) (string, error)
	PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error)
	// ObjectKey reports the key a stored reference points at, if the
	// reference belongs to this presigner's bucket.
	ObjectKey(ref string) (string, bool)
}

// NewPresigner builds the presigner selected by STORAGE_DRIVER.
func NewPresigner(cfg *config.Config) (Presigner, error) {
	switch cfg.StorageDriver {
	case "minio":
		return NewMinioPresigner(cfg.StorageEndpoint, cfg.StorageAccessKey, cfg.StorageSecretKey,
			cfg.StorageBucket, cfg.StorageRegion, cfg.StorageUseSSL)
	case "oss":
		return NewOSSPresigner(cfg.StorageEndpoint, cfg.StorageAccessKey, cfg.StorageSecretKey, cfg.StorageBucket)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}
