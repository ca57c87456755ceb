package media

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type UploadURL struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service hands out signed upload URLs for answer recordings.
type Service struct {
	presigner Presigner
	ttl       time.Duration
	log       *zap.Logger
	now       func() time.Time
}

func NewService(presigner Presigner, ttl time.Duration, log *zap.Logger) *Service {
	return &Service{presigner: presigner, ttl: ttl, log: log.Named("media"), now: time.Now}
}

func (s *Service) IssueUpload(ctx context.Context, memberID uint, mediaType MediaType, extension string) (*UploadURL, error) {
	ext, err := ValidateExtension(mediaType, extension)
	if err != nil {
		return nil, err
	}
	now := s.now()
	key := ObjectKey(mediaType, memberID, ext, now)
	signed, err := s.presigner.PresignUpload(ctx, key, s.ttl)
	if err != nil {
		return nil, err
	}
	s.log.Info("upload url issued", zap.Uint("member_id", memberID), zap.String("key", key))
	return &UploadURL{URL: signed, Key: key, ExpiresAt: now.Add(s.ttl)}, nil
}
