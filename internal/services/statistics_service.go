package services

import (
	"context"

	"go.uber.org/zap"

	"inpeak-backend/internal/models"
	"inpeak-backend/internal/store"
)

// StatisticsUpdater applies one grading verdict to the member's progress.
type StatisticsUpdater interface {
	Apply(ctx context.Context, memberID, questionID uint, verdict models.AnswerStatus) error
}

type StatisticsService struct {
	stats *store.StatisticStore
	log   *zap.Logger
}

func NewStatisticsService(stats *store.StatisticStore, log *zap.Logger) *StatisticsService {
	return &StatisticsService{stats: stats, log: log.Named("statistics")}
}

func (s *StatisticsService) Apply(ctx context.Context, memberID, questionID uint, verdict models.AnswerStatus) error {
	if err := s.stats.Increment(ctx, memberID, verdict); err != nil {
		return err
	}
	s.log.Debug("statistics updated",
		zap.Uint("member_id", memberID),
		zap.Uint("question_id", questionID),
		zap.String("verdict", string(verdict)))
	return nil
}
