package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"inpeak-backend/internal/apperr"
	"inpeak-backend/internal/models"
)

type AnswerStore struct {
	db *gorm.DB
}

func NewAnswerStore(db *gorm.DB) *AnswerStore {
	return &AnswerStore{db: db}
}

// ExistsFor reports whether the interview already holds an answer to the question.
func (s *AnswerStore) ExistsFor(ctx context.Context, interviewID, questionID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Answer{}).
		Where("interview_id = ? AND question_id = ?", interviewID, questionID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count answers: %w", err)
	}
	return count > 0, nil
}

func (s *AnswerStore) FindByID(ctx context.Context, id uint) (*models.Answer, error) {
	var answer models.Answer
	if err := s.db.WithContext(ctx).First(&answer, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("answer %d not found", id)
		}
		return nil, fmt.Errorf("find answer %d: %w", id, err)
	}
	return &answer, nil
}

type QuestionStore struct {
	db *gorm.DB
}

func NewQuestionStore(db *gorm.DB) *QuestionStore {
	return &QuestionStore{db: db}
}

func (s *QuestionStore) FindByID(ctx context.Context, id uint) (*models.Question, error) {
	var question models.Question
	if err := s.db.WithContext(ctx).First(&question, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("question %d not found", id)
		}
		return nil, fmt.Errorf("find question %d: %w", id, err)
	}
	return &question, nil
}

type StatisticStore struct {
	db *gorm.DB
}

func NewStatisticStore(db *gorm.DB) *StatisticStore {
	return &StatisticStore{db: db}
}

// Increment upserts the member's counters for one graded answer.
func (s *StatisticStore) Increment(ctx context.Context, memberID uint, verdict models.AnswerStatus) error {
	row := models.MemberStatistic{MemberID: memberID, TotalCount: 1}
	updates := map[string]interface{}{
		"total_count": gorm.Expr("member_statistics.total_count + 1"),
		"updated_at":  gorm.Expr("CURRENT_TIMESTAMP"),
	}
	switch verdict {
	case models.AnswerStatusCorrect:
		row.CorrectCount = 1
		updates["correct_count"] = gorm.Expr("member_statistics.correct_count + 1")
	case models.AnswerStatusIncorrect:
		row.IncorrectCount = 1
		updates["incorrect_count"] = gorm.Expr("member_statistics.incorrect_count + 1")
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "member_id"}},
		DoUpdates: clause.Assignments(updates),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("increment statistics for member %d: %w", memberID, err)
	}
	return nil
}

func (s *StatisticStore) FindByMember(ctx context.Context, memberID uint) (*models.MemberStatistic, error) {
	var stat models.MemberStatistic
	if err := s.db.WithContext(ctx).Where("member_id = ?", memberID).First(&stat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("statistics for member %d not found", memberID)
		}
		return nil, fmt.Errorf("find statistics for member %d: %w", memberID, err)
	}
	return &stat, nil
}
