package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"inpeak-backend/internal/apperr"
	"inpeak-backend/internal/models"
)

// ErrStaleClaim is returned when a task was reclaimed by another attempt
// between claim and finish.
var ErrStaleClaim = errors.New("grading task claim is no longer held")

type TaskStore struct {
	db *gorm.DB
}

func NewTaskStore(db *gorm.DB) *TaskStore {
	return &TaskStore{db: db}
}

func (s *TaskStore) Create(ctx context.Context, task *models.GradingTask) error {
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create grading task: %w", err)
	}
	return nil
}

func (s *TaskStore) FindByID(ctx context.Context, id uint) (*models.GradingTask, error) {
	var task models.GradingTask
	if err := s.db.WithContext(ctx).First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("grading task %d not found", id)
		}
		return nil, fmt.Errorf("find grading task %d: %w", id, err)
	}
	return &task, nil
}

func (s *TaskStore) Save(ctx context.Context, task *models.GradingTask) error {
	if err := s.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("save grading task %d: %w", task.ID, err)
	}
	return nil
}

// Claim moves a task to IN_PROGRESS if it is WAITING, or if it is IN_PROGRESS
// with a claim older than ttl (the previous attempt died). It bumps Attempts,
// which the caller passes back to Finish as the fencing token.
func (s *TaskStore) Claim(ctx context.Context, id uint, ttl time.Duration) (bool, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.GradingTask{}).
		Where("id = ? AND (status = ? OR (status = ? AND claimed_at < ?))",
			id, models.TaskStatusWaiting, models.TaskStatusInProgress, now.Add(-ttl)).
		Updates(map[string]interface{}{
			"status":     models.TaskStatusInProgress,
			"claimed_at": now,
			"attempts":   gorm.Expr("attempts + 1"),
		})
	if res.Error != nil {
		return false, fmt.Errorf("claim grading task %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Finish persists the final state of a claimed task. It only writes while the
// task is still IN_PROGRESS under the given attempt.
func (s *TaskStore) Finish(ctx context.Context, task *models.GradingTask, attempt int) error {
	return finishTask(s.db.WithContext(ctx), task, attempt)
}

// CompleteWithAnswer creates the answer and marks the task SUCCESS in one
// transaction. task is only updated in memory when the transaction commits.
func (s *TaskStore) CompleteWithAnswer(ctx context.Context, task *models.GradingTask, answer *models.Answer, attempt int) error {
	done := *task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Answer{}).
			Where("interview_id = ? AND question_id = ?", answer.InterviewID, answer.QuestionID).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("check existing answer: %w", err)
		}
		if existing > 0 {
			return apperr.Conflict("answer for interview %d question %d already exists", answer.InterviewID, answer.QuestionID)
		}

		if err := tx.Create(answer).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.Conflict("answer for interview %d question %d already exists", answer.InterviewID, answer.QuestionID)
			}
			return fmt.Errorf("create answer: %w", err)
		}

		done.MarkSuccess(answer.ID)
		return finishTask(tx, &done, attempt)
	})
	if err != nil {
		return err
	}
	*task = done
	return nil
}

func finishTask(db *gorm.DB, task *models.GradingTask, attempt int) error {
	res := db.Model(&models.GradingTask{}).
		Where("id = ? AND status = ? AND attempts = ?", task.ID, models.TaskStatusInProgress, attempt).
		Updates(map[string]interface{}{
			"status":        task.Status,
			"answer_id":     task.AnswerID,
			"failure_stage": task.FailureStage,
			"error_log":     task.ErrorLog,
			"claimed_at":    nil,
		})
	if res.Error != nil {
		return fmt.Errorf("finish grading task %d: %w", task.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleClaim
	}
	return nil
}
