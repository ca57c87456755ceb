package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"inpeak-backend/config"
	"inpeak-backend/internal/apperr"
	"inpeak-backend/internal/metrics"
	"inpeak-backend/internal/models"
	"inpeak-backend/internal/queue"
	"inpeak-backend/internal/store"
)

type SubmitRequest struct {
	MemberID    uint
	QuestionID  uint
	InterviewID uint
	AudioURL    string
	VideoURL    *string
	Time        int
}

type TaskStatusView struct {
	TaskID       uint                `json:"taskId"`
	Status       models.TaskStatus   `json:"status"`
	AnswerID     *uint               `json:"answerId,omitempty"`
	FailureStage models.FailureStage `json:"failureStage,omitempty"`
}

// SubmissionService accepts answers for grading and owns the manual
// recovery steps (retry, requeue).
type SubmissionService struct {
	tasks     *store.TaskStore
	answers   *store.AnswerStore
	questions *store.QuestionStore
	publisher queue.Publisher
	claimTTL  time.Duration
	log       *zap.Logger
}

func NewSubmissionService(cfg *config.Config, tasks *store.TaskStore, answers *store.AnswerStore, questions *store.QuestionStore, publisher queue.Publisher, log *zap.Logger) *SubmissionService {
	return &SubmissionService{
		claimTTL:  cfg.WorkerClaimTTL,
		tasks:     tasks,
		answers:   answers,
		questions: questions,
		publisher: publisher,
		log:       log.Named("submission"),
	}
}

// Submit persists a WAITING task and then publishes its ID. The task row is
// committed before the message exists, so a worker never sees an ID it
// cannot load.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (uint, error) {
	if strings.TrimSpace(req.AudioURL) == "" {
		metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
		return 0, apperr.BadRequest("audio url is required")
	}
	if req.Time < 0 {
		metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
		return 0, apperr.BadRequest("time must not be negative")
	}

	question, err := s.questions.FindByID(ctx, req.QuestionID)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
		return 0, err
	}

	exists, err := s.answers.ExistsFor(ctx, req.InterviewID, req.QuestionID)
	if err != nil {
		return 0, err
	}
	if exists {
		metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
		return 0, apperr.Conflict("interview %d already has an answer for question %d", req.InterviewID, req.QuestionID)
	}

	task := models.NewGradingTask(req.MemberID, req.QuestionID, req.InterviewID, question.Content, req.AudioURL, req.VideoURL, req.Time)
	if err := s.tasks.Create(ctx, task); err != nil {
		return 0, err
	}

	if err := s.publisher.Publish(ctx, queue.TaskMessage{TaskID: task.ID}); err != nil {
		metrics.SubmissionsTotal.WithLabelValues("enqueue_failed").Inc()
		s.log.Error("failed to enqueue grading task", zap.Uint("task_id", task.ID), zap.Error(err))
		task.MarkFailed(models.StageEnqueue, err)
		if saveErr := s.tasks.Save(ctx, task); saveErr != nil {
			s.log.Error("failed to mark task as not enqueued", zap.Uint("task_id", task.ID), zap.Error(saveErr))
		}
		return task.ID, fmt.Errorf("task %d created but not enqueued: %w", task.ID, err)
	}

	metrics.SubmissionsTotal.WithLabelValues("accepted").Inc()
	s.log.Info("grading task submitted",
		zap.Uint("task_id", task.ID),
		zap.Uint("member_id", req.MemberID),
		zap.Uint("interview_id", req.InterviewID),
		zap.Uint("question_id", req.QuestionID))
	return task.ID, nil
}

// findOwned hides other members' tasks behind NotFound.
func (s *SubmissionService) findOwned(ctx context.Context, memberID, taskID uint) (*models.GradingTask, error) {
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.MemberID != memberID {
		return nil, apperr.NotFound("grading task %d not found", taskID)
	}
	return task, nil
}

func (s *SubmissionService) GetStatus(ctx context.Context, memberID, taskID uint) (*TaskStatusView, error) {
	task, err := s.findOwned(ctx, memberID, taskID)
	if err != nil {
		return nil, err
	}
	return &TaskStatusView{
		TaskID:       task.ID,
		Status:       task.Status,
		AnswerID:     task.AnswerID,
		FailureStage: task.FailureStage,
	}, nil
}

// Retry resets a FAILED task to WAITING. It does not publish; Requeue does.
func (s *SubmissionService) Retry(ctx context.Context, memberID, taskID uint) (*models.GradingTask, error) {
	task, err := s.findOwned(ctx, memberID, taskID)
	if err != nil {
		return nil, err
	}
	if err := task.Retry(); err != nil {
		return nil, err
	}
	if err := s.tasks.Save(ctx, task); err != nil {
		return nil, err
	}
	s.log.Info("grading task reset for retry", zap.Uint("task_id", task.ID))
	return task, nil
}

// Requeue publishes a task again. Operators call it after Retry, for a task
// whose original message was lost, or for an IN_PROGRESS task whose claim
// expired; the worker reclaims the latter.
func (s *SubmissionService) Requeue(ctx context.Context, taskID uint) error {
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != models.TaskStatusWaiting && !task.ClaimExpired(s.claimTTL, time.Now()) {
		return apperr.BadRequest("task %d cannot be requeued from status %s", task.ID, task.Status)
	}
	if err := s.publisher.Publish(ctx, queue.TaskMessage{TaskID: task.ID}); err != nil {
		return fmt.Errorf("requeue task %d: %w", task.ID, err)
	}
	s.log.Info("grading task requeued", zap.Uint("task_id", task.ID))
	return nil
}
