// Package worker drives grading tasks from queue delivery to final state.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"inpeak-backend/config"
	"inpeak-backend/internal/apperr"
	"inpeak-backend/internal/grading"
	"inpeak-backend/internal/metrics"
	"inpeak-backend/internal/models"
	"inpeak-backend/internal/queue"
	"inpeak-backend/internal/services"
	"inpeak-backend/internal/store"
)

// ErrClaimHeld is returned for a delivery of a task another attempt still
// holds. The broker keeps the message and redelivers it; once the claim
// expires the redelivery takes the task over.
var ErrClaimHeld = errors.New("grading task is claimed by another attempt")

type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

type Grader interface {
	Grade(ctx context.Context, audio []byte, question string) (*grading.Result, error)
	Model() string
}

// Stage is where handling of one message ended.
type Stage string

const (
	StageDone    Stage = "done"
	StageSkipped Stage = "skipped"
	StageFetch   Stage = Stage(models.StageFetch)
	StageGrade   Stage = Stage(models.StageGrade)
	StageParse   Stage = Stage(models.StageParse)
	StagePersist Stage = Stage(models.StagePersist)
)

// Outcome is the result of handling one message.
type Outcome struct {
	TaskID   uint
	Stage    Stage
	Verdict  models.AnswerStatus
	AnswerID uint
	Err      error
}

func (o Outcome) Failed() bool {
	return o.Stage != StageDone && o.Stage != StageSkipped
}

type Consumer struct {
	tasks          *store.TaskStore
	fetcher        Fetcher
	grader         Grader
	stats          services.StatisticsUpdater
	claimTTL       time.Duration
	gradingTimeout time.Duration
	log            *zap.Logger
}

func NewConsumer(cfg *config.Config, tasks *store.TaskStore, fetcher Fetcher, grader Grader, stats services.StatisticsUpdater, log *zap.Logger) *Consumer {
	return &Consumer{
		tasks:          tasks,
		fetcher:        fetcher,
		grader:         grader,
		stats:          stats,
		claimTTL:       cfg.WorkerClaimTTL,
		gradingTimeout: cfg.GradingTimeout,
		log:            log.Named("worker"),
	}
}

// HandleMessage is a queue.Handler. It returns an error when the task cannot
// be loaded or claimed, or is held by a live claim, so the broker delivers the
// message again. Every processing failure is recorded on the task instead.
//
// Processing runs detached from ctx: shutting the consumer down lets
// in-flight tasks finish within the fetch and grading timeouts.
func (c *Consumer) HandleMessage(ctx context.Context, msg queue.TaskMessage) error {
	start := time.Now()
	metrics.InFlight.Inc()
	defer func() {
		metrics.InFlight.Dec()
		metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	log := c.log.With(zap.Uint("task_id", msg.TaskID))

	claimed, err := c.tasks.Claim(ctx, msg.TaskID, c.claimTTL)
	if err != nil {
		log.Error("claim failed", zap.Error(err))
		return err
	}

	task, err := c.tasks.FindByID(ctx, msg.TaskID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			log.Error("message references a task that does not exist")
		} else {
			log.Error("load task failed", zap.Error(err))
		}
		return err
	}

	if !claimed {
		c.record(log, Outcome{TaskID: task.ID, Stage: StageSkipped})
		if task.Status == models.TaskStatusInProgress {
			log.Info("task held by a live claim, leaving message for redelivery", zap.Int("attempt", task.Attempts))
			return fmt.Errorf("task %d: %w", task.ID, ErrClaimHeld)
		}
		log.Info("task not claimable, skipping delivery", zap.String("status", string(task.Status)))
		return nil
	}

	out := c.process(context.WithoutCancel(ctx), task, task.Attempts)
	c.record(log, out)
	return nil
}

// process runs fetch, grade and persist for a claimed task. The deferred block
// records the failure on the task whenever the success path did not finish it.
func (c *Consumer) process(ctx context.Context, task *models.GradingTask, attempt int) (out Outcome) {
	out = Outcome{TaskID: task.ID}
	stage := StageFetch

	defer func() {
		if r := recover(); r != nil {
			if out.Stage == StageDone {
				c.log.Error("panic after task completed", zap.Uint("task_id", task.ID), zap.Any("panic", r))
				return
			}
			out.Stage = stage
			out.Err = fmt.Errorf("panic during %s: %v", stage, r)
		}
		if !out.Failed() || errors.Is(out.Err, store.ErrStaleClaim) {
			return
		}
		task.MarkFailed(models.FailureStage(out.Stage), out.Err)
		if err := c.tasks.Finish(ctx, task, attempt); err != nil {
			c.log.Error("failed to persist task failure",
				zap.Uint("task_id", task.ID), zap.String("stage", string(out.Stage)), zap.Error(err))
		}
	}()

	audio, err := c.fetcher.Fetch(ctx, task.AudioFileURL)
	if err != nil {
		out.Stage, out.Err = StageFetch, err
		return out
	}

	stage = StageGrade
	gradeCtx := ctx
	if c.gradingTimeout > 0 {
		var cancel context.CancelFunc
		gradeCtx, cancel = context.WithTimeout(ctx, c.gradingTimeout)
		defer cancel()
	}
	gradeStart := time.Now()
	result, err := c.grader.Grade(gradeCtx, audio, task.QuestionContent)
	metrics.GradingDuration.Observe(time.Since(gradeStart).Seconds())
	if err != nil {
		out.Stage, out.Err = StageGrade, err
		if errors.Is(err, grading.ErrMalformedResponse) {
			out.Stage = StageParse
		}
		return out
	}
	out.Verdict = result.Verdict

	stage = StagePersist
	answer := c.newAnswer(task, result, attempt)
	if err := c.tasks.CompleteWithAnswer(ctx, task, answer, attempt); err != nil {
		out.Stage, out.Err = StagePersist, err
		if errors.Is(err, store.ErrStaleClaim) {
			// Another attempt reclaimed the task; it owns the final state.
			out.Stage = StageSkipped
		}
		return out
	}
	out.Stage, out.AnswerID = StageDone, answer.ID

	if err := c.stats.Apply(ctx, task.MemberID, task.QuestionID, result.Verdict); err != nil {
		c.log.Error("statistics update failed",
			zap.Uint("task_id", task.ID), zap.Uint("member_id", task.MemberID), zap.Error(err))
	}
	return out
}

func (c *Consumer) newAnswer(task *models.GradingTask, result *grading.Result, attempt int) *models.Answer {
	meta, _ := json.Marshal(map[string]interface{}{
		"model":         c.grader.Model(),
		"promptVersion": grading.PromptVersion,
		"taskId":        task.ID,
		"attempt":       attempt,
	})
	return &models.Answer{
		MemberID:    task.MemberID,
		InterviewID: task.InterviewID,
		QuestionID:  task.QuestionID,
		Status:      result.Verdict,
		UserAnswer:  result.Transcript,
		AIAnswer:    result.Feedback,
		AnswerTime:  task.Time,
		VoiceURL:    task.AudioFileURL,
		VideoURL:    task.VideoFileURL,
		GradingMeta: datatypes.JSON(meta),
	}
}

func (c *Consumer) record(log *zap.Logger, out Outcome) {
	metrics.OutcomesTotal.WithLabelValues(string(out.Stage)).Inc()
	switch {
	case out.Stage == StageDone:
		metrics.VerdictsTotal.WithLabelValues(string(out.Verdict)).Inc()
		log.Info("task graded", zap.String("verdict", string(out.Verdict)), zap.Uint("answer_id", out.AnswerID))
	case out.Stage == StageSkipped && out.Err != nil:
		log.Warn("task claim lost before completion", zap.Error(out.Err))
	case out.Failed():
		log.Warn("task failed", zap.String("stage", string(out.Stage)), zap.Error(out.Err))
	}
}
