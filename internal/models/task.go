package models

import (
	"strings"
	"time"

	"inpeak-backend/internal/apperr"
)

// TaskStatus defines the lifecycle state of a grading task
type TaskStatus string

const (
	TaskStatusWaiting    TaskStatus = "WAITING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusSuccess    TaskStatus = "SUCCESS"
	TaskStatusFailed     TaskStatus = "FAILED"
)

// FailureStage names the pipeline step a failed task stopped at.
type FailureStage string

const (
	StageEnqueue FailureStage = "enqueue"
	StageFetch   FailureStage = "fetch"
	StageGrade   FailureStage = "grade"
	StageParse   FailureStage = "parse"
	StagePersist FailureStage = "persist"
)

// GradingTask is one submitted answer waiting for, or done with, AI grading.
// QuestionContent is copied at creation so regrading sees the same question text.
type GradingTask struct {
	ID              uint         `gorm:"primarykey" json:"id"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	MemberID        uint         `gorm:"index;not null" json:"member_id"`
	InterviewID     uint         `gorm:"index;not null" json:"interview_id"`
	QuestionID      uint         `gorm:"not null" json:"question_id"`
	QuestionContent string       `gorm:"type:text;not null" json:"question_content"`
	AudioFileURL    string       `gorm:"not null" json:"audio_file_url"`
	VideoFileURL    *string      `json:"video_file_url,omitempty"`
	Time            int          `json:"time"`
	AnswerID        *uint        `json:"answer_id,omitempty"`
	Status          TaskStatus   `gorm:"type:varchar(20);index;not null" json:"status"`
	FailureStage    FailureStage `gorm:"type:varchar(20)" json:"failure_stage,omitempty"`
	ErrorLog        string       `gorm:"type:text" json:"error_log,omitempty"`
	Attempts        int          `gorm:"default:0" json:"attempts"`
	ClaimedAt       *time.Time   `json:"claimed_at,omitempty"`
}

// TableName overrides the table name
func (GradingTask) TableName() string {
	return "answer_tasks"
}

// NewGradingTask builds a WAITING task. Media references are stored without
// their query string so a fresh signature can be issued when the worker reads them.
func NewGradingTask(memberID, questionID, interviewID uint, questionContent, audioURL string, videoURL *string, seconds int) *GradingTask {
	return &GradingTask{
		MemberID:        memberID,
		QuestionID:      questionID,
		InterviewID:     interviewID,
		QuestionContent: questionContent,
		AudioFileURL:    StripQuery(audioURL),
		VideoFileURL:    stripQueryPtr(videoURL),
		Time:            seconds,
		Status:          TaskStatusWaiting,
	}
}

// MarkSuccess records the created answer. It applies from any prior state.
func (t *GradingTask) MarkSuccess(answerID uint) {
	t.Status = TaskStatusSuccess
	t.AnswerID = &answerID
	t.FailureStage = ""
	t.ErrorLog = ""
	t.ClaimedAt = nil
}

// MarkFailed leaves AnswerID untouched.
func (t *GradingTask) MarkFailed(stage FailureStage, cause error) {
	t.Status = TaskStatusFailed
	t.FailureStage = stage
	t.ClaimedAt = nil
	if cause != nil {
		t.ErrorLog = cause.Error()
	}
}

// Retry moves a FAILED task back to WAITING. Re-enqueueing is a separate step.
func (t *GradingTask) Retry() error {
	if t.Status != TaskStatusFailed {
		return apperr.BadRequest("task %d cannot be retried from status %s", t.ID, t.Status)
	}
	t.Status = TaskStatusWaiting
	t.FailureStage = ""
	t.ErrorLog = ""
	return nil
}

// ClaimExpired reports whether an IN_PROGRESS task was claimed longer than
// ttl ago, meaning the worker holding it is gone.
func (t *GradingTask) ClaimExpired(ttl time.Duration, now time.Time) bool {
	return t.Status == TaskStatusInProgress && t.ClaimedAt != nil && t.ClaimedAt.Before(now.Add(-ttl))
}

func (t *GradingTask) IsTerminal() bool {
	return t.Status == TaskStatusSuccess || t.Status == TaskStatusFailed
}

// StripQuery drops everything from the first '?'.
func StripQuery(ref string) string {
	if i := strings.IndexByte(ref, '?'); i >= 0 {
		return ref[:i]
	}
	return ref
}

func stripQueryPtr(ref *string) *string {
	if ref == nil {
		return nil
	}
	s := StripQuery(*ref)
	return &s
}
