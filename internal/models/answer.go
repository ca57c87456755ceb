package models

import (
	"time"

	"gorm.io/datatypes"
)

type AnswerStatus string

const (
	AnswerStatusCorrect   AnswerStatus = "CORRECT"
	AnswerStatusIncorrect AnswerStatus = "INCORRECT"
	AnswerStatusSkipped   AnswerStatus = "SKIPPED"
)

// Answer is the graded outcome of one question within one interview.
// The composite unique index allows a single answer per (interview, question).
type Answer struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	MemberID     uint           `gorm:"index;not null" json:"member_id"`
	InterviewID  uint           `gorm:"not null;uniqueIndex:idx_answer_interview_question" json:"interview_id"`
	QuestionID   uint           `gorm:"not null;uniqueIndex:idx_answer_interview_question" json:"question_id"`
	Status       AnswerStatus   `gorm:"type:varchar(20);not null" json:"status"`
	UserAnswer   string         `gorm:"type:text" json:"user_answer"`
	AIAnswer     string         `gorm:"type:text" json:"ai_answer"`
	IsUnderstood bool           `gorm:"default:false" json:"is_understood"`
	AnswerTime   int            `json:"answer_time"`
	VoiceURL     string         `json:"voice_url"`
	VideoURL     *string        `json:"video_url,omitempty"`
	GradingMeta  datatypes.JSON `gorm:"type:jsonb" json:"grading_meta,omitempty"`
}

func (Answer) TableName() string {
	return "answers"
}
