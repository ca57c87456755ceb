package models

import "time"

// Question is owned by the question bank; the grading pipeline only reads it.
type Question struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Type      string    `gorm:"type:varchar(50);index" json:"type"`
	Content   string    `gorm:"type:text;not null" json:"content"`
}

func (Question) TableName() string {
	return "questions"
}

// MemberStatistic holds the per-member grading counters.
type MemberStatistic struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	UpdatedAt      time.Time `json:"updated_at"`
	MemberID       uint      `gorm:"uniqueIndex;not null" json:"member_id"`
	TotalCount     int64     `gorm:"not null;default:0" json:"total_count"`
	CorrectCount   int64     `gorm:"not null;default:0" json:"correct_count"`
	IncorrectCount int64     `gorm:"not null;default:0" json:"incorrect_count"`
}

func (MemberStatistic) TableName() string {
	return "member_statistics"
}
