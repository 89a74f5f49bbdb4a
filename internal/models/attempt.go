package models

import (
	"time"

	"gorm.io/datatypes"
)

type CompletionStatus string

const (
	AttemptInProgress CompletionStatus = "in_progress"
	AttemptSubmitted  CompletionStatus = "submitted"
	AttemptAbandoned  CompletionStatus = "abandoned"
)

// Attempt is one student session against an exam. Answers is an open
// JSONB map of question id (stringified) to whatever the client sent;
// correctness is only evaluated at submission.
type Attempt struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	ExamID    uint   `json:"exam_id" gorm:"not null;index"`
	StudentID string `json:"student_id" gorm:"not null;index;size:255"`

	Answers          datatypes.JSONMap `json:"answers" gorm:"type:jsonb"`
	CompletionStatus CompletionStatus  `json:"completion_status" gorm:"default:in_progress;index"`

	StartedAt   time.Time  `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at"`

	// Optimistic concurrency counter, bumped on every answer auto-save.
	Version int `json:"version" gorm:"default:1"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Exam          Exam            `json:"exam" gorm:"foreignKey:ExamID"`
	StageProgress []StageProgress `json:"stage_progress" gorm:"foreignKey:AttemptID"`
}

func (a *Attempt) IsTerminal() bool {
	return a.CompletionStatus == AttemptSubmitted || a.CompletionStatus == AttemptAbandoned
}

func (Attempt) TableName() string {
	return "attempts"
}
