package models

import "time"

// ExamResult is the persisted outcome of scoring one attempt, upserted by
// the result aggregator at submission (or explicit recomputation), keyed
// by attempt id.
//
// TotalQuestions counts every question id referenced by every questions
// stage (no deduplication); for zero-stage exams it counts the flat
// question list instead.
type ExamResult struct {
	ID        uint `json:"id" gorm:"primaryKey"`
	AttemptID uint `json:"attempt_id" gorm:"not null;uniqueIndex"`

	TotalQuestions       int     `json:"total_questions"`
	CorrectCount         int     `json:"correct_count"`
	ScorePercentage      float64 `json:"score_percentage"`
	AutoPoints           float64 `json:"auto_points"`
	MaxPoints            float64 `json:"max_points"`
	FinalScorePercentage float64 `json:"final_score_percentage"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Attempt Attempt `json:"attempt" gorm:"foreignKey:AttemptID"`
}

func (ExamResult) TableName() string {
	return "exam_results"
}
