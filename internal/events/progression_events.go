package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents different types of progression events
type EventType string

const (
	// Stage events
	EventStageCompleted EventType = "stage.completed"

	// Attempt events
	EventAttemptStarted   EventType = "attempt.started"
	EventAttemptSubmitted EventType = "attempt.submitted"
	EventAttemptAbandoned EventType = "attempt.abandoned"

	// Result events
	EventResultRecorded EventType = "result.recorded"
)

// ProgressionEvent is the base event structure for all progression events
type ProgressionEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewProgressionEvent builds a base event with a fresh id and timestamp.
func NewProgressionEvent(eventType EventType, data interface{}) *ProgressionEvent {
	return &ProgressionEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    "exam-progression-service",
		Version:   "1.0",
		Data:      data,
	}
}

// Stage event payloads

type StageCompletedEvent struct {
	AttemptID   uint      `json:"attempt_id"`
	ExamID      uint      `json:"exam_id"`
	StageID     uint      `json:"stage_id"`
	StageType   string    `json:"stage_type"`
	StudentID   string    `json:"student_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// Attempt event payloads

type AttemptStartedEvent struct {
	AttemptID uint      `json:"attempt_id"`
	ExamID    uint      `json:"exam_id"`
	StudentID string    `json:"student_id"`
	StartedAt time.Time `json:"started_at"`
}

type AttemptSubmittedEvent struct {
	AttemptID   uint      `json:"attempt_id"`
	ExamID      uint      `json:"exam_id"`
	StudentID   string    `json:"student_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type AttemptAbandonedEvent struct {
	AttemptID   uint      `json:"attempt_id"`
	ExamID      uint      `json:"exam_id"`
	StudentID   string    `json:"student_id"`
	AbandonedAt time.Time `json:"abandoned_at"`
}

// Result event payloads

type ResultRecordedEvent struct {
	AttemptID            uint    `json:"attempt_id"`
	ExamID               uint    `json:"exam_id"`
	StudentID            string  `json:"student_id"`
	TotalQuestions       int     `json:"total_questions"`
	CorrectCount         int     `json:"correct_count"`
	ScorePercentage      float64 `json:"score_percentage"`
	FinalScorePercentage float64 `json:"final_score_percentage"`
}
