package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// StageProgress is the per-(attempt, stage) progress row. ProgressData is
// an open JSONB document whose shape depends on the stage type; storage
// treats it opaquely and every write replaces it wholly.
//
// CompletedAt is a one-way latch: once set it is never cleared, regardless
// of what later writes ask for.
type StageProgress struct {
	ID        uint `json:"id" gorm:"primaryKey"`
	AttemptID uint `json:"attempt_id" gorm:"not null;uniqueIndex:idx_attempt_stage"`
	StageID   uint `json:"stage_id" gorm:"not null;uniqueIndex:idx_attempt_stage"`

	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at"`
	ProgressData datatypes.JSON `json:"progress_data" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (sp *StageProgress) IsCompleted() bool {
	return sp.CompletedAt != nil
}

func (StageProgress) TableName() string {
	return "stage_progress"
}

// VideoProgress is the progress_data payload for video stages.
// LastPosition is stored and returned verbatim; any seek tolerance is a
// player concern, not a storage one.
type VideoProgress struct {
	WatchPercentage float64 `json:"watch_percentage"`
	LastPosition    float64 `json:"last_position"`
}

// ContentProgress is the progress_data payload for reading stages.
// SlideTimes maps slide id to elapsed seconds on that slide.
type ContentProgress struct {
	CurrentSlideIndex int                `json:"current_slide_index"`
	SlideTimes        map[string]float64 `json:"slide_times"`
	VisitedSlides     []string           `json:"visited_slides"`
}

// QuestionsProgress is the progress_data payload for question stages.
// The counts drive UI display only; correctness is evaluated exclusively
// at submission.
type QuestionsProgress struct {
	AnsweredCount int `json:"answered_count"`
	TotalCount    int `json:"total_count"`
}

// DecodeProgressData validates the stored document against the stage type
// and returns the typed payload. The stored shape is never trusted
// implicitly.
func DecodeProgressData(stageType StageType, raw datatypes.JSON) (interface{}, error) {
	if len(raw) == 0 {
		raw = datatypes.JSON([]byte("{}"))
	}
	switch stageType {
	case StageVideo:
		var p VideoProgress
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid video progress payload: %w", err)
		}
		return &p, nil
	case StageContent:
		var p ContentProgress
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid content progress payload: %w", err)
		}
		if p.SlideTimes == nil {
			p.SlideTimes = map[string]float64{}
		}
		return &p, nil
	case StageQuestions:
		var p QuestionsProgress
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid questions progress payload: %w", err)
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("unknown stage type %q", stageType)
	}
}
