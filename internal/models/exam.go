package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ExamStatus string

const (
	ExamDraft    ExamStatus = "Draft"
	ExamActive   ExamStatus = "Active"
	ExamArchived ExamStatus = "Archived"
)

type StageType string

const (
	StageVideo     StageType = "video"
	StageContent   StageType = "content"
	StageQuestions StageType = "questions"
)

// Exam is the authored definition a student takes an Attempt against.
// Legacy exams carry no stages and reference their questions directly
// through the flat ExamQuestion join.
type Exam struct {
	ID            uint       `json:"id" gorm:"primaryKey"`
	Title         string     `json:"title" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description   *string    `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`
	Status        ExamStatus `json:"status" gorm:"default:Draft;index" validate:"omitempty,oneof=Draft Active Archived"`
	PassThreshold *float64   `json:"pass_threshold" validate:"omitempty,min=0,max=100"`

	// Metadata
	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Version control
	Version int `json:"version" gorm:"default:1"`

	// Relations
	Stages    []Stage        `json:"stages" gorm:"foreignKey:ExamID"`
	Questions []ExamQuestion `json:"questions" gorm:"foreignKey:ExamID"`
	Attempts  []Attempt      `json:"attempts" gorm:"foreignKey:ExamID"`
}

// Stage is one ordered unit of exam content. Config is a JSONB document
// whose shape depends on StageType; decode it through the typed accessors
// instead of touching the raw bytes.
//
// stage_order is intended to be unique and contiguous per exam, but the
// storage layer does not enforce that; callers own the convention.
type Stage struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	ExamID     uint           `json:"exam_id" gorm:"not null;index"`
	StageType  StageType      `json:"stage_type" gorm:"not null;size:20" validate:"required,stage_type"`
	StageOrder int            `json:"stage_order" gorm:"not null;index" validate:"min=0"`
	Config     datatypes.JSON `json:"config" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VideoStageConfig configures a video stage. EnforcementThreshold is the
// minimum watch percentage (0-100) required before the stage may be
// completed; nil means any completion is allowed.
type VideoStageConfig struct {
	URL                  string   `json:"url"`
	EnforcementThreshold *float64 `json:"enforcement_threshold,omitempty"`
	Description          *string  `json:"description,omitempty"`
}

type Slide struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Order   int    `json:"order"`
}

// ContentStageConfig configures a reading stage. MinimumReadTimePerSlide
// is in seconds; nil disables the per-slide time gate.
type ContentStageConfig struct {
	Slides                  []Slide `json:"slides"`
	MinimumReadTimePerSlide *int    `json:"minimum_read_time_per_slide,omitempty"`
}

type QuestionsStageConfig struct {
	QuestionIDs []uint `json:"question_ids"`
	Randomize   bool   `json:"randomize"`
}

func (s *Stage) VideoConfig() (*VideoStageConfig, error) {
	if s.StageType != StageVideo {
		return nil, fmt.Errorf("stage %d is %s, not video", s.ID, s.StageType)
	}
	var cfg VideoStageConfig
	if err := json.Unmarshal(s.Config, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode video stage config: %w", err)
	}
	return &cfg, nil
}

func (s *Stage) ContentConfig() (*ContentStageConfig, error) {
	if s.StageType != StageContent {
		return nil, fmt.Errorf("stage %d is %s, not content", s.ID, s.StageType)
	}
	var cfg ContentStageConfig
	if err := json.Unmarshal(s.Config, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode content stage config: %w", err)
	}
	return &cfg, nil
}

func (s *Stage) QuestionsConfig() (*QuestionsStageConfig, error) {
	if s.StageType != StageQuestions {
		return nil, fmt.Errorf("stage %d is %s, not questions", s.ID, s.StageType)
	}
	var cfg QuestionsStageConfig
	if err := json.Unmarshal(s.Config, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode questions stage config: %w", err)
	}
	return &cfg, nil
}

// Question holds the scorable unit. CorrectAnswer is a JSONB document:
// either a single answer key (string) or a set of keys (array of strings).
type Question struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	Prompt        string         `json:"prompt" gorm:"type:text;not null" validate:"required"`
	CorrectAnswer datatypes.JSON `json:"correct_answer" gorm:"type:jsonb"`
	Points        int            `json:"points" gorm:"default:1" validate:"min=0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExamQuestion is the flat exam->question join used by legacy zero-stage
// exams. Staged exams reference questions through QuestionsStageConfig.
type ExamQuestion struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	ExamID     uint `json:"exam_id" gorm:"not null;index"`
	QuestionID uint `json:"question_id" gorm:"not null;index"`
	Position   int  `json:"position" gorm:"not null"`

	// Relations
	Question Question `json:"question" gorm:"foreignKey:QuestionID"`
}

func (Exam) TableName() string {
	return "exams"
}

func (Stage) TableName() string {
	return "exam_stages"
}

func (Question) TableName() string {
	return "questions"
}

func (ExamQuestion) TableName() string {
	return "exam_questions"
}
