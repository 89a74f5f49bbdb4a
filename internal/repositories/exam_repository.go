package repositories

import (
	"context"

	"github.com/eduforge/exam-progression-service/internal/models"
)

// ExamRepository gives the core read access to authored exam
// definitions. Authoring and reordering live in an external service;
// stages are immutable for the duration of attempts referencing them.
type ExamRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Exam, error)
	GetByIDWithStages(ctx context.Context, id uint) (*models.Exam, error)

	// GetStages returns the exam's stages strictly ascending by
	// stage_order, each exactly once. Empty slice for legacy flat exams.
	GetStages(ctx context.Context, examID uint) ([]*models.Stage, error)
	GetStageByID(ctx context.Context, stageID uint) (*models.Stage, error)

	// GetFlatQuestions returns the legacy exam->question join rows
	// ordered by position.
	GetFlatQuestions(ctx context.Context, examID uint) ([]*models.ExamQuestion, error)

	// GetQuestionsByIDs fetches questions for the given ids; callers
	// re-expand duplicates themselves.
	GetQuestionsByIDs(ctx context.Context, ids []uint) ([]*models.Question, error)
}
