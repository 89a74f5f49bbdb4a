package repositories

import (
	"context"

	"github.com/eduforge/exam-progression-service/internal/models"
	"gorm.io/datatypes"
)

// AttemptRepository persists student attempt sessions.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.Attempt) error
	GetByID(ctx context.Context, id uint) (*models.Attempt, error)
	GetByIDWithProgress(ctx context.Context, id uint) (*models.Attempt, error)
	Update(ctx context.Context, attempt *models.Attempt) error

	// UpdateAnswers replaces the answers map and bumps the optimistic
	// version counter; it fails with a not-found condition when the
	// stored version no longer matches expectedVersion.
	UpdateAnswers(ctx context.Context, id uint, answers datatypes.JSONMap, expectedVersion int) error

	UpdateStatus(ctx context.Context, id uint, status models.CompletionStatus) error

	List(ctx context.Context, filters AttemptFilters) ([]*models.Attempt, int64, error)
	GetActiveAttempt(ctx context.Context, studentID string, examID uint) (*models.Attempt, error)
	GetStats(ctx context.Context, examID uint) (*ExamAttemptStats, error)
}

// StageProgressRepository persists per-(attempt, stage) progress rows.
// Latch semantics (completed_at is never cleared) are the progress
// service's responsibility; this layer is plain storage.
type StageProgressRepository interface {
	Create(ctx context.Context, progress *models.StageProgress) error
	Update(ctx context.Context, progress *models.StageProgress) error
	GetByAttempt(ctx context.Context, attemptID uint) ([]*models.StageProgress, error)
	GetByAttemptAndStage(ctx context.Context, attemptID, stageID uint) (*models.StageProgress, error)
}

// ResultRepository persists scored results, one row per attempt.
type ResultRepository interface {
	// Upsert creates or replaces the result keyed by attempt_id.
	Upsert(ctx context.Context, result *models.ExamResult) error
	GetByAttempt(ctx context.Context, attemptID uint) (*models.ExamResult, error)
}
