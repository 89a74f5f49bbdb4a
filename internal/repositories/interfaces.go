package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/eduforge/exam-progression-service/internal/models"
	"gorm.io/gorm"
)

// Repository aggregates the per-entity repositories and transaction
// support. WithTransaction runs fn against a repository bound to a single
// transaction; fn returning an error rolls everything back.
type Repository interface {
	Exam() ExamRepository
	Attempt() AttemptRepository
	StageProgress() StageProgressRepository
	Result() ResultRepository

	WithTransaction(ctx context.Context, fn func(Repository) error) error
	Ping(ctx context.Context) error
	Close() error
}

// IsNotFoundError reports whether err is the storage layer's "no such
// row" condition.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// ===== SHARED FILTER STRUCTS =====

type AttemptFilters struct {
	Status    models.CompletionStatus `json:"status"`
	StudentID *string                 `json:"student_id"`
	ExamID    *uint                   `json:"exam_id"`
	DateFrom  *time.Time              `json:"date_from"`
	DateTo    *time.Time              `json:"date_to"`
	Limit     int                     `json:"limit"`
	Offset    int                     `json:"offset"`
	SortBy    string                  `json:"sort_by"`    // "created_at", "submitted_at"
	SortOrder string                  `json:"sort_order"` // "asc", "desc"
}

// ===== SHARED STATISTICS STRUCTS =====

type ExamAttemptStats struct {
	TotalAttempts     int                             `json:"total_attempts"`
	SubmittedAttempts int                             `json:"submitted_attempts"`
	StatusBreakdown   map[models.CompletionStatus]int `json:"status_breakdown"`
	AverageScore      float64                         `json:"average_score"`
}
