package postgres

import (
	"context"

	"github.com/eduforge/exam-progression-service/internal/models"
	"github.com/eduforge/exam-progression-service/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResultPostgreSQL struct {
	db *gorm.DB
}

func NewResultPostgreSQL(db *gorm.DB) repositories.ResultRepository {
	return &ResultPostgreSQL{db: db}
}

// Upsert keys on attempt_id so recomputing an unchanged attempt is
// idempotent.
func (r *ResultPostgreSQL) Upsert(ctx context.Context, result *models.ExamResult) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "attempt_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"total_questions",
				"correct_count",
				"score_percentage",
				"auto_points",
				"max_points",
				"final_score_percentage",
				"updated_at",
			}),
		}).
		Create(result).Error
}

func (r *ResultPostgreSQL) GetByAttempt(ctx context.Context, attemptID uint) (*models.ExamResult, error) {
	var result models.ExamResult
	if err := r.db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}
