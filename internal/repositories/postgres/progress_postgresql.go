package postgres

import (
	"context"

	"github.com/eduforge/exam-progression-service/internal/models"
	"github.com/eduforge/exam-progression-service/internal/repositories"
	"gorm.io/gorm"
)

type StageProgressPostgreSQL struct {
	db *gorm.DB
}

func NewStageProgressPostgreSQL(db *gorm.DB) repositories.StageProgressRepository {
	return &StageProgressPostgreSQL{db: db}
}

func (s *StageProgressPostgreSQL) Create(ctx context.Context, progress *models.StageProgress) error {
	return s.db.WithContext(ctx).Create(progress).Error
}

func (s *StageProgressPostgreSQL) Update(ctx context.Context, progress *models.StageProgress) error {
	return s.db.WithContext(ctx).Save(progress).Error
}

func (s *StageProgressPostgreSQL) GetByAttempt(ctx context.Context, attemptID uint) ([]*models.StageProgress, error) {
	var rows []*models.StageProgress
	if err := s.db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("stage_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *StageProgressPostgreSQL) GetByAttemptAndStage(ctx context.Context, attemptID, stageID uint) (*models.StageProgress, error) {
	var row models.StageProgress
	if err := s.db.WithContext(ctx).
		Where("attempt_id = ? AND stage_id = ?", attemptID, stageID).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}
