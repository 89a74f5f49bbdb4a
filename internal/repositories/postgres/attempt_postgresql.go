package postgres

import (
	"context"
	"errors"

	"github.com/eduforge/exam-progression-service/internal/models"
	"github.com/eduforge/exam-progression-service/internal/repositories"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AttemptPostgreSQL struct {
	db *gorm.DB
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{db: db}
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, attempt *models.Attempt) error {
	return a.db.WithContext(ctx).Create(attempt).Error
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Attempt, error) {
	var attempt models.Attempt
	if err := a.db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetByIDWithProgress(ctx context.Context, id uint) (*models.Attempt, error) {
	var attempt models.Attempt
	if err := a.db.WithContext(ctx).
		Preload("StageProgress", func(db *gorm.DB) *gorm.DB {
			return db.Order("stage_id ASC")
		}).
		First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) Update(ctx context.Context, attempt *models.Attempt) error {
	return a.db.WithContext(ctx).Save(attempt).Error
}

func (a *AttemptPostgreSQL) UpdateAnswers(ctx context.Context, id uint, answers datatypes.JSONMap, expectedVersion int) error {
	res := a.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]interface{}{
			"answers": answers,
			"version": expectedVersion + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (a *AttemptPostgreSQL) UpdateStatus(ctx context.Context, id uint, status models.CompletionStatus) error {
	return a.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ?", id).
		Update("completion_status", status).Error
}

func (a *AttemptPostgreSQL) List(ctx context.Context, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	var attempts []*models.Attempt
	var total int64

	query := a.db.WithContext(ctx).Model(&models.Attempt{})
	query = applyAttemptFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)
	if err := query.Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

func (a *AttemptPostgreSQL) GetActiveAttempt(ctx context.Context, studentID string, examID uint) (*models.Attempt, error) {
	var attempt models.Attempt
	if err := a.db.WithContext(ctx).
		Where("student_id = ? AND exam_id = ? AND completion_status = ?",
			studentID, examID, models.AttemptInProgress).
		First(&attempt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetStats(ctx context.Context, examID uint) (*repositories.ExamAttemptStats, error) {
	var total int64
	if err := a.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("exam_id = ?", examID).
		Count(&total).Error; err != nil {
		return nil, err
	}

	breakdown := make(map[models.CompletionStatus]int)
	statuses := []models.CompletionStatus{models.AttemptInProgress, models.AttemptSubmitted, models.AttemptAbandoned}
	for _, status := range statuses {
		var count int64
		if err := a.db.WithContext(ctx).
			Model(&models.Attempt{}).
			Where("exam_id = ? AND completion_status = ?", examID, status).
			Count(&count).Error; err != nil {
			return nil, err
		}
		breakdown[status] = int(count)
	}

	var avgScore float64
	a.db.WithContext(ctx).
		Model(&models.ExamResult{}).
		Joins("JOIN attempts ON attempts.id = exam_results.attempt_id").
		Where("attempts.exam_id = ?", examID).
		Select("COALESCE(AVG(exam_results.final_score_percentage), 0)").
		Row().Scan(&avgScore)

	return &repositories.ExamAttemptStats{
		TotalAttempts:     int(total),
		SubmittedAttempts: breakdown[models.AttemptSubmitted],
		StatusBreakdown:   breakdown,
		AverageScore:      avgScore,
	}, nil
}

func applyAttemptFilters(query *gorm.DB, filters repositories.AttemptFilters) *gorm.DB {
	if filters.Status != "" {
		query = query.Where("completion_status = ?", filters.Status)
	}
	if filters.StudentID != nil {
		query = query.Where("student_id = ?", *filters.StudentID)
	}
	if filters.ExamID != nil {
		query = query.Where("exam_id = ?", *filters.ExamID)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}
	return query
}

func applyPaginationAndSort(query *gorm.DB, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	if sortBy == "" {
		sortBy = "created_at"
	}
	if sortOrder != "asc" {
		sortOrder = "desc"
	}
	query = query.Order(sortBy + " " + sortOrder)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	return query
}
