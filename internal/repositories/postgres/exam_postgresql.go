package postgres

import (
	"context"

	"github.com/eduforge/exam-progression-service/internal/models"
	"github.com/eduforge/exam-progression-service/internal/repositories"
	"gorm.io/gorm"
)

type ExamPostgreSQL struct {
	db *gorm.DB
}

func NewExamPostgreSQL(db *gorm.DB) repositories.ExamRepository {
	return &ExamPostgreSQL{db: db}
}

func (e *ExamPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Exam, error) {
	var exam models.Exam
	if err := e.db.WithContext(ctx).First(&exam, id).Error; err != nil {
		return nil, err
	}
	return &exam, nil
}

func (e *ExamPostgreSQL) GetByIDWithStages(ctx context.Context, id uint) (*models.Exam, error) {
	var exam models.Exam
	if err := e.db.WithContext(ctx).
		Preload("Stages", func(db *gorm.DB) *gorm.DB {
			return db.Order("stage_order ASC")
		}).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Questions.Question").
		First(&exam, id).Error; err != nil {
		return nil, err
	}
	return &exam, nil
}

func (e *ExamPostgreSQL) GetStages(ctx context.Context, examID uint) ([]*models.Stage, error) {
	var stages []*models.Stage
	if err := e.db.WithContext(ctx).
		Where("exam_id = ?", examID).
		Order("stage_order ASC").
		Find(&stages).Error; err != nil {
		return nil, err
	}
	return stages, nil
}

func (e *ExamPostgreSQL) GetStageByID(ctx context.Context, stageID uint) (*models.Stage, error) {
	var stage models.Stage
	if err := e.db.WithContext(ctx).First(&stage, stageID).Error; err != nil {
		return nil, err
	}
	return &stage, nil
}

func (e *ExamPostgreSQL) GetFlatQuestions(ctx context.Context, examID uint) ([]*models.ExamQuestion, error) {
	var rows []*models.ExamQuestion
	if err := e.db.WithContext(ctx).
		Where("exam_id = ?", examID).
		Order("position ASC").
		Preload("Question").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (e *ExamPostgreSQL) GetQuestionsByIDs(ctx context.Context, ids []uint) ([]*models.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var questions []*models.Question
	if err := e.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&questions).Error; err != nil {
		return nil, err
	}
	return questions, nil
}
