package postgres

import (
	"context"

	"github.com/eduforge/exam-progression-service/internal/repositories"
	"gorm.io/gorm"
)

type gormRepository struct {
	db *gorm.DB

	exam     repositories.ExamRepository
	attempt  repositories.AttemptRepository
	progress repositories.StageProgressRepository
	result   repositories.ResultRepository
}

// NewRepository wires the Postgres-backed repository aggregate.
func NewRepository(db *gorm.DB) repositories.Repository {
	return &gormRepository{
		db:       db,
		exam:     NewExamPostgreSQL(db),
		attempt:  NewAttemptPostgreSQL(db),
		progress: NewStageProgressPostgreSQL(db),
		result:   NewResultPostgreSQL(db),
	}
}

func (r *gormRepository) Exam() repositories.ExamRepository { return r.exam }

func (r *gormRepository) Attempt() repositories.AttemptRepository { return r.attempt }

func (r *gormRepository) StageProgress() repositories.StageProgressRepository { return r.progress }

func (r *gormRepository) Result() repositories.ResultRepository { return r.result }

func (r *gormRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}

func (r *gormRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *gormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
