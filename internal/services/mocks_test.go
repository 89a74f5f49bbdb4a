package services

import (
	"context"
	"io"
	"log/slog"

	"github.com/eduforge/exam-progression-service/internal/cache"
	"github.com/eduforge/exam-progression-service/internal/events"
	"github.com/eduforge/exam-progression-service/internal/models"
	"github.com/eduforge/exam-progression-service/internal/queue"
	"github.com/eduforge/exam-progression-service/internal/repositories"
	"github.com/eduforge/exam-progression-service/internal/utils"
	"github.com/eduforge/exam-progression-service/internal/validator"
	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"
)

// MockExamRepository is a mock implementation of ExamRepository
type MockExamRepository struct {
	mock.Mock
}

func (m *MockExamRepository) GetByID(ctx context.Context, id uint) (*models.Exam, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Exam), args.Error(1)
}

func (m *MockExamRepository) GetByIDWithStages(ctx context.Context, id uint) (*models.Exam, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Exam), args.Error(1)
}

func (m *MockExamRepository) GetStages(ctx context.Context, examID uint) ([]*models.Stage, error) {
	args := m.Called(ctx, examID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Stage), args.Error(1)
}

func (m *MockExamRepository) GetStageByID(ctx context.Context, stageID uint) (*models.Stage, error) {
	args := m.Called(ctx, stageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Stage), args.Error(1)
}

func (m *MockExamRepository) GetFlatQuestions(ctx context.Context, examID uint) ([]*models.ExamQuestion, error) {
	args := m.Called(ctx, examID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ExamQuestion), args.Error(1)
}

func (m *MockExamRepository) GetQuestionsByIDs(ctx context.Context, ids []uint) ([]*models.Question, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Question), args.Error(1)
}

// MockAttemptRepository is a mock implementation of AttemptRepository
type MockAttemptRepository struct {
	mock.Mock
}

func (m *MockAttemptRepository) Create(ctx context.Context, attempt *models.Attempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *MockAttemptRepository) GetByID(ctx context.Context, id uint) (*models.Attempt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Attempt), args.Error(1)
}

func (m *MockAttemptRepository) GetByIDWithProgress(ctx context.Context, id uint) (*models.Attempt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Attempt), args.Error(1)
}

func (m *MockAttemptRepository) Update(ctx context.Context, attempt *models.Attempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *MockAttemptRepository) UpdateAnswers(ctx context.Context, id uint, answers datatypes.JSONMap, expectedVersion int) error {
	args := m.Called(ctx, id, answers, expectedVersion)
	return args.Error(0)
}

func (m *MockAttemptRepository) UpdateStatus(ctx context.Context, id uint, status models.CompletionStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockAttemptRepository) List(ctx context.Context, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*models.Attempt), args.Get(1).(int64), args.Error(2)
}

func (m *MockAttemptRepository) GetActiveAttempt(ctx context.Context, studentID string, examID uint) (*models.Attempt, error) {
	args := m.Called(ctx, studentID, examID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Attempt), args.Error(1)
}

func (m *MockAttemptRepository) GetStats(ctx context.Context, examID uint) (*repositories.ExamAttemptStats, error) {
	args := m.Called(ctx, examID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repositories.ExamAttemptStats), args.Error(1)
}

// MockStageProgressRepository is a mock implementation of StageProgressRepository
type MockStageProgressRepository struct {
	mock.Mock
}

func (m *MockStageProgressRepository) Create(ctx context.Context, progress *models.StageProgress) error {
	args := m.Called(ctx, progress)
	return args.Error(0)
}

func (m *MockStageProgressRepository) Update(ctx context.Context, progress *models.StageProgress) error {
	args := m.Called(ctx, progress)
	return args.Error(0)
}

func (m *MockStageProgressRepository) GetByAttempt(ctx context.Context, attemptID uint) ([]*models.StageProgress, error) {
	args := m.Called(ctx, attemptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.StageProgress), args.Error(1)
}

func (m *MockStageProgressRepository) GetByAttemptAndStage(ctx context.Context, attemptID, stageID uint) (*models.StageProgress, error) {
	args := m.Called(ctx, attemptID, stageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StageProgress), args.Error(1)
}

// MockResultRepository is a mock implementation of ResultRepository
type MockResultRepository struct {
	mock.Mock
}

func (m *MockResultRepository) Upsert(ctx context.Context, result *models.ExamResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *MockResultRepository) GetByAttempt(ctx context.Context, attemptID uint) (*models.ExamResult, error) {
	args := m.Called(ctx, attemptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ExamResult), args.Error(1)
}

// mockRepository aggregates the entity mocks. WithTransaction runs fn
// against the same aggregate, which is enough for service-level tests.
type mockRepository struct {
	exam     *MockExamRepository
	attempt  *MockAttemptRepository
	progress *MockStageProgressRepository
	result   *MockResultRepository
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		exam:     new(MockExamRepository),
		attempt:  new(MockAttemptRepository),
		progress: new(MockStageProgressRepository),
		result:   new(MockResultRepository),
	}
}

func (m *mockRepository) Exam() repositories.ExamRepository { return m.exam }

func (m *mockRepository) Attempt() repositories.AttemptRepository { return m.attempt }

func (m *mockRepository) StageProgress() repositories.StageProgressRepository { return m.progress }

func (m *mockRepository) Result() repositories.ResultRepository { return m.result }

func (m *mockRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(m)
}

func (m *mockRepository) Ping(ctx context.Context) error { return nil }

func (m *mockRepository) Close() error { return nil }

func (m *mockRepository) assertExpectations(t mock.TestingT) {
	m.exam.AssertExpectations(t)
	m.attempt.AssertExpectations(t)
	m.progress.AssertExpectations(t)
	m.result.AssertExpectations(t)
}

// testDeps bundles the service collaborators shared across tests.
type testDeps struct {
	repo      *mockRepository
	cache     *cache.MemoryCache
	publisher *events.MockEventPublisher
	validator *validator.Validator
	logger    utils.Logger
}

func newTestDeps() *testDeps {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &testDeps{
		repo:      newMockRepository(),
		cache:     cache.NewMemoryCache(),
		publisher: events.NewMockEventPublisher(quiet),
		validator: validator.New(),
		logger:    utils.NewSlogLogger(quiet),
	}
}

func (d *testDeps) progressService(retry queue.Enqueuer) ProgressService {
	return NewProgressService(d.repo, d.cache, d.publisher, retry, d.logger, d.validator)
}

func (d *testDeps) attemptService() AttemptService {
	return NewAttemptService(d.repo, d.cache, d.publisher, d.logger, d.validator)
}

func (d *testDeps) resultService() ResultService {
	return NewResultService(d.repo, d.logger)
}
