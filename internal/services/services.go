package services

import (
	"context"
	"encoding/json"

	"github.com/eduforge/exam-progression-service/internal/cache"
	"github.com/eduforge/exam-progression-service/internal/events"
	"github.com/eduforge/exam-progression-service/internal/models"
	"github.com/eduforge/exam-progression-service/internal/progression"
	"github.com/eduforge/exam-progression-service/internal/queue"
	"github.com/eduforge/exam-progression-service/internal/repositories"
	"github.com/eduforge/exam-progression-service/internal/utils"
	"github.com/eduforge/exam-progression-service/internal/validator"
)

// ===== SERVICE INTERFACES =====

// ProgressService is the stage progress tracker: attempt state reads and
// the progress-write state machine.
type ProgressService interface {
	GetAttemptState(ctx context.Context, attemptID uint) (*AttemptStateResponse, error)
	SaveProgress(ctx context.Context, req *SaveProgressRequest) (*ProgressResponse, error)
	EvaluateStage(ctx context.Context, attemptID, stageID uint) (progression.Decision, error)

	// ReplayProgress re-applies a buffered write from the retry queue;
	// unlike SaveProgress it never re-buffers on failure.
	ReplayProgress(ctx context.Context, entry *queue.Entry) error
}

// AttemptService owns the attempt lifecycle: start, answer auto-save,
// submission (transactional with result persistence), abandonment.
type AttemptService interface {
	Start(ctx context.Context, req *StartAttemptRequest) (*models.Attempt, error)
	SaveAnswer(ctx context.Context, attemptID uint, req *SaveAnswerRequest) error
	Submit(ctx context.Context, attemptID uint) (*models.ExamResult, error)
	Abandon(ctx context.Context, attemptID uint) error
}

// ResultService recomputes and reads persisted exam results.
type ResultService interface {
	Compute(ctx context.Context, attemptID uint) (*models.ExamResult, error)
	GetByAttempt(ctx context.Context, attemptID uint) (*models.ExamResult, error)
}

// ServiceManager bundles the services for handler wiring.
type ServiceManager interface {
	Progress() ProgressService
	Attempt() AttemptService
	Result() ResultService
}

// ===== REQUEST / RESPONSE TYPES =====

type StartAttemptRequest struct {
	ExamID    uint   `json:"exam_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
}

type SaveAnswerRequest struct {
	QuestionID uint        `json:"question_id" validate:"required"`
	Answer     interface{} `json:"answer"`
}

type SaveProgressRequest struct {
	AttemptID    uint            `json:"attempt_id" validate:"required"`
	StageID      uint            `json:"stage_id" validate:"required"`
	ProgressData json.RawMessage `json:"progress_data"`
	Completed    bool            `json:"completed"`
}

// ProgressResponse returns the persisted row. Latched is true when the
// request asked to clear a completion that had already latched; the row
// is returned unchanged in that case — an explicit, documented rejection
// rather than a silent no-op. Queued is true when storage failed
// transiently and the write was buffered for background replay instead.
type ProgressResponse struct {
	Progress *models.StageProgress `json:"progress"`
	Latched  bool                  `json:"latched"`
	Queued   bool                  `json:"queued"`
}

// AttemptStateResponse is the full idempotent read of one attempt.
// Stages and StageProgress are empty (never nil) for legacy zero-stage
// exams.
type AttemptStateResponse struct {
	AttemptID        uint                    `json:"attempt_id"`
	ExamID           uint                    `json:"exam_id"`
	StudentID        string                  `json:"student_id"`
	CompletionStatus models.CompletionStatus `json:"completion_status"`
	Version          int                     `json:"version"`

	Stages        []*models.Stage         `json:"stages"`
	StageProgress []*models.StageProgress `json:"stage_progress"`
	Answers       map[string]interface{}  `json:"answers"`

	// LockedStageIDs lists completed stages the evaluator refuses to
	// present as re-enterable.
	LockedStageIDs []uint `json:"locked_stage_ids"`
}

// ===== SERVICE MANAGER =====

type serviceManager struct {
	progress ProgressService
	attempt  AttemptService
	result   ResultService
}

// NewServiceManager wires the services. retry may be nil, which disables
// write buffering and surfaces storage errors directly.
func NewServiceManager(
	repo repositories.Repository,
	cacheSvc cache.CacheService,
	publisher events.EventPublisher,
	retry queue.Enqueuer,
	logger utils.Logger,
	v *validator.Validator,
) ServiceManager {
	return &serviceManager{
		progress: NewProgressService(repo, cacheSvc, publisher, retry, logger, v),
		attempt:  NewAttemptService(repo, cacheSvc, publisher, logger, v),
		result:   NewResultService(repo, logger),
	}
}

func (m *serviceManager) Progress() ProgressService { return m.progress }
func (m *serviceManager) Attempt() AttemptService   { return m.attempt }
func (m *serviceManager) Result() ResultService     { return m.result }
