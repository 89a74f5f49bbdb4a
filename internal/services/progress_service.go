package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eduforge/exam-progression-service/internal/cache"
	"github.com/eduforge/exam-progression-service/internal/events"
	"github.com/eduforge/exam-progression-service/internal/models"
	"github.com/eduforge/exam-progression-service/internal/progression"
	"github.com/eduforge/exam-progression-service/internal/queue"
	"github.com/eduforge/exam-progression-service/internal/repositories"
	"github.com/eduforge/exam-progression-service/internal/utils"
	"github.com/eduforge/exam-progression-service/internal/validator"
	"gorm.io/datatypes"
)

const attemptStateTTL = 5 * time.Minute

type progressService struct {
	repo      repositories.Repository
	cache     cache.CacheService
	publisher events.EventPublisher
	retry     queue.Enqueuer
	logger    utils.Logger
	validator *validator.Validator
}

func NewProgressService(
	repo repositories.Repository,
	cacheSvc cache.CacheService,
	publisher events.EventPublisher,
	retry queue.Enqueuer,
	logger utils.Logger,
	v *validator.Validator,
) ProgressService {
	return &progressService{
		repo:      repo,
		cache:     cacheSvc,
		publisher: publisher,
		retry:     retry,
		logger:    logger,
		validator: v,
	}
}

// SaveProgress runs the progress-write state machine. Every accepted
// write replaces progress_data wholly; completed_at latches one-way. A
// request that asks to clear a latched completion is rejected outright —
// the stored row is returned untouched with Latched set. Storage failures
// are buffered on the retry queue when one is configured.
func (s *progressService) SaveProgress(ctx context.Context, req *SaveProgressRequest) (*ProgressResponse, error) {
	return s.saveProgress(ctx, req, true)
}

// ReplayProgress re-applies one buffered entry. Transient failures
// surface to the queue's attempt counting instead of re-buffering; a
// rejection that can never succeed — the attempt went terminal while the
// entry sat in the queue — drops the entry on the first delivery.
func (s *progressService) ReplayProgress(ctx context.Context, entry *queue.Entry) error {
	req := &SaveProgressRequest{
		AttemptID:    entry.AttemptID,
		StageID:      entry.StageID,
		ProgressData: entry.ProgressData,
		Completed:    entry.Completed,
	}
	_, err := s.saveProgress(ctx, req, false)
	if err != nil && errors.Is(err, ErrAttemptNotActive) {
		s.logger.WarnContext(ctx, "Dropping buffered progress write for terminal attempt",
			"attempt_id", entry.AttemptID,
			"stage_id", entry.StageID,
			"error", err)
		return nil
	}
	return err
}

func (s *progressService) saveProgress(ctx context.Context, req *SaveProgressRequest, buffer bool) (*ProgressResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	attempt, stage, err := s.resolveAttemptStage(ctx, req.AttemptID, req.StageID)
	if err != nil {
		return nil, err
	}
	if attempt.IsTerminal() {
		return nil, fmt.Errorf("attempt %d is %s: %w", attempt.ID, attempt.CompletionStatus, ErrAttemptNotActive)
	}

	// Shape-check the payload against the stage type before anything is
	// stored. No threshold enforcement happens here.
	if _, err := models.DecodeProgressData(stage.StageType, datatypes.JSON(req.ProgressData)); err != nil {
		return nil, ValidationErrors{*NewValidationError("progress_data", err.Error(), nil)}
	}

	existing, err := s.repo.StageProgress().GetByAttemptAndStage(ctx, req.AttemptID, req.StageID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return s.bufferOrFail(ctx, req, buffer, fmt.Errorf("failed to load stage progress: %w", err))
	}

	now := time.Now().UTC()

	if existing == nil {
		row := &models.StageProgress{
			AttemptID:    req.AttemptID,
			StageID:      req.StageID,
			StartedAt:    now,
			ProgressData: datatypes.JSON(req.ProgressData),
		}
		if req.Completed {
			row.CompletedAt = &now
		}
		if err := s.repo.StageProgress().Create(ctx, row); err != nil {
			return s.bufferOrFail(ctx, req, buffer, fmt.Errorf("failed to create stage progress: %w", err))
		}
		s.invalidateAttemptState(ctx, req.AttemptID)
		if req.Completed {
			s.publishStageCompleted(ctx, attempt, stage, now)
		}
		return &ProgressResponse{Progress: row}, nil
	}

	if existing.IsCompleted() && !req.Completed {
		s.logger.WarnContext(ctx, "Rejected attempt to clear latched stage completion",
			"attempt_id", req.AttemptID,
			"stage_id", req.StageID)
		return &ProgressResponse{Progress: existing, Latched: true}, nil
	}

	existing.ProgressData = datatypes.JSON(req.ProgressData)
	latchFired := false
	if req.Completed && !existing.IsCompleted() {
		existing.CompletedAt = &now
		latchFired = true
	}
	if err := s.repo.StageProgress().Update(ctx, existing); err != nil {
		return s.bufferOrFail(ctx, req, buffer, fmt.Errorf("failed to update stage progress: %w", err))
	}

	s.invalidateAttemptState(ctx, req.AttemptID)
	if latchFired {
		s.publishStageCompleted(ctx, attempt, stage, now)
	}

	return &ProgressResponse{Progress: existing}, nil
}

// GetAttemptState is the idempotent aggregated read backing resume and
// refresh. Progress rows come back in the exam's stage order so repeated
// reads are byte-identical.
func (s *progressService) GetAttemptState(ctx context.Context, attemptID uint) (*AttemptStateResponse, error) {
	key := cache.AttemptStateKey(attemptID)

	var cached AttemptStateResponse
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	stages, err := s.repo.Exam().GetStages(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stages: %w", err)
	}

	rows, err := s.repo.StageProgress().GetByAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stage progress: %w", err)
	}

	byStage := make(map[uint]*models.StageProgress, len(rows))
	for _, row := range rows {
		byStage[row.StageID] = row
	}

	ordered := make([]*models.StageProgress, 0, len(rows))
	locked := make([]uint, 0)
	for _, stage := range stages {
		row, ok := byStage[stage.ID]
		if !ok {
			continue
		}
		ordered = append(ordered, row)
		if !progression.IsReenterable(row) {
			locked = append(locked, stage.ID)
		}
	}

	answers := make(map[string]interface{}, len(attempt.Answers))
	for k, v := range attempt.Answers {
		answers[k] = v
	}

	state := &AttemptStateResponse{
		AttemptID:        attempt.ID,
		ExamID:           attempt.ExamID,
		StudentID:        attempt.StudentID,
		CompletionStatus: attempt.CompletionStatus,
		Version:          attempt.Version,
		Stages:           stages,
		StageProgress:    ordered,
		Answers:          answers,
		LockedStageIDs:   locked,
	}

	if err := s.cache.Set(ctx, key, state, attemptStateTTL); err != nil {
		s.logger.WarnContext(ctx, "Failed to cache attempt state", "attempt_id", attemptID, "error", err)
	}

	return state, nil
}

// EvaluateStage answers whether a stage's gating requirements are met for
// the stored progress. It never mutates anything.
func (s *progressService) EvaluateStage(ctx context.Context, attemptID, stageID uint) (progression.Decision, error) {
	_, stage, err := s.resolveAttemptStage(ctx, attemptID, stageID)
	if err != nil {
		return progression.Decision{}, err
	}

	row, err := s.repo.StageProgress().GetByAttemptAndStage(ctx, attemptID, stageID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			row = &models.StageProgress{AttemptID: attemptID, StageID: stageID}
		} else {
			return progression.Decision{}, fmt.Errorf("failed to load stage progress: %w", err)
		}
	}

	return progression.CanComplete(stage, row)
}

// resolveAttemptStage maps unknown identifiers to the wire-coded errors:
// a missing attempt, then a stage that is missing or belongs to another
// exam. Checked in that order.
func (s *progressService) resolveAttemptStage(ctx context.Context, attemptID, stageID uint) (*models.Attempt, *models.Stage, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, ErrInvalidAttemptID
		}
		return nil, nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	stage, err := s.repo.Exam().GetStageByID(ctx, stageID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, ErrInvalidStageID
		}
		return nil, nil, fmt.Errorf("failed to get stage: %w", err)
	}
	if stage.ExamID != attempt.ExamID {
		return nil, nil, ErrInvalidStageID
	}

	return attempt, stage, nil
}

// bufferOrFail parks the write on the retry queue when buffering is on
// and a queue is configured; otherwise the storage error surfaces.
func (s *progressService) bufferOrFail(ctx context.Context, req *SaveProgressRequest, buffer bool, cause error) (*ProgressResponse, error) {
	if !buffer || s.retry == nil {
		return nil, cause
	}

	entry := &queue.Entry{
		AttemptID:    req.AttemptID,
		StageID:      req.StageID,
		ProgressData: []byte(req.ProgressData),
		Completed:    req.Completed,
	}
	if err := s.retry.Enqueue(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "Failed to buffer progress write",
			"attempt_id", req.AttemptID, "stage_id", req.StageID, "error", err)
		return nil, cause
	}

	s.logger.WarnContext(ctx, "Buffered progress write after storage failure",
		"attempt_id", req.AttemptID, "stage_id", req.StageID, "error", cause)
	return &ProgressResponse{Queued: true}, nil
}

func (s *progressService) invalidateAttemptState(ctx context.Context, attemptID uint) {
	if err := s.cache.Delete(ctx, cache.AttemptStateKey(attemptID)); err != nil {
		s.logger.WarnContext(ctx, "Failed to invalidate attempt state cache",
			"attempt_id", attemptID, "error", err)
	}
}

func (s *progressService) publishStageCompleted(ctx context.Context, attempt *models.Attempt, stage *models.Stage, completedAt time.Time) {
	event := events.NewProgressionEvent(events.EventStageCompleted, events.StageCompletedEvent{
		AttemptID:   attempt.ID,
		ExamID:      attempt.ExamID,
		StageID:     stage.ID,
		StageType:   string(stage.StageType),
		StudentID:   attempt.StudentID,
		CompletedAt: completedAt,
	})
	if err := s.publisher.PublishProgressionEvent(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish stage completed event",
			"attempt_id", attempt.ID, "stage_id", stage.ID, "error", err)
	}
}
