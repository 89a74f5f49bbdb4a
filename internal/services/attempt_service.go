package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/eduforge/exam-progression-service/internal/cache"
	"github.com/eduforge/exam-progression-service/internal/events"
	"github.com/eduforge/exam-progression-service/internal/models"
	"github.com/eduforge/exam-progression-service/internal/repositories"
	"github.com/eduforge/exam-progression-service/internal/utils"
	"github.com/eduforge/exam-progression-service/internal/validator"
	"gorm.io/datatypes"
)

type attemptService struct {
	repo      repositories.Repository
	cache     cache.CacheService
	publisher events.EventPublisher
	logger    utils.Logger
	validator *validator.Validator
}

func NewAttemptService(
	repo repositories.Repository,
	cacheSvc cache.CacheService,
	publisher events.EventPublisher,
	logger utils.Logger,
	v *validator.Validator,
) AttemptService {
	return &attemptService{
		repo:      repo,
		cache:     cacheSvc,
		publisher: publisher,
		logger:    logger,
		validator: v,
	}
}

// Start opens an attempt against an active exam. When the student already
// has an in-progress attempt on that exam it is returned instead of
// creating a second one, so start is safe to retry.
func (s *attemptService) Start(ctx context.Context, req *StartAttemptRequest) (*models.Attempt, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	exam, err := s.repo.Exam().GetByID(ctx, req.ExamID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	if exam.Status != models.ExamActive {
		return nil, fmt.Errorf("exam %d is %s: %w", exam.ID, exam.Status, ErrExamNotActive)
	}

	existing, err := s.repo.Attempt().GetActiveAttempt(ctx, req.StudentID, req.ExamID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active attempt: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	attempt := &models.Attempt{
		ExamID:           req.ExamID,
		StudentID:        req.StudentID,
		Answers:          datatypes.JSONMap{},
		CompletionStatus: models.AttemptInProgress,
		StartedAt:        time.Now().UTC(),
		Version:          1,
	}
	if err := s.repo.Attempt().Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	s.publishEvent(ctx, events.EventAttemptStarted, events.AttemptStartedEvent{
		AttemptID: attempt.ID,
		ExamID:    attempt.ExamID,
		StudentID: attempt.StudentID,
		StartedAt: attempt.StartedAt,
	})

	return attempt, nil
}

// SaveAnswer auto-saves a single answer with optimistic concurrency: a
// version mismatch means another tab saved first, and the caller should
// refetch state and retry.
func (s *attemptService) SaveAnswer(ctx context.Context, attemptID uint, req *SaveAnswerRequest) error {
	if err := s.validator.Validate(req); err != nil {
		return err
	}

	attempt, err := s.getActive(ctx, attemptID)
	if err != nil {
		return err
	}

	answers := datatypes.JSONMap{}
	for k, v := range attempt.Answers {
		answers[k] = v
	}
	answers[strconv.FormatUint(uint64(req.QuestionID), 10)] = req.Answer

	if err := s.repo.Attempt().UpdateAnswers(ctx, attemptID, answers, attempt.Version); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAttemptVersionConflict
		}
		return fmt.Errorf("failed to save answer: %w", err)
	}

	s.invalidateAttemptState(ctx, attemptID)
	return nil
}

// Submit closes the attempt and scores it in one transaction. The status
// flip and the result row land together or not at all.
func (s *attemptService) Submit(ctx context.Context, attemptID uint) (*models.ExamResult, error) {
	attempt, err := s.getActive(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var result *models.ExamResult

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		attempt.CompletionStatus = models.AttemptSubmitted
		attempt.SubmittedAt = &now
		if err := txRepo.Attempt().Update(ctx, attempt); err != nil {
			return fmt.Errorf("failed to update attempt: %w", err)
		}

		result, err = aggregateResult(ctx, txRepo, attempt)
		if err != nil {
			return err
		}
		if err := txRepo.Result().Upsert(ctx, result); err != nil {
			return fmt.Errorf("failed to persist result: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateAttemptState(ctx, attemptID)

	s.publishEvent(ctx, events.EventAttemptSubmitted, events.AttemptSubmittedEvent{
		AttemptID:   attempt.ID,
		ExamID:      attempt.ExamID,
		StudentID:   attempt.StudentID,
		SubmittedAt: now,
	})
	s.publishEvent(ctx, events.EventResultRecorded, events.ResultRecordedEvent{
		AttemptID:            attempt.ID,
		ExamID:               attempt.ExamID,
		StudentID:            attempt.StudentID,
		TotalQuestions:       result.TotalQuestions,
		CorrectCount:         result.CorrectCount,
		ScorePercentage:      result.ScorePercentage,
		FinalScorePercentage: result.FinalScorePercentage,
	})

	s.logger.InfoContext(ctx, "Attempt submitted",
		"attempt_id", attemptID,
		"score", result.ScorePercentage,
		"final_score", result.FinalScorePercentage)

	return result, nil
}

// Abandon marks an in-progress attempt abandoned. No scoring happens.
func (s *attemptService) Abandon(ctx context.Context, attemptID uint) error {
	attempt, err := s.getActive(ctx, attemptID)
	if err != nil {
		return err
	}

	if err := s.repo.Attempt().UpdateStatus(ctx, attemptID, models.AttemptAbandoned); err != nil {
		return fmt.Errorf("failed to abandon attempt: %w", err)
	}

	s.invalidateAttemptState(ctx, attemptID)

	s.publishEvent(ctx, events.EventAttemptAbandoned, events.AttemptAbandonedEvent{
		AttemptID:   attempt.ID,
		ExamID:      attempt.ExamID,
		StudentID:   attempt.StudentID,
		AbandonedAt: time.Now().UTC(),
	})

	return nil
}

// getActive loads an attempt and rejects terminal ones with the
// appropriate conflict error.
func (s *attemptService) getActive(ctx context.Context, attemptID uint) (*models.Attempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	switch attempt.CompletionStatus {
	case models.AttemptSubmitted:
		return nil, ErrAttemptAlreadySubmitted
	case models.AttemptAbandoned:
		return nil, fmt.Errorf("attempt %d is abandoned: %w", attemptID, ErrAttemptNotActive)
	}
	return attempt, nil
}

func (s *attemptService) invalidateAttemptState(ctx context.Context, attemptID uint) {
	if err := s.cache.Delete(ctx, cache.AttemptStateKey(attemptID)); err != nil {
		s.logger.WarnContext(ctx, "Failed to invalidate attempt state cache",
			"attempt_id", attemptID, "error", err)
	}
}

func (s *attemptService) publishEvent(ctx context.Context, eventType events.EventType, data interface{}) {
	event := events.NewProgressionEvent(eventType, data)
	if err := s.publisher.PublishProgressionEvent(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish progression event",
			"event_type", eventType, "error", err)
	}
}
