package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/eduforge/exam-progression-service/internal/models"
	"github.com/eduforge/exam-progression-service/internal/repositories"
	"github.com/eduforge/exam-progression-service/internal/utils"
	"gorm.io/datatypes"
)

type resultService struct {
	repo   repositories.Repository
	logger utils.Logger
}

func NewResultService(repo repositories.Repository, logger utils.Logger) ResultService {
	return &resultService{
		repo:   repo,
		logger: logger,
	}
}

// Compute re-scores an attempt from its stored answers and upserts the
// result row. Recomputing an unchanged attempt is idempotent.
func (s *resultService) Compute(ctx context.Context, attemptID uint) (*models.ExamResult, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	result, err := aggregateResult(ctx, s.repo, attempt)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Result().Upsert(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to persist result: %w", err)
	}

	s.logger.InfoContext(ctx, "Recomputed attempt result",
		"attempt_id", attemptID,
		"correct", result.CorrectCount,
		"total", result.TotalQuestions)

	return result, nil
}

func (s *resultService) GetByAttempt(ctx context.Context, attemptID uint) (*models.ExamResult, error) {
	result, err := s.repo.Result().GetByAttempt(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return result, nil
}

// aggregateResult scores an attempt against its exam's question list.
//
// For staged exams the list is every questions stage's id list
// concatenated in stage order, duplicates included: a question referenced
// by two stages counts twice. Zero-stage exams score against the flat
// join instead, and an exam whose stages hold no questions comes out
// identical to an empty flat exam.
func aggregateResult(ctx context.Context, repo repositories.Repository, attempt *models.Attempt) (*models.ExamResult, error) {
	stages, err := repo.Exam().GetStages(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stages: %w", err)
	}

	var questionIDs []uint
	if len(stages) > 0 {
		for _, stage := range stages {
			if stage.StageType != models.StageQuestions {
				continue
			}
			cfg, err := stage.QuestionsConfig()
			if err != nil {
				return nil, err
			}
			questionIDs = append(questionIDs, cfg.QuestionIDs...)
		}
	} else {
		rows, err := repo.Exam().GetFlatQuestions(ctx, attempt.ExamID)
		if err != nil {
			return nil, fmt.Errorf("failed to get exam questions: %w", err)
		}
		for _, row := range rows {
			questionIDs = append(questionIDs, row.QuestionID)
		}
	}

	questions, err := repo.Exam().GetQuestionsByIDs(ctx, uniqueIDs(questionIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	byID := make(map[uint]*models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	var correct int
	var autoPoints, maxPoints float64
	for _, id := range questionIDs {
		q, ok := byID[id]
		if !ok {
			// Dangling reference: counts toward the total, can never be
			// correct, carries no points.
			continue
		}
		maxPoints += float64(q.Points)
		if answerMatches(q.CorrectAnswer, attempt.Answers[strconv.FormatUint(uint64(id), 10)]) {
			correct++
			autoPoints += float64(q.Points)
		}
	}

	total := len(questionIDs)
	result := &models.ExamResult{
		AttemptID:      attempt.ID,
		TotalQuestions: total,
		CorrectCount:   correct,
		AutoPoints:     autoPoints,
		MaxPoints:      maxPoints,
	}
	if total > 0 {
		result.ScorePercentage = roundScore(float64(correct) / float64(total) * 100)
	}
	// The final percentage mirrors the raw one here; multi-exam weighting
	// happens downstream in the scoring engine, over CalculationInput.
	result.FinalScorePercentage = result.ScorePercentage

	return result, nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// answerMatches compares a stored answer against the question key.
// Unanswered and undecodable answers are simply not correct; they never
// error the whole aggregation.
func answerMatches(correctRaw datatypes.JSON, given interface{}) bool {
	if given == nil || len(correctRaw) == 0 {
		return false
	}
	var correct interface{}
	if err := json.Unmarshal(correctRaw, &correct); err != nil {
		return false
	}
	if correct == nil {
		return false
	}
	return answerValuesEqual(correct, given)
}

func answerValuesEqual(correct, given interface{}) bool {
	switch c := correct.(type) {
	case string:
		g, ok := given.(string)
		return ok && strings.EqualFold(strings.TrimSpace(c), strings.TrimSpace(g))
	case float64:
		switch g := given.(type) {
		case float64:
			return c == g
		case int:
			return c == float64(g)
		}
		return false
	case bool:
		g, ok := given.(bool)
		return ok && c == g
	case []interface{}:
		g, ok := given.([]interface{})
		return ok && answerSetsEqual(c, g)
	default:
		return false
	}
}

// answerSetsEqual treats both sides as multisets; order never matters for
// multi-select answers.
func answerSetsEqual(a, b []interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, v := range a {
		counts[answerKey(v)]++
	}
	for _, v := range b {
		key := answerKey(v)
		counts[key]--
		if counts[key] < 0 {
			return false
		}
	}
	return true
}

func answerKey(v interface{}) string {
	switch t := v.(type) {
	case string:
		return "s:" + strings.ToLower(strings.TrimSpace(t))
	case float64:
		return "n:" + strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return "b:" + strconv.FormatBool(t)
	default:
		raw, _ := json.Marshal(t)
		return "j:" + string(raw)
	}
}

// roundScore keeps stored percentages at two decimal places.
func roundScore(v float64) float64 {
	return math.Round(v*100) / 100
}
