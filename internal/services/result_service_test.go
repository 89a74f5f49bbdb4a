package services

import (
	"context"
	"testing"

	"github.com/eduforge/exam-progression-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func questionsStage(examID uint, ids string) *models.Stage {
	return &models.Stage{
		ExamID:    examID,
		StageType: models.StageQuestions,
		Config:    datatypes.JSON(`{"question_ids": ` + ids + `}`),
	}
}

func submittedAttempt(answers datatypes.JSONMap) *models.Attempt {
	return &models.Attempt{
		ID:        10,
		ExamID:    5,
		StudentID: "student-1",
		Answers:   answers,
	}
}

func TestAggregateResult_DuplicateReferencesCountTwice(t *testing.T) {
	deps := newTestDeps()
	ctx := context.Background()

	// Question 1 appears in both stages, so it contributes two slots to
	// the total and, answered correctly, two correct marks and double
	// points.
	deps.repo.exam.On("GetStages", ctx, uint(5)).Return([]*models.Stage{
		questionsStage(5, "[1, 2]"),
		questionsStage(5, "[1]"),
	}, nil)
	deps.repo.exam.On("GetQuestionsByIDs", ctx, []uint{1, 2}).Return([]*models.Question{
		{ID: 1, CorrectAnswer: datatypes.JSON(`"A"`), Points: 1},
		{ID: 2, CorrectAnswer: datatypes.JSON(`"B"`), Points: 1},
	}, nil)

	result, err := aggregateResult(ctx, deps.repo, submittedAttempt(datatypes.JSONMap{"1": "A"}))
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalQuestions)
	assert.Equal(t, 2, result.CorrectCount)
	assert.Equal(t, 66.67, result.ScorePercentage)
	assert.Equal(t, 2.0, result.AutoPoints)
	assert.Equal(t, 3.0, result.MaxPoints)
	assert.Equal(t, 66.67, result.FinalScorePercentage)
	deps.repo.assertExpectations(t)
}

func TestAggregateResult_FlatExamScoresLikeStaged(t *testing.T) {
	questions := []*models.Question{
		{ID: 1, CorrectAnswer: datatypes.JSON(`"A"`), Points: 2},
		{ID: 2, CorrectAnswer: datatypes.JSON(`"B"`), Points: 3},
	}
	answers := datatypes.JSONMap{"1": "A", "2": "wrong"}
	ctx := context.Background()

	staged := newTestDeps()
	staged.repo.exam.On("GetStages", ctx, uint(5)).
		Return([]*models.Stage{questionsStage(5, "[1, 2]")}, nil)
	staged.repo.exam.On("GetQuestionsByIDs", ctx, []uint{1, 2}).Return(questions, nil)

	flat := newTestDeps()
	flat.repo.exam.On("GetStages", ctx, uint(5)).Return([]*models.Stage{}, nil)
	flat.repo.exam.On("GetFlatQuestions", ctx, uint(5)).Return([]*models.ExamQuestion{
		{ExamID: 5, QuestionID: 1, Position: 0},
		{ExamID: 5, QuestionID: 2, Position: 1},
	}, nil)
	flat.repo.exam.On("GetQuestionsByIDs", ctx, []uint{1, 2}).Return(questions, nil)

	stagedResult, err := aggregateResult(ctx, staged.repo, submittedAttempt(answers))
	require.NoError(t, err)
	flatResult, err := aggregateResult(ctx, flat.repo, submittedAttempt(answers))
	require.NoError(t, err)

	assert.Equal(t, stagedResult, flatResult)
	assert.Equal(t, 1, stagedResult.CorrectCount)
	assert.Equal(t, 50.0, stagedResult.ScorePercentage)
	assert.Equal(t, 50.0, stagedResult.FinalScorePercentage)
}

func TestAggregateResult_DanglingReferenceCountsInTotal(t *testing.T) {
	deps := newTestDeps()
	ctx := context.Background()

	deps.repo.exam.On("GetStages", ctx, uint(5)).
		Return([]*models.Stage{questionsStage(5, "[1, 999]")}, nil)
	deps.repo.exam.On("GetQuestionsByIDs", ctx, []uint{1, 999}).Return([]*models.Question{
		{ID: 1, CorrectAnswer: datatypes.JSON(`"A"`), Points: 4},
	}, nil)

	result, err := aggregateResult(ctx, deps.repo, submittedAttempt(datatypes.JSONMap{"1": "A", "999": "A"}))
	require.NoError(t, err)

	// The deleted question keeps its slot in the denominator but can never
	// score or carry points.
	assert.Equal(t, 2, result.TotalQuestions)
	assert.Equal(t, 1, result.CorrectCount)
	assert.Equal(t, 50.0, result.ScorePercentage)
	assert.Equal(t, 4.0, result.MaxPoints)
	assert.Equal(t, 50.0, result.FinalScorePercentage)
}

func TestAggregateResult_FinalPercentageMirrorsRawWithUnequalPoints(t *testing.T) {
	deps := newTestDeps()
	ctx := context.Background()

	// Points skew the auto/max totals but never the percentages: with only
	// the 30-point question correct, both percentages stay at 50.
	deps.repo.exam.On("GetStages", ctx, uint(5)).
		Return([]*models.Stage{questionsStage(5, "[1, 2]")}, nil)
	deps.repo.exam.On("GetQuestionsByIDs", ctx, []uint{1, 2}).Return([]*models.Question{
		{ID: 1, CorrectAnswer: datatypes.JSON(`"A"`), Points: 10},
		{ID: 2, CorrectAnswer: datatypes.JSON(`"B"`), Points: 30},
	}, nil)

	result, err := aggregateResult(ctx, deps.repo, submittedAttempt(datatypes.JSONMap{"2": "B"}))
	require.NoError(t, err)

	assert.Equal(t, 50.0, result.ScorePercentage)
	assert.Equal(t, 50.0, result.FinalScorePercentage)
	assert.Equal(t, 30.0, result.AutoPoints)
	assert.Equal(t, 40.0, result.MaxPoints)
}

func TestAggregateResult_NonQuestionStagesIgnored(t *testing.T) {
	deps := newTestDeps()
	ctx := context.Background()

	deps.repo.exam.On("GetStages", ctx, uint(5)).Return([]*models.Stage{
		{ExamID: 5, StageType: models.StageVideo, Config: datatypes.JSON(`{"url": "v.mp4"}`)},
		questionsStage(5, "[1]"),
	}, nil)
	deps.repo.exam.On("GetQuestionsByIDs", ctx, []uint{1}).Return([]*models.Question{
		{ID: 1, CorrectAnswer: datatypes.JSON(`"A"`), Points: 1},
	}, nil)

	result, err := aggregateResult(ctx, deps.repo, submittedAttempt(datatypes.JSONMap{}))
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalQuestions)
	assert.Equal(t, 0, result.CorrectCount)
}

func TestAggregateResult_ExamWithoutQuestions(t *testing.T) {
	deps := newTestDeps()
	ctx := context.Background()

	deps.repo.exam.On("GetStages", ctx, uint(5)).Return([]*models.Stage{}, nil)
	deps.repo.exam.On("GetFlatQuestions", ctx, uint(5)).Return([]*models.ExamQuestion{}, nil)
	deps.repo.exam.On("GetQuestionsByIDs", ctx, []uint{}).Return([]*models.Question{}, nil)

	result, err := aggregateResult(ctx, deps.repo, submittedAttempt(datatypes.JSONMap{}))
	require.NoError(t, err)

	assert.Equal(t, 0, result.TotalQuestions)
	assert.Equal(t, 0.0, result.ScorePercentage)
	assert.Equal(t, 0.0, result.FinalScorePercentage)
}

func TestComputeResult_UpsertsRecomputedRow(t *testing.T) {
	deps := newTestDeps()
	svc := deps.resultService()
	ctx := context.Background()

	attempt := submittedAttempt(datatypes.JSONMap{"1": "A"})
	deps.repo.attempt.On("GetByID", ctx, uint(10)).Return(attempt, nil)
	deps.repo.exam.On("GetStages", ctx, uint(5)).
		Return([]*models.Stage{questionsStage(5, "[1]")}, nil)
	deps.repo.exam.On("GetQuestionsByIDs", ctx, []uint{1}).Return([]*models.Question{
		{ID: 1, CorrectAnswer: datatypes.JSON(`"A"`), Points: 1},
	}, nil)
	deps.repo.result.On("Upsert", ctx, mock.MatchedBy(func(r *models.ExamResult) bool {
		return r.AttemptID == 10 && r.CorrectCount == 1
	})).Return(nil)

	result, err := svc.Compute(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 100.0, result.ScorePercentage)
	deps.repo.assertExpectations(t)
}

func TestComputeResult_AttemptNotFound(t *testing.T) {
	deps := newTestDeps()
	svc := deps.resultService()
	ctx := context.Background()

	deps.repo.attempt.On("GetByID", ctx, uint(10)).Return(nil, gorm.ErrRecordNotFound)

	_, err := svc.Compute(ctx, 10)
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestGetResultByAttempt_NotFound(t *testing.T) {
	deps := newTestDeps()
	svc := deps.resultService()
	ctx := context.Background()

	deps.repo.result.On("GetByAttempt", ctx, uint(10)).Return(nil, gorm.ErrRecordNotFound)

	_, err := svc.GetByAttempt(ctx, 10)
	assert.ErrorIs(t, err, ErrResultNotFound)
}

func TestAnswerMatches(t *testing.T) {
	tests := []struct {
		name    string
		correct string
		given   interface{}
		want    bool
	}{
		{"exact string", `"Paris"`, "Paris", true},
		{"case and whitespace folded", `"Paris"`, "  paris ", true},
		{"wrong string", `"Paris"`, "London", false},
		{"number", `42`, float64(42), true},
		{"number as int", `42`, 42, true},
		{"wrong number", `42`, float64(41), false},
		{"boolean", `true`, true, true},
		{"boolean type mismatch", `true`, "true", false},
		{"multi-select order ignored", `["a", "b"]`, []interface{}{"B", "a"}, true},
		{"multi-select missing option", `["a", "b"]`, []interface{}{"a"}, false},
		{"multi-select duplicates respected", `["a", "a"]`, []interface{}{"a", "b"}, false},
		{"unanswered", `"Paris"`, nil, false},
		{"null key never matches", `null`, "anything", false},
		{"malformed key never matches", `{`, "anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw datatypes.JSON
			if tt.correct != "" {
				raw = datatypes.JSON(tt.correct)
			}
			assert.Equal(t, tt.want, answerMatches(raw, tt.given))
		})
	}
}

func TestRoundScore(t *testing.T) {
	assert.Equal(t, 33.33, roundScore(100.0/3))
	assert.Equal(t, 66.67, roundScore(200.0/3))
	assert.Equal(t, 100.0, roundScore(100))
}
