package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/eduforge/exam-progression-service/internal/models"
	"github.com/eduforge/exam-progression-service/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func videoStageFor(examID uint, threshold *float64) *models.Stage {
	cfg, _ := json.Marshal(models.VideoStageConfig{
		URL:                  "https://cdn.example.com/intro.mp4",
		EnforcementThreshold: threshold,
	})
	return &models.Stage{ID: 20, ExamID: examID, StageType: models.StageVideo, StageOrder: 0, Config: cfg}
}

func activeAttempt() *models.Attempt {
	return &models.Attempt{
		ID:               10,
		ExamID:           5,
		StudentID:        "student-1",
		CompletionStatus: models.AttemptInProgress,
		Answers:          datatypes.JSONMap{},
		Version:          1,
	}
}

func TestSaveProgress_CreatesFirstWrite(t *testing.T) {
	deps := newTestDeps()
	svc := deps.progressService(nil)
	ctx := context.Background()

	deps.repo.attempt.On("GetByID", ctx, uint(10)).Return(activeAttempt(), nil)
	deps.repo.exam.On("GetStageByID", ctx, uint(20)).Return(videoStageFor(5, nil), nil)
	deps.repo.progress.On("GetByAttemptAndStage", ctx, uint(10), uint(20)).
		Return(nil, gorm.ErrRecordNotFound)
	deps.repo.progress.On("Create", ctx, mock.AnythingOfType("*models.StageProgress")).Return(nil)

	payload := json.RawMessage(`{"watch_percentage": 25, "last_position": 61.5}`)
	resp, err := svc.SaveProgress(ctx, &SaveProgressRequest{
		AttemptID:    10,
		StageID:      20,
		ProgressData: payload,
	})

	require.NoError(t, err)
	assert.False(t, resp.Latched)
	assert.False(t, resp.Queued)
	assert.False(t, resp.Progress.StartedAt.IsZero())
	assert.Nil(t, resp.Progress.CompletedAt)
	assert.JSONEq(t, string(payload), string(resp.Progress.ProgressData))
	assert.Empty(t, deps.publisher.GetPublishedEvents())
	deps.repo.assertExpectations(t)
}

func TestSaveProgress_ReplacesPayloadWholly(t *testing.T) {
	deps := newTestDeps()
	svc := deps.progressService(nil)
	ctx := context.Background()

	existing := &models.StageProgress{
		ID:           7,
		AttemptID:    10,
		StageID:      20,
		StartedAt:    time.Now().Add(-time.Hour),
		ProgressData: datatypes.JSON(`{"watch_percentage": 80, "last_position": 500}`),
	}

	deps.repo.attempt.On("GetByID", ctx, uint(10)).Return(activeAttempt(), nil)
	deps.repo.exam.On("GetStageByID", ctx, uint(20)).Return(videoStageFor(5, nil), nil)
	deps.repo.progress.On("GetByAttemptAndStage", ctx, uint(10), uint(20)).Return(existing, nil)
	deps.repo.progress.On("Update", ctx, existing).Return(nil)

	// The lower watch percentage wins: writes replace, never merge.
	resp, err := svc.SaveProgress(ctx, &SaveProgressRequest{
		AttemptID:    10,
		StageID:      20,
		ProgressData: json.RawMessage(`{"watch_percentage": 10, "last_position": 30}`),
	})

	require.NoError(t, err)
	assert.JSONEq(t, `{"watch_percentage": 10, "last_position": 30}`, string(resp.Progress.ProgressData))
	deps.repo.assertExpectations(t)
}

func TestSaveProgress_LatchFiresAndPublishes(t *testing.T) {
	deps := newTestDeps()
	svc := deps.progressService(nil)
	ctx := context.Background()

	existing := &models.StageProgress{ID: 7, AttemptID: 10, StageID: 20, StartedAt: time.Now()}

	deps.repo.attempt.On("GetByID", ctx, uint(10)).Return(activeAttempt(), nil)
	deps.repo.exam.On("GetStageByID", ctx, uint(20)).Return(videoStageFor(5, nil), nil)
	deps.repo.progress.On("GetByAttemptAndStage", ctx, uint(10), uint(20)).Return(existing, nil)
	deps.repo.progress.On("Update", ctx, existing).Return(nil)

	resp, err := svc.SaveProgress(ctx, &SaveProgressRequest{
		AttemptID:    10,
		StageID:      20,
		ProgressData: json.RawMessage(`{"watch_percentage": 100}`),
		Completed:    true,
	})

	require.NoError(t, err)
	require.NotNil(t, resp.Progress.CompletedAt)

	published := deps.publisher.GetPublishedEvents()
	require.Len(t, published, 1)
	assert.Equal(t, "stage.completed", string(published[0].Type))
}

func TestSaveProgress_LatchRejectsClearing(t *testing.T) {
	deps := newTestDeps()
	svc := deps.progressService(nil)
	ctx := context.Background()

	completedAt := time.Now().Add(-time.Minute)
	existing := &models.StageProgress{
		ID:           7,
		AttemptID:    10,
		StageID:      20,
		CompletedAt:  &completedAt,
		ProgressData: datatypes.JSON(`{"watch_percentage": 100}`),
	}

	deps.repo.attempt.On("GetByID", ctx, uint(10)).Return(activeAttempt(), nil)
	deps.repo.exam.On("GetStageByID", ctx, uint(20)).Return(videoStageFor(5, nil), nil)
	deps.repo.progress.On("GetByAttemptAndStage", ctx, uint(10), uint(20)).Return(existing, nil)
	// No Update expectation: the row must not be touched.

	resp, err := svc.SaveProgress(ctx, &SaveProgressRequest{
		AttemptID:    10,
		StageID:      20,
		ProgressData: json.RawMessage(`{"watch_percentage": 5}`),
		Completed:    false,
	})

	require.NoError(t, err)
	assert.True(t, resp.Latched)
	assert.Equal(t, &completedAt, resp.Progress.CompletedAt)
	assert.JSONEq(t, `{"watch_percentage": 100}`, string(resp.Progress.ProgressData))
	assert.Empty(t, deps.publisher.GetPublishedEvents())
	deps.repo.assertExpectations(t)
}

func TestSaveProgress_CompletedAgainDoesNotRepublish(t *testing.T) {
	deps := newTestDeps()
	svc := deps.progressService(nil)
	ctx := context.Background()

	completedAt := time.Now().Add(-time.Minute)
	existing := &models.StageProgress{ID: 7, AttemptID: 10, StageID: 20, CompletedAt: &completedAt}

	deps.repo.attempt.On("GetByID", ctx, uint(10)).Return(activeAttempt(), nil)
	deps.repo.exam.On("GetStageByID", ctx, uint(20)).Return(videoStageFor(5, nil), nil)
	deps.repo.progress.On("GetByAttemptAndStage", ctx, uint(10), uint(20)).Return(existing, nil)
	deps.repo.progress.On("Update", ctx, existing).Return(nil)

	resp, err := svc.SaveProgress(ctx, &SaveProgressRequest{
		AttemptID:    10,
		StageID:      20,
		ProgressData: json.RawMessage(`{"watch_percentage": 100, "last_position": 900}`),
		Completed:    true,
	})

	require.NoError(t, err)
	assert.Equal(t, &completedAt, resp.Progress.CompletedAt)
	assert.Empty(t, deps.publisher.GetPublishedEvents())
}

func TestSaveProgress_IdentifierErrors(t *testing.T) {
	t.Run("unknown attempt", func(t *testing.T) {
		deps := newTestDeps()
		svc := deps.progressService(nil)
		ctx := context.Background()

		deps.repo.attempt.On("GetByID", ctx, uint(99)).Return(nil, gorm.ErrRecordNotFound)

		_, err := svc.SaveProgress(ctx, &SaveProgressRequest{AttemptID: 99, StageID: 20})
		require.Error(t, err)
		assert.Equal(t, CodeInvalidAttemptID, ErrorCode(err))
	})

	t.Run("unknown stage", func(t *testing.T) {
		deps := newTestDeps()
		svc := deps.progressService(nil)
		ctx := context.Background()

		deps.repo.attempt.On("GetByID", ctx, uint(10)).Return(activeAttempt(), nil)
		deps.repo.exam.On("GetStageByID", ctx, uint(99)).Return(nil, gorm.ErrRecordNotFound)

		_, err := svc.SaveProgress(ctx, &SaveProgressRequest{AttemptID: 10, StageID: 99})
		require.Error(t, err)
		assert.Equal(t, CodeInvalidStageID, ErrorCode(err))
	})

	t.Run("stage from another exam", func(t *testing.T) {
		deps := newTestDeps()
		svc := deps.progressService(nil)
		ctx := context.Background()

		deps.repo.attempt.On("GetByID", ctx, uint(10)).Return(activeAttempt(), nil)
		deps.repo.exam.On("GetStageByID", ctx, uint(20)).Return(videoStageFor(777, nil), nil)

		_, err := svc.SaveProgress(ctx, &SaveProgressRequest{AttemptID: 10, StageID: 20})
		require.Error(t, err)
		assert.Equal(t, CodeInvalidStageID, ErrorCode(err))
	})
}

func TestSaveProgress_TerminalAttemptRejected(t *testing.T) {
	deps := newTestDeps()
	svc := deps.progressService(nil)
	ctx := context.Background()

	submitted := activeAttempt()
	submitted.CompletionStatus = models.AttemptSubmitted

	deps.repo.attempt.On("GetByID", ctx, uint(10)).Return(submitted, nil)
	deps.repo.exam.On("GetStageByID", ctx, uint(20)).Return(videoStageFor(5, nil), nil)

	_, err := svc.SaveProgress(ctx, &SaveProgressRequest{AttemptID: 10, StageID: 20})
	assert.ErrorIs(t, err, ErrAttemptNotActive)
}

func TestSaveProgress_MalformedPayload(t *testing.T) {
	deps := newTestDeps()
	svc := deps.progressService(nil)
	ctx := context.Background()

	deps.repo.attempt.On("GetByID", ctx, uint(10)).Return(activeAttempt(), nil)
	deps.repo.exam.On("GetStageByID", ctx, uint(20)).Return(videoStageFor(5, nil), nil)

	_, err := svc.SaveProgress(ctx, &SaveProgressRequest{
		AttemptID:    10,
		StageID:      20,
		ProgressData: json.RawMessage(`{"watch_percentage": "most of it"}`),
	})

	var validationErrors ValidationErrors
	require.ErrorAs(t, err, &validationErrors)
}

func TestSaveProgress_BuffersOnStorageFailure(t *testing.T) {
	deps := newTestDeps()
	store := queue.NewMemoryStore()
	retry := queue.NewRetryQueue(store, nil, deps.logger, time.Minute)
	svc := deps.progressService(retry)
	ctx := context.Background()

	deps.repo.attempt.On("GetByID", ctx, uint(10)).Return(activeAttempt(), nil)
	deps.repo.exam.On("GetStageByID", ctx, uint(20)).Return(videoStageFor(5, nil), nil)
	deps.repo.progress.On("GetByAttemptAndStage", ctx, uint(10), uint(20)).
		Return(nil, gorm.ErrRecordNotFound)
	deps.repo.progress.On("Create", ctx, mock.AnythingOfType("*models.StageProgress")).
		Return(errors.New("connection reset"))

	resp, err := svc.SaveProgress(ctx, &SaveProgressRequest{
		AttemptID:    10,
		StageID:      20,
		ProgressData: json.RawMessage(`{"watch_percentage": 33}`),
	})

	require.NoError(t, err)
	assert.True(t, resp.Queued)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReplayProgress_DropsEntryForTerminalAttempt(t *testing.T) {
	deps := newTestDeps()
	svc := deps.progressService(nil)
	ctx := context.Background()

	submitted := activeAttempt()
	submitted.CompletionStatus = models.AttemptSubmitted

	deps.repo.attempt.On("GetByID", ctx, uint(10)).Return(submitted, nil)
	deps.repo.exam.On("GetStageByID", ctx, uint(20)).Return(videoStageFor(5, nil), nil)

	// The attempt went terminal while the entry sat in the queue; the
	// write can never land, so replay reports success and the queue drops
	// the entry on first delivery instead of burning retries.
	err := svc.ReplayProgress(ctx, &queue.Entry{
		AttemptID:    10,
		StageID:      20,
		ProgressData: []byte(`{"watch_percentage": 70}`),
	})
	assert.NoError(t, err)
}

func TestReplayProgress_SurfacesTransientFailures(t *testing.T) {
	deps := newTestDeps()
	svc := deps.progressService(nil)
	ctx := context.Background()

	deps.repo.attempt.On("GetByID", ctx, uint(10)).Return(activeAttempt(), nil)
	deps.repo.exam.On("GetStageByID", ctx, uint(20)).Return(videoStageFor(5, nil), nil)
	deps.repo.progress.On("GetByAttemptAndStage", ctx, uint(10), uint(20)).
		Return(nil, gorm.ErrRecordNotFound)
	deps.repo.progress.On("Create", ctx, mock.AnythingOfType("*models.StageProgress")).
		Return(errors.New("connection reset"))

	// Replay never re-buffers; the storage error reaches the queue's
	// attempt counting.
	err := svc.ReplayProgress(ctx, &queue.Entry{
		AttemptID:    10,
		StageID:      20,
		ProgressData: []byte(`{"watch_percentage": 70}`),
	})
	assert.Error(t, err)
}

func TestGetAttemptState_OrdersByStageOrderAndCaches(t *testing.T) {
	deps := newTestDeps()
	svc := deps.progressService(nil)
	ctx := context.Background()

	attempt := activeAttempt()
	attempt.Answers = datatypes.JSONMap{"3": "b"}

	stages := []*models.Stage{
		{ID: 21, ExamID: 5, StageType: models.StageVideo, StageOrder: 0},
		{ID: 22, ExamID: 5, StageType: models.StageContent, StageOrder: 1},
		{ID: 23, ExamID: 5, StageType: models.StageQuestions, StageOrder: 2},
	}

	done := time.Now()
	rows := []*models.StageProgress{
		{ID: 2, AttemptID: 10, StageID: 23},
		{ID: 1, AttemptID: 10, StageID: 21, CompletedAt: &done},
	}

	deps.repo.attempt.On("GetByID", ctx, uint(10)).Return(attempt, nil).Once()
	deps.repo.exam.On("GetStages", ctx, uint(5)).Return(stages, nil).Once()
	deps.repo.progress.On("GetByAttempt", ctx, uint(10)).Return(rows, nil).Once()

	state, err := svc.GetAttemptState(ctx, 10)
	require.NoError(t, err)

	require.Len(t, state.StageProgress, 2)
	assert.Equal(t, uint(21), state.StageProgress[0].StageID)
	assert.Equal(t, uint(23), state.StageProgress[1].StageID)
	assert.Equal(t, []uint{21}, state.LockedStageIDs)
	assert.Equal(t, "b", state.Answers["3"])
	assert.Equal(t, models.AttemptInProgress, state.CompletionStatus)

	// Second read is served from cache; the Once expectations above
	// would fail otherwise.
	again, err := svc.GetAttemptState(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, state.AttemptID, again.AttemptID)
	deps.repo.assertExpectations(t)
}

func TestGetAttemptState_LegacyExamWithoutStages(t *testing.T) {
	deps := newTestDeps()
	svc := deps.progressService(nil)
	ctx := context.Background()

	deps.repo.attempt.On("GetByID", ctx, uint(10)).Return(activeAttempt(), nil)
	deps.repo.exam.On("GetStages", ctx, uint(5)).Return([]*models.Stage{}, nil)
	deps.repo.progress.On("GetByAttempt", ctx, uint(10)).Return([]*models.StageProgress{}, nil)

	state, err := svc.GetAttemptState(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, state.Stages)
	assert.Empty(t, state.StageProgress)
	assert.NotNil(t, state.Answers)
}

func TestGetAttemptState_NotFound(t *testing.T) {
	deps := newTestDeps()
	svc := deps.progressService(nil)
	ctx := context.Background()

	deps.repo.attempt.On("GetByID", ctx, uint(99)).Return(nil, gorm.ErrRecordNotFound)

	_, err := svc.GetAttemptState(ctx, 99)
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestEvaluateStage(t *testing.T) {
	threshold := 90.0

	t.Run("threshold not met", func(t *testing.T) {
		deps := newTestDeps()
		svc := deps.progressService(nil)
		ctx := context.Background()

		deps.repo.attempt.On("GetByID", ctx, uint(10)).Return(activeAttempt(), nil)
		deps.repo.exam.On("GetStageByID", ctx, uint(20)).Return(videoStageFor(5, &threshold), nil)
		deps.repo.progress.On("GetByAttemptAndStage", ctx, uint(10), uint(20)).Return(&models.StageProgress{
			AttemptID:    10,
			StageID:      20,
			ProgressData: datatypes.JSON(`{"watch_percentage": 50}`),
		}, nil)

		decision, err := svc.EvaluateStage(ctx, 10, 20)
		require.NoError(t, err)
		assert.False(t, decision.CanComplete)
		assert.NotEmpty(t, decision.Reason)
	})

	t.Run("no progress row yet", func(t *testing.T) {
		deps := newTestDeps()
		svc := deps.progressService(nil)
		ctx := context.Background()

		deps.repo.attempt.On("GetByID", ctx, uint(10)).Return(activeAttempt(), nil)
		deps.repo.exam.On("GetStageByID", ctx, uint(20)).Return(videoStageFor(5, &threshold), nil)
		deps.repo.progress.On("GetByAttemptAndStage", ctx, uint(10), uint(20)).
			Return(nil, gorm.ErrRecordNotFound)

		decision, err := svc.EvaluateStage(ctx, 10, 20)
		require.NoError(t, err)
		assert.False(t, decision.CanComplete)
	})
}
