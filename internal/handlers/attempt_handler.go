package handlers

import (
	"errors"
	"net/http"

	"github.com/eduforge/exam-progression-service/internal/services"
	"github.com/eduforge/exam-progression-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// AttemptHandler exposes the attempt lifecycle: start, answer auto-save,
// submit, abandon, and result reads.
type AttemptHandler struct {
	BaseHandler
	service services.AttemptService
	results services.ResultService
}

func NewAttemptHandler(service services.AttemptService, results services.ResultService, logger utils.Logger) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
		results:     results,
	}
}

type startAttemptBody struct {
	StudentID string `json:"student_id"`
}

// StartAttempt handles POST /exams/:id/attempts
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	examID, ok := ParseUintIDParam(c, "id")
	if !ok {
		return
	}

	var body startAttemptBody
	if err := c.ShouldBindJSON(&body); err != nil && err.Error() != "EOF" {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	// An authenticated identity always wins over the body.
	if studentID, exists := c.Get("student_id"); exists {
		if s, ok := studentID.(string); ok && s != "" {
			body.StudentID = s
		}
	}

	h.LogRequest(c, "Starting attempt", "exam_id", examID)

	attempt, err := h.service.Start(c.Request.Context(), &services.StartAttemptRequest{
		ExamID:    examID,
		StudentID: body.StudentID,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, attempt)
}

// SaveAnswer handles POST /attempts/:id/answers
func (h *AttemptHandler) SaveAnswer(c *gin.Context) {
	attemptID, ok := ParseUintIDParam(c, "id")
	if !ok {
		return
	}

	var req services.SaveAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.service.SaveAnswer(c.Request.Context(), attemptID, &req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Answer saved"})
}

// SubmitAttempt handles POST /attempts/:id/submit
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	attemptID, ok := ParseUintIDParam(c, "id")
	if !ok {
		return
	}

	h.LogRequest(c, "Submitting attempt", "attempt_id", attemptID)

	result, err := h.service.Submit(c.Request.Context(), attemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// AbandonAttempt handles POST /attempts/:id/abandon
func (h *AttemptHandler) AbandonAttempt(c *gin.Context) {
	attemptID, ok := ParseUintIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.Abandon(c.Request.Context(), attemptID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Attempt abandoned"})
}

// GetResult handles GET /attempts/:id/result
func (h *AttemptHandler) GetResult(c *gin.Context) {
	attemptID, ok := ParseUintIDParam(c, "id")
	if !ok {
		return
	}

	result, err := h.results.GetByAttempt(c.Request.Context(), attemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RecomputeResult handles POST /attempts/:id/result/recompute
func (h *AttemptHandler) RecomputeResult(c *gin.Context) {
	attemptID, ok := ParseUintIDParam(c, "id")
	if !ok {
		return
	}

	h.LogRequest(c, "Recomputing result", "attempt_id", attemptID)

	result, err := h.results.Compute(c.Request.Context(), attemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *AttemptHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var codedError *services.CodedError
	if errors.As(err, &codedError) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: codedError.Message,
			Code:    codedError.Code,
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrAttemptAlreadySubmitted):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Attempt already submitted"})
	case errors.Is(err, services.ErrAttemptVersionConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Attempt was modified concurrently, refetch and retry"})
	case errors.Is(err, services.ErrAttemptNotActive):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Attempt is not active"})
	case errors.Is(err, services.ErrExamNotActive):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Message: "Exam is not active"})
	case services.IsNotFound(err):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Resource not found"})
	default:
		h.LogError(c, err, "Unhandled service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Internal server error"})
	}
}
