package handlers

import (
	"errors"
	"net/http"

	"github.com/eduforge/exam-progression-service/internal/services"
	"github.com/eduforge/exam-progression-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// ProgressHandler exposes attempt state reads and stage progress writes.
type ProgressHandler struct {
	BaseHandler
	service services.ProgressService
}

func NewProgressHandler(service services.ProgressService, logger utils.Logger) *ProgressHandler {
	return &ProgressHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
	}
}

// GetAttemptState handles GET /attempts/:id/state
func (h *ProgressHandler) GetAttemptState(c *gin.Context) {
	attemptID, ok := ParseUintIDParam(c, "id")
	if !ok {
		return
	}

	state, err := h.service.GetAttemptState(c.Request.Context(), attemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// SaveProgress handles PUT /attempts/:id/stages/:stage_id/progress
func (h *ProgressHandler) SaveProgress(c *gin.Context) {
	attemptID, ok := ParseUintIDParam(c, "id")
	if !ok {
		return
	}
	stageID, ok := ParseUintIDParam(c, "stage_id")
	if !ok {
		return
	}

	var req services.SaveProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.AttemptID = attemptID
	req.StageID = stageID

	resp, err := h.service.SaveProgress(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusOK
	if resp.Queued {
		status = http.StatusAccepted
	}
	c.JSON(status, resp)
}

// EvaluateStage handles GET /attempts/:id/stages/:stage_id/evaluation
func (h *ProgressHandler) EvaluateStage(c *gin.Context) {
	attemptID, ok := ParseUintIDParam(c, "id")
	if !ok {
		return
	}
	stageID, ok := ParseUintIDParam(c, "stage_id")
	if !ok {
		return
	}

	decision, err := h.service.EvaluateStage(c.Request.Context(), attemptID, stageID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

func (h *ProgressHandler) handleServiceError(c *gin.Context, err error) {
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
	case errors.Is(err, services.ErrAttemptNotActive):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Attempt is not active"})
	case services.IsNotFound(err):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Resource not found"})
	default:
		h.LogError(c, err, "Unhandled service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Internal server error"})
	}
}
