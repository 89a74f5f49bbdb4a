package handlers

import (
	"net/http"

	"github.com/eduforge/exam-progression-service/internal/scoring"
	"github.com/eduforge/exam-progression-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// CalculationHandler exposes the deterministic final-score pipeline. The
// engine never errors out of band: structural problems come back inside
// the result with success=false, so this endpoint always answers 200 for
// a decodable body.
type CalculationHandler struct {
	BaseHandler
}

func NewCalculationHandler(logger utils.Logger) *CalculationHandler {
	return &CalculationHandler{
		BaseHandler: NewBaseHandler(logger),
	}
}

// CalculateFinalScore handles POST /calculations/final-score
func (h *CalculationHandler) CalculateFinalScore(c *gin.Context) {
	var input scoring.CalculationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result := scoring.Calculate(input)
	if !result.Success {
		h.logger.Warn("Final score calculation rejected input",
			"errors", result.Errors)
	}

	c.JSON(http.StatusOK, result)
}
