package handlers

import (
	"net/http"

	"github.com/eduforge/exam-progression-service/internal/repositories"
	"github.com/gin-gonic/gin"
)

// HealthHandler reports service liveness and storage reachability.
type HealthHandler struct {
	repo repositories.Repository
}

func NewHealthHandler(repo repositories.Repository) *HealthHandler {
	return &HealthHandler{repo: repo}
}

// Check handles GET /health
func (h *HealthHandler) Check(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK

	if err := h.repo.Ping(c.Request.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":  status,
		"service": "exam-progression-service",
	})
}
