package handlers

import (
	"github.com/eduforge/exam-progression-service/internal/services"
	"github.com/eduforge/exam-progression-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type HandlerManager struct {
	attemptHandler     *AttemptHandler
	progressHandler    *ProgressHandler
	calculationHandler *CalculationHandler
	healthHandler      *HealthHandler
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	health *HealthHandler,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		attemptHandler:     NewAttemptHandler(serviceManager.Attempt(), serviceManager.Result(), logger),
		progressHandler:    NewProgressHandler(serviceManager.Progress(), logger),
		calculationHandler: NewCalculationHandler(logger),
		healthHandler:      health,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine, auth gin.HandlerFunc) {
	router.GET("/health", hm.healthHandler.Check)

	v1 := router.Group("/api/v1")
	v1.Use(auth)
	{
		exams := v1.Group("/exams")
		{
			exams.POST("/:id/attempts", hm.attemptHandler.StartAttempt)
		}

		attempts := v1.Group("/attempts")
		{
			attempts.GET("/:id/state", hm.progressHandler.GetAttemptState)
			attempts.POST("/:id/answers", hm.attemptHandler.SaveAnswer)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitAttempt)
			attempts.POST("/:id/abandon", hm.attemptHandler.AbandonAttempt)
			attempts.GET("/:id/result", hm.attemptHandler.GetResult)
			attempts.POST("/:id/result/recompute", hm.attemptHandler.RecomputeResult)

			// Stage progress
			attempts.PUT("/:id/stages/:stage_id/progress", hm.progressHandler.SaveProgress)
			attempts.GET("/:id/stages/:stage_id/evaluation", hm.progressHandler.EvaluateStage)
		}

		calculations := v1.Group("/calculations")
		{
			calculations.POST("/final-score", hm.calculationHandler.CalculateFinalScore)
		}
	}
}
