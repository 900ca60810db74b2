package api

import (
	"github.com/gin-gonic/gin"

	"sttstudio/internal/config"
	"sttstudio/pkg/logger"
)

// SetupRoutes builds the gin engine:
// no default middleware, recovery + the project's own structured request
// logger, then the handful of routes this studio actually needs.
func SetupRoutes(cfg *config.Config, h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	logger.SetGinOutput()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.GinLogger())

	gate := newTokenGate(cfg.APIAuthToken)

	router.GET("/api/health", h.HealthCheck)

	protected := router.Group("/api")
	protected.Use(gate.middleware())
	{
		protected.GET("/config", h.GetConfig)
		protected.POST("/submit", h.SubmitJob)
		protected.GET("/status/:id", h.GetJobStatus)
		protected.POST("/cancel/:id", h.CancelJob)
		protected.GET("/download/:id", h.DownloadResult)
	}

	return router
}
