// Package v1 wires the HTTP API of the fiscal service.
package v1

import (
	"github.com/gin-gonic/gin"

	"hostal/internal/infrastructure/http/v1/handlers"
	"hostal/internal/infrastructure/http/v1/middleware"
	"hostal/pkg/logger"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Documents   *handlers.DocumentHandler
	Resolutions *handlers.ResolutionHandler
	Backfill    *handlers.BackfillHandler
	Stats       *handlers.StatsHandler
	Health      *handlers.HealthHandler
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(log *logger.Logger, h Handlers) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Trace())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery())
	router.Use(middleware.ErrorHandler())

	router.GET("/healthz", h.Health.Live)
	router.GET("/readyz", h.Health.Ready)

	api := router.Group("/api/v1/fiscal")
	{
		docs := api.Group("/documents")
		{
			docs.POST("/reserve", h.Documents.Reserve)
			docs.POST("/issue", h.Documents.Issue)
			docs.GET("", h.Documents.List)
			docs.GET("/:id", h.Documents.Get)
			docs.POST("/:id/sent", h.Documents.MarkSent)
			docs.POST("/:id/failed", h.Documents.MarkFailed)
			docs.POST("/:id/cancel", h.Documents.Cancel)
		}

		api.POST("/resolutions", h.Resolutions.Configure)
		api.GET("/resolutions", h.Resolutions.List)
		api.GET("/resolutions/active", h.Resolutions.Active)

		api.POST("/backfill", h.Backfill.Register)

		api.GET("/series/:series/usage", h.Stats.Usage)
		api.GET("/series/:series/gaps", h.Stats.Gaps)
	}

	return router
}
