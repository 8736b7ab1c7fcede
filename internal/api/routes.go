package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all API routes. The metrics endpoint is only
// registered when a registry is supplied.
func SetupRoutes(router *gin.Engine, handler *Handler, reg *prometheus.Registry) {
	router.GET("/health", handler.HealthCheck)
	if reg != nil {
		router.GET("/metrics", gin.WrapH(
			promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	{
		events := v1.Group("/events/:id")
		{
			events.POST("/feedback", handler.SubmitFeedback)      // POST /api/v1/events/:id/feedback
			events.POST("/social", handler.ProcessSocialPost)     // POST /api/v1/events/:id/social
			events.POST("/alerts", handler.CreateAlert)           // POST /api/v1/events/:id/alerts
			events.GET("/alerts/counts", handler.GetAlertCounts)  // GET /api/v1/events/:id/alerts/counts
			events.POST("/recalculate", handler.Recalculate)      // POST /api/v1/events/:id/recalculate
		}

		alerts := v1.Group("/alerts")
		{
			alerts.PATCH("/:id/status", handler.UpdateAlertStatus) // PATCH /api/v1/alerts/:id/status
		}

		v1.GET("/queue/failed", handler.ListFailedJobs) // GET /api/v1/queue/failed
	}
}
