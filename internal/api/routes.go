package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes sets up the API routes
func RegisterRoutes(router *gin.Engine, handler *APIHandler) {
	router.GET("/healthz", handler.HealthCheckHandler)
	router.GET("/readyz", handler.ReadinessHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		images := v1.Group("/images")
		{
			images.GET("/studies", handler.ListStudiesHandler)
		}

		v1.GET("/patients/:id", handler.GetPatientHandler)
		v1.GET("/studies/:id", handler.GetStudyHandler)
		v1.POST("/studies/:id/send/:modality", handler.SendStudyHandler)
		v1.GET("/series/:id", handler.GetSeriesHandler)
		v1.GET("/series/:id/mid-instance", handler.MidInstanceHandler)
		v1.GET("/instances/:id", handler.GetInstanceHandler)
		v1.GET("/instances/:id/preview", handler.InstancePreviewHandler)

		v1.GET("/changes", handler.ChangesHandler)
		v1.GET("/watcher", handler.WatcherStatusHandler)
	}
}
