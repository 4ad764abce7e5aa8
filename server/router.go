package server

import (
	"time"

	"linkhealth/infrastructure/metrics"
	httpHandler "linkhealth/interfaces/http"
	"linkhealth/interfaces/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	SecretKey      string
	AllowedOrigins []string
}

func InitiateRouter(
	cfg RouterConfig,
	scanHandler httpHandler.IScanHandler,
	healthHandler httpHandler.IHealthHandler,
	stream gin.HandlerFunc,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("api")
	api.Use(middleware.Auth(cfg.SecretKey))

	api.POST("/scan", scanHandler.StartScan)
	api.GET("/scan-status", scanHandler.GetScanStatus)

	scans := api.Group("/scans")
	{
		scans.GET("", scanHandler.ListSessions)
		if stream != nil {
			scans.GET("/stream", stream)
		}
		scans.GET("/:sessionId", scanHandler.GetSession)
		scans.GET("/:sessionId/export.csv", scanHandler.ExportSession)
	}

	return router
}
