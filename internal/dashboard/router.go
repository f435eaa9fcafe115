package dashboard

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/firesafely/marketplace/pkg/common"
	"github.com/firesafely/marketplace/pkg/config"
	"github.com/firesafely/marketplace/pkg/middleware"
)

// NewRouter assembles the dashboard's gin engine: the shared middleware
// chain, the health and metrics endpoints, and the session-guarded API.
func NewRouter(cfg *config.Config, handler *Handler) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryWithSentry())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(cfg.Server.ServiceName))
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))
	router.Use(middleware.RequestTimeout(time.Duration(cfg.Server.WriteTimeout) * time.Second))
	router.Use(middleware.SentryMiddleware())
	router.Use(middleware.ErrorHandler())

	router.GET("/health", func(c *gin.Context) {
		common.SuccessResponse(c, gin.H{
			"status":  "ok",
			"service": cfg.Server.ServiceName,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	api.Use(middleware.Session())
	handler.RegisterRoutes(api)

	router.NoRoute(func(c *gin.Context) {
		common.ErrorResponse(c, http.StatusNotFound, "route not found")
	})

	return router
}
