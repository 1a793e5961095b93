package main

import (
	"time"

	"dreamlog-backend/internal/config"
	"dreamlog-backend/internal/handlers"
	"dreamlog-backend/internal/middleware"
	"dreamlog-backend/internal/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type routeHandlers struct {
	health     *handlers.HealthHandler
	generation *handlers.GenerationHandler
	// dreams is nil when no database is configured.
	dreams *handlers.DreamsHandler
}

// newRouter mounts every endpoint. Health answers on both /health and
// /api/health; older web clients call the latter.
func newRouter(cfg *config.Config, h routeHandlers, tracker *ratelimit.Tracker, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestLogger(logger))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.FrontendURL}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-Request-ID"}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.GET("/health", h.health.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(middleware.RateLimit(tracker, ratelimit.General))
	api.GET("/health", h.health.Health)

	generation := api.Group("")
	generation.Use(middleware.OptionalAuth(cfg))
	generation.POST("/generate", h.generation.Generate)
	generation.POST("/transcribe", h.generation.Transcribe)
	generation.POST("/generate-title", h.generation.GenerateTitle)
	generation.POST("/generate-story", h.generation.GenerateStory)
	generation.POST("/analyze-dream", h.generation.AnalyzeDream)
	generation.POST("/generate-images", h.generation.GenerateImages)
	generation.POST("/synthesize-speech", h.generation.SynthesizeSpeech)

	if h.dreams != nil {
		dreams := api.Group("/dreams")
		dreams.Use(middleware.AuthMiddleware(cfg))
		dreams.GET("", h.dreams.ListDreams)
		dreams.POST("", h.dreams.CreateDream)
		dreams.GET("/:id", h.dreams.GetDream)
		dreams.PUT("/:id", h.dreams.UpdateDream)
		dreams.DELETE("/:id", h.dreams.DeleteDream)
	}
	return router
}
