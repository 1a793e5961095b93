// @title           Dream Log API
// @version         1.0.0
// @description     Turns dream descriptions and recordings into titles, bedtime stories,
// @description     interpretations and illustrations, and stores dreams for signed-in users.

// @host      localhost:3001
// @BasePath  /

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dreamlog-backend/internal/config"
	"dreamlog-backend/internal/database"
	"dreamlog-backend/internal/gateway"
	"dreamlog-backend/internal/handlers"
	"dreamlog-backend/internal/logger"
	"dreamlog-backend/internal/orchestrator"
	"dreamlog-backend/internal/ratelimit"
	"dreamlog-backend/internal/services"
	"dreamlog-backend/internal/supabase"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	zap.ReplaceGlobals(zapLogger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	// Rate budgets live in Redis when configured so several instances share them.
	var counter ratelimit.Counter = ratelimit.NewMemoryCounter()
	if cfg.RedisURL != "" {
		redisCounter, err := ratelimit.NewRedisCounterFromURL(ctx, cfg.RedisURL)
		if err != nil {
			zapLogger.Warn("Redis unavailable, keeping rate budgets in memory", zap.Error(err))
		} else {
			defer redisCounter.Close()
			counter = redisCounter
		}
	}
	tracker := ratelimit.NewTracker(ratelimit.DefaultBudgets(), counter, zapLogger)

	openaiClient := gateway.NewOpenAIClient(gateway.Config{
		APIKey:    cfg.OpenAIAPIKey,
		BaseURL:   cfg.OpenAIBaseURL,
		ChatModel: cfg.ChatModel,
		Timeout:   cfg.ModelTimeout,
	}, zapLogger)
	if !openaiClient.Configured() {
		zapLogger.Warn("OPENAI_API_KEY not set, generation endpoints will answer not_configured")
	}
	orch := orchestrator.New(openaiClient, tracker, zapLogger)

	var dbClient *supabase.DatabaseClient
	if cfg.DatabaseURL == "" {
		zapLogger.Warn("DATABASE_URL not set, the dreams API is disabled")
	} else {
		migrator, err := database.NewMigrator(ctx, cfg.DatabaseURL, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to initialize migrator", zap.Error(err))
		}
		if err := migrator.Run(ctx); err != nil {
			zapLogger.Fatal("Migration failed", zap.Error(err))
		}
		_ = migrator.Close()

		dbClient, err = supabase.NewDatabaseClient(ctx, cfg.DatabaseURL)
		if err != nil {
			zapLogger.Fatal("Failed to initialize database client", zap.Error(err))
		}
		defer dbClient.Close()
	}

	var archive handlers.ImageArchive
	if cfg.StorageConfigured() {
		supabaseClient, err := supabase.NewClient(cfg)
		if err != nil {
			zapLogger.Fatal("Failed to initialize Supabase client", zap.Error(err))
		}
		storageClient, err := supabase.NewStorageClient(supabaseClient, cfg.SupabaseStorageBucket)
		if err != nil {
			zapLogger.Fatal("Failed to initialize storage client", zap.Error(err))
		}
		archive = services.NewImageArchiver(storageClient, zapLogger)
	} else {
		zapLogger.Info("Supabase storage not configured, provider image URLs are stored as-is")
	}

	providers := map[string]bool{
		"openai":  openaiClient.Configured(),
		"storage": archive != nil,
	}
	var healthHandler *handlers.HealthHandler
	if dbClient != nil {
		healthHandler = handlers.NewHealthHandler(providers, dbClient)
	} else {
		healthHandler = handlers.NewHealthHandler(providers, nil)
	}
	routes := routeHandlers{
		health:     healthHandler,
		generation: handlers.NewGenerationHandler(orch),
	}
	if dbClient != nil {
		routes.dreams = handlers.NewDreamsHandler(dbClient, archive, zapLogger)
	}
	router := newRouter(cfg, routes, tracker, zapLogger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		// Full generations wait on several provider calls.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zapLogger.Info("Server starting", zap.String("port", cfg.Port), zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("HTTP server listen error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	zapLogger.Info("Server exiting")
}
