package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"dreamlog-backend/internal/config"
	"dreamlog-backend/internal/handlers"
	"dreamlog-backend/internal/models"
	"dreamlog-backend/internal/orchestrator"
	"dreamlog-backend/internal/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{FrontendURL: "http://localhost:5173", SupabaseJWTSecret: "secret"}
	routes := routeHandlers{
		health:     handlers.NewHealthHandler(map[string]bool{"openai": false}, nil),
		generation: handlers.NewGenerationHandler(orchestrator.New(nil, nil, nil)),
	}
	tracker := ratelimit.NewTracker(ratelimit.DefaultBudgets(), ratelimit.NewMemoryCounter(), nil)
	return newRouter(cfg, routes, tracker, zap.NewNop())
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthIsServedOnBothPaths(t *testing.T) {
	router := testRouter()

	for _, path := range []string{"/health", "/api/health"} {
		w := get(router, path)

		require.Equal(t, http.StatusOK, w.Code, path)
		var resp models.HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), path)
		assert.Equal(t, "ok", resp.Status, path)
		assert.Contains(t, resp.APIs, "openai", path)
	}
}

func TestDreamsRoutesNeedADatabase(t *testing.T) {
	w := get(testRouter(), "/api/dreams")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsRoute(t *testing.T) {
	w := get(testRouter(), "/metrics")

	assert.Equal(t, http.StatusOK, w.Code)
}
