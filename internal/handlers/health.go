package handlers

import (
	"context"
	"net/http"
	"time"

	"dreamlog-backend/internal/models"
	"github.com/gin-gonic/gin"
)

// Pinger is anything the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	providers map[string]bool
	db        Pinger
}

// NewHealthHandler reports the given provider flags. db may be nil when the
// dreams store is not configured.
func NewHealthHandler(providers map[string]bool, db Pinger) *HealthHandler {
	return &HealthHandler{providers: providers, db: db}
}

// Health godoc
// @Summary     Health check
// @Description Returns the health status of the API and which providers are configured
// @Tags        health
// @Produce     json
// @Success     200 {object} models.HealthResponse
// @Router      /health [get]
// @Router      /api/health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	apis := make(map[string]bool, len(h.providers)+1)
	for name, ok := range h.providers {
		apis[name] = ok
	}

	status := "ok"
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		apis["database"] = h.db.Ping(ctx) == nil
		if !apis["database"] {
			status = "degraded"
		}
	}

	c.JSON(http.StatusOK, models.HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		APIs:      apis,
	})
}
