package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"popdesk/internal/caching"
	"popdesk/internal/staging"
)

// HealthHandlers handles health check and monitoring endpoints
type HealthHandlers struct {
	redisSvc caching.CacheService
	stage    *staging.Store
}

// NewHealthHandlers creates a new health handlers instance
func NewHealthHandlers(redisSvc caching.CacheService, stage *staging.Store) *HealthHandlers {
	return &HealthHandlers{
		redisSvc: redisSvc,
		stage:    stage,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Services      map[string]string `json:"services"`
	StagedUploads int               `json:"staged_uploads"`
}

// HealthCheck reports service health. The spreadsheet backend is not
// probed here; a broken backend surfaces on the first lookup instead of
// burning read quota on every probe.
func (h *HealthHandlers) HealthCheck(c echo.Context) error {
	health := &HealthStatus{
		Status:        "healthy",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Services:      make(map[string]string),
		StagedUploads: h.stage.Len(),
	}

	if err := h.checkRedis(c.Request().Context()); err != nil {
		health.Services["redis"] = "unhealthy"
		health.Status = "degraded"
	} else {
		health.Services["redis"] = "healthy"
	}

	statusCode := http.StatusOK
	if health.Status == "degraded" {
		statusCode = http.StatusPartialContent
	}
	return c.JSON(statusCode, health)
}

func (h *HealthHandlers) checkRedis(ctx context.Context) error {
	_, err := h.redisSvc.GetString(ctx, "health:probe")
	return err
}

// LivenessCheck determines if the application is running (basic liveness probe)
func (h *HealthHandlers) LivenessCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
