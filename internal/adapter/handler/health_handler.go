package handler

import (
	"context"
	"log/slog"
	"net/http"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	storage Pinger
	cache   Pinger
	logger  *slog.Logger
}

func NewHealthHandler(storage, cache Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		storage: storage,
		cache:   cache,
		logger:  logger,
	}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	dbStatus := "healthy"
	redisStatus := "healthy"
	overallStatus := "healthy"

	if err := h.storage.Ping(r.Context()); err != nil {
		dbStatus = "unhealthy"
		overallStatus = "degraded"
		h.logger.Warn("database health check failed", "error", err)
	}

	if err := h.cache.Ping(r.Context()); err != nil {
		redisStatus = "unhealthy"
		overallStatus = "degraded"
		h.logger.Warn("redis health check failed", "error", err)
	}

	statusCode := http.StatusOK
	if overallStatus == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, map[string]any{
		"status": overallStatus,
		"checks": map[string]string{
			"database": dbStatus,
			"redis":    redisStatus,
		},
	})
}
