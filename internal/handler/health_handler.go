package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HealthChecker reports whether one backing dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	db    HealthChecker
	redis HealthChecker
	log   *zap.Logger
}

func NewHealthHandler(db, redis HealthChecker, log *zap.Logger) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, log: log}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Service   string            `json:"service"`
	Checks    map[string]string `json:"checks"`
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Service:   "gamenight",
		Checks:    make(map[string]string),
	}

	checks := map[string]HealthChecker{
		"postgres": h.db,
		"redis":    h.redis,
	}
	for name, checker := range checks {
		if err := checker.Health(ctx); err != nil {
			h.log.Warn("health check failed",
				zap.String("dependency", name),
				zap.Error(err))
			response.Checks[name] = err.Error()
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		response.Checks[name] = "ok"
	}

	respondJSON(w, status, response)
}
