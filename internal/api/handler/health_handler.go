package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// HealthHandler handles GET /health, the liveness check.
// Returns 200 immediately; confirms the process is alive.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// dependencyCheck pings one backing service.
type dependencyCheck func(ctx context.Context) error

// HealthDependenciesHandler handles GET /health/ready, the readiness check.
// Checks MongoDB and Redis connectivity before declaring the service ready.
type HealthDependenciesHandler struct {
	checks map[string]dependencyCheck
}

func NewHealthDependenciesHandler(db *mongo.Database, rdb *redis.Client) *HealthDependenciesHandler {
	return &HealthDependenciesHandler{checks: map[string]dependencyCheck{
		"mongodb": func(ctx context.Context) error {
			return db.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
		},
		"redis": func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	}}
}

type dependencyStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status       string                      `json:"status"`
	Dependencies map[string]dependencyStatus `json:"dependencies"`
}

// Readiness handles GET /health/ready.
//
// @Summary      Readiness check
// @Tags         health
// @Produce      json
// @Success      200  {object}  readinessResponse
// @Failure      503  {object}  readinessResponse
// @Router       /health/ready [get]
func (h *HealthDependenciesHandler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	deps := make(map[string]dependencyStatus, len(h.checks))
	healthy := true

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			deps[name] = dependencyStatus{Status: "unhealthy", Error: err.Error()}
			healthy = false
			continue
		}
		deps[name] = dependencyStatus{Status: "ok"}
	}

	status := "ok"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, readinessResponse{
		Status:       status,
		Dependencies: deps,
	})
}
