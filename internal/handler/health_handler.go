package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/ohlcv-service/internal/model"
)

// HealthChecker reports on a dependency
type HealthChecker interface {
	HealthCheck(ctx context.Context) model.HealthCheck
}

// HealthHandler serves the service info and health probe endpoints
type HealthHandler struct {
	database  HealthChecker
	name      string
	version   string
	apiPrefix string
	logger    *zap.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(database HealthChecker, name, version, apiPrefix string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		database:  database,
		name:      name,
		version:   version,
		apiPrefix: apiPrefix,
		logger:    logger,
	}
}

// Root returns basic service information
// GET /
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, model.ServiceInfo{
		Name:    h.name,
		Version: h.version,
		Status:  "running",
		Endpoints: map[string]string{
			"health":       "/health",
			"ready":        "/health/ready",
			"live":         "/health/live",
			"ohlcv":        h.apiPrefix + "/ohlcv",
			"ohlcv_latest": h.apiPrefix + "/ohlcv/latest",
		},
		Timestamp: time.Now().UTC(),
	})
}

// Health is the basic uptime check
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	noStore(c)
	c.JSON(http.StatusOK, model.HealthResponse{
		Status:    model.StatusHealthy,
		Version:   h.version,
		Timestamp: time.Now().UTC(),
	})
}

// Ready checks that the database is reachable
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	noStore(c)

	dbCheck := h.database.HealthCheck(c.Request.Context())

	status := model.StatusHealthy
	code := http.StatusOK
	if dbCheck.Status != model.CheckUp {
		status = model.StatusUnhealthy
		code = http.StatusServiceUnavailable
		h.logger.Warn("Readiness check failed", zap.String("database_error", dbCheck.Error))
	}

	c.JSON(code, model.DetailedHealthResponse{
		Status:    status,
		Version:   h.version,
		Timestamp: time.Now().UTC(),
		Checks: map[string]model.HealthCheck{
			"database": dbCheck,
			"api":      {Status: model.CheckUp},
		},
	})
}

// Live reports that the process can serve requests
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	noStore(c)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
}
