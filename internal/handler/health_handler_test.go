package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/ohlcv-service/internal/model"
)

type mockHealthChecker struct {
	check model.HealthCheck
}

func (m mockHealthChecker) HealthCheck(context.Context) model.HealthCheck {
	return m.check
}

func setupHealthRouter(check model.HealthCheck) *gin.Engine {
	h := NewHealthHandler(mockHealthChecker{check: check}, "ClickHouse OHLCV API", "1.0.0", "/api/v1", zap.NewNop())
	r := gin.New()
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/health/ready", h.Ready)
	r.GET("/health/live", h.Live)
	return r
}

func TestRoot(t *testing.T) {
	t.Parallel()

	w := doGet(setupHealthRouter(model.HealthCheck{}), "/")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "ClickHouse OHLCV API", body["name"])
	assert.Equal(t, "running", body["status"])
	endpoints := body["endpoints"].(map[string]interface{})
	assert.Equal(t, "/api/v1/ohlcv", endpoints["ohlcv"])
}

func TestHealth(t *testing.T) {
	t.Parallel()

	w := doGet(setupHealthRouter(model.HealthCheck{}), "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	body := decode(t, w)
	assert.Equal(t, model.StatusHealthy, body["status"])
	assert.Equal(t, "1.0.0", body["version"])
}

func TestLive(t *testing.T) {
	t.Parallel()

	w := doGet(setupHealthRouter(model.HealthCheck{}), "/health/live")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestReady(t *testing.T) {
	t.Parallel()

	ms := 1.5
	tests := []struct {
		name       string
		check      model.HealthCheck
		wantStatus int
		wantBody   string
	}{
		{"database up", model.HealthCheck{Status: model.CheckUp, ResponseTimeMS: &ms, Database: "default"}, http.StatusOK, model.StatusHealthy},
		{"database down", model.HealthCheck{Status: model.CheckDown, Error: "connection refused", Database: "default"}, http.StatusServiceUnavailable, model.StatusUnhealthy},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := doGet(setupHealthRouter(tt.check), "/health/ready")
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

			body := decode(t, w)
			assert.Equal(t, tt.wantBody, body["status"])

			checks := body["checks"].(map[string]interface{})
			db := checks["database"].(map[string]interface{})
			assert.Equal(t, tt.check.Status, db["status"])
			api := checks["api"].(map[string]interface{})
			assert.Equal(t, model.CheckUp, api["status"])
		})
	}
}
