package model

import "time"

// Overall health statuses
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Dependency check statuses
const (
	CheckUp   = "up"
	CheckDown = "down"
)

// HealthCheck is the result of probing one dependency
type HealthCheck struct {
	Status         string   `json:"status"`
	ResponseTimeMS *float64 `json:"response_time_ms,omitempty"`
	Error          string   `json:"error,omitempty"`
	Database       string   `json:"database,omitempty"`
}

// HealthResponse is returned by the basic health endpoint
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// DetailedHealthResponse is returned by the readiness endpoint
type DetailedHealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]HealthCheck `json:"checks"`
}

// ServiceInfo is returned by the root endpoint
type ServiceInfo struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Status    string            `json:"status"`
	Endpoints map[string]string `json:"endpoints"`
	Timestamp time.Time         `json:"timestamp"`
}
