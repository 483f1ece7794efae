package middleware

import (
	"fmt"
	"math"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourorg/ohlcv-service/internal/apperror"
	"github.com/yourorg/ohlcv-service/internal/utils"
)

const (
	// RequestIDHeader carries the per-request identifier
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "requestID"
)

// RequestID assigns every request a UUID, reusing a well-formed inbound X-Request-ID
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}

		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the ID assigned by RequestID, or an empty string
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Logger creates a middleware for logging HTTP requests
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// Process request
		c.Next()

		// Log after the request is processed
		latency := time.Since(start)
		status := c.Writer.Status()

		if query != "" {
			path = path + "?" + query
		}

		fields := []zap.Field{
			zap.String("request_id", GetRequestID(c)),
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.Duration("latency", latency),
			zap.Float64("duration_ms", math.Round(float64(latency)/float64(time.Millisecond)*100)/100),
		}

		// Log with appropriate level based on status code
		if status >= 500 {
			logger.Error("Server error", fields...)
		} else if status >= 400 {
			logger.Warn("Client error", fields...)
		} else {
			logger.Info("Request completed", fields...)
		}
	}
}

// Recovery turns panics into the INTERNAL_ERROR envelope
func Recovery(logger *zap.Logger, exposeErrors bool) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("Unhandled panic",
			zap.String("request_id", GetRequestID(c)),
			zap.String("endpoint", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.Any("panic", recovered),
			zap.Stack("stack"))

		utils.SendError(c, apperror.NewInternal(fmt.Errorf("panic: %v", recovered)), exposeErrors)
	})
}

// CORS allows the configured origins. A "*" entry allows any origin.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "HEAD", "OPTIONS"}
	cfg.AllowHeaders = []string{"*"}
	cfg.ExposeHeaders = []string{RequestIDHeader, CacheHeader}
	cfg.MaxAge = 12 * time.Hour

	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}

	return cors.New(cfg)
}

// NoRoute answers unknown paths with the RESOURCE_NOT_FOUND envelope
func NoRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		utils.SendError(c, apperror.NewResourceNotFound(c.Request.URL.Path), false)
	}
}
