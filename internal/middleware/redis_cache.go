package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// CacheHeader reports whether a response was served from cache
const CacheHeader = "X-Cache"

// CacheConfig holds configuration for the cache middleware
type CacheConfig struct {
	Enabled         bool
	DefaultDuration time.Duration
	PrefixKey       string
}

// RedisCache caches successful GET responses in Redis, keyed by path and query.
// Redis failures are logged and the request is served uncached.
func RedisCache(redisClient redis.Cmdable, config CacheConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip if caching is disabled or request method is not GET
		if !config.Enabled || redisClient == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		cacheKey := generateCacheKey(c, config.PrefixKey)
		ctx := c.Request.Context()

		cachedResponse, err := redisClient.Get(ctx, cacheKey).Bytes()
		if err == nil {
			logger.Debug("Cache hit",
				zap.String("path", c.Request.URL.Path),
				zap.String("cache_key", cacheKey))

			c.Header(CacheHeader, "HIT")
			c.Data(http.StatusOK, "application/json; charset=utf-8", cachedResponse)
			c.Abort()
			return
		}
		if !errors.Is(err, redis.Nil) {
			logger.Warn("Cache lookup failed", zap.Error(err), zap.String("cache_key", cacheKey))
		}

		// Capture the response so it can be stored
		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
		}
		c.Writer = writer
		c.Header(CacheHeader, "MISS")

		c.Next()

		// Only cache successful responses
		if writer.Status() != http.StatusOK {
			return
		}

		if err := redisClient.Set(ctx, cacheKey, writer.body.Bytes(), config.DefaultDuration).Err(); err != nil {
			logger.Warn("Failed to set cache",
				zap.Error(err),
				zap.String("cache_key", cacheKey))
			return
		}

		logger.Debug("Cache set",
			zap.String("path", c.Request.URL.Path),
			zap.String("cache_key", cacheKey),
			zap.Duration("duration", config.DefaultDuration))
	}
}

// responseWriter captures the response body for caching
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write captures the response for caching
func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// WriteString captures string writes made through the gin writer
func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// generateCacheKey hashes the path and query into a fixed-length key
func generateCacheKey(c *gin.Context, prefix string) string {
	key := c.Request.URL.Path
	if query := c.Request.URL.RawQuery; query != "" {
		key += "?" + query
	}
	sum := sha256.Sum256([]byte(key))
	return prefix + hex.EncodeToString(sum[:])
}

// NewRedisClient builds a client from a redis:// URL
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}
