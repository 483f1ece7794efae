package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yourorg/ohlcv-service/internal/apperror"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	t.Run("generated", func(t *testing.T) {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
		id := w.Header().Get(RequestIDHeader)
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("propagated", func(t *testing.T) {
		inbound := uuid.NewString()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, inbound)

		w := serve(r, req)
		assert.Equal(t, inbound, w.Header().Get(RequestIDHeader))
	})

	t.Run("malformed inbound replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "<script>")

		w := serve(r, req)
		assert.NotEqual(t, "<script>", w.Header().Get(RequestIDHeader))
	})
}

func TestLogger_LevelByStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status    int
		wantLevel zapcore.Level
		wantMsg   string
	}{
		{http.StatusOK, zapcore.InfoLevel, "Request completed"},
		{http.StatusUnprocessableEntity, zapcore.WarnLevel, "Client error"},
		{http.StatusServiceUnavailable, zapcore.ErrorLevel, "Server error"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.DebugLevel)
			r := gin.New()
			r.Use(RequestID(), Logger(zap.New(core)))
			r.GET("/api/v1/ohlcv", func(c *gin.Context) { c.Status(tt.status) })

			req := httptest.NewRequest(http.MethodGet, "/api/v1/ohlcv?symbol=X", nil)
			req.Header.Set("User-Agent", "test-agent")
			serve(r, req)

			entries := logs.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.wantLevel, entries[0].Level)
			assert.Equal(t, tt.wantMsg, entries[0].Message)

			fields := entries[0].ContextMap()
			assert.Equal(t, "/api/v1/ohlcv?symbol=X", fields["path"])
			assert.Equal(t, "test-agent", fields["user_agent"])
			assert.NotEmpty(t, fields["request_id"])
			assert.Contains(t, fields, "duration_ms")
		})
	}
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	r := gin.New()
	r.Use(Recovery(zap.New(core), false))
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), apperror.CodeInternal)
	assert.NotContains(t, w.Body.String(), "kaboom")
	assert.Equal(t, 1, logs.FilterMessage("Unhandled panic").Len())
}

func TestNoRoute(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.NoRoute(NoRoute())

	w := serve(r, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), apperror.CodeResourceNotFound)
}

func TestCORS(t *testing.T) {
	t.Parallel()

	t.Run("any origin", func(t *testing.T) {
		r := gin.New()
		r.Use(CORS([]string{"*"}))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://anywhere.example")
		w := serve(r, req)

		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("listed origins", func(t *testing.T) {
		r := gin.New()
		r.Use(CORS([]string{"https://app.example.com"}))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		allowed := httptest.NewRequest(http.MethodGet, "/", nil)
		allowed.Header.Set("Origin", "https://app.example.com")
		w := serve(r, allowed)
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

		denied := httptest.NewRequest(http.MethodGet, "/", nil)
		denied.Header.Set("Origin", "https://evil.example.com")
		w = serve(r, denied)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
