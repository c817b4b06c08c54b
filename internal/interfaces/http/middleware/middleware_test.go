package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ubi/internal/config"
	"github.com/turtacn/ubi/internal/infrastructure/monitoring"
	"github.com/turtacn/ubi/internal/interfaces/http/middleware"
	"github.com/turtacn/ubi/pkg/constants"
	"github.com/turtacn/ubi/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(middleware.RequestID())
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.Request.Context().Value(constants.ContextKeyRequestID).(string))
	})

	t.Run("generates an id", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		id := w.Header().Get(constants.HeaderRequestID)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("reuses the caller's id", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(constants.HeaderRequestID, "req-42")
		router.ServeHTTP(w, req)
		assert.Equal(t, "req-42", w.Header().Get(constants.HeaderRequestID))
		assert.Equal(t, "req-42", w.Body.String())
	})
}

func TestObservability(t *testing.T) {
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	tm, err := monitoring.NewTracingManager(&config.Config{}, logger.NewNoopLogger())
	require.NoError(t, err)

	router := gin.New()
	router.Use(middleware.Observability(tm, metrics))
	router.GET("/api/v1/scores/:score_id", func(c *gin.Context) {
		_, ok := c.Get(string(constants.ContextKeyTraceID))
		assert.True(t, ok)
		c.Status(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/scores/abc", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/api/v1/scores/:score_id", "GET", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.HTTPActiveRequests))
}

func TestObservability_TraceIDFallsBackToRequestID(t *testing.T) {
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	tm, err := monitoring.NewTracingManager(&config.Config{}, logger.NewNoopLogger())
	require.NoError(t, err)

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Observability(tm, metrics))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.Request.Context().Value(constants.ContextKeyTraceID).(string))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(constants.HeaderRequestID, "req-7")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-7", w.Body.String())
}

func TestIdempotency(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	status := http.StatusCreated
	calls := 0
	router := gin.New()
	router.Use(middleware.Idempotency(client, time.Hour, logger.NewNoopLogger()))
	router.POST("/adjustments", func(c *gin.Context) {
		calls++
		c.Status(status)
	})

	send := func(key string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/adjustments", nil)
		if key != "" {
			req.Header.Set(constants.HeaderIdempotencyKey, key)
		}
		router.ServeHTTP(w, req)
		return w.Code
	}

	t.Run("replay is rejected", func(t *testing.T) {
		calls = 0
		assert.Equal(t, http.StatusCreated, send("k-1"))
		assert.Equal(t, http.StatusConflict, send("k-1"))
		assert.Equal(t, 1, calls)
		assert.True(t, mr.Exists("ubi:idem:POST:/adjustments:k-1"))
	})

	t.Run("no header passes through", func(t *testing.T) {
		calls = 0
		assert.Equal(t, http.StatusCreated, send(""))
		assert.Equal(t, http.StatusCreated, send(""))
		assert.Equal(t, 2, calls)
	})

	t.Run("failed request releases the key", func(t *testing.T) {
		calls = 0
		status = http.StatusServiceUnavailable
		assert.Equal(t, http.StatusServiceUnavailable, send("k-2"))
		status = http.StatusCreated
		assert.Equal(t, http.StatusCreated, send("k-2"))
		assert.Equal(t, 2, calls)
	})

	t.Run("redis down fails open", func(t *testing.T) {
		calls = 0
		mr.Close()
		assert.Equal(t, http.StatusCreated, send("k-3"))
		assert.Equal(t, 1, calls)
	})
}

func TestETag(t *testing.T) {
	body := `{"version":"v1.0.0"}`
	router := gin.New()
	router.Use(middleware.ETag())
	router.GET("/table", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(body))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/table", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, body, w.Body.String())
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/table", nil)
	req.Header.Set("If-None-Match", etag)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())

	body = `{"version":"v1.0.1"}`
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/table", nil)
	req.Header.Set("If-None-Match", etag)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEqual(t, etag, w.Header().Get("ETag"))
}
