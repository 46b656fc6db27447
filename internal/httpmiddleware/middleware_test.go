package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"deptattendance/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestTokenBucket(t *testing.T) {
	l := NewTokenBucket(2, 2)
	now := time.Now()
	l.now = func() time.Time { return now }

	r := gin.New()
	r.Use(l.RateLimit())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ping").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ping").Code)
	rec := serve(r, http.MethodGet, "/ping")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	now = now.Add(30 * time.Second)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ping").Code)
}

func TestTokenBucket_FractionalRefill(t *testing.T) {
	l := NewTokenBucket(2, 2)
	now := time.Now()
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))

	now = now.Add(10 * time.Second)
	assert.False(t, l.allow("a"), "a third of a token is not enough")

	// 45s in total refills 1.5 tokens; the leftover half is kept
	now = now.Add(35 * time.Second)
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))

	now = now.Add(15 * time.Second)
	assert.True(t, l.allow("a"))

	now = now.Add(10 * time.Minute)
	assert.True(t, l.allow("a"))
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"), "refill is capped at capacity")

	assert.True(t, l.allow("b"), "clients have separate buckets")
}

func TestTokenBucket_Disabled(t *testing.T) {
	r := gin.New()
	r.Use(NewTokenBucket(0, 0).RateLimit())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ping").Code)
	}
}

func TestRequestLogAndMetrics(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := metrics.New(prometheus.NewRegistry())

	r := gin.New()
	r.Use(RequestLog(zap.New(core), "/healthz"), Metrics(m), SecurityHeaders())
	r.GET("/v1/subjects/:code", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(assert.AnError)
		c.Status(http.StatusInternalServerError)
	})

	rec := serve(r, http.MethodGet, "/v1/subjects/MATH101")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	serve(r, http.MethodGet, "/healthz")
	serve(r, http.MethodGet, "/boom")

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "request", entries[0].Message)
		assert.Equal(t, "/v1/subjects/:code", entries[0].ContextMap()["route"])
		assert.Equal(t, "request failed", entries[1].Message)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/v1/subjects/:code", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/boom", "500")))
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS())
	r.GET("/v1/me", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/v1/me", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
