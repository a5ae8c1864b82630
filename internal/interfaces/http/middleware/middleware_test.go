package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fable-ai-api/pkg/logger"
)

type countingLimiter struct {
	counts map[string]int
	keys   []string
	err    error
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, int, error) {
	if l.err != nil {
		return false, 0, l.err
	}
	l.keys = append(l.keys, key)
	l.counts[key]++
	if l.counts[key] > limit {
		return false, 0, nil
	}
	return true, limit - l.counts[key], nil
}

func serve(r *gin.Engine, path, owner string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if owner != "" {
		req.Header.Set(DefaultUserHeader, owner)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestOwner(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Owner(""), func(c *gin.Context) {
		assert.Equal(t, "owner-1", c.Request.Context().Value(logger.OwnerIDKey))
		c.String(http.StatusOK, GetOwnerID(c))
	})

	w := serve(r, "/me", "owner-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "owner-1", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, serve(r, "/me", "").Code)
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := &countingLimiter{counts: map[string]int{}}
	key := ByOwner("rps", func(subject, endpoint string) string { return subject + "|" + endpoint })

	r := gin.New()
	r.GET("/stories", Owner(""), RateLimit(limiter, 2, time.Second, key), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := serve(r, "/stories", "owner-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get(RateLimitRemainingHeader))
	assert.Equal(t, http.StatusOK, serve(r, "/stories", "owner-1").Code)

	w = serve(r, "/stories", "owner-1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, serve(r, "/stories", "owner-2").Code, "limits are per owner")
	assert.Equal(t, "owner-1|rps:GET /stories", limiter.keys[0])
}

func TestRateLimit_FailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := &countingLimiter{err: errors.New("redis down")}
	r := gin.New()
	r.GET("/x", RateLimit(limiter, 1, time.Second, ByOwner("rps", func(s, e string) string { return s + e })),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, "/x", "").Code)
	assert.Equal(t, http.StatusOK, serve(r, "/x", "").Code)
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(), RequestID())
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := serve(r, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, "/", "")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}
