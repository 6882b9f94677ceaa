package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	echo "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLimiter(t *testing.T, rps int) (echo.MiddlewareFunc, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mw := RateLimitMiddleware(RateLimitConfig{
		Redis:          rdb,
		DefaultRPS:     rps,
		Window:         time.Second,
		RetryAfterHint: true,
	})

	return mw, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func doRequest(mw echo.MiddlewareFunc, ip string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(echo.HeaderXRealIP, ip)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	_ = handler(c)
	return rec
}

func TestRateLimitAllowsWithinLimit(t *testing.T) {
	mw, cleanup := setupLimiter(t, 3)
	defer cleanup()

	for i := 0; i < 3; i++ {
		rec := doRequest(mw, "10.0.0.1")
		assert.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i)
	}
}

func TestRateLimitBlocksOverLimit(t *testing.T) {
	mw, cleanup := setupLimiter(t, 2)
	defer cleanup()

	doRequest(mw, "10.0.0.1")
	doRequest(mw, "10.0.0.1")
	rec := doRequest(mw, "10.0.0.1")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimitIsPerClient(t *testing.T) {
	mw, cleanup := setupLimiter(t, 1)
	defer cleanup()

	assert.Equal(t, http.StatusOK, doRequest(mw, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, doRequest(mw, "10.0.0.2").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(mw, "10.0.0.1").Code)
}

func TestRateLimitDisabledWithoutRedis(t *testing.T) {
	mw := RateLimitMiddleware(RateLimitConfig{DefaultRPS: 1})

	assert.Equal(t, http.StatusOK, doRequest(mw, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, doRequest(mw, "10.0.0.1").Code)
}
