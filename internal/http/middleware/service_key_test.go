package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func callWithKey(configured, sent string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if sent != "" {
		req.Header.Set("X-Service-Key", sent)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := ServiceKeyMiddleware(configured)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	_ = handler(c)
	return rec
}

func TestServiceKeyAccepted(t *testing.T) {
	rec := callWithKey("secret", "secret")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServiceKeyRejected(t *testing.T) {
	rec := callWithKey("secret", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServiceKeyMissing(t *testing.T) {
	rec := callWithKey("secret", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServiceKeyDisabledInDev(t *testing.T) {
	rec := callWithKey("", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
