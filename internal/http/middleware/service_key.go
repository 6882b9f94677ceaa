package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
)

// ServiceKeyMiddleware authenticates the internal CRUD layer using the
// X-Service-Key header. An empty configured key disables the check (dev).
func ServiceKeyMiddleware(serviceKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if serviceKey == "" {
				return next(c)
			}
			key := strings.TrimSpace(c.Request().Header.Get("X-Service-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing service key"})
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(serviceKey)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid service key"})
			}
			return next(c)
		}
	}
}
