package http

import (
	"net/http"
	"strings"

	"github.com/carelink/notify-gateway/internal/repository"
	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type saveTokenReq struct {
	UserID   string `json:"userId"`
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

func saveDeviceTokenHandler(tokens repository.DeviceTokensRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req saveTokenReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		req.UserID = strings.TrimSpace(req.UserID)
		req.Token = strings.TrimSpace(req.Token)
		req.Platform = strings.ToLower(strings.TrimSpace(req.Platform))
		if req.UserID == "" || req.Token == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "userId and token required"})
		}
		if req.Platform == "" {
			req.Platform = "android"
		}

		if err := tokens.Upsert(c.Request().Context(), req.UserID, req.Token, req.Platform); err != nil {
			log.Errorf("save device token failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]any{"saved": true})
	}
}
