package http

import (
	"net/http"
	"strconv"

	"github.com/carelink/notify-gateway/internal/repository"
	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// listDeliveriesHandler reads the push delivery audit trail out of
// ClickHouse for operator reporting.
func listDeliveriesHandler(deliveries repository.CHDeliveriesRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := c.QueryParam("userId")
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		offset, _ := strconv.Atoi(c.QueryParam("offset"))

		rows, err := deliveries.ListRecent(c.Request().Context(), userID, limit, offset)
		if err != nil {
			log.Errorf("list deliveries failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"deliveries": rows,
			"count":      len(rows),
		})
	}
}
