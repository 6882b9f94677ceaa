package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/carelink/notify-gateway/internal/hub"
	"github.com/carelink/notify-gateway/internal/repository"
	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// dashboardStreamHandler serves the live event feed over SSE. A slow
// client drops events rather than stalling the hub; /dashboard/history
// is the catch-up path.
func dashboardStreamHandler(h *hub.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		w := c.Response()
		w.Header().Set(echo.HeaderContentType, "text/event-stream")
		w.Header().Set(echo.HeaderCacheControl, "no-cache")
		w.Header().Set(echo.HeaderConnection, "keep-alive")
		w.WriteHeader(http.StatusOK)
		w.Flush()

		ch, cancel := h.Subscribe(32)
		defer cancel()

		ctx := c.Request().Context()
		for {
			select {
			case <-ctx.Done():
				return nil
			case env, ok := <-ch:
				if !ok {
					return nil
				}
				data, err := json.Marshal(env)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Type, data); err != nil {
					return nil
				}
				w.Flush()
			}
		}
	}
}

func dashboardHistoryHandler(events repository.NotificationEventsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		page, _ := strconv.Atoi(c.QueryParam("page"))

		rows, err := events.ListPage(c.Request().Context(), limit, page)
		if err != nil {
			log.Errorf("list notification history failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"events": rows,
			"count":  len(rows),
		})
	}
}

type markReadReq struct {
	UserID string `json:"userId"`
}

func markReadHandler(events repository.NotificationEventsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		eventID := strings.TrimSpace(c.Param("id"))
		var req markReadReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		req.UserID = strings.TrimSpace(req.UserID)
		if eventID == "" || req.UserID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "id and userId required"})
		}

		if err := events.AppendReadBy(c.Request().Context(), eventID, req.UserID); err != nil {
			log.Errorf("mark read failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, map[string]any{"marked": true})
	}
}
