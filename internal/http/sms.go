package http

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/carelink/notify-gateway/internal/model"
	"github.com/carelink/notify-gateway/internal/service/events"
	"github.com/carelink/notify-gateway/internal/util"
	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type smsReq struct {
	UserID string `json:"userId"`
	Phone  string `json:"phone"`
	Text   string `json:"text"`
}

type smsPayload struct {
	UserID string   `json:"userId"`
	Phone  string   `json:"phone"`
	Body   string   `json:"body"`
	Title  string   `json:"title,omitempty"`
	Target []string `json:"target"`
}

// sendSMSHandler queues an outbound wellbeing message. urgent routes the
// event at mobile devices as well and carries an urgent title.
func sendSMSHandler(eventsSvc *events.Service, urgent bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req smsReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		// Normalize
		req.UserID = strings.TrimSpace(req.UserID)
		req.Phone = util.NormalizePhone(strings.TrimSpace(req.Phone))
		req.Text = strings.TrimSpace(req.Text)

		// Basic validation
		if req.UserID == "" || req.Phone == "" || req.Text == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		if utf8.RuneCountInString(req.Text) > 300 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "text too long"})
		}

		eventType := model.EventTypeSMS
		payload := smsPayload{
			UserID: req.UserID,
			Phone:  req.Phone,
			Body:   req.Text,
			Target: []string{model.TargetDashboard},
		}
		if urgent {
			eventType = model.EventTypeUrgentSMS
			payload.Title = "Urgent wellbeing alert"
			payload.Target = []string{model.TargetDashboard, model.TargetMobile}
		}

		eventID, err := eventsSvc.Enqueue(c.Request().Context(), eventType, payload)
		if err != nil {
			log.Errorf("enqueue %s failed: %v", eventType, err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusAccepted, map[string]any{
			"queued":  true,
			"eventId": eventID,
			"type":    eventType,
		})
	}
}
