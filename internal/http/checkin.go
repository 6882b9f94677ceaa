package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/carelink/notify-gateway/internal/model"
	"github.com/carelink/notify-gateway/internal/repository"
	"github.com/carelink/notify-gateway/internal/service/events"
	"github.com/jmoiron/sqlx"
	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type checkinReq struct {
	UserID string `json:"userId"`
	Mood   string `json:"mood"`
}

type checkinPayload struct {
	UserID string   `json:"userId"`
	Mood   string   `json:"mood"`
	Target []string `json:"target"`
}

// checkinHandler records a daily check-in and queues the event, all in
// one transaction: the projection update and the outbox row commit
// together.
func checkinHandler(db *sqlx.DB, checkins repository.CheckInsRepository, users repository.UsersRepository, eventsSvc *events.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req checkinReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		req.UserID = strings.TrimSpace(req.UserID)
		req.Mood = strings.TrimSpace(req.Mood)
		if req.UserID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "userId required"})
		}
		if req.Mood == "" {
			req.Mood = "okay"
		}

		ctx := c.Request().Context()
		now := time.Now()

		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		defer func() { _ = tx.Rollback() }()

		if err := checkins.Insert(ctx, tx, model.CheckIn{UserID: req.UserID, Mood: req.Mood, CreatedAt: now}); err != nil {
			log.Errorf("insert checkin failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		if err := users.SetLastCheckIn(ctx, tx, req.UserID, now); err != nil {
			log.Errorf("update last check-in failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		eventID, err := eventsSvc.EnqueueInTx(ctx, tx, model.EventTypeCheckin, checkinPayload{
			UserID: req.UserID,
			Mood:   req.Mood,
			Target: []string{model.TargetDashboard},
		})
		if err != nil {
			log.Errorf("enqueue checkin event failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		if err := tx.Commit(); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusAccepted, map[string]any{
			"queued":  true,
			"eventId": eventID,
		})
	}
}

type dailyLoginReq struct {
	UserID string `json:"userId"`
}

func dailyLoginHandler(eventsSvc *events.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req dailyLoginReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		req.UserID = strings.TrimSpace(req.UserID)
		if req.UserID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "userId required"})
		}

		eventID, err := eventsSvc.Enqueue(c.Request().Context(), model.EventTypeDailyLogin, map[string]any{
			"userId": req.UserID,
			"target": []string{model.TargetDashboard},
		})
		if err != nil {
			log.Errorf("enqueue daily login failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusAccepted, map[string]any{
			"queued":  true,
			"eventId": eventID,
		})
	}
}
