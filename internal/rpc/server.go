// Package rpc is the internal query facade other backend services call.
// It speaks JSON over HTTP on its own listener; every response carries an
// ok flag, and absence (unknown user, no tokens) is a 200 with ok=false
// rather than a transport error.
package rpc

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/carelink/notify-gateway/internal/model"
	"github.com/carelink/notify-gateway/internal/repository"
	"github.com/carelink/notify-gateway/internal/service/events"
	echo "github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type Server struct {
	e *echo.Echo
}

func NewServer(
	eventsSvc *events.Service,
	users repository.UsersRepository,
	tokens repository.DeviceTokensRepository,
	checkins repository.CheckInsRepository,
	logger *zap.Logger,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover())

	s := &srv{
		events:   eventsSvc,
		users:    users,
		tokens:   tokens,
		checkins: checkins,
		log:      logger,
	}

	e.POST("/rpc/PublishEvent", s.publishEvent)
	e.POST("/rpc/GetUser", s.getUser)
	e.POST("/rpc/GetDeviceTokens", s.getDeviceTokens)
	e.POST("/rpc/GetCheckIns", s.getCheckIns)
	e.POST("/rpc/HealthCheck", s.healthCheck)

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("rpc: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

type srv struct {
	events   *events.Service
	users    repository.UsersRepository
	tokens   repository.DeviceTokensRepository
	checkins repository.CheckInsRepository
	log      *zap.Logger
}

type publishEventReq struct {
	EventType string         `json:"eventType"`
	Payload   map[string]any `json:"payload"`
}

func (s *srv) publishEvent(c echo.Context) error {
	var req publishEventReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusOK, map[string]any{"ok": false, "message": "bad request"})
	}
	req.EventType = strings.TrimSpace(req.EventType)
	if req.EventType == "" {
		return c.JSON(http.StatusOK, map[string]any{"ok": false, "message": "eventType required"})
	}
	if req.Payload == nil {
		req.Payload = map[string]any{}
	}

	eventID, err := s.events.Enqueue(c.Request().Context(), req.EventType, req.Payload)
	if err != nil {
		s.log.Error("rpc publish event failed", zap.Error(err))
		return c.JSON(http.StatusOK, map[string]any{"ok": false, "message": "store failure"})
	}

	return c.JSON(http.StatusOK, map[string]any{"ok": true, "eventId": eventID})
}

type userIDReq struct {
	UserID string `json:"userId"`
}

func (s *srv) getUser(c echo.Context) error {
	var req userIDReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		return c.JSON(http.StatusOK, map[string]any{"ok": false, "message": "userId required"})
	}

	u, err := s.users.Get(c.Request().Context(), strings.TrimSpace(req.UserID))
	if err != nil {
		s.log.Error("rpc get user failed", zap.Error(err))
		return c.JSON(http.StatusOK, map[string]any{"ok": false, "message": "store failure"})
	}
	if u == nil {
		return c.JSON(http.StatusOK, map[string]any{"ok": false, "message": "user not found"})
	}

	resp := map[string]any{"ok": true, "user": u}
	if u.LastCheckInAt.Valid {
		resp["lastCheckInAt"] = u.LastCheckInAt.Time
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *srv) getDeviceTokens(c echo.Context) error {
	var req userIDReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		return c.JSON(http.StatusOK, map[string]any{"ok": false, "message": "userId required"})
	}

	list, err := s.tokens.ListActiveByUser(c.Request().Context(), strings.TrimSpace(req.UserID))
	if err != nil {
		s.log.Error("rpc get device tokens failed", zap.Error(err))
		return c.JSON(http.StatusOK, map[string]any{"ok": false, "message": "store failure"})
	}
	if len(list) == 0 {
		return c.JSON(http.StatusOK, map[string]any{"ok": false, "message": "no active tokens"})
	}

	return c.JSON(http.StatusOK, map[string]any{"ok": true, "tokens": list})
}

type checkInsReq struct {
	UserID string `json:"userId"`
	Limit  int    `json:"limit"`
}

func (s *srv) getCheckIns(c echo.Context) error {
	var req checkInsReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		return c.JSON(http.StatusOK, map[string]any{"ok": false, "message": "userId required"})
	}

	list, err := s.checkins.ListRecent(c.Request().Context(), strings.TrimSpace(req.UserID), req.Limit)
	if err != nil {
		s.log.Error("rpc get check-ins failed", zap.Error(err))
		return c.JSON(http.StatusOK, map[string]any{"ok": false, "message": "store failure"})
	}
	if list == nil {
		list = []model.CheckIn{}
	}

	return c.JSON(http.StatusOK, map[string]any{"ok": true, "checkIns": list})
}

func (s *srv) healthCheck(c echo.Context) error {
	if err := s.events.DB().PingContext(c.Request().Context()); err != nil {
		return c.JSON(http.StatusOK, map[string]any{"ok": false, "message": "mysql unreachable"})
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}
