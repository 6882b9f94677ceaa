package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/carelink/notify-gateway/internal/config"
	"github.com/carelink/notify-gateway/internal/hub"
	"github.com/carelink/notify-gateway/internal/http/middleware"
	"github.com/carelink/notify-gateway/internal/metrics"
	"github.com/carelink/notify-gateway/internal/repository"
	"github.com/carelink/notify-gateway/internal/service/events"
	"github.com/jmoiron/sqlx"
	echo "github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client, liveHub *hub.Hub) *Server {
	// repos (MySQL)
	outboxRepo := repository.NewOutboxRepository(mysqlDB)
	checkinsRepo := repository.NewCheckInsRepository(mysqlDB)
	usersRepo := repository.NewUsersRepository(mysqlDB)
	tokensRepo := repository.NewDeviceTokensRepository(mysqlDB)
	notifEventsRepo := repository.NewNotificationEventsRepository(mysqlDB)

	// repos (ClickHouse)
	chDeliveriesRepo := repository.NewCHDeliveriesRepository(clickhouseDB)

	// services
	eventsSvc := events.New(mysqlDB, outboxRepo)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.ServiceKeyMiddleware(cfg.HTTP.ServiceKey)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		DefaultRPS:     cfg.RateLimit.RPS,
		KeyPrefix:      "rl:ip:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes, consumed by the internal CRUD layer
	g := e.Group("", authMW)
	g.POST("/checkin", checkinHandler(mysqlDB, checkinsRepo, usersRepo, eventsSvc))
	g.POST("/daily-login", dailyLoginHandler(eventsSvc))
	g.POST("/send-sms", sendSMSHandler(eventsSvc, false))
	g.POST("/send-urgent-sms", sendSMSHandler(eventsSvc, true), rlMW)
	g.POST("/save-device-token", saveDeviceTokenHandler(tokensRepo))

	g.GET("/dashboard/stream", dashboardStreamHandler(liveHub))
	g.GET("/dashboard/history", dashboardHistoryHandler(notifEventsRepo))
	g.POST("/dashboard/events/:id/read", markReadHandler(notifEventsRepo))

	g.GET("/reports/deliveries", listDeliveriesHandler(chDeliveriesRepo))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
