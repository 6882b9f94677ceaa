package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carelink/notify-gateway/internal/config"
	"github.com/carelink/notify-gateway/internal/db"
	"github.com/carelink/notify-gateway/internal/hub"
	httpSrv "github.com/carelink/notify-gateway/internal/http"
	"github.com/carelink/notify-gateway/internal/logger"
	"github.com/carelink/notify-gateway/internal/model"
	"github.com/carelink/notify-gateway/internal/mqtt"
	"github.com/carelink/notify-gateway/internal/repository"
	rpcSrv "github.com/carelink/notify-gateway/internal/rpc"
	"github.com/carelink/notify-gateway/internal/service/events"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP API, RPC facade and dashboard relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		zlog := logger.New(cfg.Log.Level)
		defer func() { _ = zlog.Sync() }()

		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		redisClient, err := db.NewRedisClient(db.RedisOpts{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer func() { _ = redisClient.Close() }()

		chDB, err := db.NewClickHouseConnection(db.ClickHouseOpts{
			DSN:             cfg.ClickHouse.DSN,
			MaxOpenConns:    cfg.ClickHouse.MaxOpenConns,
			MaxIdleConns:    cfg.ClickHouse.MaxIdleConns,
			ConnMaxLifetime: cfg.ClickHouse.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ClickHouse.ConnMaxIdleTime,
			PingTimeout:     cfg.ClickHouse.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer func() { _ = chDB.Close() }()

		liveHub := hub.New(zlog)

		server := httpSrv.NewServer(cfg, mysqlDB, chDB, redisClient, liveHub)

		outboxRepo := repository.NewOutboxRepository(mysqlDB)
		usersRepo := repository.NewUsersRepository(mysqlDB)
		tokensRepo := repository.NewDeviceTokensRepository(mysqlDB)
		checkinsRepo := repository.NewCheckInsRepository(mysqlDB)
		eventsSvc := events.New(mysqlDB, outboxRepo)

		rpcServer := rpcSrv.NewServer(eventsSvc, usersRepo, tokensRepo, checkinsRepo, zlog)

		// The SSE hub is fed from the MQTT fan-out topic, not from Kafka:
		// the relay worker owns the dedup gate on the events topic, and the
		// bus is exactly the channel meant for live listeners.
		busClient, err := mqtt.NewClient(mqtt.Config{
			BrokerURL:      cfg.MQTT.BrokerURL,
			ClientID:       cfg.MQTT.ClientID + "-serve",
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
		}, zlog)
		if err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		defer busClient.Close()

		err = busClient.Subscribe(events.MQTTTopicNotifications, func(_ string, payload []byte) {
			var env model.Envelope
			if err := json.Unmarshal(payload, &env); err != nil {
				zlog.Warn("dropping malformed bus message", zap.Error(err))
				return
			}
			liveHub.Publish(env)
		})
		if err != nil {
			return fmt.Errorf("mqtt subscribe: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 2)
		go func() { errCh <- server.Start(cfg.HTTP.Addr) }()
		go func() { errCh <- rpcServer.Start(cfg.RPC.Addr) }()

		select {
		case <-ctx.Done():
			zlog.Info("signal received, shutting down")
		case err := <-errCh:
			if err != nil {
				zlog.Error("server exited", zap.Error(err))
			}
		}

		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shCtx)
		_ = rpcServer.Shutdown(shCtx)
		log.Println("shutdown complete")

		return nil
	},
}
