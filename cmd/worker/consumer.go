package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carelink/notify-gateway/internal/config"
	"github.com/carelink/notify-gateway/internal/consumer"
	"github.com/carelink/notify-gateway/internal/db"
	"github.com/carelink/notify-gateway/internal/hub"
	"github.com/carelink/notify-gateway/internal/kafka"
	"github.com/carelink/notify-gateway/internal/logger"
	"github.com/carelink/notify-gateway/internal/metrics"
	"github.com/carelink/notify-gateway/internal/mqtt"
	"github.com/carelink/notify-gateway/internal/push"
	"github.com/carelink/notify-gateway/internal/repository"
	"github.com/carelink/notify-gateway/internal/service/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var consumerCmd = &cobra.Command{
	Use:   "consumer",
	Short: "Run the event consumers (relay + gamification + push delivery)",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		metrics.MustRegister(prometheus.DefaultRegisterer)

		zlog := logger.New(cfg.Log.Level)
		defer func() { _ = zlog.Sync() }()

		// 2) stores
		dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer dbx.Close()

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

		dedupRepo := repository.NewProcessedMessagesRepository(dbx)
		auditRepo := repository.NewNotificationEventsRepository(dbx)
		tokensRepo := repository.NewDeviceTokensRepository(dbx)
		outboxRepo := repository.NewOutboxRepository(dbx)
		chDeliveriesRepo := repository.NewCHDeliveriesRepository(chDB)

		eventsSvc := events.New(dbx, outboxRepo)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// 3) push gateways
		deliverer, err := buildDeliverer(ctx, cfg, tokensRepo, chDeliveriesRepo, zlog)
		if err != nil {
			return err
		}

		// 4) MQTT bus
		busClient, err := mqtt.NewClient(mqtt.Config{
			BrokerURL:      cfg.MQTT.BrokerURL,
			ClientID:       cfg.MQTT.ClientID + "-consumer",
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
		}, zlog)
		if err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		defer busClient.Close()

		// 5) consumers
		groupID := cfg.Kafka.GroupID
		if groupID == "" {
			groupID = "notify-gateway"
		}

		eventsConsumer := kafka.NewConsumerFromConfig(kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          events.KafkaTopicEvents,
			GroupID:        groupID + "-relay",
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		})
		defer eventsConsumer.Close()

		gamificationConsumer := kafka.NewConsumerFromConfig(kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          events.KafkaTopicGamification,
			GroupID:        groupID + "-gamification",
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		})
		defer gamificationConsumer.Close()

		// A nil *Deliverer must stay a nil interface inside the relay.
		var pushDeliverer consumer.PushDeliverer
		if deliverer != nil {
			pushDeliverer = deliverer
		}

		relay := consumer.NewRelay(eventsConsumer, dedupRepo, auditRepo, busClient, hub.New(zlog), pushDeliverer, zlog)
		gamification := consumer.NewGamification(eventsSvc, dedupRepo, auditRepo, zlog)

		if err := gamification.SubscribeBus(ctx, busClient); err != nil {
			return fmt.Errorf("subscribe gamification bus: %w", err)
		}

		log.Printf(">> consumer started group=%s fallback=%v", groupID, cfg.Push.FallbackEnabled)

		errCh := make(chan error, 2)
		go func() { errCh <- relay.Run(ctx) }()
		go func() { errCh <- gamification.RunKafka(ctx, gamificationConsumer) }()

		select {
		case <-ctx.Done():
			zlog.Info("signal received, shutting down")
		case err := <-errCh:
			if err != nil && ctx.Err() == nil {
				return err
			}
		}
		return nil
	},
}

// buildDeliverer assembles the push pipeline: FCM Admin SDK primary, HTTP
// v1 fallback behind a breaker when enabled. No credentials means no push
// (dashboard-only deployments).
func buildDeliverer(
	ctx context.Context,
	cfg config.Config,
	tokens repository.DeviceTokensRepository,
	audit repository.CHDeliveriesRepository,
	zlog *zap.Logger,
) (*push.Deliverer, error) {
	if cfg.Push.CredentialsFile == "" {
		zlog.Warn("push credentials not configured, push delivery disabled")
		return nil, nil
	}

	primary, err := push.NewFCMGateway(ctx, cfg.Push.CredentialsFile, cfg.Push.SendTimeout)
	if err != nil {
		return nil, fmt.Errorf("fcm gateway: %w", err)
	}

	var fallback push.Gateway
	if cfg.Push.FallbackEnabled {
		g, err := push.NewHTTPv1Gateway(
			ctx,
			cfg.Push.CredentialsFile,
			cfg.Push.ProjectID,
			cfg.Push.FallbackHost,
			cfg.Push.SendTimeout,
			cfg.Push.Breaker.FailThreshold,
			time.Duration(cfg.Push.Breaker.OpenForMs)*time.Millisecond,
		)
		if err != nil {
			return nil, fmt.Errorf("fcm httpv1 gateway: %w", err)
		}
		fallback = g
	}

	d := push.NewDeliverer(tokens, primary, fallback, audit, zlog)
	if cfg.Push.PropagationDelay > 0 {
		d.PropagationDelay = cfg.Push.PropagationDelay
	}
	return d, nil
}
