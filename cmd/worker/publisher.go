package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/carelink/notify-gateway/internal/config"
	"github.com/carelink/notify-gateway/internal/db"
	"github.com/carelink/notify-gateway/internal/kafka"
	"github.com/carelink/notify-gateway/internal/logger"
	"github.com/carelink/notify-gateway/internal/metrics"
	"github.com/carelink/notify-gateway/internal/outbox"
	"github.com/carelink/notify-gateway/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var publisherCmd = &cobra.Command{
	Use:   "publisher",
	Short: "Run the outbox publisher (outbox rows -> Kafka)",
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

		// 2) DB connection (MySQL)
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

		// 3) kafka producer
		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()

		// 4) publisher loop
		pub := outbox.NewPublisher(repository.NewOutboxRepository(dbx), producer, zlog)
		if cfg.Outbox.PollInterval > 0 {
			pub.PollInterval = cfg.Outbox.PollInterval
		}
		if cfg.Outbox.BatchSize > 0 {
			pub.BatchSize = cfg.Outbox.BatchSize
		}
		if cfg.Outbox.MaxAttempts > 0 {
			pub.MaxAttempts = cfg.Outbox.MaxAttempts
		}

		// 5) graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf(">> outbox publisher started poll=%s batch=%d maxAttempts=%d",
			pub.PollInterval, pub.BatchSize, pub.MaxAttempts)

		if err := pub.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}
