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
	"github.com/carelink/notify-gateway/internal/logger"
	"github.com/carelink/notify-gateway/internal/metrics"
	"github.com/carelink/notify-gateway/internal/repository"
	"github.com/carelink/notify-gateway/internal/scheduler"
	"github.com/carelink/notify-gateway/internal/service/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the missed check-in scheduler",
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

		// 3) sweeper
		eventsSvc := events.New(dbx, repository.NewOutboxRepository(dbx))
		sw := scheduler.NewSweeper(
			repository.NewUsersRepository(dbx),
			repository.NewCheckInsRepository(dbx),
			repository.NewRelationshipsRepository(dbx),
			eventsSvc,
			zlog,
		)
		if cfg.Scheduler.SweepPeriod > 0 {
			sw.SweepPeriod = cfg.Scheduler.SweepPeriod
		}
		if cfg.Scheduler.GraceWindow > 0 {
			sw.GraceWindow = cfg.Scheduler.GraceWindow
		}

		// 4) graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf(">> scheduler started sweep=%s grace=%s", sw.SweepPeriod, sw.GraceWindow)

		if err := sw.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}
