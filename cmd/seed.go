package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/carelink/notify-gateway/internal/config"
	"github.com/carelink/notify-gateway/internal/db"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo users and care relationships",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// 2) connect MySQL
		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Println(">> Seeding demo users...")

		if err := seedUsers(sqlDB); err != nil {
			return err
		}
		if err := seedRelationships(sqlDB); err != nil {
			return err
		}
		if err := seedDeviceTokens(sqlDB); err != nil {
			return err
		}

		log.Println(">> Seed completed ✅")
		return nil
	},
}

type seedUser struct {
	UserID string
	Name   string
	Email  string
}

// seedUsers inserts deterministic demo accounts (idempotent).
func seedUsers(dbx *sqlx.DB) error {
	users := []seedUser{
		{UserID: "senior-margaret", Name: "Margaret Hale", Email: "margaret@example.com"},
		{UserID: "senior-arthur", Name: "Arthur Pembroke", Email: "arthur@example.com"},
		{UserID: "senior-unlinked", Name: "Edith Calloway", Email: "edith@example.com"},
		{UserID: "care-rose", Name: "Rose Hale", Email: "rose@example.com"},
		{UserID: "care-daniel", Name: "Daniel Pembroke", Email: "daniel@example.com"},
	}

	// idempotent upsert based on user_id (UNIQUE)
	const q = `
INSERT INTO users (user_id, name, email, created_at)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    name  = VALUES(name),
    email = VALUES(email)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	for _, u := range users {
		if _, err := tx.Exec(q, u.UserID, u.Name, u.Email, now); err != nil {
			return fmt.Errorf("insert user %q: %w", u.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit users: %w", err)
	}
	return nil
}

// seedRelationships links caregivers to the seniors they monitor.
// senior-unlinked deliberately has no caregiver so the dashboard-only
// alert path is exercisable out of the box.
func seedRelationships(dbx *sqlx.DB) error {
	links := [][3]string{
		{"senior-margaret", "care-rose", "daughter"},
		{"senior-arthur", "care-daniel", "son"},
		{"senior-arthur", "care-rose", "neighbor"},
	}

	const q = `
INSERT IGNORE INTO relationships (senior_id, link_acc_id, relation)
VALUES (?, ?, ?)
`
	for _, l := range links {
		if _, err := dbx.Exec(q, l[0], l[1], l[2]); err != nil {
			return fmt.Errorf("insert relationship %s->%s: %w", l[0], l[1], err)
		}
	}
	return nil
}

// seedDeviceTokens registers one fake token per caregiver for local
// push-path testing against an FCM emulator.
func seedDeviceTokens(dbx *sqlx.DB) error {
	tokens := [][3]string{
		{"care-rose", "demo-token-rose-android", "android"},
		{"care-daniel", "demo-token-daniel-ios", "ios"},
	}

	const q = `
INSERT INTO device_tokens (user_id, token, platform, created_at, last_seen_at, revoked)
VALUES (?, ?, ?, NOW(), NOW(), FALSE)
ON DUPLICATE KEY UPDATE
    user_id      = VALUES(user_id),
    platform     = VALUES(platform),
    last_seen_at = NOW(),
    revoked      = FALSE
`
	for _, t := range tokens {
		if _, err := dbx.Exec(q, t[0], t[1], t[2]); err != nil {
			return fmt.Errorf("insert device token for %q: %w", t[0], err)
		}
	}
	return nil
}
