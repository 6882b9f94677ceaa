package model

import (
	"database/sql"
	"time"
)

// User is the local projection of a monitored account. LastReminderAt is
// the per-day throttle anchor for the missed check-in scheduler.
type User struct {
	UserID         string       `db:"user_id" json:"userId"`
	Name           string       `db:"name" json:"name"`
	Email          string       `db:"email" json:"email"`
	LastCheckInAt  sql.NullTime `db:"last_check_in_at" json:"-"`
	LastReminderAt sql.NullTime `db:"last_reminder_at" json:"-"`
	CreatedAt      time.Time    `db:"created_at" json:"createdAt"`
}
