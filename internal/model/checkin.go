package model

import "time"

// CheckIn is an append-only daily check-in record.
type CheckIn struct {
	UserID    string    `db:"user_id" json:"userId"`
	Mood      string    `db:"mood" json:"mood"`
	CreatedAt time.Time `db:"created_at" json:"timestamp"`
}
