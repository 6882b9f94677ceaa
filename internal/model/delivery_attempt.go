package model

import "time"

// Delivery attempt outcomes recorded in the ClickHouse audit table.
const (
	DeliverySent         = "sent"
	DeliveryFallbackSent = "fallback_sent"
	DeliveryFailed       = "failed"
	DeliveryRevoked      = "revoked"
)

// DeliveryAttempt is a per-token push delivery audit row (ClickHouse).
type DeliveryAttempt struct {
	EventID     string    `db:"event_id" json:"eventId"`
	UserID      string    `db:"user_id" json:"userId"`
	Token       string    `db:"token" json:"token"`
	Outcome     string    `db:"outcome" json:"outcome"`
	Detail      string    `db:"detail" json:"detail"`
	AttemptedAt time.Time `db:"attempted_at" json:"attemptedAt"`
}
