package model

import "time"

// ProcessedMessage marks a bus message as handled. The UNIQUE constraint on
// message_id is the whole deduplication mechanism: the insert either claims
// the message or fails with a duplicate-key error.
type ProcessedMessage struct {
	MessageID   string    `db:"message_id"`
	ProcessedAt time.Time `db:"processed_at"`
}
