package model

import (
	"encoding/json"
	"time"
)

// NotificationEvent is the audit record persisted for every inbound bus
// message. Immutable after insert except for read_by appends.
type NotificationEvent struct {
	EventID     string          `db:"event_id" json:"eventId"`
	EventType   string          `db:"event_type" json:"eventType"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	SourceTopic string          `db:"source_topic" json:"sourceTopic"`
	ReceivedAt  time.Time       `db:"received_at" json:"receivedAt"`
	ReadBy      json.RawMessage `db:"read_by" json:"readBy"` // JSON array of user ids
}
