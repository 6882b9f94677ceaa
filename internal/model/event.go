package model

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event type constants used across the pipeline.
const (
	EventTypeCheckin           = "checkin"
	EventTypeDailyLogin        = "daily_login"
	EventTypeSMS               = "sms"
	EventTypeUrgentSMS         = "urgent_sms"
	EventTypeBadgeAwarded      = "badge_awarded"
	EventTypeBadgeNotification = "badge_notification"
	EventTypeMissedCheckin     = "missed_checkin_alert"
)

// Delivery targets carried inside the event payload.
const (
	TargetDashboard = "dashboard"
	TargetMobile    = "mobile"
)

// Event is the outbox row. Rows are never deleted; a row stays
// published=false until the broker publish succeeds or attempts exhaust,
// after which it is marked terminal and a copy goes to the dead-letter topic.
type Event struct {
	ID            string          `db:"id"` // ULID
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	Published     bool            `db:"published"`
	Attempts      int             `db:"attempts"`
	LastError     sql.NullString  `db:"last_error"`
	NextAttemptAt sql.NullTime    `db:"next_attempt_at"`
	CreatedAt     time.Time       `db:"created_at"`
	PublishedAt   sql.NullTime    `db:"published_at"`
}

// Envelope is the wire form published to Kafka and fanned out over MQTT.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// DLQEnvelope wraps an exhausted event row for the dead-letter topic.
type DLQEnvelope struct {
	Type     string `json:"type"` // always "outbox.dlq"
	Original Event  `json:"original"`
}

const DLQEnvelopeType = "outbox.dlq"

// Payload is the decoded view of the fields this pipeline understands.
// The payload itself is opaque and forwarded verbatim; only these keys
// drive routing decisions.
type Payload struct {
	UserID string   `json:"userId,omitempty"`
	Title  string   `json:"title,omitempty"`
	Body   string   `json:"body,omitempty"`
	Mood   string   `json:"mood,omitempty"`
	Target []string `json:"target,omitempty"`
}

// HasTarget reports whether the payload is addressed at the given target.
func (p Payload) HasTarget(name string) bool {
	for _, t := range p.Target {
		if t == name {
			return true
		}
	}
	return false
}

// DecodePayload extracts the routed fields from an envelope payload.
func DecodePayload(raw json.RawMessage) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// MessageID derives the deduplication key for an envelope: the explicit
// event id when present, otherwise type_userId_timestamp.
func MessageID(env Envelope) string {
	if env.ID != "" {
		return env.ID
	}
	p, err := DecodePayload(env.Payload)
	if err != nil {
		p = Payload{}
	}
	return fmt.Sprintf("%s_%s_%d", env.Type, p.UserID, env.CreatedAt.Unix())
}
