package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/carelink/notify-gateway/internal/metrics"
	"github.com/carelink/notify-gateway/internal/model"
	"github.com/carelink/notify-gateway/internal/repository"
	"github.com/carelink/notify-gateway/internal/util"
	"github.com/jmoiron/sqlx"
)

// Topic names shared across the pipeline.
const (
	KafkaTopicEvents       = "notification.events" // outbox target
	KafkaTopicDLQ          = "notification.dlq"    // dead-letter channel
	KafkaTopicGamification = "gamification.events" // inbound badge events
	MQTTTopicNotifications = "notification/events" // fan-out to dashboard/mobile
	MQTTTopicGamification  = "gamification/events" // inbound badge events (bus)
)

// Service owns the durability boundary: Enqueue returns once the event row
// is committed, and everything downstream is eventual.
type Service struct {
	db     *sqlx.DB
	outbox repository.OutboxRepository
}

func New(db *sqlx.DB, outboxRepo repository.OutboxRepository) *Service {
	return &Service{db: db, outbox: outboxRepo}
}

// Enqueue appends a durable event row and returns its id. The caller only
// sees an error when the append itself fails; broker publication is
// retried in the background.
func (s *Service) Enqueue(ctx context.Context, eventType string, payload any) (string, error) {
	return s.EnqueueInTx(ctx, nil, eventType, payload)
}

// EnqueueInTx is Enqueue inside the caller's transaction, so domain writes
// and the outbox row commit atomically.
func (s *Service) EnqueueInTx(ctx context.Context, tx *sqlx.Tx, eventType string, payload any) (string, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	ev := model.Event{
		ID:        util.New(),
		EventType: eventType,
		Payload:   raw,
	}
	if err := s.outbox.Insert(ctx, tx, ev); err != nil {
		return "", fmt.Errorf("insert outbox: %w", err)
	}

	metrics.OutboxEventsTotal.WithLabelValues("enqueued").Inc()

	return ev.ID, nil
}

// DB exposes the underlying handle for callers that need to wrap Enqueue
// with their own writes in one transaction.
func (s *Service) DB() *sqlx.DB { return s.db }

func marshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return p, nil
	default:
		return json.Marshal(payload)
	}
}
