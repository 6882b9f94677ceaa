// Package consumer receives events from the brokers, deduplicates them at
// the boundary, persists the audit trail, and routes them onward.
package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/carelink/notify-gateway/internal/hub"
	"github.com/carelink/notify-gateway/internal/kafka"
	"github.com/carelink/notify-gateway/internal/metrics"
	"github.com/carelink/notify-gateway/internal/model"
	"github.com/carelink/notify-gateway/internal/push"
	"github.com/carelink/notify-gateway/internal/repository"
	"github.com/carelink/notify-gateway/internal/service/events"
	"go.uber.org/zap"
)

// KafkaConsumer is the fetch/commit surface of the log-structured broker.
type KafkaConsumer interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// BusPublisher is the publish side of the pub/sub bus (*mqtt.Client).
type BusPublisher interface {
	Publish(topic string, payload []byte) error
}

// PushDeliverer hands eligible events to the push subsystem.
type PushDeliverer interface {
	Deliver(ctx context.Context, env model.Envelope) (push.Report, error)
}

// Relay consumes the outbox target topic and fans events out: MQTT bus,
// in-process hub, audit log, and push delivery. Consumption is
// at-least-once; the dedup gate collapses redeliveries.
type Relay struct {
	consumer KafkaConsumer
	dedup    repository.ProcessedMessagesRepository
	audit    repository.NotificationEventsRepository
	bus      BusPublisher
	hub      *hub.Hub
	push     PushDeliverer
	log      *zap.Logger
}

func NewRelay(
	consumer KafkaConsumer,
	dedup repository.ProcessedMessagesRepository,
	audit repository.NotificationEventsRepository,
	bus BusPublisher,
	h *hub.Hub,
	deliverer PushDeliverer,
	log *zap.Logger,
) *Relay {
	return &Relay{
		consumer: consumer,
		dedup:    dedup,
		audit:    audit,
		bus:      bus,
		hub:      h,
		push:     deliverer,
		log:      log,
	}
}

// Run blocks until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopping")
			return ctx.Err()
		default:
		}

		m, err := r.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.Error("kafka fetch failed", zap.Error(err))
			time.Sleep(200 * time.Millisecond)
			continue
		}

		// Committing a later offset would mark this one consumed, so a
		// store failure is retried in place, never skipped.
		if err := retryHandle(ctx, r.log, "relay handle", func() error {
			return r.Handle(ctx, m.Value)
		}); err != nil {
			return err
		}

		if err := r.consumer.Commit(ctx, m); err != nil {
			r.log.Error("kafka commit failed", zap.Error(err))
		}
	}
}

// Handle processes one raw message. A nil return means the message is
// done (processed, duplicate, or malformed-and-dropped) and may be
// committed; an error means the store was unreachable and the caller
// must retry the same message before moving on.
func (r *Relay) Handle(ctx context.Context, value []byte) error {
	var env model.Envelope
	if err := json.Unmarshal(value, &env); err != nil || env.ID == "" {
		// Malformed messages cannot become valid by retrying.
		metrics.ConsumerMessagesTotal.WithLabelValues("malformed", events.KafkaTopicEvents).Inc()
		r.log.Warn("dropping malformed message", zap.Error(err))
		return nil
	}

	claimed, err := r.dedup.Claim(ctx, model.MessageID(env))
	if err != nil {
		return err
	}
	if !claimed {
		metrics.ConsumerMessagesTotal.WithLabelValues("duplicate", events.KafkaTopicEvents).Inc()
		r.log.Debug("duplicate message skipped", zap.String("event_id", env.ID))
		return nil
	}

	if err := r.audit.Insert(ctx, model.NotificationEvent{
		EventID:     env.ID,
		EventType:   env.Type,
		Payload:     env.Payload,
		SourceTopic: events.KafkaTopicEvents,
	}); err != nil {
		// The claim already happened; losing the audit row is preferable
		// to double side effects on redelivery.
		r.log.Error("audit insert failed", zap.String("event_id", env.ID), zap.Error(err))
	}

	// Fan-out to the bus is fire-and-forget: logged and counted, never
	// escalated.
	if err := r.bus.Publish(events.MQTTTopicNotifications, value); err != nil {
		metrics.FanoutDroppedTotal.Inc()
		r.log.Warn("bus fan-out failed", zap.String("event_id", env.ID), zap.Error(err))
	}

	r.hub.Publish(env)

	if r.push != nil {
		rep, err := r.push.Deliver(ctx, env)
		if err != nil {
			r.log.Warn("push delivery failed", zap.String("event_id", env.ID), zap.Error(err))
		} else if rep.Attempted > 0 {
			r.log.Info("push delivery report",
				zap.String("event_id", env.ID),
				zap.String("user_id", rep.UserID),
				zap.Int("sent", rep.Sent),
				zap.Int("fallback_sent", rep.FallbackSent),
				zap.Int("failed", rep.Failed),
				zap.Int("revoked", rep.Revoked))
		}
	}

	metrics.ConsumerMessagesTotal.WithLabelValues("processed", events.KafkaTopicEvents).Inc()
	return nil
}
