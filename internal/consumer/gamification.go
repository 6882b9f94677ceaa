package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/carelink/notify-gateway/internal/metrics"
	"github.com/carelink/notify-gateway/internal/model"
	"github.com/carelink/notify-gateway/internal/repository"
	"github.com/carelink/notify-gateway/internal/service/events"
	"go.uber.org/zap"
)

// Enqueuer re-enters translated events into the pipeline at the
// durability boundary (*events.Service).
type Enqueuer interface {
	Enqueue(ctx context.Context, eventType string, payload any) (string, error)
}

// Gamification consumes badge events from both bus flavors (MQTT topic
// and Kafka topic) and translates awards into notification events.
type Gamification struct {
	enq   Enqueuer
	dedup repository.ProcessedMessagesRepository
	audit repository.NotificationEventsRepository
	log   *zap.Logger
}

func NewGamification(
	enq Enqueuer,
	dedup repository.ProcessedMessagesRepository,
	audit repository.NotificationEventsRepository,
	log *zap.Logger,
) *Gamification {
	return &Gamification{enq: enq, dedup: dedup, audit: audit, log: log}
}

// HandleMessage processes one inbound badge message from sourceTopic.
// Same semantics as Relay.Handle: nil means done, error means retryable
// store failure.
func (g *Gamification) HandleMessage(ctx context.Context, sourceTopic string, value []byte) error {
	var env model.Envelope
	if err := json.Unmarshal(value, &env); err != nil || env.ID == "" {
		metrics.ConsumerMessagesTotal.WithLabelValues("malformed", sourceTopic).Inc()
		g.log.Warn("dropping malformed gamification message",
			zap.String("topic", sourceTopic), zap.Error(err))
		return nil
	}

	claimed, err := g.dedup.Claim(ctx, model.MessageID(env))
	if err != nil {
		return err
	}
	if !claimed {
		metrics.ConsumerMessagesTotal.WithLabelValues("duplicate", sourceTopic).Inc()
		return nil
	}

	if env.Type == model.EventTypeBadgeAwarded {
		payload := retarget(env.Payload)
		if _, err := g.enq.Enqueue(ctx, model.EventTypeBadgeNotification, payload); err != nil {
			g.log.Error("badge translation enqueue failed",
				zap.String("event_id", env.ID), zap.Error(err))
		}
	}

	if err := g.audit.Insert(ctx, model.NotificationEvent{
		EventID:     env.ID,
		EventType:   env.Type,
		Payload:     env.Payload,
		SourceTopic: sourceTopic,
	}); err != nil {
		g.log.Error("audit insert failed", zap.String("event_id", env.ID), zap.Error(err))
	}

	metrics.ConsumerMessagesTotal.WithLabelValues("processed", sourceTopic).Inc()
	return nil
}

// RunKafka consumes the Kafka flavor of the gamification stream until ctx
// is cancelled.
func (g *Gamification) RunKafka(ctx context.Context, consumer KafkaConsumer) error {
	for {
		select {
		case <-ctx.Done():
			g.log.Info("gamification consumer stopping")
			return ctx.Err()
		default:
		}

		m, err := consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.log.Error("kafka fetch failed", zap.Error(err))
			time.Sleep(200 * time.Millisecond)
			continue
		}

		// Same contract as the relay: never commit past a message whose
		// store writes did not land.
		if err := retryHandle(ctx, g.log, "gamification handle", func() error {
			return g.HandleMessage(ctx, events.KafkaTopicGamification, m.Value)
		}); err != nil {
			return err
		}

		if err := consumer.Commit(ctx, m); err != nil {
			g.log.Error("kafka commit failed", zap.Error(err))
		}
	}
}

// BusSubscriber is the subscribe side of the pub/sub bus (*mqtt.Client).
type BusSubscriber interface {
	Subscribe(topic string, handler func(topic string, payload []byte)) error
}

// SubscribeBus attaches the MQTT flavor of the gamification stream. The
// client acks the publish as soon as the handler returns, so a retryable
// store failure has to be resolved inside the handler; it cannot be left
// to the broker session.
func (g *Gamification) SubscribeBus(ctx context.Context, bus BusSubscriber) error {
	return bus.Subscribe(events.MQTTTopicGamification, func(topic string, payload []byte) {
		if err := retryHandle(ctx, g.log, "gamification bus handle", func() error {
			return g.HandleMessage(ctx, topic, payload)
		}); err != nil {
			g.log.Error("gamification bus message abandoned at shutdown",
				zap.String("topic", topic), zap.Error(err))
		}
	})
}

// retarget makes sure a translated badge notification is addressed at the
// dashboard and mobile targets when the producer left them unset.
func retarget(raw json.RawMessage) json.RawMessage {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return raw
	}
	if _, ok := m["target"]; !ok {
		m["target"] = []string{model.TargetDashboard, model.TargetMobile}
	}
	out, err := json.Marshal(m)
	if err != nil {
		return raw
	}
	return out
}
