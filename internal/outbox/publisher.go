// Package outbox implements the publisher half of the outbox pattern: a
// poll loop that moves durable event rows onto the log-structured broker
// with retry, linear backoff, and a dead-letter path for poison rows.
package outbox

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

const (
	backoffStep = 60 * time.Second
	backoffCap  = 15 * time.Minute
)

// Broker is the publish side of the log-structured broker.
// *kafka.Producer satisfies it.
type Broker interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Publisher polls the outbox and republishes pending rows. Retry state
// lives in the rows themselves (next_attempt_at), so it survives restarts.
type Publisher struct {
	repo   repository.OutboxRepository
	broker Broker
	log    *zap.Logger

	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int

	now func() time.Time
}

func NewPublisher(repo repository.OutboxRepository, broker Broker, log *zap.Logger) *Publisher {
	return &Publisher{
		repo:         repo,
		broker:       broker,
		log:          log,
		PollInterval: 2 * time.Second,
		BatchSize:    50,
		MaxAttempts:  5,
		now:          time.Now,
	}
}

// Run blocks until ctx is cancelled, sweeping the outbox every
// PollInterval.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("outbox publisher stopping")
			return ctx.Err()
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *Publisher) sweep(ctx context.Context) {
	rows, err := p.repo.FetchPending(ctx, p.now(), p.BatchSize)
	if err != nil {
		p.log.Error("outbox fetch pending failed", zap.Error(err))
		return
	}

	for _, ev := range rows {
		p.publishOne(ctx, ev)
	}
}

func (p *Publisher) publishOne(ctx context.Context, ev model.Event) {
	env := model.Envelope{
		ID:        ev.ID,
		Type:      ev.EventType,
		Payload:   ev.Payload,
		CreatedAt: ev.CreatedAt,
	}
	value, err := json.Marshal(env)
	if err != nil {
		// Cannot happen for rows we wrote ourselves; close the row so it
		// never wedges the queue.
		p.log.Error("outbox marshal envelope failed", zap.String("id", ev.ID), zap.Error(err))
		p.deadLetter(ctx, ev, "marshal: "+err.Error())
		return
	}

	err = p.broker.Publish(ctx, events.KafkaTopicEvents, []byte(ev.ID), value)
	if err == nil {
		if merr := p.repo.MarkPublished(ctx, ev.ID, p.now()); merr != nil {
			p.log.Error("outbox mark published failed", zap.String("id", ev.ID), zap.Error(merr))
		}
		metrics.OutboxEventsTotal.WithLabelValues("published").Inc()
		return
	}

	attempts := ev.Attempts + 1
	if attempts >= p.MaxAttempts {
		p.deadLetter(ctx, ev, err.Error())
		return
	}

	next := p.now().Add(Backoff(attempts))
	if uerr := p.repo.MarkFailed(ctx, ev.ID, attempts, err.Error(), next); uerr != nil {
		p.log.Error("outbox mark failed failed", zap.String("id", ev.ID), zap.Error(uerr))
		return
	}
	metrics.OutboxEventsTotal.WithLabelValues("retried").Inc()
	p.log.Warn("outbox publish failed, retry scheduled",
		zap.String("id", ev.ID),
		zap.Int("attempts", attempts),
		zap.Time("next_attempt_at", next),
		zap.Error(err))
}

// deadLetter publishes the exhausted row to the dead-letter topic, then
// marks the row terminal regardless of the DLQ publish outcome: a poison
// event must not block the queue forever.
func (p *Publisher) deadLetter(ctx context.Context, ev model.Event, lastError string) {
	ev.Attempts++
	dlq := model.DLQEnvelope{Type: model.DLQEnvelopeType, Original: ev}
	value, err := json.Marshal(dlq)
	if err == nil {
		if perr := p.broker.Publish(ctx, events.KafkaTopicDLQ, []byte(ev.ID), value); perr != nil {
			p.log.Error("dead-letter publish failed", zap.String("id", ev.ID), zap.Error(perr))
		}
	}

	if err := p.repo.MarkTerminal(ctx, ev.ID, ev.Attempts, lastError); err != nil {
		p.log.Error("outbox mark terminal failed", zap.String("id", ev.ID), zap.Error(err))
		return
	}
	metrics.OutboxEventsTotal.WithLabelValues("dlq").Inc()
	p.log.Warn("outbox event dead-lettered",
		zap.String("id", ev.ID),
		zap.Int("attempts", ev.Attempts),
		zap.String("last_error", lastError))
}

// Backoff returns the retry delay after the given attempt count: linear
// in attempts, capped at 15 minutes.
func Backoff(attempts int) time.Duration {
	d := time.Duration(attempts) * backoffStep
	if d > backoffCap {
		d = backoffCap
	}
	return d
}
