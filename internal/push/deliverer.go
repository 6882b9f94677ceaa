// Package push turns eligible events into device notifications: token
// resolution, primary gateway send, fallback on ambiguous failure, and
// failure-aware token revocation.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/carelink/notify-gateway/internal/metrics"
	"github.com/carelink/notify-gateway/internal/model"
	"github.com/carelink/notify-gateway/internal/repository"
	"go.uber.org/zap"
)

// Report summarizes one delivery pass over a user's tokens.
type Report struct {
	EventID      string
	UserID       string
	Attempted    int
	Sent         int
	FallbackSent int
	Failed       int
	Revoked      int
}

// Deliverer fans one event out to all active device tokens of its target
// user. Individual token failures are isolated: one bad token never
// aborts delivery to the other devices.
type Deliverer struct {
	tokens   repository.DeviceTokensRepository
	primary  Gateway
	fallback Gateway // nil when the fallback protocol is disabled
	audit    repository.CHDeliveriesRepository
	log      *zap.Logger

	// PropagationDelay covers freshly registered tokens that the gateway
	// has not propagated yet.
	PropagationDelay time.Duration

	sleep func(time.Duration)
	now   func() time.Time
}

func NewDeliverer(
	tokens repository.DeviceTokensRepository,
	primary Gateway,
	fallback Gateway,
	audit repository.CHDeliveriesRepository,
	log *zap.Logger,
) *Deliverer {
	return &Deliverer{
		tokens:           tokens,
		primary:          primary,
		fallback:         fallback,
		audit:            audit,
		log:              log,
		PropagationDelay: 500 * time.Millisecond,
		sleep:            time.Sleep,
		now:              time.Now,
	}
}

// Deliver sends env to every active token of its target user. Only events
// targeted at "mobile" are eligible; anything else is a no-op. A user
// without tokens is a no-op, not an error.
func (d *Deliverer) Deliver(ctx context.Context, env model.Envelope) (Report, error) {
	rep := Report{EventID: env.ID}

	p, err := model.DecodePayload(env.Payload)
	if err != nil {
		return rep, err
	}
	if !p.HasTarget(model.TargetMobile) || p.UserID == "" {
		return rep, nil
	}
	rep.UserID = p.UserID

	toks, err := d.tokens.ListActiveByUser(ctx, p.UserID)
	if err != nil {
		return rep, err
	}
	if len(toks) == 0 {
		return rep, nil
	}

	notif := buildNotification(env.Type, p)

	// The data payload carries the full envelope for client-side handling.
	raw, _ := json.Marshal(env)
	data := map[string]string{"payload": string(raw)}

	attempts := make([]model.DeliveryAttempt, 0, len(toks))
	for _, t := range toks {
		if d.PropagationDelay > 0 {
			d.sleep(d.PropagationDelay)
		}

		outcome, detail := d.deliverToken(ctx, t.Token, notif, data)

		rep.Attempted++
		switch outcome {
		case model.DeliverySent:
			rep.Sent++
		case model.DeliveryFallbackSent:
			rep.FallbackSent++
		case model.DeliveryRevoked:
			rep.Revoked++
		case model.DeliveryFailed:
			rep.Failed++
		}
		metrics.PushDeliveriesTotal.WithLabelValues(outcome).Inc()

		// last_seen_at is stamped on every attempted token, success or not.
		if err := d.tokens.TouchLastSeen(ctx, t.Token); err != nil {
			d.log.Warn("touch last_seen failed", zap.String("token", t.Token), zap.Error(err))
		}

		attempts = append(attempts, model.DeliveryAttempt{
			EventID:     env.ID,
			UserID:      p.UserID,
			Token:       t.Token,
			Outcome:     outcome,
			Detail:      detail,
			AttemptedAt: d.now(),
		})
	}

	if d.audit != nil {
		if err := d.audit.InsertBatch(ctx, attempts); err != nil {
			d.log.Warn("delivery audit insert failed", zap.Error(err))
		}
	}

	return rep, nil
}

// deliverToken runs the primary/fallback/revoke decision for one token.
// The token is revoked only when the primary reports it unregistered AND
// no alternate path still accepts it.
func (d *Deliverer) deliverToken(ctx context.Context, token string, n Notification, data map[string]string) (outcome, detail string) {
	err := d.primary.Send(ctx, token, n, data)
	if err == nil {
		return model.DeliverySent, ""
	}

	if !errors.Is(err, ErrUnregistered) {
		d.log.Warn("push send failed",
			zap.String("gateway", d.primary.Name()),
			zap.String("token", token),
			zap.Error(err))
		return model.DeliveryFailed, err.Error()
	}

	if d.fallback != nil {
		ferr := d.fallback.Send(ctx, token, n, data)
		if ferr == nil {
			d.log.Info("push delivered via fallback", zap.String("token", token))
			return model.DeliveryFallbackSent, ""
		}
		d.log.Warn("fallback send failed",
			zap.String("gateway", d.fallback.Name()),
			zap.String("token", token),
			zap.Error(ferr))
	}

	if rerr := d.tokens.Revoke(ctx, token); rerr != nil {
		d.log.Error("token revoke failed", zap.String("token", token), zap.Error(rerr))
		return model.DeliveryFailed, rerr.Error()
	}
	d.log.Info("token revoked", zap.String("token", token))
	return model.DeliveryRevoked, err.Error()
}

func buildNotification(eventType string, p model.Payload) Notification {
	n := Notification{Title: p.Title, Body: p.Body}
	if n.Title == "" {
		n.Title = "CareLink"
	}
	if n.Body == "" {
		switch eventType {
		case model.EventTypeMissedCheckin:
			n.Body = "A senior you care for has not checked in today."
		case model.EventTypeBadgeNotification:
			n.Body = "You earned a new badge!"
		default:
			n.Body = "You have a new notification."
		}
	}
	return n
}
