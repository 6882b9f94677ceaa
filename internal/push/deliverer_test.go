package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/carelink/notify-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTokens struct {
	tokens   []model.DeviceToken
	revoked  []string
	touched  []string
	upserted []string
}

func (f *fakeTokens) Upsert(_ context.Context, _, token, _ string) error {
	f.upserted = append(f.upserted, token)
	return nil
}

func (f *fakeTokens) ListActiveByUser(_ context.Context, userID string) ([]model.DeviceToken, error) {
	var out []model.DeviceToken
	for _, t := range f.tokens {
		if t.UserID == userID && !t.Revoked {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTokens) ListByUser(_ context.Context, userID string) ([]model.DeviceToken, error) {
	var out []model.DeviceToken
	for _, t := range f.tokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTokens) Revoke(_ context.Context, token string) error {
	f.revoked = append(f.revoked, token)
	return nil
}

func (f *fakeTokens) TouchLastSeen(_ context.Context, token string) error {
	f.touched = append(f.touched, token)
	return nil
}

type fakeGateway struct {
	name  string
	errs  map[string]error // per-token error
	sends []string
}

func (f *fakeGateway) Name() string { return f.name }

func (f *fakeGateway) Send(_ context.Context, token string, _ Notification, _ map[string]string) error {
	if err, ok := f.errs[token]; ok {
		return err
	}
	f.sends = append(f.sends, token)
	return nil
}

func mobileEnvelope(t *testing.T, userID string) model.Envelope {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"userId": userID,
		"title":  "hi",
		"body":   "there",
		"target": []string{model.TargetDashboard, model.TargetMobile},
	})
	require.NoError(t, err)
	return model.Envelope{ID: "ev-1", Type: model.EventTypeUrgentSMS, Payload: payload, CreatedAt: time.Now()}
}

func newTestDeliverer(tokens *fakeTokens, primary, fallback Gateway) *Deliverer {
	d := NewDeliverer(tokens, primary, fallback, nil, zap.NewNop())
	d.PropagationDelay = 0
	d.sleep = func(time.Duration) {}
	return d
}

func TestDeliverSkipsNonMobileTargets(t *testing.T) {
	tokens := &fakeTokens{tokens: []model.DeviceToken{{UserID: "u1", Token: "tok-1"}}}
	primary := &fakeGateway{name: "fcm"}
	d := newTestDeliverer(tokens, primary, nil)

	payload, _ := json.Marshal(map[string]any{"userId": "u1", "target": []string{model.TargetDashboard}})
	rep, err := d.Deliver(context.Background(), model.Envelope{ID: "ev-1", Payload: payload})

	require.NoError(t, err)
	assert.Zero(t, rep.Attempted)
	assert.Empty(t, primary.sends)
}

func TestDeliverNoTokensIsNoop(t *testing.T) {
	tokens := &fakeTokens{}
	primary := &fakeGateway{name: "fcm"}
	d := newTestDeliverer(tokens, primary, nil)

	rep, err := d.Deliver(context.Background(), mobileEnvelope(t, "u1"))

	require.NoError(t, err)
	assert.Zero(t, rep.Attempted)
}

func TestDeliverSendsToAllActiveTokens(t *testing.T) {
	tokens := &fakeTokens{tokens: []model.DeviceToken{
		{UserID: "u1", Token: "tok-1"},
		{UserID: "u1", Token: "tok-2"},
		{UserID: "u1", Token: "tok-revoked", Revoked: true},
		{UserID: "other", Token: "tok-other"},
	}}
	primary := &fakeGateway{name: "fcm"}
	d := newTestDeliverer(tokens, primary, nil)

	rep, err := d.Deliver(context.Background(), mobileEnvelope(t, "u1"))

	require.NoError(t, err)
	assert.Equal(t, 2, rep.Attempted)
	assert.Equal(t, 2, rep.Sent)
	assert.ElementsMatch(t, []string{"tok-1", "tok-2"}, primary.sends)
	assert.ElementsMatch(t, []string{"tok-1", "tok-2"}, tokens.touched)
	assert.Empty(t, tokens.revoked)
}

func TestTransientFailureDoesNotRevokeOrAbort(t *testing.T) {
	tokens := &fakeTokens{tokens: []model.DeviceToken{
		{UserID: "u1", Token: "tok-bad"},
		{UserID: "u1", Token: "tok-good"},
	}}
	primary := &fakeGateway{name: "fcm", errs: map[string]error{
		"tok-bad": errors.New("503 unavailable"),
	}}
	d := newTestDeliverer(tokens, primary, nil)

	rep, err := d.Deliver(context.Background(), mobileEnvelope(t, "u1"))

	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Sent, "one bad token must not abort the rest")
	assert.Empty(t, tokens.revoked)
	assert.ElementsMatch(t, []string{"tok-bad", "tok-good"}, tokens.touched)
}

func TestUnregisteredTokenRevokedWithoutFallback(t *testing.T) {
	tokens := &fakeTokens{tokens: []model.DeviceToken{{UserID: "u1", Token: "tok-dead"}}}
	primary := &fakeGateway{name: "fcm", errs: map[string]error{
		"tok-dead": fmt.Errorf("%w: gone", ErrUnregistered),
	}}
	d := newTestDeliverer(tokens, primary, nil)

	rep, err := d.Deliver(context.Background(), mobileEnvelope(t, "u1"))

	require.NoError(t, err)
	assert.Equal(t, 1, rep.Revoked)
	assert.Equal(t, []string{"tok-dead"}, tokens.revoked)
}

func TestUnregisteredTokenKeptWhenFallbackAccepts(t *testing.T) {
	tokens := &fakeTokens{tokens: []model.DeviceToken{{UserID: "u1", Token: "tok-1"}}}
	primary := &fakeGateway{name: "fcm", errs: map[string]error{
		"tok-1": fmt.Errorf("%w: gone", ErrUnregistered),
	}}
	fallback := &fakeGateway{name: "fcm-httpv1"}
	d := newTestDeliverer(tokens, primary, fallback)

	rep, err := d.Deliver(context.Background(), mobileEnvelope(t, "u1"))

	require.NoError(t, err)
	assert.Equal(t, 1, rep.FallbackSent)
	assert.Empty(t, tokens.revoked, "a token the fallback still accepts is not dead")
	assert.Equal(t, []string{"tok-1"}, fallback.sends)
}

func TestUnregisteredTokenRevokedWhenFallbackAlsoFails(t *testing.T) {
	tokens := &fakeTokens{tokens: []model.DeviceToken{{UserID: "u1", Token: "tok-1"}}}
	primary := &fakeGateway{name: "fcm", errs: map[string]error{
		"tok-1": fmt.Errorf("%w: gone", ErrUnregistered),
	}}
	fallback := &fakeGateway{name: "fcm-httpv1", errs: map[string]error{
		"tok-1": errors.New("404"),
	}}
	d := newTestDeliverer(tokens, primary, fallback)

	rep, err := d.Deliver(context.Background(), mobileEnvelope(t, "u1"))

	require.NoError(t, err)
	assert.Equal(t, 1, rep.Revoked)
	assert.Equal(t, []string{"tok-1"}, tokens.revoked)
}

func TestPropagationDelayAppliedPerToken(t *testing.T) {
	tokens := &fakeTokens{tokens: []model.DeviceToken{
		{UserID: "u1", Token: "tok-1"},
		{UserID: "u1", Token: "tok-2"},
	}}
	primary := &fakeGateway{name: "fcm"}
	d := NewDeliverer(tokens, primary, nil, nil, zap.NewNop())

	var slept []time.Duration
	d.sleep = func(dur time.Duration) { slept = append(slept, dur) }

	_, err := d.Deliver(context.Background(), mobileEnvelope(t, "u1"))

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, slept)
}

func TestBuildNotificationDefaults(t *testing.T) {
	n := buildNotification(model.EventTypeMissedCheckin, model.Payload{})
	assert.Equal(t, "CareLink", n.Title)
	assert.Contains(t, n.Body, "not checked in")

	n = buildNotification(model.EventTypeBadgeNotification, model.Payload{Title: "Badge!"})
	assert.Equal(t, "Badge!", n.Title)
	assert.Contains(t, n.Body, "badge")
}
