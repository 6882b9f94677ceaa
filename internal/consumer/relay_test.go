package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/carelink/notify-gateway/internal/hub"
	"github.com/carelink/notify-gateway/internal/kafka"
	"github.com/carelink/notify-gateway/internal/model"
	"github.com/carelink/notify-gateway/internal/push"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDedup struct {
	seen       map[string]bool
	claimErr   error
	failClaims int // fail the next N claims, then recover
	claims     []string
}

func (f *fakeDedup) Claim(_ context.Context, messageID string) (bool, error) {
	if f.failClaims > 0 {
		f.failClaims--
		return false, errors.New("store unavailable")
	}
	if f.claimErr != nil {
		return false, f.claimErr
	}
	f.claims = append(f.claims, messageID)
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[messageID] {
		return false, nil
	}
	f.seen[messageID] = true
	return true, nil
}

type fakeAudit struct {
	rows      []model.NotificationEvent
	insertErr error
}

func (f *fakeAudit) Insert(_ context.Context, ev model.NotificationEvent) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.rows = append(f.rows, ev)
	return nil
}

func (f *fakeAudit) ListPage(_ context.Context, _, _ int) ([]model.NotificationEvent, error) {
	return f.rows, nil
}

func (f *fakeAudit) AppendReadBy(_ context.Context, _, _ string) error { return nil }

type fakeBus struct {
	published map[string][][]byte
	err       error
}

func (f *fakeBus) Publish(topic string, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	if f.published == nil {
		f.published = map[string][][]byte{}
	}
	f.published[topic] = append(f.published[topic], payload)
	return nil
}

type fakeDeliverer struct {
	delivered []model.Envelope
}

func (f *fakeDeliverer) Deliver(_ context.Context, env model.Envelope) (push.Report, error) {
	f.delivered = append(f.delivered, env)
	return push.Report{EventID: env.ID, Attempted: 1, Sent: 1, UserID: "u1"}, nil
}

func envelopeBytes(t *testing.T, id string) []byte {
	t.Helper()
	raw, err := json.Marshal(model.Envelope{
		ID:        id,
		Type:      model.EventTypeCheckin,
		Payload:   []byte(`{"userId":"u1","target":["dashboard","mobile"]}`),
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	return raw
}

type relayFixture struct {
	relay *Relay
	dedup *fakeDedup
	audit *fakeAudit
	bus   *fakeBus
	hub   *hub.Hub
	push  *fakeDeliverer
}

func newRelayFixture() *relayFixture {
	f := &relayFixture{
		dedup: &fakeDedup{},
		audit: &fakeAudit{},
		bus:   &fakeBus{},
		hub:   hub.New(zap.NewNop()),
		push:  &fakeDeliverer{},
	}
	f.relay = NewRelay(nil, f.dedup, f.audit, f.bus, f.hub, f.push, zap.NewNop())
	return f
}

func TestHandleProcessesNewMessage(t *testing.T) {
	f := newRelayFixture()
	sub, cancel := f.hub.Subscribe(1)
	defer cancel()

	err := f.relay.Handle(context.Background(), envelopeBytes(t, "ev-1"))

	require.NoError(t, err)
	require.Len(t, f.audit.rows, 1)
	assert.Equal(t, "ev-1", f.audit.rows[0].EventID)
	assert.Len(t, f.bus.published["notification/events"], 1)
	assert.Len(t, f.push.delivered, 1)

	select {
	case env := <-sub:
		assert.Equal(t, "ev-1", env.ID)
	default:
		t.Fatal("expected hub to receive the envelope")
	}
}

func TestHandleDropsMalformedMessage(t *testing.T) {
	f := newRelayFixture()

	err := f.relay.Handle(context.Background(), []byte("not json"))

	require.NoError(t, err, "malformed messages are dropped, not retried")
	assert.Empty(t, f.dedup.claims)
	assert.Empty(t, f.audit.rows)
}

func TestHandleDropsEnvelopeWithoutID(t *testing.T) {
	f := newRelayFixture()

	err := f.relay.Handle(context.Background(), []byte(`{"type":"checkin"}`))

	require.NoError(t, err)
	assert.Empty(t, f.audit.rows)
}

func TestHandleSkipsDuplicate(t *testing.T) {
	f := newRelayFixture()
	msg := envelopeBytes(t, "ev-1")

	require.NoError(t, f.relay.Handle(context.Background(), msg))
	require.NoError(t, f.relay.Handle(context.Background(), msg))

	assert.Len(t, f.audit.rows, 1, "redelivery must not duplicate side effects")
	assert.Len(t, f.push.delivered, 1)
	assert.Len(t, f.bus.published["notification/events"], 1)
}

func TestHandleReturnsErrorOnDedupStoreFailure(t *testing.T) {
	f := newRelayFixture()
	f.dedup.claimErr = errors.New("mysql down")

	err := f.relay.Handle(context.Background(), envelopeBytes(t, "ev-1"))

	require.Error(t, err, "store failure must surface so the caller retries the message")
	assert.Empty(t, f.audit.rows)
	assert.Empty(t, f.push.delivered)
}

func TestHandleToleratesBusFailure(t *testing.T) {
	f := newRelayFixture()
	f.bus.err = errors.New("mqtt down")

	err := f.relay.Handle(context.Background(), envelopeBytes(t, "ev-1"))

	require.NoError(t, err, "bus fan-out is best effort")
	assert.Len(t, f.push.delivered, 1, "push still happens when the bus is down")
}

// scriptedConsumer serves a fixed list of messages, then blocks until
// ctx is cancelled. Committing the last message triggers cancel so Run
// returns.
type scriptedConsumer struct {
	mu      sync.Mutex
	msgs    []kafka.Message
	next    int
	commits []int64
	cancel  context.CancelFunc
}

func (c *scriptedConsumer) Fetch(ctx context.Context) (kafka.Message, error) {
	c.mu.Lock()
	if c.next < len(c.msgs) {
		m := c.msgs[c.next]
		c.next++
		c.mu.Unlock()
		return m, nil
	}
	c.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (c *scriptedConsumer) Commit(_ context.Context, m kafka.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commits = append(c.commits, m.Offset)
	if len(c.commits) == len(c.msgs) && c.cancel != nil {
		c.cancel()
	}
	return nil
}

func TestRunRetriesStoreFailureBeforeAdvancing(t *testing.T) {
	f := newRelayFixture()
	f.dedup.failClaims = 1

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pc := &scriptedConsumer{
		msgs: []kafka.Message{
			{Offset: 10, Value: envelopeBytes(t, "ev-1")},
			{Offset: 11, Value: envelopeBytes(t, "ev-2")},
		},
		cancel: cancel,
	}
	f.relay.consumer = pc

	err := f.relay.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int64{10, 11}, pc.commits,
		"the failed offset is retried and committed before any later one")
	assert.Equal(t, []string{"ev-1", "ev-2"}, f.dedup.claims)
	require.Len(t, f.audit.rows, 2)
}

func TestRunStopsRetryingOnShutdown(t *testing.T) {
	f := newRelayFixture()
	f.dedup.claimErr = errors.New("mysql down")

	ctx, cancel := context.WithCancel(context.Background())
	pc := &scriptedConsumer{msgs: []kafka.Message{{Offset: 10, Value: envelopeBytes(t, "ev-1")}}}
	f.relay.consumer = pc

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := f.relay.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, pc.commits, "a failing message is never committed")
	assert.Empty(t, f.audit.rows)
}

func TestHandleToleratesAuditFailure(t *testing.T) {
	f := newRelayFixture()
	f.audit.insertErr = errors.New("insert failed")

	err := f.relay.Handle(context.Background(), envelopeBytes(t, "ev-1"))

	require.NoError(t, err, "the claim already happened, do not redeliver")
	assert.Len(t, f.push.delivered, 1)
}
