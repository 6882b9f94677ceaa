package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageIDPrefersEnvelopeID(t *testing.T) {
	env := Envelope{ID: "01J0EXAMPLEULID", Type: EventTypeCheckin}
	assert.Equal(t, "01J0EXAMPLEULID", MessageID(env))
}

func TestMessageIDDerivedWhenIDMissing(t *testing.T) {
	at := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	env := Envelope{
		Type:      EventTypeDailyLogin,
		Payload:   []byte(`{"userId":"u1"}`),
		CreatedAt: at,
	}
	want := "daily_login_u1_" + "1748770200"
	assert.Equal(t, want, MessageID(env))
}

func TestMessageIDDerivedIsStable(t *testing.T) {
	at := time.Now()
	env := Envelope{Type: EventTypeSMS, Payload: []byte(`{"userId":"u2"}`), CreatedAt: at}
	assert.Equal(t, MessageID(env), MessageID(env))
}

func TestDecodePayload(t *testing.T) {
	p, err := DecodePayload([]byte(`{"userId":"u1","mood":"great","target":["mobile"],"extra":"ignored"}`))
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, "great", p.Mood)
	assert.True(t, p.HasTarget(TargetMobile))
	assert.False(t, p.HasTarget(TargetDashboard))
}

func TestDecodePayloadMalformed(t *testing.T) {
	_, err := DecodePayload([]byte(`{`))
	assert.Error(t, err)
}
