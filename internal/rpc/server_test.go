package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/carelink/notify-gateway/internal/model"
	"github.com/carelink/notify-gateway/internal/service/events"
	"github.com/jmoiron/sqlx"
	echo "github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeOutbox struct {
	inserted []model.Event
}

func (f *fakeOutbox) Insert(_ context.Context, _ *sqlx.Tx, ev model.Event) error {
	f.inserted = append(f.inserted, ev)
	return nil
}

func (f *fakeOutbox) FetchPending(_ context.Context, _ time.Time, _ int) ([]model.Event, error) {
	return nil, nil
}

func (f *fakeOutbox) MarkPublished(_ context.Context, _ string, _ time.Time) error { return nil }

func (f *fakeOutbox) MarkFailed(_ context.Context, _ string, _ int, _ string, _ time.Time) error {
	return nil
}

func (f *fakeOutbox) MarkTerminal(_ context.Context, _ string, _ int, _ string) error { return nil }

func (f *fakeOutbox) Get(_ context.Context, _ string) (*model.Event, error) { return nil, nil }

type fakeUsers struct {
	users map[string]model.User
}

func (f *fakeUsers) Get(_ context.Context, userID string) (*model.User, error) {
	if u, ok := f.users[userID]; ok {
		return &u, nil
	}
	return nil, nil
}

func (f *fakeUsers) ListMonitored(_ context.Context) ([]model.User, error) { return nil, nil }

func (f *fakeUsers) SetLastCheckIn(_ context.Context, _ *sqlx.Tx, _ string, _ time.Time) error {
	return nil
}

func (f *fakeUsers) ClaimReminder(_ context.Context, _ string, _, _ time.Time) (bool, error) {
	return false, nil
}

func (f *fakeUsers) ReleaseReminder(_ context.Context, _ string, _ time.Time) error { return nil }

type fakeTokens struct {
	tokens map[string][]model.DeviceToken
}

func (f *fakeTokens) Upsert(_ context.Context, _, _, _ string) error { return nil }

func (f *fakeTokens) ListActiveByUser(_ context.Context, userID string) ([]model.DeviceToken, error) {
	return f.tokens[userID], nil
}

func (f *fakeTokens) ListByUser(_ context.Context, userID string) ([]model.DeviceToken, error) {
	return f.tokens[userID], nil
}

func (f *fakeTokens) Revoke(_ context.Context, _ string) error { return nil }

func (f *fakeTokens) TouchLastSeen(_ context.Context, _ string) error { return nil }

type fakeCheckins struct {
	rows map[string][]model.CheckIn
}

func (f *fakeCheckins) Insert(_ context.Context, _ *sqlx.Tx, _ model.CheckIn) error { return nil }

func (f *fakeCheckins) ListRecent(_ context.Context, userID string, _ int) ([]model.CheckIn, error) {
	return f.rows[userID], nil
}

func (f *fakeCheckins) ExistsSince(_ context.Context, _ string, _ time.Time) (bool, error) {
	return false, nil
}

func callRPC(t *testing.T, handler echo.HandlerFunc, body string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	c := echo.New().NewContext(req, rec)
	require.NoError(t, handler(c))

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec.Code, out
}

func newTestSrv(outbox *fakeOutbox) *srv {
	return &srv{
		events: events.New(nil, outbox),
		users: &fakeUsers{users: map[string]model.User{
			"u1": {UserID: "u1", Name: "Margaret"},
		}},
		tokens: &fakeTokens{tokens: map[string][]model.DeviceToken{
			"u1": {{UserID: "u1", Token: "tok-1"}},
		}},
		checkins: &fakeCheckins{rows: map[string][]model.CheckIn{
			"u1": {{UserID: "u1", Mood: "good"}},
		}},
		log: zap.NewNop(),
	}
}

func TestPublishEvent(t *testing.T) {
	outbox := &fakeOutbox{}
	s := newTestSrv(outbox)

	code, out := callRPC(t, s.publishEvent, `{"eventType":"checkin","payload":{"userId":"u1"}}`)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["ok"])
	assert.NotEmpty(t, out["eventId"])
	require.Len(t, outbox.inserted, 1)
	assert.Equal(t, "checkin", outbox.inserted[0].EventType)
}

func TestPublishEventRequiresType(t *testing.T) {
	s := newTestSrv(&fakeOutbox{})

	code, out := callRPC(t, s.publishEvent, `{"payload":{}}`)

	assert.Equal(t, http.StatusOK, code, "absence is not a transport error")
	assert.Equal(t, false, out["ok"])
}

func TestGetUserFound(t *testing.T) {
	s := newTestSrv(&fakeOutbox{})

	code, out := callRPC(t, s.getUser, `{"userId":"u1"}`)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["ok"])
}

func TestGetUserAbsent(t *testing.T) {
	s := newTestSrv(&fakeOutbox{})

	code, out := callRPC(t, s.getUser, `{"userId":"nobody"}`)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, out["ok"])
	assert.Equal(t, "user not found", out["message"])
}

func TestGetDeviceTokens(t *testing.T) {
	s := newTestSrv(&fakeOutbox{})

	_, out := callRPC(t, s.getDeviceTokens, `{"userId":"u1"}`)
	assert.Equal(t, true, out["ok"])

	_, out = callRPC(t, s.getDeviceTokens, `{"userId":"nobody"}`)
	assert.Equal(t, false, out["ok"])
	assert.Equal(t, "no active tokens", out["message"])
}

func TestGetCheckIns(t *testing.T) {
	s := newTestSrv(&fakeOutbox{})

	_, out := callRPC(t, s.getCheckIns, `{"userId":"u1","limit":10}`)
	assert.Equal(t, true, out["ok"])

	_, out = callRPC(t, s.getCheckIns, `{"userId":"nobody"}`)
	assert.Equal(t, true, out["ok"], "an empty history is still a present user record")
}
