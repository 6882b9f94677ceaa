package http

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

func postJSON(handler echo.HandlerFunc, body string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	_ = handler(c)
	return rec
}

func TestSendSMSQueuesEvent(t *testing.T) {
	outbox := &fakeOutbox{}
	svc := events.New(nil, outbox)
	h := sendSMSHandler(svc, false)

	rec := postJSON(h, `{"userId":"u1","phone":"(555) 123-4567","text":"are you ok?"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, outbox.inserted, 1)

	ev := outbox.inserted[0]
	assert.Equal(t, model.EventTypeSMS, ev.EventType)
	assert.NotEmpty(t, ev.ID)

	p, err := model.DecodePayload(ev.Payload)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, []string{model.TargetDashboard}, p.Target)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(ev.Payload, &raw))
	assert.Equal(t, "+15551234567", raw["phone"], "phone is normalized before queueing")
}

func TestSendUrgentSMSTargetsMobile(t *testing.T) {
	outbox := &fakeOutbox{}
	svc := events.New(nil, outbox)
	h := sendSMSHandler(svc, true)

	rec := postJSON(h, `{"userId":"u1","phone":"5551234567","text":"call me"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, outbox.inserted, 1)

	ev := outbox.inserted[0]
	assert.Equal(t, model.EventTypeUrgentSMS, ev.EventType)

	p, err := model.DecodePayload(ev.Payload)
	require.NoError(t, err)
	assert.True(t, p.HasTarget(model.TargetMobile))
	assert.NotEmpty(t, p.Title)
}

func TestSendSMSRejectsMissingFields(t *testing.T) {
	outbox := &fakeOutbox{}
	h := sendSMSHandler(events.New(nil, outbox), false)

	for _, body := range []string{
		`{"phone":"5551234567","text":"hi"}`,
		`{"userId":"u1","text":"hi"}`,
		`{"userId":"u1","phone":"5551234567"}`,
	} {
		rec := postJSON(h, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
	assert.Empty(t, outbox.inserted)
}

func TestSendSMSRejectsOversizedText(t *testing.T) {
	outbox := &fakeOutbox{}
	h := sendSMSHandler(events.New(nil, outbox), false)

	rec := postJSON(h, `{"userId":"u1","phone":"5551234567","text":"`+strings.Repeat("x", 301)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDailyLoginQueuesEvent(t *testing.T) {
	outbox := &fakeOutbox{}
	h := dailyLoginHandler(events.New(nil, outbox))

	rec := postJSON(h, `{"userId":"u1"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, outbox.inserted, 1)
	assert.Equal(t, model.EventTypeDailyLogin, outbox.inserted[0].EventType)
}
