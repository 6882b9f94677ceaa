package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const fcmScope = "https://www.googleapis.com/auth/firebase.messaging"

var errBreakerOpen = fmt.Errorf("fallback gateway breaker open")

// HTTPv1Gateway is the secondary protocol: a direct POST to the FCM HTTP
// v1 endpoint with an independently obtained OAuth2 bearer credential.
// A micro circuit breaker keeps a dead endpoint from stalling deliveries.
type HTTPv1Gateway struct {
	host      string
	projectID string
	ts        oauth2.TokenSource
	client    *http.Client
	br        *MicroBreaker
}

func NewHTTPv1Gateway(ctx context.Context, credentialsFile, projectID, host string, timeout time.Duration, failThreshold int, openFor time.Duration) (*HTTPv1Gateway, error) {
	raw, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, raw, fcmScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if failThreshold <= 0 {
		failThreshold = 3
	}
	if openFor <= 0 {
		openFor = 15 * time.Second
	}

	return &HTTPv1Gateway{
		host:      host,
		projectID: projectID,
		ts:        creds.TokenSource,
		client:    &http.Client{Timeout: timeout},
		br:        NewMicroBreaker(failThreshold, openFor),
	}, nil
}

func (g *HTTPv1Gateway) Name() string { return "fcm-httpv1" }

type httpv1Message struct {
	Message struct {
		Token        string            `json:"token"`
		Notification map[string]string `json:"notification"`
		Data         map[string]string `json:"data,omitempty"`
	} `json:"message"`
}

func (g *HTTPv1Gateway) Send(ctx context.Context, token string, n Notification, data map[string]string) error {
	if !g.br.TryAcquire() {
		return errBreakerOpen
	}

	err := g.post(ctx, token, n, data)
	if err != nil {
		g.br.OnFailure()
		return err
	}

	g.br.OnSuccess()

	return nil
}

func (g *HTTPv1Gateway) post(ctx context.Context, token string, n Notification, data map[string]string) error {
	tok, err := g.ts.Token()
	if err != nil {
		return fmt.Errorf("oauth token: %w", err)
	}

	var m httpv1Message
	m.Message.Token = token
	m.Message.Notification = map[string]string{"title": n.Title, "body": n.Body}
	m.Message.Data = data

	body, _ := json.Marshal(m)
	url := fmt.Sprintf("https://%s/v1/projects/%s/messages:send", g.host, g.projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	res, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode/100 == 2 {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	if res.StatusCode == http.StatusNotFound || strings.Contains(string(raw), "UNREGISTERED") {
		return fmt.Errorf("%w: status=%d", ErrUnregistered, res.StatusCode)
	}
	return fmt.Errorf("fcm httpv1 status=%d body=%s", res.StatusCode, raw)
}
