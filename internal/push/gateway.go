package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// ErrUnregistered marks a token the gateway reports as permanently
// invalid. Gateways wrap their protocol-specific signal with this
// sentinel so the deliverer can route the revocation decision.
var ErrUnregistered = errors.New("device token unregistered")

// Notification is the visible part of a push payload.
type Notification struct {
	Title string
	Body  string
}

// Gateway delivers one payload to one device token.
type Gateway interface {
	Name() string
	Send(ctx context.Context, token string, n Notification, data map[string]string) error
}

// FCMGateway is the primary protocol: the Firebase Admin SDK.
type FCMGateway struct {
	client  *messaging.Client
	timeout time.Duration
}

func NewFCMGateway(ctx context.Context, credentialsFile string, timeout time.Duration) (*FCMGateway, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FCMGateway{client: client, timeout: timeout}, nil
}

func (g *FCMGateway) Name() string { return "fcm" }

func (g *FCMGateway) Send(ctx context.Context, token string, n Notification, data map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: data,
	}

	_, err := g.client.Send(ctx, msg)
	if err != nil {
		if messaging.IsUnregistered(err) {
			return fmt.Errorf("%w: %v", ErrUnregistered, err)
		}
		return err
	}
	return nil
}
