// Package mqtt wraps the paho client behind a small publish/subscribe
// surface. Components receive the shared *Client at construction; the
// client owns the reconnect policy (auto-reconnect with resumed
// subscriptions), so callers never manage connection state.
package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// QoS 1: at-least-once, matching the bus contract. Consumers dedup.
const qosAtLeastOnce = 1

type Config struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	ConnectTimeout time.Duration // default 5s
}

type Client struct {
	c   paho.Client
	log *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetResumeSubs(true).
		SetOrderMatters(false)

	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Warn("mqtt connection lost", zap.Error(err))
	}
	opts.OnConnect = func(_ paho.Client) {
		log.Info("mqtt connected", zap.String("broker", cfg.BrokerURL))
	}

	c := paho.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect timeout after %s", cfg.ConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	return &Client{c: c, log: log}, nil
}

// Publish sends payload to topic at QoS 1 and waits for the broker ack.
func (c *Client) Publish(topic string, payload []byte) error {
	tok := c.c.Publish(topic, qosAtLeastOnce, false, payload)
	tok.Wait()
	return tok.Error()
}

// Subscribe registers handler for topic at QoS 1. Handlers run on the
// paho dispatch goroutines; keep them short or hand off.
func (c *Client) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	tok := c.c.Subscribe(topic, qosAtLeastOnce, func(_ paho.Client, m paho.Message) {
		handler(m.Topic(), m.Payload())
	})
	tok.Wait()
	return tok.Error()
}

func (c *Client) Close() {
	c.c.Disconnect(250)
}
