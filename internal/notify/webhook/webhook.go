// Package webhook delivers notifications as JSON POSTs to an HTTP endpoint.
package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/JakeFAU/gameresult-crawler/internal/notify"
)

// Name identifies the channel.
const Name = "webhook"

// SecretHeader carries the shared secret, when one is configured.
const SecretHeader = "X-Webhook-Secret"

// Config holds the endpoint settings.
type Config struct {
	URL     string
	Secret  string
	Timeout time.Duration
}

// Channel posts JSON payloads.
type Channel struct {
	cfg    Config
	client *resty.Client
}

type resultPayload struct {
	GameType   string `json:"game_type"`
	ResultData any    `json:"result_data"`
	ResultMD5  string `json:"result_md5"`
	Timestamp  string `json:"timestamp"`
}

type systemPayload struct {
	Type      string `json:"type"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// New builds a Channel.
func New(cfg Config) *Channel {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.Secret != "" {
		client.SetHeader(SecretHeader, cfg.Secret)
	}
	return &Channel{cfg: cfg, client: client}
}

// Name implements notify.Channel.
func (c *Channel) Name() string { return Name }

// Configured implements notify.Channel.
func (c *Channel) Configured() bool { return c.cfg.URL != "" }

// Send posts msg and treats any non-2xx answer as a failure.
func (c *Channel) Send(ctx context.Context, msg notify.Message) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(payloadFor(msg)).
		Post(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return fmt.Errorf("webhook post: unexpected status %d", code)
	}
	return nil
}

func payloadFor(msg notify.Message) any {
	ts := msg.Timestamp.Format(time.RFC3339)
	if msg.Kind == notify.KindResult && msg.Result != nil {
		data := any(msg.Result)
		if msg.Result.Source != nil {
			data = msg.Result.Source
		}
		return resultPayload{
			GameType:   msg.GameType.String(),
			ResultData: data,
			ResultMD5:  msg.Result.Fingerprint,
			Timestamp:  ts,
		}
	}
	return systemPayload{
		Type:      string(notify.KindSystem),
		Level:     string(msg.Severity),
		Message:   msg.Body,
		Timestamp: ts,
	}
}
