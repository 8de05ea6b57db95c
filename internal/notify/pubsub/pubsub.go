// Package pubsub publishes notifications to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/gameresult-crawler/internal/notify"
)

// Name identifies the channel.
const Name = "pubsub"

// Channel wraps a Pub/Sub topic publisher.
type Channel struct {
	publisher *pubsub.Publisher
}

// New creates a Channel for the provided topic publisher. A nil publisher
// yields an unconfigured channel.
func New(publisher *pubsub.Publisher) *Channel {
	return &Channel{publisher: publisher}
}

// Connect opens a client for projectID and binds it to topic. The returned
// close function flushes pending messages and releases the client.
func Connect(ctx context.Context, projectID, topic string) (*Channel, func() error, error) {
	if projectID == "" || topic == "" {
		return nil, nil, errors.New("pubsub project and topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}
	publisher := client.Publisher(topic)
	closeFn := func() error {
		publisher.Stop()
		if err := client.Close(); err != nil {
			return fmt.Errorf("close pubsub client: %w", err)
		}
		return nil
	}
	return New(publisher), closeFn, nil
}

// Name implements notify.Channel.
func (c *Channel) Name() string { return Name }

// Configured implements notify.Channel.
func (c *Channel) Configured() bool { return c.publisher != nil }

// Send marshals msg to JSON and waits for the server to acknowledge it.
func (c *Channel) Send(ctx context.Context, msg notify.Message) error {
	if c.publisher == nil {
		return errors.New("pubsub publisher is not configured")
	}
	out, err := newMessage(ctx, msg)
	if err != nil {
		return err
	}
	if _, err := c.publisher.Publish(ctx, out).Get(ctx); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

func newMessage(ctx context.Context, msg notify.Message) (*pubsub.Message, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	out := &pubsub.Message{Data: data, Attributes: map[string]string{"kind": string(msg.Kind)}}
	if msg.GameType != "" {
		out.Attributes["game_type"] = msg.GameType.String()
	}
	otel.GetTextMapPropagator().Inject(ctx, &attributeCarrier{attrs: out.Attributes})
	return out, nil
}

// attributeCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type attributeCarrier struct {
	attrs map[string]string
}

func (c *attributeCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *attributeCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *attributeCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
