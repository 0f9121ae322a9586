// Package notify publishes session activity so downstream consumers (alerting,
// analytics, the live dashboard) can react without polling the store.
package notify

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/bytedance/sonic"

	"github.com/shadowsight/shadowsight/internal/model"
)

// Message kinds.
const (
	KindEventCreated    = "event.created"
	KindSessionRescored = "session.rescored"
)

// Message is the payload published for every notification.
type Message struct {
	Kind        string         `json:"kind"`
	SessionID   string         `json:"sessionId"`
	RecruiterID string         `json:"recruiterId,omitempty"`
	Event       *model.Event   `json:"event,omitempty"`
	Derived     *model.Derived `json:"derived,omitempty"`
	At          time.Time      `json:"at"`
}

// Publisher delivers messages.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Nop discards every message.
type Nop struct{}

func (Nop) Publish(context.Context, Message) error { return nil }
func (Nop) Close() error                           { return nil }

// PubSub publishes messages to a Cloud Pub/Sub topic.
type PubSub struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	owned  bool
}

// NewPubSub connects to Pub/Sub in projectID and publishes to topicID.
func NewPubSub(ctx context.Context, projectID, topicID string) (*PubSub, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	p := NewPubSubWithClient(client, topicID)
	p.owned = true
	return p, nil
}

// NewPubSubWithClient publishes to topicID using an existing client, which the
// caller keeps ownership of.
func NewPubSubWithClient(client *pubsub.Client, topicID string) *PubSub {
	return &PubSub{client: client, topic: client.Topic(topicID)}
}

// Publish sends msg and waits for the server to acknowledge it.
func (p *PubSub) Publish(ctx context.Context, msg Message) error {
	m, err := encode(msg)
	if err != nil {
		return err
	}
	if _, err := p.topic.Publish(ctx, m).Get(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Kind, err)
	}
	return nil
}

// Close flushes pending messages and closes the client if it was created by
// NewPubSub.
func (p *PubSub) Close() error {
	p.topic.Stop()
	if p.owned {
		return p.client.Close()
	}
	return nil
}

func encode(msg Message) (*pubsub.Message, error) {
	if msg.At.IsZero() {
		msg.At = time.Now().UTC()
	}
	data, err := sonic.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Kind, err)
	}
	attrs := map[string]string{
		"kind":      msg.Kind,
		"sessionId": msg.SessionID,
		"source":    "shadowsight",
	}
	if msg.RecruiterID != "" {
		attrs["recruiterId"] = msg.RecruiterID
	}
	return &pubsub.Message{Data: data, Attributes: attrs}, nil
}
