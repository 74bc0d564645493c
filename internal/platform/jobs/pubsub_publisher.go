package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/storefront/api/internal/services"
)

// PubSubEventPublisher publishes domain events to a Pub/Sub topic.
type PubSubEventPublisher struct {
	topic    *pubsub.Topic
	marshal  func(any) ([]byte, error)
	ordering bool
}

// PubSubOption customises the publisher.
type PubSubOption func(*PubSubEventPublisher)

// WithMessageOrdering keys messages by aggregate id so subscribers with ordering enabled see
// payment and order events for one aggregate in publish order.
func WithMessageOrdering() PubSubOption {
	return func(p *PubSubEventPublisher) {
		p.ordering = true
	}
}

// NewPubSubEventPublisher constructs a Pub/Sub backed event publisher.
func NewPubSubEventPublisher(topic *pubsub.Topic, opts ...PubSubOption) (*PubSubEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub event publisher: topic is required")
	}
	p := &PubSubEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.ordering {
		topic.EnableMessageOrdering = true
	}
	return p, nil
}

// PublishEvent sends the event as JSON with type and id attributes for subscription filters.
func (p *PubSubEventPublisher) PublishEvent(ctx context.Context, event services.DomainEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub event publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	msg := &pubsub.Message{
		Data:       data,
		Attributes: eventAttributes(event),
	}
	if p.ordering {
		msg.OrderingKey = strings.TrimSpace(event.AggregateID)
	}

	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		if msg.OrderingKey != "" {
			// A failed publish pauses its ordering key until resumed.
			p.topic.ResumePublish(msg.OrderingKey)
		}
		return "", fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	return id, nil
}

// Close flushes pending messages.
func (p *PubSubEventPublisher) Close() error {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
	return nil
}

func eventAttributes(event services.DomainEvent) map[string]string {
	attrs := make(map[string]string, len(event.Attributes)+3)
	for key, value := range event.Attributes {
		setAttr(attrs, key, value)
	}
	setAttr(attrs, "eventId", event.ID)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "aggregateId", event.AggregateID)
	return attrs
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
