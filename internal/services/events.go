package services

import (
	"context"
	"time"
)

const (
	EventAccountRegistered = "account.registered"
	EventOrderPaid         = "order.paid"
)

// DomainEvent is published after state changes other systems react to.
type DomainEvent struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	AggregateID string            `json:"aggregateId"`
	OccurredAt  time.Time         `json:"occurredAt"`
	Payload     map[string]any    `json:"payload,omitempty"`
	Attributes  map[string]string `json:"-"`
}

// EventPublisher delivers domain events. Callers treat failures as non-fatal.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event DomainEvent) (string, error)
}
