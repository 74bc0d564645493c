package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/storefront/api/internal/services"
)

func newTestTopic(t *testing.T) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "storefront-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	return srv, topic
}

func TestPubSubEventPublisherPublishesMessage(t *testing.T) {
	srv, topic := newTestTopic(t)
	publisher, err := NewPubSubEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}
	defer publisher.Close()

	event := services.DomainEvent{
		ID:          "evt-1",
		Type:        services.EventOrderPaid,
		AggregateID: "ord-1",
		OccurredAt:  time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC),
		Payload:     map[string]any{"total": "12.50"},
		Attributes:  map[string]string{"kind": "order", "blank": " "},
	}
	if _, err := publisher.PublishEvent(context.Background(), event); err != nil {
		t.Fatalf("PublishEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload services.DomainEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.ID != event.ID || payload.AggregateID != "ord-1" || payload.Payload["total"] != "12.50" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	attrs := messages[0].Attributes
	if attrs["eventType"] != services.EventOrderPaid || attrs["kind"] != "order" || attrs["aggregateId"] != "ord-1" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
	if _, ok := attrs["blank"]; ok {
		t.Fatalf("blank attribute should not be present")
	}
	if messages[0].OrderingKey != "" {
		t.Fatalf("expected no ordering key by default, got %q", messages[0].OrderingKey)
	}
}

func TestPubSubEventPublisherOrdersByAggregate(t *testing.T) {
	srv, topic := newTestTopic(t)
	publisher, err := NewPubSubEventPublisher(topic, WithMessageOrdering())
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}
	defer publisher.Close()

	for _, id := range []string{"evt-1", "evt-2"} {
		event := services.DomainEvent{ID: id, Type: services.EventOrderPaid, AggregateID: "ord-7"}
		if _, err := publisher.PublishEvent(context.Background(), event); err != nil {
			t.Fatalf("PublishEvent %s: %v", id, err)
		}
	}

	messages := srv.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	for _, msg := range messages {
		if msg.OrderingKey != "ord-7" {
			t.Fatalf("expected ordering key ord-7, got %q", msg.OrderingKey)
		}
	}
}

func TestNewPubSubEventPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubEventPublisher(nil); err == nil {
		t.Fatalf("expected error without topic")
	}
}
