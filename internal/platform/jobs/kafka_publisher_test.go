package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/storefront/api/internal/services"
)

type stubWriter struct {
	messages []kafka.Message
	err      error
	closes   int
}

func (w *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *stubWriter) Close() error {
	w.closes++
	return nil
}

func TestKafkaEventPublisherWritesKeyedMessage(t *testing.T) {
	writer := &stubWriter{}
	publisher := newKafkaEventPublisher(writer, "events")
	occurred := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	id, err := publisher.PublishEvent(context.Background(), services.DomainEvent{
		ID:          "evt-9",
		Type:        services.EventAccountRegistered,
		AggregateID: "acc-1",
		OccurredAt:  occurred,
		Attributes:  map[string]string{"accountId": "acc-1"},
	})
	if err != nil {
		t.Fatalf("PublishEvent: %v", err)
	}
	if id != "evt-9" {
		t.Fatalf("expected event id, got %q", id)
	}
	if len(writer.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(writer.messages))
	}
	msg := writer.messages[0]
	if string(msg.Key) != "acc-1" || !msg.Time.Equal(occurred) {
		t.Fatalf("unexpected message %+v", msg)
	}
	var decoded services.DomainEvent
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != services.EventAccountRegistered {
		t.Fatalf("unexpected type %q", decoded.Type)
	}
	headers := map[string]string{}
	for _, header := range msg.Headers {
		headers[header.Key] = string(header.Value)
	}
	if headers["eventType"] != services.EventAccountRegistered || headers["accountId"] != "acc-1" {
		t.Fatalf("unexpected headers %v", headers)
	}
}

func TestKafkaEventPublisherErrorsAndClose(t *testing.T) {
	writer := &stubWriter{err: errors.New("leader not available")}
	publisher := newKafkaEventPublisher(writer, "events")

	if _, err := publisher.PublishEvent(context.Background(), services.DomainEvent{ID: "e", Type: "t"}); err == nil {
		t.Fatalf("expected write error")
	}

	_ = publisher.Close()
	_ = publisher.Close()
	if writer.closes != 1 {
		t.Fatalf("expected single close, got %d", writer.closes)
	}
	if _, err := publisher.PublishEvent(context.Background(), services.DomainEvent{ID: "e"}); !errors.Is(err, ErrPublisherClosed) {
		t.Fatalf("expected ErrPublisherClosed, got %v", err)
	}
}

func TestNewKafkaEventPublisherValidates(t *testing.T) {
	if _, err := NewKafkaEventPublisher(KafkaConfig{Topic: "events"}, nil); err == nil {
		t.Fatalf("expected broker validation error")
	}
	if _, err := NewKafkaEventPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}}, nil); err == nil {
		t.Fatalf("expected topic validation error")
	}
	publisher, err := NewKafkaEventPublisher(KafkaConfig{Brokers: []string{" localhost:9092 "}, Topic: "events"}, nil)
	if err != nil {
		t.Fatalf("NewKafkaEventPublisher: %v", err)
	}
	_ = publisher.Close()
}
