package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/storefront/api/internal/services"
)

// ErrPublisherClosed is returned after Close.
var ErrPublisherClosed = errors.New("jobs: publisher closed")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the Kafka event writer.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	MaxAttempts  int
}

// KafkaEventPublisher writes domain events to a Kafka topic keyed by aggregate id, so events for one
// order land on one partition in order.
type KafkaEventPublisher struct {
	writer messageWriter
	topic  string
	closed atomic.Bool
}

// NewKafkaEventPublisher constructs a synchronous kafka-go writer.
func NewKafkaEventPublisher(cfg KafkaConfig, logger *zap.Logger) (*KafkaEventPublisher, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, broker := range cfg.Brokers {
		if trimmed := strings.TrimSpace(broker); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka event publisher: at least one broker is required")
	}
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		return nil, errors.New("kafka event publisher: topic is required")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	errorLog := logger.Named("kafka").Sugar()

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxAttempts:  cfg.MaxAttempts,
		RequiredAcks: kafka.RequireAll,
		Transport: &kafka.Transport{
			Dial: func(ctx context.Context, network string, address string) (net.Conn, error) {
				dialer := &kafka.Dialer{
					Timeout:   10 * time.Second,
					DualStack: true,
					KeepAlive: 30 * time.Second,
				}
				return dialer.DialContext(ctx, network, address)
			},
		},
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			errorLog.Errorf(msg, args...)
		}),
	}
	return newKafkaEventPublisher(writer, topic), nil
}

func newKafkaEventPublisher(writer messageWriter, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: writer, topic: topic}
}

// PublishEvent blocks until the broker acknowledges the message. The returned id is the event id.
func (p *KafkaEventPublisher) PublishEvent(ctx context.Context, event services.DomainEvent) (string, error) {
	if p == nil || p.writer == nil {
		return "", errors.New("kafka event publisher: not initialised")
	}
	if p.closed.Load() {
		return "", ErrPublisherClosed
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	attrs := eventAttributes(event)
	headers := make([]kafka.Header, 0, len(attrs))
	for key, value := range attrs {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	msg := kafka.Message{
		Key:     []byte(event.AggregateID),
		Value:   data,
		Headers: headers,
		Time:    event.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("publish %s event to %s: %w", event.Type, p.topic, err)
	}
	return event.ID, nil
}

// Close flushes and closes the writer. It is safe to call more than once.
func (p *KafkaEventPublisher) Close() error {
	if p == nil || !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.writer.Close()
}
