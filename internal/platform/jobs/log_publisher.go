package jobs

import (
	"context"

	"go.uber.org/zap"

	"github.com/storefront/api/internal/services"
)

// LogEventPublisher writes events to the log. Used for local runs without a broker.
type LogEventPublisher struct {
	logger *zap.Logger
}

// NewLogEventPublisher constructs a publisher logging at info level.
func NewLogEventPublisher(logger *zap.Logger) *LogEventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEventPublisher{logger: logger.Named("events")}
}

func (p *LogEventPublisher) PublishEvent(_ context.Context, event services.DomainEvent) (string, error) {
	p.logger.Info("domain event",
		zap.String("eventId", event.ID),
		zap.String("eventType", event.Type),
		zap.String("aggregateId", event.AggregateID),
		zap.Time("occurredAt", event.OccurredAt),
		zap.Any("payload", redactPayload(event.Payload)),
	)
	return event.ID, nil
}

func (p *LogEventPublisher) Close() error { return nil }

var redactedPayloadKeys = map[string]struct{}{
	"verificationToken": {},
}

func redactPayload(payload map[string]any) map[string]any {
	if len(payload) == 0 {
		return nil
	}
	out := make(map[string]any, len(payload))
	for key, value := range payload {
		if _, ok := redactedPayloadKeys[key]; ok {
			out[key] = "[redacted]"
			continue
		}
		out[key] = value
	}
	return out
}
