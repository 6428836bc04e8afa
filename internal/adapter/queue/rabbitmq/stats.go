package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"

	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/adapter/observability"
)

// Stats implements domain.QueueStats using the AMQP channel's passive
// queue-declare trick: a passive declare of an existing queue returns its
// current message count without requiring the RabbitMQ management HTTP API.
type Stats struct {
	ch *amqp.Channel
}

// NewStats wraps an open AMQP channel as a domain.QueueStats.
func NewStats(ch *amqp.Channel) *Stats {
	return &Stats{ch: ch}
}

// QueueCount returns the current depth of the named queue.
func (s *Stats) QueueCount(ctx context.Context, queueName string) (int, error) {
	tracer := otel.Tracer("queue.rabbitmq")
	_, span := tracer.Start(ctx, "Stats.QueueCount")
	defer span.End()

	q, err := s.ch.QueueDeclarePassive(queueName, true, false, false, false, nil)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("op=rabbitmq.Stats.QueueCount queue=%s: %w", queueName, err)
	}
	observability.QueueDepth.WithLabelValues(queueName).Set(float64(q.Messages))
	return q.Messages, nil
}
