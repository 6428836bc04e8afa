package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/adapter/observability"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/adapter/queue/header"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/domain"
)

// recordBody is the wire shape of the record payload carried on the lwgs
// exchange: {transactionId, payload}. The core never inspects payload.
type recordBody struct {
	TransactionID string `json:"transactionId"`
	Payload       string `json:"payload"`
}

// Producer publishes record and state-shadow messages onto the broker. It
// implements domain.Queue.
type Producer struct {
	ch *amqp.Channel
}

// NewProducer wraps an open AMQP channel as a domain.Queue.
func NewProducer(ch *amqp.Channel) *Producer {
	return &Producer{ch: ch}
}

func recordRoutingKey(jt domain.JobType) string {
	if jt == domain.JobTypeFull {
		return QueueFullIncoming
	}
	return QueuePartialIncoming
}

// PublishRecord publishes the opaque person-data record to the
// partial/full incoming topic implied by env.JobType.
func (p *Producer) PublishRecord(ctx context.Context, env domain.Envelope, rec domain.Record) error {
	tracer := otel.Tracer("queue.rabbitmq")
	ctx, span := tracer.Start(ctx, "Producer.PublishRecord")
	defer span.End()

	body, err := json.Marshal(recordBody{TransactionID: rec.TransactionID, Payload: rec.Payload})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("op=rabbitmq.Producer.PublishRecord marshal: %w", err)
	}

	msg := amqp.Publishing{ContentType: "application/json", Body: body}
	header.Apply(env, &msg)

	rk := recordRoutingKey(env.JobType)
	span.SetAttributes(attribute.String("broker.exchange", ExchangeRecords), attribute.String("broker.routing_key", rk))

	err = p.ch.PublishWithContext(ctx, ExchangeRecords, rk, false, false, msg)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
	}
	observability.BrokerPublishTotal.WithLabelValues(ExchangeRecords, outcome).Inc()
	if err != nil {
		return fmt.Errorf("op=rabbitmq.Producer.PublishRecord publish: %w", err)
	}
	return nil
}

// PublishStateShadow publishes an empty-payload message carrying only
// headers to the transaction-state topic.
func (p *Producer) PublishStateShadow(ctx context.Context, env domain.Envelope) error {
	tracer := otel.Tracer("queue.rabbitmq")
	ctx, span := tracer.Start(ctx, "Producer.PublishStateShadow")
	defer span.End()

	msg := amqp.Publishing{}
	header.Apply(env, &msg)

	span.SetAttributes(attribute.String("broker.exchange", ExchangeState), attribute.String("broker.routing_key", QueueTransactionState))

	err := p.ch.PublishWithContext(ctx, ExchangeState, QueueTransactionState, false, false, msg)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
	}
	observability.BrokerPublishTotal.WithLabelValues(ExchangeState, outcome).Inc()
	if err != nil {
		return fmt.Errorf("op=rabbitmq.Producer.PublishStateShadow publish: %w", err)
	}
	return nil
}
