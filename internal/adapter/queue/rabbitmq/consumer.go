package rabbitmq

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/adapter/observability"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/domain"
)

// Handler processes a single delivery. A nil error acks the message; a
// domain.ErrSyncJobNotFound error nacks without requeue (letting the
// queue's dead-letter policy take over); any other error nacks with
// requeue.
type Handler func(ctx context.Context, d amqp.Delivery) error

// Consumer runs a bounded goroutine worker pool reading off an internal
// buffered channel fed by a single AMQP consumer on one queue. Per-channel
// Qos(prefetch) throttles in-flight deliveries to roughly the pool size,
// the AMQP analogue of a Kafka fetch/dispatch split.
type Consumer struct {
	ch       *amqp.Channel
	queue    string
	poolSize int
	prefetch int
}

// NewConsumer constructs a Consumer against an already-open channel.
func NewConsumer(ch *amqp.Channel, queue string, poolSize, prefetch int) *Consumer {
	if poolSize < 1 {
		poolSize = 1
	}
	if prefetch < poolSize {
		prefetch = poolSize
	}
	return &Consumer{ch: ch, queue: queue, poolSize: poolSize, prefetch: prefetch}
}

// Run blocks, dispatching deliveries to the worker pool, until ctx is
// canceled. In-flight deliveries are drained before Run returns.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	if err := c.ch.Qos(c.prefetch, 0, false); err != nil {
		return err
	}
	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	jobs := make(chan amqp.Delivery, c.prefetch)
	go c.fetch(ctx, deliveries, jobs)

	var wg sync.WaitGroup
	for i := 0; i < c.poolSize; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range jobs {
				c.dispatch(ctx, d, handle)
			}
		}()
	}
	wg.Wait()
	return nil
}

func (c *Consumer) fetch(ctx context.Context, deliveries <-chan amqp.Delivery, jobs chan<- amqp.Delivery) {
	defer close(jobs)
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			select {
			case jobs <- d:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery, handle Handler) {
	err := handle(ctx, d)
	var outcome string
	switch {
	case err == nil:
		_ = d.Ack(false)
		outcome = "ack"
	case errors.Is(err, domain.ErrSyncJobNotFound):
		_ = d.Nack(false, false)
		outcome = "nack_no_requeue"
		slog.Error("delivery rejected, no requeue",
			slog.String("queue", c.queue), slog.Uint64("delivery_tag", d.DeliveryTag), slog.Any("error", err))
	default:
		_ = d.Nack(false, true)
		outcome = "nack_requeue"
		slog.Error("delivery failed, requeuing",
			slog.String("queue", c.queue), slog.Uint64("delivery_tag", d.DeliveryTag), slog.Any("error", err))
	}
	observability.BrokerMessagesConsumedTotal.WithLabelValues(c.queue, outcome).Inc()
}
