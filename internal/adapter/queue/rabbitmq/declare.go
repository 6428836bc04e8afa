package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DeclareTopology idempotently declares both topic exchanges and the nine
// contractual queues, binding each queue to its exchange with a routing key
// equal to the queue's own name.
func DeclareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(ExchangeRecords, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("op=rabbitmq.DeclareTopology declare exchange=%s: %w", ExchangeRecords, err)
	}
	if err := ch.ExchangeDeclare(ExchangeState, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("op=rabbitmq.DeclareTopology declare exchange=%s: %w", ExchangeState, err)
	}

	for _, q := range recordQueues {
		if err := declareAndBind(ch, q, ExchangeRecords); err != nil {
			return err
		}
	}
	for _, q := range stateQueues {
		if err := declareAndBind(ch, q, ExchangeState); err != nil {
			return err
		}
	}
	return nil
}

func declareAndBind(ch *amqp.Channel, queue, exchange string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("op=rabbitmq.DeclareTopology declare queue=%s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		return fmt.Errorf("op=rabbitmq.DeclareTopology bind queue=%s exchange=%s: %w", queue, exchange, err)
	}
	return nil
}
