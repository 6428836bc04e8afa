package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Dial connects to the broker, retrying with exponential backoff per the
// given parameters. It blocks until connected, ctx is canceled, or the
// backoff's max elapsed time is exceeded.
func Dial(ctx context.Context, url string, maxElapsed, initialInterval, maxInterval time.Duration) (*amqp.Connection, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialInterval
	bo.MaxInterval = maxInterval
	bo.MaxElapsedTime = maxElapsed

	var conn *amqp.Connection
	op := func() error {
		c, err := amqp.Dial(url)
		if err != nil {
			slog.Warn("broker dial failed, retrying", slog.Any("error", err))
			return err
		}
		conn = c
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("op=rabbitmq.Dial: %w", err)
	}
	return conn, nil
}
