// Package app wires application components and startup helpers.
//
// It provides dependency injection and application initialization.
// The package coordinates between different layers and provides
// a clean application bootstrap process.
package app

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

// Pinger is the minimal interface for a database pool capable of Ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BuildReadinessChecks returns the db, broker, and (optional) Redis
// readiness checks. redisClient is nil when REDIS_URL is unset, in which
// case its check always passes.
func BuildReadinessChecks(pool Pinger, conn *amqp.Connection, redisClient *redis.Client) (
	func(ctx context.Context) error,
	func(ctx context.Context) error,
	func(ctx context.Context) error,
) {
	dbCheck := func(ctx context.Context) error {
		if pool == nil {
			return fmt.Errorf("db not configured")
		}
		return pool.Ping(ctx)
	}
	brokerCheck := func(_ context.Context) error {
		if conn == nil || conn.IsClosed() {
			return fmt.Errorf("broker connection not available")
		}
		return nil
	}
	redisCheck := func(ctx context.Context) error {
		if redisClient == nil {
			return nil
		}
		return redisClient.Ping(ctx).Err()
	}
	return dbCheck, brokerCheck, redisCheck
}
