// Package app wires adapters and usecases into runnable HTTP handlers.
package app

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"
)

// Pinger is anything that can report its own reachability.
type Pinger interface{ Ping(ctx context.Context) error }

// BuildReadinessChecks returns the db, redis and kafka readiness checks.
// A nil dependency reports itself as not configured.
func BuildReadinessChecks(pool Pinger, rdb goredis.UniversalClient, broker Pinger) (
	dbCheck, redisCheck, kafkaCheck func(ctx context.Context) error,
) {
	dbCheck = func(ctx context.Context) error {
		if pool == nil {
			return errors.New("db not configured")
		}
		return pool.Ping(ctx)
	}
	redisCheck = func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
	kafkaCheck = func(ctx context.Context) error {
		if broker == nil {
			return errors.New("kafka not configured")
		}
		return broker.Ping(ctx)
	}
	return dbCheck, redisCheck, kafkaCheck
}
