// Package lock provides an inventory.Locker shared by every process that
// writes to the same database.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/fieldops/partsledger/inventory"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "partsledger:lock:"

// Redis serializes writers per key through a Redis lease. The lease expires
// after TTL if the holder dies without releasing it.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	retry  redislock.RetryStrategy
	log    logrus.FieldLogger
}

// NewRedis builds a Redis locker. Lock retries every backoff until ctx is
// done or the lease is obtained.
func NewRedis(client redis.UniversalClient, ttl, backoff time.Duration, log logrus.FieldLogger) *Redis {
	return &Redis{
		client: redislock.New(client),
		ttl:    ttl,
		retry:  redislock.LinearBackoff(backoff),
		log:    log,
	}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	lease, err := r.client.Obtain(ctx, keyPrefix+key, r.ttl, &redislock.Options{RetryStrategy: r.retry})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("lock %s: %v: %w", key, err, inventory.ErrConcurrencyConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}

	return func() {
		// The caller's ctx may already be done; the release must still happen.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lease.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			r.log.WithFields(logrus.Fields{
				"field": "lock",
				"key":   key,
			}).WithError(err).Warn("failed to release redis lock")
		}
	}, nil
}

var _ inventory.Locker = (*Redis)(nil)
