// Package editlock provides a Redis-backed lock that serializes editors of
// the same bucket across processes.
package editlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/starford/gistblog/internal/apperr"
)

const (
	DefaultTTL     = 30 * time.Second
	defaultRetries = 20
	defaultBackoff = 250 * time.Millisecond
	releaseTimeout = 5 * time.Second
)

// Locker obtains one named lock. It satisfies blog.Locker.
type Locker struct {
	client  *redislock.Client
	key     string
	ttl     time.Duration
	retries int
	backoff time.Duration
	logger  *slog.Logger
}

// Option configures a Locker.
type Option func(*Locker)

// WithTTL sets how long a lock lives if its holder never releases it.
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) { l.ttl = ttl }
}

// WithRetry sets how often and how fast Lock retries a held lock.
func WithRetry(retries int, backoff time.Duration) Option {
	return func(l *Locker) {
		l.retries = retries
		l.backoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Locker) { l.logger = logger }
}

// New returns a Locker for key on rdb.
func New(rdb redis.Scripter, key string, opts ...Option) *Locker {
	l := &Locker{
		client:  redislock.New(rdb),
		key:     key,
		ttl:     DefaultTTL,
		retries: defaultRetries,
		backoff: defaultBackoff,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key returns the lock key, "gistblog:lock:<gist id>".
func Key(gistID string) string {
	return "gistblog:lock:" + gistID
}

// Lock blocks until the lock is obtained, the retries run out, or ctx ends.
// A lock that stays busy is reported as a conflict.
func (l *Locker) Lock(ctx context.Context) (func(), error) {
	strategy := redislock.NoRetry()
	if l.retries > 0 {
		strategy = redislock.LimitRetry(redislock.LinearBackoff(l.backoff), l.retries)
	}
	lock, err := l.client.Obtain(ctx, l.key, l.ttl, &redislock.Options{RetryStrategy: strategy})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, apperr.Conflict("another editor holds %s", l.key)
	}
	if err != nil {
		return nil, fmt.Errorf("editlock: obtain %s: %w", l.key, err)
	}
	l.logger.Debug("edit lock obtained", slog.String("key", l.key))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("edit lock release failed", slog.String("key", l.key), slog.String("error", err.Error()))
		}
	}, nil
}
