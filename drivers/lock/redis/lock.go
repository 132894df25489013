// Package redis implements migration.Locker on Redis, so runs against the same database
// from several hosts are serialized.
package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/burugo/schemaforge/common"
	"github.com/burugo/schemaforge/internal/migration"
)

const (
	defaultTTL           = 10 * time.Minute
	defaultRetryInterval = 250 * time.Millisecond
)

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Options configures a Locker built from an address.
type Options struct {
	Addr     string
	Password string
	DB       int
	// TTL bounds how long a crashed holder blocks others. It must outlast a migration run.
	TTL time.Duration
	// RetryInterval is the wait between attempts while the lock is held elsewhere.
	RetryInterval time.Duration
}

// Locker holds migration locks as Redis keys set with SETNX and a per-holder token.
type Locker struct {
	rdb               *redis.Client
	ttl               time.Duration
	retry             time.Duration
	createdInternally bool
}

var (
	_ migration.Locker = (*Locker)(nil)
	_ io.Closer        = (*Locker)(nil)
)

// New returns a Locker. If redisCli is not nil it is used as is; otherwise a client is
// created from opts and pinged.
func New(redisCli *redis.Client, opts *Options) (*Locker, error) {
	if opts == nil {
		opts = &Options{}
	}
	l := &Locker{rdb: redisCli, ttl: opts.TTL, retry: opts.RetryInterval}
	if l.ttl <= 0 {
		l.ttl = defaultTTL
	}
	if l.retry <= 0 {
		l.retry = defaultRetryInterval
	}
	if l.rdb == nil {
		l.rdb = redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		})
		l.createdInternally = true

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.rdb.Ping(ctx).Err(); err != nil {
			l.rdb.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
	}
	return l, nil
}

// Close closes the Redis client if New created it.
func (l *Locker) Close() error {
	if l.createdInternally && l.rdb != nil {
		return l.rdb.Close()
	}
	return nil
}

// Acquire blocks until the lock on key is taken or ctx is done.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	for {
		release, ok, err := l.TryAcquire(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return release, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", common.ErrLockNotAcquired, key, ctx.Err())
		case <-time.After(l.retry):
		}
	}
}

// TryAcquire makes a single attempt. ok is false when someone else holds the lock.
func (l *Locker) TryAcquire(ctx context.Context, key string) (release func(), ok bool, err error) {
	token := uuid.NewString()
	ok, err = l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis SetNX error for lock key '%s': %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return l.buildRelease(key, token), true, nil
}

// buildRelease returns an idempotent release for the token that took key.
func (l *Locker) buildRelease(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			err := releaseScript.Run(context.Background(), l.rdb, []string{key}, token).Err()
			if err != nil && !errors.Is(err, redis.Nil) {
				log.Printf("[redis-lock] release %s: %v", key, err)
			}
		})
	}
}
