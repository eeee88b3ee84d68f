package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript deletes the key only if it still holds the caller's token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker implements Locker with SET NX PX and compare-and-delete.
type RedisLocker struct {
	client   redis.Cmdable
	ttl      time.Duration
	prefix   string
	newToken func() string
}

// RedisOption configures RedisLocker.
type RedisOption func(*RedisLocker)

// WithTTL sets the lease TTL.
func WithTTL(d time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if d > 0 {
			l.ttl = d
		}
	}
}

// WithPrefix namespaces all keys.
func WithPrefix(p string) RedisOption {
	return func(l *RedisLocker) {
		l.prefix = p
	}
}

// WithTokenSource overrides owner token generation.
func WithTokenSource(fn func() string) RedisOption {
	return func(l *RedisLocker) {
		l.newToken = fn
	}
}

// NewRedisLocker creates a Redis-backed locker.
func NewRedisLocker(client redis.Cmdable, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client:   client,
		ttl:      DefaultTTL,
		newToken: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire takes the lease for key or returns ErrHeld.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (*Lease, error) {
	token := l.newToken()
	full := l.prefix + key

	ok, err := l.client.SetNX(ctx, full, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", full, err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return &Lease{Key: key, Token: token, ExpiresAt: time.Now().Add(l.ttl)}, nil
}

// Release drops the lease if still owned.
func (l *RedisLocker) Release(ctx context.Context, held *Lease) error {
	full := l.prefix + held.Key

	n, err := l.client.Eval(ctx, releaseScript, []string{full}, held.Token).Int64()
	if err != nil {
		return fmt.Errorf("release lease %s: %w", full, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisClient parses a redis:// URL and verifies connectivity.
// A non-empty password or non-zero db overrides the URL.
func NewRedisClient(ctx context.Context, url, password string, db int) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	if db != 0 {
		opts.DB = db
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
