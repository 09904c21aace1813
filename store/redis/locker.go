package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/xraph/affiliate/txlock"
)

var _ txlock.Locker = (*Locker)(nil)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a txlock.Locker shared by every process using the same Redis.
// The TTL bounds how long a crashed holder can block a transaction id.
type Locker struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	backoff time.Duration
	logger  zerolog.Logger
}

// LockerOption configures a Locker.
type LockerOption func(*Locker)

// WithTTL sets the lock expiry. Default 30s.
func WithTTL(d time.Duration) LockerOption {
	return func(l *Locker) { l.ttl = d }
}

// WithBackoff sets the initial retry delay; it doubles up to 32 times that. Default 10ms.
func WithBackoff(d time.Duration) LockerOption {
	return func(l *Locker) { l.backoff = d }
}

// WithLockPrefix replaces DefaultPrefix + "lock:".
func WithLockPrefix(prefix string) LockerOption {
	return func(l *Locker) { l.prefix = prefix }
}

// WithLockLogger sets the logger used for failed releases.
func WithLockLogger(logger zerolog.Logger) LockerOption {
	return func(l *Locker) { l.logger = logger }
}

// NewLocker creates a distributed locker on client.
func NewLocker(client *redis.Client, opts ...LockerOption) *Locker {
	l := &Locker{
		client:  client,
		prefix:  DefaultPrefix + "lock:",
		ttl:     30 * time.Second,
		backoff: 10 * time.Millisecond,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock implements txlock.Locker with SET NX PX, retrying until ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (txlock.Unlock, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	redisKey := l.prefix + key

	delay := l.backoff
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("affiliate/redis: lock %s: %w", key, err)
		}
		if ok {
			break
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
		if delay < 32*l.backoff {
			delay *= 2
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's ctx may already be cancelled; release regardless.
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.client, []string{redisKey}, token).Err(); err != nil {
				l.logger.Error().Err(err).Str("key", key).Msg("release lock")
			}
		})
	}, nil
}

func newToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("affiliate/redis: lock token: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
