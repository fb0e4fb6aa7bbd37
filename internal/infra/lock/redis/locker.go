package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"stayhub/internal/app/policies"
)

// releaseScript deletes the key only while it still carries our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker implements policies.Locker with SET NX PX. The TTL bounds how long a
// crashed holder can block others.
type Locker struct {
	Client  goredis.UniversalClient
	Prefix  string
	TTL     time.Duration
	Timeout time.Duration
	Retry   time.Duration
	Logger  *slog.Logger
}

func New(client goredis.UniversalClient, timeout time.Duration) *Locker {
	return &Locker{Client: client, Prefix: "stayhub:lock:", TTL: time.Minute, Timeout: timeout, Retry: 25 * time.Millisecond}
}

func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}
	full := l.Prefix + key
	token := uuid.NewString()
	retry := l.Retry
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	for {
		ok, err := l.Client.SetNX(ctx, full, token, l.ttl()).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			return l.releaser(full, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", policies.ErrLockTimeout, key)
		case <-time.After(retry):
		}
	}
}

func (l *Locker) releaser(key, token string) func() {
	return func() {
		// Release must run even when the request context is already canceled.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.Client, []string{key}, token).Err(); err != nil && l.Logger != nil {
			l.Logger.Warn("redis lock release failed", "key", key, "error", err)
		}
	}
}

func (l *Locker) ttl() time.Duration {
	if l.TTL <= 0 {
		return time.Minute
	}
	return l.TTL
}

var _ policies.Locker = (*Locker)(nil)
