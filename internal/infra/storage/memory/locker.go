package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stayhub/internal/app/policies"
)

// KeyedLocker is a process-local mutual exclusion keyed by string.
type KeyedLocker struct {
	mu      sync.Mutex
	slots   map[string]*slot
	Timeout time.Duration
}

type slot struct {
	ch      chan struct{}
	waiters int
}

func NewKeyedLocker(timeout time.Duration) *KeyedLocker {
	return &KeyedLocker{slots: make(map[string]*slot), Timeout: timeout}
}

func (l *KeyedLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.waiters++
	l.mu.Unlock()

	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}
	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.leave(key, s)
		return nil, fmt.Errorf("%w: %s", policies.ErrLockTimeout, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.leave(key, s)
		})
	}, nil
}

func (l *KeyedLocker) leave(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.waiters--
	if s.waiters == 0 {
		delete(l.slots, key)
	}
}

var _ policies.Locker = (*KeyedLocker)(nil)
