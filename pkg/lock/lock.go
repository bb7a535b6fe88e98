// Package lock provides short-lived mutual exclusion keyed by string.
//
// The service uses it in two places: serialising first-time creation of an
// asset for a given symbol, and electing a single replica to run the
// scheduled reconcile job.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotAcquired is returned by TryAcquire when another holder owns the key.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker hands out leases on keys. Release must be called exactly once per
// successful acquisition; releasing a lease that already expired is a no-op.
type Locker interface {
	// Acquire blocks until the key is free, ctx is done, or the lease is granted.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
	// TryAcquire returns ErrNotAcquired immediately if the key is held.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// Local is an in-process Locker. The ttl is ignored; leases last until released.
// A key's slot lives only while someone holds or waits on it.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

func (l *Local) join(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Local) leave(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *Local) lease(key string, s *slot) func() {
	return releaseOnce(func() {
		<-s.ch
		l.leave(key, s)
	})
}

func (l *Local) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	s := l.join(key)
	select {
	case s.ch <- struct{}{}:
		return l.lease(key, s), nil
	case <-ctx.Done():
		l.leave(key, s)
		return nil, ctx.Err()
	}
}

func (l *Local) TryAcquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	s := l.join(key)
	select {
	case s.ch <- struct{}{}:
		return l.lease(key, s), nil
	default:
		l.leave(key, s)
		return nil, ErrNotAcquired
	}
}

func releaseOnce(f func()) func() {
	var once sync.Once
	return func() { once.Do(f) }
}
