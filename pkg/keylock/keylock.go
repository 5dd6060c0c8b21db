// Package keylock provides exclusive locks scoped to a string key.
//
// Locks for different keys are independent. Acquisition honours context
// cancellation and an optional wait limit, so callers never block forever on a
// hot key.
package keylock

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/sync/semaphore"
)

// ErrTimeout is returned when the lock could not be acquired within the wait limit.
var ErrTimeout = errors.New("lock wait timeout")

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// Locker hands out per-key exclusive locks. The zero value is not usable; use New.
type Locker struct {
	wait time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

// New returns a Locker whose Lock gives up after wait. A non-positive wait
// means only ctx bounds acquisition.
func New(wait time.Duration) *Locker {
	return &Locker{
		wait:    wait,
		entries: make(map[string]*entry),
	}
}

// Lock acquires the lock for key and returns the function releasing it.
// It returns ErrTimeout if the wait limit elapses first, or ctx.Err() if ctx
// is done first.
func (l *Locker) Lock(ctx context.Context, key string) (unlock func(), err error) {
	return l.acquire(ctx, key, l.wait)
}

// LockUnbounded acquires the lock for key ignoring the wait limit; only ctx
// bounds it. Undo steps use it so they cannot lose to a busy key.
func (l *Locker) LockUnbounded(ctx context.Context, key string) (unlock func(), err error) {
	return l.acquire(ctx, key, 0)
}

func (l *Locker) acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	e := l.ref(key)

	acquireCtx := ctx
	if wait > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}

	if err := e.sem.Acquire(acquireCtx, 1); err != nil {
		l.unref(key, e)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, ErrTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			l.unref(key, e)
		})
	}, nil
}

// Len returns the number of keys currently locked or waited on.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Locker) ref(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *Locker) unref(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}
