package locks

import (
	"context"
	"sync"
	"time"
)

// Local is an in-process Coordinator. Entries are reference counted so the
// map only holds keys that are locked or being waited on.
type Local struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

type localEntry struct {
	sem  chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{entries: map[string]*localEntry{}}
}

func (l *Local) ref(key string) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *Local) unref(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

func (l *Local) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if key == "" {
		return ErrEmptyKey
	}
	e := l.ref(key)
	defer l.unref(key, e)

	start := time.Now()
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	observeWait("local", start)
	defer func() { <-e.sem }()

	return fn(ctx)
}

func (l *Local) TryWithLock(ctx context.Context, key string, fn func(ctx context.Context) error) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	e := l.ref(key)
	defer l.unref(key, e)

	select {
	case e.sem <- struct{}{}:
	default:
		observeTry("local", false)
		return false, nil
	}
	observeTry("local", true)
	defer func() { <-e.sem }()

	return true, fn(ctx)
}

// Held reports how many keys are currently locked or awaited.
func (l *Local) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
