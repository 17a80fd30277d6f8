// Package locks provides scoped mutual exclusion keyed by string.
//
// WithLock blocks until the key is free and holds it for the duration of fn.
// TryWithLock never waits: when the key is held elsewhere it returns
// (false, nil) without running fn. Both release the key when fn returns or
// panics.
package locks

import (
	"context"
	"time"

	"github.com/andreibyf/aishacrm-2-sub007/pkg/serrors"
)

type Coordinator interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
	TryWithLock(ctx context.Context, key string, fn func(ctx context.Context) error) (ran bool, err error)
}

var (
	ErrEmptyKey = serrors.NewError("LOCKS_EMPTY_KEY", "lock key is required", "")
	ErrNoTx     = serrors.NewError("LOCKS_NO_TX", "advisory transaction lock requires an ambient transaction", "")
)

func observeWait(backend string, start time.Time) {
	getMetrics().wait.WithLabelValues(backend).Observe(time.Since(start).Seconds())
}

func observeTry(backend string, acquired bool) {
	result := "acquired"
	if !acquired {
		result = "busy"
	}
	getMetrics().try.WithLabelValues(backend, result).Inc()
}
