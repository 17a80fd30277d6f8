package locks

import (
	"context"
	"time"

	"github.com/andreibyf/aishacrm-2-sub007/pkg/composables"
)

// Advisory locks through Postgres advisory locks keyed by hashtext(key).
//
// WithLock takes a transaction-scoped lock on the ambient transaction, so it
// is released on commit or rollback even if the process dies. TryWithLock
// takes a session lock on a dedicated pool connection and unlocks it when fn
// returns, leaving fn free to open its own transactions.
type Advisory struct{}

func NewAdvisory() *Advisory {
	return &Advisory{}
}

func (a *Advisory) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if key == "" {
		return ErrEmptyKey
	}
	if !composables.HasTx(ctx) {
		return ErrNoTx
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	start := time.Now()
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
		return err
	}
	observeWait("postgres", start)
	return fn(ctx)
}

func (a *Advisory) TryWithLock(ctx context.Context, key string, fn func(ctx context.Context) error) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	pool, err := composables.UsePool(ctx)
	if err != nil {
		return false, err
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Release()

	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", key).Scan(&ok); err != nil {
		return false, err
	}
	observeTry("postgres", ok)
	if !ok {
		return false, nil
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock(hashtext($1))", key)
	}()

	return true, fn(ctx)
}
