package composables

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andreibyf/aishacrm-2-sub007/pkg/configuration"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/constants"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/repo"
)

// TenantSetting is the transaction-local setting the row level security
// policies compare tenant_id against.
const TenantSetting = "crm.tenant_id"

var ErrNoPool = errors.New("no database pool found in context")

func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, constants.TxKey, tx)
}

// UseTx returns the ambient transaction, falling back to the pool.
func UseTx(ctx context.Context) (repo.Tx, error) {
	if tx, ok := ctx.Value(constants.TxKey).(pgx.Tx); ok && tx != nil {
		return tx, nil
	}
	return UsePool(ctx)
}

func HasTx(ctx context.Context) bool {
	tx, ok := ctx.Value(constants.TxKey).(pgx.Tx)
	return ok && tx != nil
}

func WithPool(ctx context.Context, pool *pgxpool.Pool) context.Context {
	return context.WithValue(ctx, constants.PoolKey, pool)
}

func UsePool(ctx context.Context) (*pgxpool.Pool, error) {
	pool, ok := ctx.Value(constants.PoolKey).(*pgxpool.Pool)
	if !ok || pool == nil {
		return nil, ErrNoPool
	}
	return pool, nil
}

// InTenantTx runs fn in a transaction scoped to tenantID. An ambient
// transaction is joined and re-scoped; otherwise one is opened on the
// context pool and committed when fn succeeds.
func InTenantTx(ctx context.Context, tenantID uuid.UUID, fn func(txCtx context.Context) error) error {
	if tenantID != uuid.Nil {
		ctx = WithTenantID(ctx, tenantID)
	}
	enforce := configuration.Use().RLSEnforce == "enforce"

	if tx, ok := ctx.Value(constants.TxKey).(pgx.Tx); ok && tx != nil {
		if err := scopeTenant(ctx, tx, enforce); err != nil {
			return err
		}
		return fn(ctx)
	}

	pool, err := UsePool(ctx)
	if err != nil {
		return err
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	txCtx := WithTx(ctx, tx)

	err = scopeTenant(txCtx, tx, enforce)
	if err == nil {
		err = fn(txCtx)
	}
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.Commit(ctx)
}

// scopeTenant sets TenantSetting for the rest of tx. It is a no-op unless
// enforce is set, in which case ctx must carry a tenant.
func scopeTenant(ctx context.Context, tx repo.Tx, enforce bool) error {
	if !enforce {
		return nil
	}
	tenantID, err := UseTenantID(ctx)
	if err != nil {
		return fmt.Errorf("tenant scope: %w", err)
	}
	if _, err := tx.Exec(ctx, "SELECT set_config($1, $2, true)", TenantSetting, tenantID.String()); err != nil {
		return fmt.Errorf("tenant scope: %w", err)
	}
	return nil
}
