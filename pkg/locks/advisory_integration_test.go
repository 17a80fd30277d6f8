//go:build integration

package locks

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/andreibyf/aishacrm-2-sub007/pkg/composables"
)

func TestAdvisory_TryWithLock_SkipsWhenHeld(t *testing.T) {
	dsn := os.Getenv("CRM_TEST_DSN")
	if dsn == "" {
		t.Skip("CRM_TEST_DSN is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()
	ctx = composables.WithPool(ctx, pool)

	a := NewAdvisory()
	ran, err := a.TryWithLock(ctx, "crm:it:rollup", func(inner context.Context) error {
		nested, nestedErr := a.TryWithLock(inner, "crm:it:rollup", func(context.Context) error { return nil })
		require.NoError(t, nestedErr)
		require.False(t, nested)
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)

	ran, err = a.TryWithLock(ctx, "crm:it:rollup", func(context.Context) error { return nil })
	require.NoError(t, err)
	require.True(t, ran)
}
