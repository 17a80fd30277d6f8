package composables

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/andreibyf/aishacrm-2-sub007/pkg/constants"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/repo"
)

func TestTenantID_RoundTrip(t *testing.T) {
	_, err := UseTenantID(context.Background())
	require.ErrorIs(t, err, ErrNoTenantID)

	id := uuid.New()
	got, err := UseTenantID(WithTenantID(context.Background(), id))
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestUseTx_FallsBackToPool(t *testing.T) {
	_, err := UseTx(context.Background())
	require.ErrorIs(t, err, ErrNoPool)
	require.False(t, HasTx(context.Background()))
}

func TestUseLogger_AcceptsEntryAndLogger(t *testing.T) {
	require.Nil(t, UseLogger(context.Background()))

	entry := logrus.NewEntry(logrus.New())
	require.Same(t, entry, UseLogger(WithLogger(context.Background(), entry)))

	logger := logrus.New()
	require.Same(t, logger, UseLogger(context.WithValue(context.Background(), constants.LoggerKey, logger)).Logger)
}

func TestActor(t *testing.T) {
	_, ok := UseActor(context.Background())
	require.False(t, ok)
	actor, ok := UseActor(WithActor(context.Background(), "user:42"))
	require.True(t, ok)
	require.Equal(t, "user:42", actor)
}

type execRecorder struct {
	repo.Tx
	sql  string
	args []any
}

func (r *execRecorder) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql, r.args = sql, args
	return pgconn.CommandTag{}, nil
}

func TestScopeTenant(t *testing.T) {
	rec := &execRecorder{}
	require.NoError(t, scopeTenant(context.Background(), rec, false))
	require.Empty(t, rec.sql)

	require.ErrorIs(t, scopeTenant(context.Background(), rec, true), ErrNoTenantID)

	tenant := uuid.New()
	require.NoError(t, scopeTenant(WithTenantID(context.Background(), tenant), rec, true))
	require.Contains(t, rec.sql, "set_config")
	require.Equal(t, []any{TenantSetting, tenant.String()}, rec.args)
}
