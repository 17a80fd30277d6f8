// Package persistence is the PostgreSQL backend of the sync engine. Units of
// work run through composables.InTenantTx, so RLS and the ambient pgx.Tx are
// handled the same way as in the rest of the application.
package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/aggregates/profile"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/entities/transition"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/composables"
)

type Store struct {
	pool        *pgxpool.Pool
	records     *RecordRepository
	profiles    *ProfileRepository
	transitions *TransitionRepository
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:        pool,
		records:     NewRecordRepository(pool),
		profiles:    NewProfileRepository(pool),
		transitions: NewTransitionRepository(pool),
	}
}

func (s *Store) Records() records.Repository        { return s.records }
func (s *Store) Profiles() profile.Repository       { return s.profiles }
func (s *Store) Transitions() transition.Repository { return s.transitions }

func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) InTenantTx(ctx context.Context, tenantID uuid.UUID, fn func(txCtx context.Context) error) error {
	if _, err := composables.UsePool(ctx); err != nil {
		ctx = composables.WithPool(ctx, s.pool)
	}
	return composables.InTenantTx(ctx, tenantID, fn)
}

// ResetColumns forgets the cached column probe, e.g. after migrations.
func (s *Store) ResetColumns() {
	s.records.columns.Reset()
}
