package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/aggregates/profile"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/entities/transition"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/lifecycle"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/infrastructure/memory"
)

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "crm.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)

	tenant := uuid.New()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	lead := records.Lead{ID: uuid.New(), TenantID: tenant, FirstName: "Ada", Status: lifecycle.Active, CreatedAt: now, UpdatedAt: now}
	opp := records.Opportunity{ID: uuid.New(), TenantID: tenant, Stage: "proposal", Amount: decimal.RequireFromString("99.95"), LeadID: &lead.ID}

	err = s.InTenantTx(ctx, tenant, func(txCtx context.Context) error {
		if err := s.Records().SaveLead(txCtx, lead); err != nil {
			return err
		}
		if err := s.Records().SaveOpportunity(txCtx, opp); err != nil {
			return err
		}
		if err := s.Profiles().Upsert(txCtx, profile.PersonProfile{PersonID: lead.ID, TenantID: tenant, PersonType: records.TypeLead}); err != nil {
			return err
		}
		return s.Transitions().Append(txCtx, transition.New(tenant, lead, records.TypeContact, uuid.New(), lifecycle.KindConvert, nil, now))
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.Records().Lead(ctx, tenant, lead.ID)
	require.NoError(t, err)
	require.Equal(t, "Ada", got.FirstName)

	gotOpp, err := reopened.Records().Opportunity(ctx, tenant, opp.ID)
	require.NoError(t, err)
	require.True(t, opp.Amount.Equal(gotOpp.Amount))

	_, err = reopened.Profiles().Get(ctx, tenant, lead.ID)
	require.NoError(t, err)

	ts, err := reopened.Transitions().ForSource(ctx, tenant, records.TypeLead, lead.ID)
	require.NoError(t, err)
	require.Len(t, ts, 1)
	require.Equal(t, "Ada", ts[0].Snapshot["first_name"])
}

func TestStore_FailedPersistKeepsState(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "crm.db"))
	require.NoError(t, err)

	tenant := uuid.New()
	require.NoError(t, s.Records().SaveAssignee(ctx, records.Assignee{ID: uuid.New(), TenantID: tenant, FirstName: "Dana"}))
	require.NoError(t, s.Close())

	id := uuid.New()
	err = s.Records().SaveAssignee(ctx, records.Assignee{ID: id, TenantID: tenant, FirstName: "Fox"})
	require.Error(t, err)

	_, err = s.Records().Assignee(ctx, tenant, id)
	require.ErrorIs(t, err, records.ErrNotFound)
}

func TestStore_EmptyFileStartsEmpty(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "crm.db"), memory.WithoutColumns("leads.job_title"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	tenants, err := s.Records().Tenants(ctx)
	require.NoError(t, err)
	require.Empty(t, tenants)

	ok, err := s.Records().HasColumn(ctx, "leads", "job_title")
	require.NoError(t, err)
	require.False(t, ok)
}
