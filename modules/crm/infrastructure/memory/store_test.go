package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/entities/transition"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/lifecycle"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/infrastructure/memory"
)

func TestInTenantTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	tenantID := uuid.New()
	lead := records.Lead{ID: uuid.New(), TenantID: tenantID, FirstName: "Ada", Status: lifecycle.Active}

	boom := errors.New("boom")
	err := store.InTenantTx(ctx, tenantID, func(txCtx context.Context) error {
		require.NoError(t, store.Records().SaveLead(txCtx, lead))
		got, err := store.Records().Lead(txCtx, tenantID, lead.ID)
		require.NoError(t, err)
		require.Equal(t, "Ada", got.FirstName)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.Records().Lead(ctx, tenantID, lead.ID)
	require.ErrorIs(t, err, records.ErrNotFound)
}

func TestInTenantTx_NestedJoinsOuter(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	tenantID := uuid.New()
	lead := records.Lead{ID: uuid.New(), TenantID: tenantID}

	err := store.InTenantTx(ctx, tenantID, func(txCtx context.Context) error {
		return store.InTenantTx(txCtx, tenantID, func(inner context.Context) error {
			return store.Records().SaveLead(inner, lead)
		})
	})
	require.NoError(t, err)

	_, err = store.Records().Lead(ctx, tenantID, lead.ID)
	require.NoError(t, err)
}

func TestCommitHook_SeesStateAndCanAbort(t *testing.T) {
	ctx := context.Background()
	var seen int
	fail := false
	store := memory.New(memory.WithCommitHook(func(_ context.Context, next memory.Snapshot) error {
		seen = len(next.Leads)
		if fail {
			return errors.New("disk full")
		}
		return nil
	}))
	tenantID := uuid.New()

	require.NoError(t, store.Records().SaveLead(ctx, records.Lead{ID: uuid.New(), TenantID: tenantID}))
	require.Equal(t, 1, seen)

	fail = true
	require.Error(t, store.Records().SaveLead(ctx, records.Lead{ID: uuid.New(), TenantID: tenantID}))
	require.Equal(t, 2, seen)
	require.Len(t, store.ExportState().Leads, 1)
}

func TestRecords_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	tenantA, tenantB := uuid.New(), uuid.New()
	contact := records.Contact{ID: uuid.New(), TenantID: tenantA}
	require.NoError(t, store.Records().SaveContact(ctx, contact))

	_, err := store.Records().Contact(ctx, tenantB, contact.ID)
	require.ErrorIs(t, err, records.ErrNotFound)
	require.ErrorIs(t, store.Records().Delete(ctx, records.TypeContact, tenantB, contact.ID), records.ErrNotFound)
}

func TestInsertContact_Duplicate(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	c := records.Contact{ID: uuid.New(), TenantID: uuid.New()}
	require.NoError(t, store.Records().InsertContact(ctx, c))
	require.ErrorIs(t, store.Records().InsertContact(ctx, c), records.ErrDuplicate)
}

func TestActivePersons_AppliesLifecycleFilters(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	tenantID := uuid.New()
	repo := store.Records()

	active := records.Lead{ID: uuid.New(), TenantID: tenantID}
	converted := records.Lead{ID: uuid.New(), TenantID: tenantID, Status: lifecycle.ConvertedToContact}
	fromLead := records.Contact{ID: uuid.New(), TenantID: tenantID, Status: lifecycle.ConvertedFromLead}
	archived := records.Contact{ID: uuid.New(), TenantID: tenantID, Status: lifecycle.Archived}
	for _, l := range []records.Lead{active, converted} {
		require.NoError(t, repo.SaveLead(ctx, l))
	}
	for _, c := range []records.Contact{fromLead, archived} {
		require.NoError(t, repo.SaveContact(ctx, c))
	}

	persons, err := repo.ActivePersons(ctx, tenantID)
	require.NoError(t, err)
	require.ElementsMatch(t, []records.PersonRef{
		{ID: active.ID, Type: records.TypeLead},
		{ID: fromLead.ID, Type: records.TypeContact},
	}, persons)

	tenants, err := repo.Tenants(ctx)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{tenantID}, tenants)
}

func TestRecentActivities_OrderingAndLimit(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	tenantID, personID := uuid.New(), uuid.New()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time { v := base.Add(d); return &v }

	newest := records.Activity{ID: uuid.New(), TenantID: tenantID, RelatedID: &personID, OccurredAt: at(2 * time.Hour), CreatedAt: base}
	older := records.Activity{ID: uuid.New(), TenantID: tenantID, RelatedID: &personID, OccurredAt: at(time.Hour), CreatedAt: base}
	undated := records.Activity{ID: uuid.New(), TenantID: tenantID, RelatedID: &personID, CreatedAt: base.Add(5 * time.Hour)}
	other := records.Activity{ID: uuid.New(), TenantID: tenantID, RelatedID: ptr(uuid.New()), OccurredAt: at(3 * time.Hour)}
	for _, a := range []records.Activity{undated, older, newest, other} {
		require.NoError(t, store.Records().SaveActivity(ctx, a))
	}

	got, err := store.Records().RecentActivities(ctx, tenantID, personID, 10)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{newest.ID, older.ID, undated.ID}, ids(got))

	got, err = store.Records().RecentActivities(ctx, tenantID, personID, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestWithoutColumns_MasksOptionalData(t *testing.T) {
	ctx := context.Background()
	store := memory.New(memory.WithoutColumns("activities.occurred_at", "notes.assigned_to"))
	tenantID, personID := uuid.New(), uuid.New()
	occurred := time.Now()
	a := records.Activity{ID: uuid.New(), TenantID: tenantID, RelatedID: &personID, OccurredAt: &occurred}
	require.NoError(t, store.Records().SaveActivity(ctx, a))

	got, err := store.Records().RecentActivities(ctx, tenantID, personID, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Nil(t, got[0].OccurredAt)

	ok, err := store.Records().HasColumn(ctx, "activities", "occurred_at")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = store.Records().AssigneeCopies(ctx, tenantID, records.TypeNote, uuid.New())
	require.ErrorIs(t, err, records.ErrColumnMissing)
}

func TestTransitions_UniqueKindsAndTracking(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	tenantID := uuid.New()
	lead := records.Lead{ID: uuid.New(), TenantID: tenantID, FirstName: "Grace", LastName: "Hopper", Status: lifecycle.ConvertedToContact}
	contact := records.Contact{ID: uuid.New(), TenantID: tenantID, FirstName: "Grace", LastName: "Hopper", Status: lifecycle.ConvertedFromLead}
	require.NoError(t, store.Records().SaveLead(ctx, lead))
	require.NoError(t, store.Records().SaveContact(ctx, contact))

	tr := transition.New(tenantID, lead, records.TypeContact, contact.ID, lifecycle.KindConvert, nil, time.Now())
	require.NoError(t, store.Transitions().Append(ctx, tr))

	again := transition.New(tenantID, lead, records.TypeContact, uuid.New(), lifecycle.KindConvert, nil, time.Now())
	require.ErrorIs(t, store.Transitions().Append(ctx, again), transition.ErrDuplicate)

	merge := transition.New(tenantID, lead, records.TypeContact, uuid.New(), lifecycle.KindMerge, nil, time.Now())
	require.NoError(t, store.Transitions().Append(ctx, merge))
	require.NoError(t, store.Transitions().Append(ctx, transition.New(tenantID, lead, records.TypeContact, uuid.New(), lifecycle.KindMerge, nil, time.Now())))

	rows, err := store.Transitions().ConversionTracking(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Grace Hopper", rows[0].SourceName)
	require.Equal(t, lifecycle.ConvertedFromLead, rows[0].TargetStatus)

	bySource, err := store.Transitions().ForSource(ctx, tenantID, records.TypeLead, lead.ID)
	require.NoError(t, err)
	require.Len(t, bySource, 3)
}

func TestTransitions_SnapshotIsDetached(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	tenantID := uuid.New()
	lead := records.Lead{ID: uuid.New(), TenantID: tenantID, FirstName: "Ada", LastName: "Lovelace", Metadata: map[string]any{"tags": []any{"vip"}}}

	tr := transition.New(tenantID, lead, records.TypeContact, lead.ID, lifecycle.KindConvert, nil, time.Now())
	require.NoError(t, store.Transitions().Append(ctx, tr))
	tr.Snapshot["first_name"] = "Mallory"

	got, err := store.Transitions().ForSource(ctx, tenantID, records.TypeLead, lead.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Ada", got[0].Snapshot["first_name"])

	got[0].Snapshot["first_name"] = "Eve"
	got[0].Snapshot["metadata"].(map[string]any)["tags"] = []any{"changed"}

	again, err := store.Transitions().ForSource(ctx, tenantID, records.TypeLead, lead.ID)
	require.NoError(t, err)
	require.Equal(t, "Ada", again[0].Snapshot["first_name"])
	require.Equal(t, []any{"vip"}, again[0].Snapshot["metadata"].(map[string]any)["tags"])

	byTarget, err := store.Transitions().ForTarget(ctx, tenantID, records.TypeContact, lead.ID)
	require.NoError(t, err)
	require.Equal(t, "Ada", byTarget[0].Snapshot["first_name"])
}

func TestImportState_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := memory.New()
	tenantID := uuid.New()
	require.NoError(t, src.Records().SaveAccount(ctx, records.Account{ID: uuid.New(), TenantID: tenantID, Name: "Acme"}))

	dst := memory.New()
	dst.ImportState(src.ExportState())
	accounts, err := dst.Records().Accounts(ctx, tenantID, lifecycle.Any)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.Equal(t, "Acme", accounts[0].Name)
}

func ptr[T any](v T) *T { return &v }

func ids(as []records.Activity) []uuid.UUID {
	out := make([]uuid.UUID, len(as))
	for i, a := range as {
		out[i] = a.ID
	}
	return out
}
