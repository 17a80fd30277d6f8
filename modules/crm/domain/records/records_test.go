package records

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/lifecycle"
)

func TestLeadSnapshot_IsJSONShaped(t *testing.T) {
	id := uuid.New()
	account := uuid.New()
	lead := Lead{
		ID:        id,
		TenantID:  uuid.New(),
		FirstName: "Jane",
		LastName:  "Doe",
		Company:   "Acme",
		Status:    lifecycle.Active,
		AccountID: &account,
		Metadata:  map[string]any{"score": 3},
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	snap := lead.Snapshot()
	require.Equal(t, id.String(), snap["id"])
	require.Equal(t, "Jane", snap["first_name"])
	require.Equal(t, "Acme", snap["company"])
	require.Equal(t, "active", snap["status"])
	require.Equal(t, account.String(), snap["account_id"])
	require.Nil(t, snap["assigned_to"])
	require.Equal(t, "2024-01-02T03:04:05Z", snap["created_at"])
	require.Equal(t, map[string]any{"score": float64(3)}, snap["metadata"])
	require.Equal(t, "Jane Doe", lead.FullName())
}

func TestPersonRefs(t *testing.T) {
	person := uuid.New()
	other := uuid.New()

	require.Equal(t, []uuid.UUID{person}, Lead{ID: person}.PersonRefs())
	require.Empty(t, Account{ID: other}.PersonRefs())
	require.Empty(t, SourcingRecord{ID: other}.PersonRefs())

	opp := Opportunity{ContactID: &person, LeadID: &person, Amount: decimal.NewFromInt(10)}
	require.Equal(t, []uuid.UUID{person}, opp.PersonRefs())
	require.True(t, opp.LinkedTo(person))
	require.False(t, opp.LinkedTo(other))

	require.Equal(t, []uuid.UUID{person}, Activity{RelatedType: TypeContact, RelatedID: &person}.PersonRefs())
	require.Equal(t, []uuid.UUID{person}, Note{RelatedID: &person}.PersonRefs())
	require.Empty(t, Document{RelatedType: TypeAccount, RelatedID: &other}.PersonRefs())
}

func TestActivityWhen(t *testing.T) {
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	occurred := created.Add(-time.Hour)
	require.Equal(t, created, Activity{CreatedAt: created}.When())
	require.Equal(t, occurred, Activity{CreatedAt: created, OccurredAt: &occurred}.When())
}

func TestAssigneeDisplayName(t *testing.T) {
	require.Equal(t, "Ada Lovelace", Assignee{FirstName: " Ada ", LastName: "Lovelace"}.DisplayName())
	require.Equal(t, "ada@example.com", Assignee{Email: "ada@example.com"}.DisplayName())
}

func TestTypeTable(t *testing.T) {
	require.Equal(t, "leads", TypeLead.Table())
	require.Equal(t, "opportunities", TypeOpportunity.Table())
	require.Equal(t, "activities", TypeActivity.Table())
	require.Equal(t, "sourcing_records", TypeSourcingRecord.Table())

	typ, ok := ParseType(" Contact ")
	require.True(t, ok)
	require.Equal(t, TypeContact, typ)
	_, ok = ParseType("ticket")
	require.False(t, ok)
}
