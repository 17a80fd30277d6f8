package profile

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSameAggregate_IgnoresUpdatedAt(t *testing.T) {
	base := PersonProfile{
		PersonID:             uuid.New(),
		FirstName:            "Jane",
		OpenOpportunityCount: 1,
		OpenPipelineAmount:   decimal.RequireFromString("10.50"),
		OpportunityStages:    []string{"proposal"},
		UpdatedAt:            time.Now(),
	}
	later := base
	later.UpdatedAt = base.UpdatedAt.Add(time.Minute)
	later.OpenPipelineAmount = decimal.RequireFromString("10.5")
	require.True(t, base.SameAggregate(later))

	changed := later
	changed.OpportunityStages = []string{"negotiation"}
	require.False(t, base.SameAggregate(changed))
}

func TestSameAggregate_EmptyAndNilListsMatch(t *testing.T) {
	a := PersonProfile{RecentNotes: []NoteSummary{}}
	b := PersonProfile{}
	require.True(t, a.SameAggregate(b))
}
