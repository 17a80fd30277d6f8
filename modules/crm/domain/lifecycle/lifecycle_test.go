package lifecycle

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	require.True(t, CanTransition(Active, ConvertedToContact))
	require.True(t, CanTransition(Active, PromotedToAccount))
	require.True(t, CanTransition(ConvertedToContact, Archived))
	require.True(t, CanTransition(PromotedToAccount, Archived))

	require.False(t, CanTransition(ConvertedToContact, Active))
	require.False(t, CanTransition(Archived, Active))
	require.False(t, CanTransition(Active, Archived))
	require.False(t, CanTransition(ConvertedToContact, PromotedToAccount))
}

func TestTerminalStatesAreOneWay(t *testing.T) {
	all := []State{Active, ConvertedToContact, PromotedToAccount, Archived, ConvertedFromLead, PromotedFromSource}
	for _, from := range all {
		if !from.IsTerminal() {
			continue
		}
		require.False(t, CanTransition(from, Active), "%s must not return to active", from)
	}
	require.False(t, Active.IsTerminal())
	require.False(t, ConvertedFromLead.IsTerminal())
}

func TestGuardDelete(t *testing.T) {
	id := uuid.New()
	require.NoError(t, GuardDelete("lead", id, Active))

	err := GuardDelete("lead", id, ConvertedToContact)
	require.ErrorIs(t, err, ErrImmutableRecord)
	require.Contains(t, err.Error(), "converted to contact")

	var immutable *ImmutableError
	require.True(t, errors.As(GuardDelete("sourcing_record", id, Archived), &immutable))
	require.Equal(t, Archived, immutable.State)
}

func TestGuardStatusWrite(t *testing.T) {
	id := uuid.New()
	require.NoError(t, GuardStatusWrite("lead", id, "", "", false))
	require.NoError(t, GuardStatusWrite("lead", id, "", Active, false))
	require.NoError(t, GuardStatusWrite("lead", id, Active, "", true))
	require.NoError(t, GuardStatusWrite("lead", id, ConvertedToContact, ConvertedToContact, true))
	require.NoError(t, GuardStatusWrite("contact", id, ConvertedFromLead, ConvertedFromLead, true))

	err := GuardStatusWrite("lead", id, ConvertedToContact, Active, true)
	require.ErrorIs(t, err, ErrImmutableRecord)
	require.Contains(t, err.Error(), "cannot be moved to active")

	err = GuardStatusWrite("sourcing_record", id, Archived, PromotedToAccount, true)
	require.ErrorIs(t, err, ErrImmutableRecord)

	var status *StatusError
	err = GuardStatusWrite("lead", id, Active, ConvertedToContact, true)
	require.ErrorIs(t, err, ErrManagedStatus)
	require.True(t, errors.As(err, &status))
	require.Equal(t, Active, status.From)
	require.Equal(t, ConvertedToContact, status.To)

	require.ErrorIs(t, GuardStatusWrite("lead", id, ConvertedToContact, Archived, true), ErrImmutableRecord)
	require.ErrorIs(t, GuardStatusWrite("lead", id, "", PromotedToAccount, false), ErrManagedStatus)
}

func TestFilters(t *testing.T) {
	require.True(t, ActiveOnly.Matches(Active))
	require.True(t, ActiveOnly.Matches(""))
	require.False(t, ActiveOnly.Matches(ConvertedToContact))

	require.True(t, ActiveOrConverted.Matches(Active))
	require.True(t, ActiveOrConverted.Matches(ConvertedFromLead))
	require.True(t, ActiveOrConverted.Matches(PromotedFromSource))
	require.False(t, ActiveOrConverted.Matches(Archived))

	require.True(t, Any.Matches(Archived))

	clause, arg := ActiveOnly.SQL("l.status", 2)
	require.Equal(t, "COALESCE(l.status, 'active') = ANY($2)", clause)
	require.Equal(t, []string{"active"}, arg)

	clause, arg = Any.SQL("status", 1)
	require.Equal(t, "TRUE", clause)
	require.Nil(t, arg)
}

func TestParse(t *testing.T) {
	st, err := Parse(" Converted_To_Contact ")
	require.NoError(t, err)
	require.Equal(t, ConvertedToContact, st)

	st, err = Parse("")
	require.NoError(t, err)
	require.Equal(t, Active, st)

	_, err = Parse("zombie")
	require.Error(t, err)
}

func TestKind(t *testing.T) {
	require.True(t, KindConvert.Unique())
	require.True(t, KindPromote.Unique())
	require.False(t, KindMerge.Unique())
	require.False(t, Kind("teleport").Valid())
}
