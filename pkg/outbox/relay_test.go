package outbox

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func planRelay(coalesce CoalesceFunc) *Relay {
	return &Relay{
		store: &tableStore{ident: testTable, label: TableLabel(testTable)},
		opts:  RelayOptions{Coalesce: coalesce},
	}
}

func batchOf(topics ...string) []claimed {
	out := make([]claimed, len(topics))
	for i, topic := range topics {
		out[i] = claimed{ID: uuid.New(), Topic: topic, Sequence: int64(i + 1)}
	}
	return out
}

func TestRelayPlan_WithoutCoalesceDispatchesEverything(t *testing.T) {
	batch := batchOf("a", "a", "b")
	groups := planRelay(nil).plan(batch)
	require.Len(t, groups, 3)
	for i, g := range groups {
		require.Equal(t, batch[i].ID, g.head.ID)
		require.Empty(t, g.members)
	}
}

func TestRelayPlan_NewestOfKeyHeadsGroup(t *testing.T) {
	// keyed by topic; "x" never coalesces
	byTopic := func(msg DispatchedMessage) (string, bool) {
		return msg.Meta.Topic, msg.Meta.Topic != "x"
	}
	batch := batchOf("a", "b", "a", "x", "x", "b", "a")

	groups := planRelay(byTopic).plan(batch)
	require.Len(t, groups, 4)

	// ordered by head sequence: x(4), x(5), b(6), a(7)
	require.Equal(t, []int64{4, 5, 6, 7}, []int64{
		groups[0].head.Sequence, groups[1].head.Sequence, groups[2].head.Sequence, groups[3].head.Sequence,
	})
	require.Len(t, groups[2].members, 1)
	require.Equal(t, int64(2), groups[2].members[0].Sequence)
	require.Len(t, groups[3].members, 2)
	require.Equal(t, int64(1), groups[3].members[0].Sequence)
	require.Equal(t, int64(3), groups[3].members[1].Sequence)
}

func TestRelayOptions_Defaults(t *testing.T) {
	o := RelayOptions{JitterMax: -1}.withDefaults()
	require.Equal(t, 100, o.BatchSize)
	require.Equal(t, 25, o.MaxAttempts)
	require.Equal(t, 2048, o.LastErrorMaxLen)
	require.NotNil(t, o.Logger)
	require.NotNil(t, o.Rand)
	require.Negative(t, int64(o.JitterMax))
}

func TestNewRelay_Validation(t *testing.T) {
	_, err := NewRelay(nil, testTable, DispatcherFunc(nil), RelayOptions{})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewCleaner(nil, testTable, CleanerOptions{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}
