package lifecycle

import (
	"fmt"
	"strings"
)

// Filter is a read predicate over lifecycle state. It is evaluated in memory
// with Matches or pushed into SQL with SQL.
type Filter struct {
	name   string
	states []State
}

var (
	// ActiveOnly keeps records still in their original role.
	ActiveOnly = Filter{name: "active_only", states: []State{Active}}
	// ActiveOrConverted keeps live records including those created by a transition.
	ActiveOrConverted = Filter{name: "active_or_converted", states: []State{Active, ConvertedFromLead, PromotedFromSource}}
	// Any matches every state.
	Any = Filter{name: "any"}
)

func (f Filter) Name() string { return f.name }

func (f Filter) States() []State {
	out := make([]State, len(f.states))
	copy(out, f.states)
	return out
}

func (f Filter) Matches(s State) bool {
	if len(f.states) == 0 {
		return true
	}
	if s == "" {
		s = Active
	}
	for _, st := range f.states {
		if st == s {
			return true
		}
	}
	return false
}

// SQL renders the predicate for column using positional argument argN, and
// returns the value to bind there. A nil arg means no argument is needed.
// A NULL status is treated as active.
func (f Filter) SQL(column string, argN int) (string, any) {
	if len(f.states) == 0 {
		return "TRUE", nil
	}
	values := make([]string, len(f.states))
	for i, st := range f.states {
		values[i] = string(st)
	}
	return fmt.Sprintf("COALESCE(%s, '%s') = ANY($%d)", column, Active, argN), values
}

func (f Filter) String() string {
	if len(f.states) == 0 {
		return f.name
	}
	parts := make([]string, len(f.states))
	for i, st := range f.states {
		parts[i] = string(st)
	}
	return f.name + "(" + strings.Join(parts, ",") + ")"
}
