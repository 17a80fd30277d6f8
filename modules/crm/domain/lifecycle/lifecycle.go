// Package lifecycle defines the role states of convertible records and the
// one-way transitions between them.
package lifecycle

import (
	"fmt"
	"strings"
)

type State string

const (
	Active             State = "active"
	ConvertedToContact State = "converted_to_contact"
	PromotedToAccount  State = "promoted_to_account"
	Archived           State = "archived"

	// Target-side states stamped on records created by a transition.
	ConvertedFromLead  State = "converted_from_lead"
	PromotedFromSource State = "promoted_from_source"
)

// Kind is the transformation recorded in the audit trail.
type Kind string

const (
	KindConvert Kind = "convert"
	KindPromote Kind = "promote"
	KindMerge   Kind = "merge"
	KindSplit   Kind = "split"
)

func (k Kind) Valid() bool {
	switch k {
	case KindConvert, KindPromote, KindMerge, KindSplit:
		return true
	}
	return false
}

// Unique reports whether at most one transition of this kind may exist per source.
func (k Kind) Unique() bool {
	return k == KindConvert || k == KindPromote
}

type edge struct {
	from State
	to   State
}

var transitions = map[edge]struct{}{
	{Active, ConvertedToContact}:   {},
	{Active, PromotedToAccount}:    {},
	{ConvertedToContact, Archived}: {},
	{PromotedToAccount, Archived}:  {},
}

var terminal = map[State]struct{}{
	ConvertedToContact: {},
	PromotedToAccount:  {},
	Archived:           {},
}

func Parse(s string) (State, error) {
	st := State(strings.ToLower(strings.TrimSpace(s)))
	if st == "" {
		return Active, nil
	}
	switch st {
	case Active, ConvertedToContact, PromotedToAccount, Archived, ConvertedFromLead, PromotedFromSource:
		return st, nil
	}
	return "", fmt.Errorf("unknown lifecycle state %q", s)
}

func (s State) String() string { return string(s) }

// IsTerminal reports whether the record has left its original role.
func (s State) IsTerminal() bool {
	_, ok := terminal[s]
	return ok
}

func CanTransition(from, to State) bool {
	_, ok := transitions[edge{from, to}]
	return ok
}

// Describe renders a state for error messages, e.g. "converted to contact".
func (s State) Describe() string {
	return strings.ReplaceAll(string(s), "_", " ")
}
