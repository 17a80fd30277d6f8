package lifecycle

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/andreibyf/aishacrm-2-sub007/pkg/serrors"
)

var (
	ErrImmutableRecord = serrors.NewError("CRM_IMMUTABLE_RECORD", "record is immutable", "")
	ErrManagedStatus   = serrors.NewError("CRM_MANAGED_STATUS", "lifecycle status is changed by lifecycle operations only", "")
)

// ImmutableError names the record and the state that blocks the mutation.
type ImmutableError struct {
	Entity string
	ID     uuid.UUID
	State  State
	// Action completes "cannot be ..."; empty means deleted.
	Action string
}

func (e *ImmutableError) Error() string {
	action := e.Action
	if action == "" {
		action = "deleted"
	}
	return fmt.Sprintf("%s %s is %s and cannot be %s", e.Entity, e.ID, e.State.Describe(), action)
}

func (e *ImmutableError) Unwrap() error { return ErrImmutableRecord }

// GuardDelete rejects physical deletion of records that have left their
// original role. History of such records is kept by archiving instead.
func GuardDelete(entity string, id uuid.UUID, state State) error {
	if state.IsTerminal() {
		return &ImmutableError{Entity: entity, ID: id, State: state}
	}
	return nil
}

// StatusError rejects a plain record write that tries to move a record
// between lifecycle states.
type StatusError struct {
	Entity string
	ID     uuid.UUID
	From   State
	To     State
}

func (e *StatusError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("new %s %s cannot start as %s", e.Entity, e.ID, e.To.Describe())
	}
	return fmt.Sprintf("%s %s cannot move from %s to %s outside a lifecycle operation", e.Entity, e.ID, e.From.Describe(), e.To.Describe())
}

func (e *StatusError) Unwrap() error { return ErrManagedStatus }

// GuardStatusWrite checks the status carried by an ordinary create or
// update. New records start active and stored records keep their state:
// convert, promote and archive are the only ways to change it. A record in a
// terminal state never leaves it.
func GuardStatusWrite(entity string, id uuid.UUID, from, to State, exists bool) error {
	if from == "" {
		from = Active
	}
	if to == "" {
		to = Active
	}
	if !exists {
		if to == Active {
			return nil
		}
		return &StatusError{Entity: entity, ID: id, To: to}
	}
	if from == to {
		return nil
	}
	if from.IsTerminal() {
		return &ImmutableError{Entity: entity, ID: id, State: from, Action: "moved to " + to.Describe()}
	}
	return &StatusError{Entity: entity, ID: id, From: from, To: to}
}
