package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/lifecycle"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
)

const (
	TopicPersonChangedV1   = "crm.person.changed.v1"
	TopicTransitionV1      = "crm.entity.transitioned.v1"
	TopicAssigneeRenamedV1 = "crm.assignee.renamed.v1"
	EventVersionV1         = 1
)

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

type Reason string

const (
	ReasonChanged Reason = "changed"
	// ReasonDeleted means the person row itself is gone.
	ReasonDeleted Reason = "deleted"
)

// PersonChangedV1 asks for the profile of PersonID to be refreshed, or
// removed when Reason is ReasonDeleted.
type PersonChangedV1 struct {
	EventID      uuid.UUID    `json:"event_id"`
	EventVersion int          `json:"event_version"`
	TenantID     uuid.UUID    `json:"tenant_id"`
	PersonID     uuid.UUID    `json:"person_id"`
	Reason       Reason       `json:"reason"`
	SourceType   records.Type `json:"source_type"`
	SourceID     uuid.UUID    `json:"source_id"`
	Op           Op           `json:"op"`
	Columns      []string     `json:"columns,omitempty"`
	OccurredAt   time.Time    `json:"occurred_at"`
}

type TransitionV1 struct {
	EventID      uuid.UUID      `json:"event_id"`
	EventVersion int            `json:"event_version"`
	TenantID     uuid.UUID      `json:"tenant_id"`
	TransitionID uuid.UUID      `json:"transition_id"`
	Kind         lifecycle.Kind `json:"kind"`
	SourceType   records.Type   `json:"source_type"`
	SourceID     uuid.UUID      `json:"source_id"`
	TargetType   records.Type   `json:"target_type"`
	TargetID     uuid.UUID      `json:"target_id"`
	PerformedBy  *uuid.UUID     `json:"performed_by,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

type AssigneeRenamedV1 struct {
	EventID      uuid.UUID `json:"event_id"`
	EventVersion int       `json:"event_version"`
	TenantID     uuid.UUID `json:"tenant_id"`
	AssigneeID   uuid.UUID `json:"assignee_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}
