// Package transition is the append-only audit trail of role conversions.
package transition

import (
	"time"

	"github.com/google/uuid"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/lifecycle"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/serrors"
)

// ErrDuplicate is returned when a second convert or promote is appended for
// the same source.
var ErrDuplicate = serrors.NewError("CRM_TRANSITION_DUPLICATE", "transition already recorded for source", "")

// EntityTransition is immutable once appended.
type EntityTransition struct {
	ID          uuid.UUID      `json:"id"`
	TenantID    uuid.UUID      `json:"tenant_id"`
	SourceType  records.Type   `json:"source_type"`
	SourceID    uuid.UUID      `json:"source_id"`
	TargetType  records.Type   `json:"target_type"`
	TargetID    uuid.UUID      `json:"target_id"`
	Kind        lifecycle.Kind `json:"kind"`
	Snapshot    map[string]any `json:"snapshot"`
	PerformedBy *uuid.UUID     `json:"performed_by"`
	PerformedAt time.Time      `json:"performed_at"`
}

func New(tenantID uuid.UUID, source records.Record, targetType records.Type, targetID uuid.UUID, kind lifecycle.Kind, performedBy *uuid.UUID, at time.Time) EntityTransition {
	return EntityTransition{
		ID:          uuid.New(),
		TenantID:    tenantID,
		SourceType:  source.RecordType(),
		SourceID:    source.RecordID(),
		TargetType:  targetType,
		TargetID:    targetID,
		Kind:        kind,
		Snapshot:    source.Snapshot(),
		PerformedBy: performedBy,
		PerformedAt: at.UTC(),
	}
}

// ConversionRow joins a transition with the current state of both sides.
type ConversionRow struct {
	Transition   EntityTransition `json:"transition"`
	SourceName   string           `json:"source_name"`
	SourceStatus lifecycle.State  `json:"source_status"`
	TargetName   string           `json:"target_name"`
	TargetStatus lifecycle.State  `json:"target_status"`
}
