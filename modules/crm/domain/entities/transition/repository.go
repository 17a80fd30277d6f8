package transition

import (
	"context"

	"github.com/google/uuid"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
)

type Repository interface {
	// Append fails with ErrDuplicate when t.Kind is unique and a transition of
	// that kind already exists for the source.
	Append(ctx context.Context, t EntityTransition) error
	ForSource(ctx context.Context, tenantID uuid.UUID, sourceType records.Type, sourceID uuid.UUID) ([]EntityTransition, error)
	ForTarget(ctx context.Context, tenantID uuid.UUID, targetType records.Type, targetID uuid.UUID) ([]EntityTransition, error)
	// ConversionTracking returns convert and promote transitions, newest first.
	ConversionTracking(ctx context.Context, tenantID uuid.UUID) ([]ConversionRow, error)
}
