package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/aggregates/profile"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/entities/transition"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
)

// Store is the unit-of-work boundary shared by the services. Repositories
// join the transaction carried by the ctx handed to fn.
type Store interface {
	InTenantTx(ctx context.Context, tenantID uuid.UUID, fn func(txCtx context.Context) error) error
	Records() records.Repository
	Profiles() profile.Repository
	Transitions() transition.Repository
}

func inTx[T any](ctx context.Context, store Store, tenantID uuid.UUID, fn func(txCtx context.Context) (T, error)) (T, error) {
	var out T
	err := store.InTenantTx(ctx, tenantID, func(txCtx context.Context) error {
		var innerErr error
		out, innerErr = fn(txCtx)
		return innerErr
	})
	return out, err
}
