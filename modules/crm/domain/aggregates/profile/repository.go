package profile

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Get(ctx context.Context, tenantID, personID uuid.UUID) (PersonProfile, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]PersonProfile, error)
	Upsert(ctx context.Context, p PersonProfile) error
	Delete(ctx context.Context, tenantID, personID uuid.UUID) error
}
