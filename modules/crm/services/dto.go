package services

import (
	"strings"

	"github.com/google/uuid"
)

type ConvertLeadInput struct {
	TenantID    uuid.UUID  `json:"tenant_id" validate:"required"`
	LeadID      uuid.UUID  `json:"lead_id" validate:"required"`
	AccountID   *uuid.UUID `json:"account_id,omitempty"`
	PerformedBy *uuid.UUID `json:"performed_by,omitempty"`
}

type PromoteSourceInput struct {
	TenantID    uuid.UUID  `json:"tenant_id" validate:"required"`
	SourceID    uuid.UUID  `json:"source_id" validate:"required"`
	AccountName *string    `json:"account_name,omitempty" validate:"omitempty,max=255"`
	PerformedBy *uuid.UUID `json:"performed_by,omitempty"`
}

func (in *PromoteSourceInput) Normalize() {
	if in.AccountName == nil {
		return
	}
	name := strings.TrimSpace(*in.AccountName)
	if name == "" {
		in.AccountName = nil
		return
	}
	in.AccountName = &name
}

type RecordRef struct {
	TenantID uuid.UUID `json:"tenant_id" validate:"required"`
	ID       uuid.UUID `json:"id" validate:"required"`
}
