// Package profile holds the denormalized read model kept for every active
// person.
package profile

import (
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/serrors"
)

var ErrNotFound = serrors.NewError("CRM_PROFILE_NOT_FOUND", "person profile not found", "")

type DocumentSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type NoteSummary struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Excerpt   string    `json:"excerpt"`
	CreatedAt time.Time `json:"created_at"`
}

type ActivitySummary struct {
	ID         uuid.UUID  `json:"id"`
	Type       string     `json:"type"`
	Subject    string     `json:"subject"`
	OccurredAt *time.Time `json:"occurred_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// PersonProfile is keyed by the id of the Lead or Contact it describes. A
// refresh replaces every aggregate field.
type PersonProfile struct {
	PersonID   uuid.UUID    `json:"person_id"`
	TenantID   uuid.UUID    `json:"tenant_id"`
	PersonType records.Type `json:"person_type"`

	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	JobTitle  string `json:"job_title"`
	Status    string `json:"status"`

	AccountID   *uuid.UUID `json:"account_id"`
	AccountName *string    `json:"account_name"`

	OpenOpportunityCount int             `json:"open_opportunity_count"`
	OpenPipelineAmount   decimal.Decimal `json:"open_pipeline_amount"`
	OpportunityStages    []string        `json:"opportunity_stages"`

	RecentDocuments  []DocumentSummary `json:"recent_documents"`
	RecentNotes      []NoteSummary     `json:"recent_notes"`
	RecentActivities []ActivitySummary `json:"recent_activities"`
	LastActivityAt   *time.Time        `json:"last_activity_at"`

	AssignedTo     *uuid.UUID `json:"assigned_to"`
	AssignedToName *string    `json:"assigned_to_name"`

	UpdatedAt time.Time `json:"updated_at"`
}

// SameAggregate compares two profiles ignoring UpdatedAt.
func (p PersonProfile) SameAggregate(other PersonProfile) bool {
	a, b := p, other
	a.UpdatedAt, b.UpdatedAt = time.Time{}, time.Time{}
	if !a.OpenPipelineAmount.Equal(b.OpenPipelineAmount) {
		return false
	}
	a.OpenPipelineAmount, b.OpenPipelineAmount = decimal.Zero, decimal.Zero
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func normalize(p PersonProfile) PersonProfile {
	if len(p.OpportunityStages) == 0 {
		p.OpportunityStages = nil
	}
	if len(p.RecentDocuments) == 0 {
		p.RecentDocuments = nil
	}
	if len(p.RecentNotes) == 0 {
		p.RecentNotes = nil
	}
	if len(p.RecentActivities) == 0 {
		p.RecentActivities = nil
	}
	return p
}
