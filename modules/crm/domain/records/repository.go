package records

import (
	"context"

	"github.com/google/uuid"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/lifecycle"
)

type Reader interface {
	Lead(ctx context.Context, tenantID, id uuid.UUID) (Lead, error)
	Contact(ctx context.Context, tenantID, id uuid.UUID) (Contact, error)
	Account(ctx context.Context, tenantID, id uuid.UUID) (Account, error)
	SourcingRecord(ctx context.Context, tenantID, id uuid.UUID) (SourcingRecord, error)
	Opportunity(ctx context.Context, tenantID, id uuid.UUID) (Opportunity, error)
	Activity(ctx context.Context, tenantID, id uuid.UUID) (Activity, error)
	Note(ctx context.Context, tenantID, id uuid.UUID) (Note, error)
	Document(ctx context.Context, tenantID, id uuid.UUID) (Document, error)
	Assignee(ctx context.Context, tenantID, id uuid.UUID) (Assignee, error)
}

// Writer upserts rows by id. InsertContact and InsertAccount fail with
// ErrDuplicate when the id is taken.
type Writer interface {
	SaveLead(ctx context.Context, v Lead) error
	SaveContact(ctx context.Context, v Contact) error
	SaveAccount(ctx context.Context, v Account) error
	SaveSourcingRecord(ctx context.Context, v SourcingRecord) error
	SaveOpportunity(ctx context.Context, v Opportunity) error
	SaveActivity(ctx context.Context, v Activity) error
	SaveNote(ctx context.Context, v Note) error
	SaveDocument(ctx context.Context, v Document) error
	SaveAssignee(ctx context.Context, v Assignee) error

	InsertContact(ctx context.Context, v Contact) error
	InsertAccount(ctx context.Context, v Account) error

	Delete(ctx context.Context, t Type, tenantID, id uuid.UUID) error
}

type Lister interface {
	Leads(ctx context.Context, tenantID uuid.UUID, f lifecycle.Filter) ([]Lead, error)
	Contacts(ctx context.Context, tenantID uuid.UUID, f lifecycle.Filter) ([]Contact, error)
	Accounts(ctx context.Context, tenantID uuid.UUID, f lifecycle.Filter) ([]Account, error)
	SourcingRecords(ctx context.Context, tenantID uuid.UUID, f lifecycle.Filter) ([]SourcingRecord, error)

	Tenants(ctx context.Context) ([]uuid.UUID, error)
	// ActivePersons lists active leads and active-or-converted contacts.
	ActivePersons(ctx context.Context, tenantID uuid.UUID) ([]PersonRef, error)
	PersonsForAccount(ctx context.Context, tenantID, accountID uuid.UUID) ([]PersonRef, error)
}

// Aggregates reads the rows that feed a person profile.
type Aggregates interface {
	OpportunitiesForPerson(ctx context.Context, tenantID, personID uuid.UUID) ([]Opportunity, error)
	// RecentActivities orders by occurred_at desc with nulls last, then
	// created_at desc, then id.
	RecentActivities(ctx context.Context, tenantID, personID uuid.UUID, limit int) ([]Activity, error)
	// RecentNotes and RecentDocuments order by created_at desc, then id.
	RecentNotes(ctx context.Context, tenantID, personID uuid.UUID, limit int) ([]Note, error)
	RecentDocuments(ctx context.Context, tenantID, personID uuid.UUID, limit int) ([]Document, error)
}

// Assignments reads and rewrites denormalized assignee names.
type Assignments interface {
	AssigneeCopies(ctx context.Context, tenantID uuid.UUID, t Type, assigneeID uuid.UUID) ([]AssigneeCopy, error)
	SetAssigneeName(ctx context.Context, tenantID uuid.UUID, t Type, id uuid.UUID, name *string) error
}

// Schema reports which optional columns a deployment has.
type Schema interface {
	HasColumn(ctx context.Context, table, column string) (bool, error)
}

type Repository interface {
	Reader
	Writer
	Lister
	Aggregates
	Assignments
	Schema
}
