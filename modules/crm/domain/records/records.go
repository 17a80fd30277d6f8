// Package records holds the source rows owned by the CRUD layer. The sync
// engine reads them and, for lifecycle transitions, writes status and
// back-reference fields onto them.
package records

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/lifecycle"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/serrors"
)

type Type string

const (
	TypeLead           Type = "lead"
	TypeContact        Type = "contact"
	TypeAccount        Type = "account"
	TypeOpportunity    Type = "opportunity"
	TypeActivity       Type = "activity"
	TypeNote           Type = "note"
	TypeDocument       Type = "document"
	TypeSourcingRecord Type = "sourcing_record"
)

// Table is the storage table backing records of type t.
func (t Type) Table() string {
	switch t {
	case TypeSourcingRecord:
		return "sourcing_records"
	case TypeOpportunity:
		return "opportunities"
	case TypeActivity:
		return "activities"
	default:
		return string(t) + "s"
	}
}

func (t Type) IsPerson() bool {
	return t == TypeLead || t == TypeContact
}

func ParseType(s string) (Type, bool) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TypeLead, TypeContact, TypeAccount, TypeOpportunity, TypeActivity, TypeNote, TypeDocument, TypeSourcingRecord:
		return t, true
	}
	return "", false
}

var (
	ErrNotFound      = serrors.NewError("CRM_RECORD_NOT_FOUND", "record not found", "")
	ErrDuplicate     = serrors.NewError("CRM_RECORD_DUPLICATE", "record already exists", "")
	ErrColumnMissing = serrors.NewError("CRM_COLUMN_MISSING", "column is not present in this deployment", "")
)

// Record is implemented by every source row.
type Record interface {
	RecordType() Type
	RecordID() uuid.UUID
	RecordTenantID() uuid.UUID
	// Snapshot returns the row as a JSON-shaped map.
	Snapshot() map[string]any
	// PersonRefs lists the persons whose profile depends on this row.
	PersonRefs() []uuid.UUID
}

// Stateful is implemented by rows that carry a lifecycle status.
type Stateful interface {
	LifecycleState() lifecycle.State
}

// PersonRef identifies a Lead or Contact.
type PersonRef struct {
	ID   uuid.UUID `json:"id"`
	Type Type      `json:"type"`
}

type Lead struct {
	ID             uuid.UUID       `json:"id"`
	TenantID       uuid.UUID       `json:"tenant_id"`
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name"`
	Email          string          `json:"email"`
	Phone          string          `json:"phone"`
	JobTitle       string          `json:"job_title"`
	Company        string          `json:"company"`
	Source         string          `json:"source"`
	Status         lifecycle.State `json:"status"`
	AccountID      *uuid.UUID      `json:"account_id"`
	AssignedTo     *uuid.UUID      `json:"assigned_to"`
	AssignedToName *string         `json:"assigned_to_name"`
	Metadata       map[string]any  `json:"metadata"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (l Lead) RecordType() Type                { return TypeLead }
func (l Lead) RecordID() uuid.UUID             { return l.ID }
func (l Lead) RecordTenantID() uuid.UUID       { return l.TenantID }
func (l Lead) Snapshot() map[string]any        { return snapshot(l) }
func (l Lead) LifecycleState() lifecycle.State { return l.Status }
func (l Lead) PersonRefs() []uuid.UUID         { return []uuid.UUID{l.ID} }
func (l Lead) FullName() string                { return fullName(l.FirstName, l.LastName) }

type Contact struct {
	ID             uuid.UUID       `json:"id"`
	TenantID       uuid.UUID       `json:"tenant_id"`
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name"`
	Email          string          `json:"email"`
	Phone          string          `json:"phone"`
	JobTitle       string          `json:"job_title"`
	Status         lifecycle.State `json:"status"`
	AccountID      *uuid.UUID      `json:"account_id"`
	AssignedTo     *uuid.UUID      `json:"assigned_to"`
	AssignedToName *string         `json:"assigned_to_name"`
	Metadata       map[string]any  `json:"metadata"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (c Contact) RecordType() Type                { return TypeContact }
func (c Contact) RecordID() uuid.UUID             { return c.ID }
func (c Contact) RecordTenantID() uuid.UUID       { return c.TenantID }
func (c Contact) Snapshot() map[string]any        { return snapshot(c) }
func (c Contact) LifecycleState() lifecycle.State { return c.Status }
func (c Contact) PersonRefs() []uuid.UUID         { return []uuid.UUID{c.ID} }
func (c Contact) FullName() string                { return fullName(c.FirstName, c.LastName) }

type Account struct {
	ID             uuid.UUID       `json:"id"`
	TenantID       uuid.UUID       `json:"tenant_id"`
	Name           string          `json:"name"`
	Industry       string          `json:"industry"`
	Website        string          `json:"website"`
	Status         lifecycle.State `json:"status"`
	AssignedTo     *uuid.UUID      `json:"assigned_to"`
	AssignedToName *string         `json:"assigned_to_name"`
	Metadata       map[string]any  `json:"metadata"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (a Account) RecordType() Type                { return TypeAccount }
func (a Account) RecordID() uuid.UUID             { return a.ID }
func (a Account) RecordTenantID() uuid.UUID       { return a.TenantID }
func (a Account) Snapshot() map[string]any        { return snapshot(a) }
func (a Account) LifecycleState() lifecycle.State { return a.Status }

// PersonRefs is empty: persons linked to an account are resolved by lookup.
func (a Account) PersonRefs() []uuid.UUID { return nil }

type SourcingRecord struct {
	ID             uuid.UUID       `json:"id"`
	TenantID       uuid.UUID       `json:"tenant_id"`
	CompanyName    string          `json:"company_name"`
	ContactName    string          `json:"contact_name"`
	Email          string          `json:"email"`
	Phone          string          `json:"phone"`
	Industry       string          `json:"industry"`
	Website        string          `json:"website"`
	Source         string          `json:"source"`
	Status         lifecycle.State `json:"status"`
	AssignedTo     *uuid.UUID      `json:"assigned_to"`
	AssignedToName *string         `json:"assigned_to_name"`
	Metadata       map[string]any  `json:"metadata"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (s SourcingRecord) RecordType() Type                { return TypeSourcingRecord }
func (s SourcingRecord) RecordID() uuid.UUID             { return s.ID }
func (s SourcingRecord) RecordTenantID() uuid.UUID       { return s.TenantID }
func (s SourcingRecord) Snapshot() map[string]any        { return snapshot(s) }
func (s SourcingRecord) LifecycleState() lifecycle.State { return s.Status }
func (s SourcingRecord) PersonRefs() []uuid.UUID         { return nil }

type Opportunity struct {
	ID             uuid.UUID       `json:"id"`
	TenantID       uuid.UUID       `json:"tenant_id"`
	Name           string          `json:"name"`
	Stage          string          `json:"stage"`
	Amount         decimal.Decimal `json:"amount"`
	AccountID      *uuid.UUID      `json:"account_id"`
	ContactID      *uuid.UUID      `json:"contact_id"`
	LeadID         *uuid.UUID      `json:"lead_id"`
	AssignedTo     *uuid.UUID      `json:"assigned_to"`
	AssignedToName *string         `json:"assigned_to_name"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (o Opportunity) RecordType() Type          { return TypeOpportunity }
func (o Opportunity) RecordID() uuid.UUID       { return o.ID }
func (o Opportunity) RecordTenantID() uuid.UUID { return o.TenantID }
func (o Opportunity) Snapshot() map[string]any  { return snapshot(o) }
func (o Opportunity) PersonRefs() []uuid.UUID   { return compactIDs(o.ContactID, o.LeadID) }

// LinkedTo reports whether the opportunity references personID.
func (o Opportunity) LinkedTo(personID uuid.UUID) bool {
	return (o.ContactID != nil && *o.ContactID == personID) || (o.LeadID != nil && *o.LeadID == personID)
}

type Activity struct {
	ID             uuid.UUID  `json:"id"`
	TenantID       uuid.UUID  `json:"tenant_id"`
	Type           string     `json:"type"`
	Subject        string     `json:"subject"`
	Body           string     `json:"body"`
	RelatedType    Type       `json:"related_type"`
	RelatedID      *uuid.UUID `json:"related_id"`
	OccurredAt     *time.Time `json:"occurred_at"`
	AssignedTo     *uuid.UUID `json:"assigned_to"`
	AssignedToName *string    `json:"assigned_to_name"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (a Activity) RecordType() Type          { return TypeActivity }
func (a Activity) RecordID() uuid.UUID       { return a.ID }
func (a Activity) RecordTenantID() uuid.UUID { return a.TenantID }
func (a Activity) Snapshot() map[string]any  { return snapshot(a) }
func (a Activity) PersonRefs() []uuid.UUID   { return personRef(a.RelatedType, a.RelatedID) }

// When is the activity timestamp used for recency: occurred_at when known,
// otherwise the creation time.
func (a Activity) When() time.Time {
	if a.OccurredAt != nil {
		return *a.OccurredAt
	}
	return a.CreatedAt
}

type Note struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	RelatedType Type       `json:"related_type"`
	RelatedID   *uuid.UUID `json:"related_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (n Note) RecordType() Type          { return TypeNote }
func (n Note) RecordID() uuid.UUID       { return n.ID }
func (n Note) RecordTenantID() uuid.UUID { return n.TenantID }
func (n Note) Snapshot() map[string]any  { return snapshot(n) }
func (n Note) PersonRefs() []uuid.UUID   { return personRef(n.RelatedType, n.RelatedID) }

type Document struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	Name        string     `json:"name"`
	FileURL     string     `json:"file_url"`
	RelatedType Type       `json:"related_type"`
	RelatedID   *uuid.UUID `json:"related_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (d Document) RecordType() Type          { return TypeDocument }
func (d Document) RecordID() uuid.UUID       { return d.ID }
func (d Document) RecordTenantID() uuid.UUID { return d.TenantID }
func (d Document) Snapshot() map[string]any  { return snapshot(d) }
func (d Document) PersonRefs() []uuid.UUID   { return personRef(d.RelatedType, d.RelatedID) }

// Assignee is an entry of the user directory that records are assigned to.
type Assignee struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
}

// DisplayName is the text denormalized into assigned_to_name columns.
func (a Assignee) DisplayName() string {
	if name := fullName(a.FirstName, a.LastName); name != "" {
		return name
	}
	return strings.TrimSpace(a.Email)
}

// AssigneeCopy is one denormalized assignee name stored on a record.
// Person is set when the row is itself a Lead or Contact.
type AssigneeCopy struct {
	ID       uuid.UUID  `json:"id"`
	TenantID uuid.UUID  `json:"tenant_id"`
	Name     *string    `json:"name"`
	Person   *PersonRef `json:"person,omitempty"`
}

func snapshot(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func fullName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

func personRef(t Type, id *uuid.UUID) []uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	if t != "" && !t.IsPerson() {
		return nil
	}
	return []uuid.UUID{*id}
}

func compactIDs(ids ...*uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	for _, id := range ids {
		if id == nil || *id == uuid.Nil {
			continue
		}
		dup := false
		for _, seen := range out {
			if seen == *id {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, *id)
		}
	}
	return out
}
