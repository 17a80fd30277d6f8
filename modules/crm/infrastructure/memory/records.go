package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/lifecycle"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
)

type recordRepository struct {
	store *Store
}

func find[T records.Record](m map[uuid.UUID]T, tenantID, id uuid.UUID) (T, error) {
	v, ok := m[id]
	if !ok || v.RecordTenantID() != tenantID {
		var zero T
		return zero, records.ErrNotFound
	}
	return v, nil
}

func (r *recordRepository) Lead(ctx context.Context, tenantID, id uuid.UUID) (out records.Lead, err error) {
	err = r.store.read(ctx, func(st *Snapshot) error {
		out, err = find(st.Leads, tenantID, id)
		if err == nil && !r.store.hasColumn("leads", "job_title") {
			out.JobTitle = ""
		}
		return err
	})
	return out, err
}

func (r *recordRepository) Contact(ctx context.Context, tenantID, id uuid.UUID) (out records.Contact, err error) {
	err = r.store.read(ctx, func(st *Snapshot) error {
		out, err = find(st.Contacts, tenantID, id)
		if err == nil && !r.store.hasColumn("contacts", "job_title") {
			out.JobTitle = ""
		}
		return err
	})
	return out, err
}

func (r *recordRepository) Account(ctx context.Context, tenantID, id uuid.UUID) (out records.Account, err error) {
	err = r.store.read(ctx, func(st *Snapshot) error {
		out, err = find(st.Accounts, tenantID, id)
		return err
	})
	return out, err
}

func (r *recordRepository) SourcingRecord(ctx context.Context, tenantID, id uuid.UUID) (out records.SourcingRecord, err error) {
	err = r.store.read(ctx, func(st *Snapshot) error {
		out, err = find(st.SourcingRecords, tenantID, id)
		return err
	})
	return out, err
}

func (r *recordRepository) Opportunity(ctx context.Context, tenantID, id uuid.UUID) (out records.Opportunity, err error) {
	err = r.store.read(ctx, func(st *Snapshot) error {
		out, err = find(st.Opportunities, tenantID, id)
		return err
	})
	return out, err
}

func (r *recordRepository) Activity(ctx context.Context, tenantID, id uuid.UUID) (out records.Activity, err error) {
	err = r.store.read(ctx, func(st *Snapshot) error {
		out, err = find(st.Activities, tenantID, id)
		return err
	})
	return out, err
}

func (r *recordRepository) Note(ctx context.Context, tenantID, id uuid.UUID) (out records.Note, err error) {
	err = r.store.read(ctx, func(st *Snapshot) error {
		out, err = find(st.Notes, tenantID, id)
		return err
	})
	return out, err
}

func (r *recordRepository) Document(ctx context.Context, tenantID, id uuid.UUID) (out records.Document, err error) {
	err = r.store.read(ctx, func(st *Snapshot) error {
		out, err = find(st.Documents, tenantID, id)
		return err
	})
	return out, err
}

func (r *recordRepository) Assignee(ctx context.Context, tenantID, id uuid.UUID) (out records.Assignee, err error) {
	err = r.store.read(ctx, func(st *Snapshot) error {
		v, ok := st.Assignees[id]
		if !ok || v.TenantID != tenantID {
			return records.ErrNotFound
		}
		out = v
		return nil
	})
	return out, err
}

func (r *recordRepository) SaveLead(ctx context.Context, v records.Lead) error {
	v.Metadata = maps.Clone(v.Metadata)
	return r.store.write(ctx, func(st *Snapshot) error {
		st.Leads[v.ID] = v
		return nil
	})
}

func (r *recordRepository) SaveContact(ctx context.Context, v records.Contact) error {
	v.Metadata = maps.Clone(v.Metadata)
	return r.store.write(ctx, func(st *Snapshot) error {
		st.Contacts[v.ID] = v
		return nil
	})
}

func (r *recordRepository) SaveAccount(ctx context.Context, v records.Account) error {
	v.Metadata = maps.Clone(v.Metadata)
	return r.store.write(ctx, func(st *Snapshot) error {
		st.Accounts[v.ID] = v
		return nil
	})
}

func (r *recordRepository) SaveSourcingRecord(ctx context.Context, v records.SourcingRecord) error {
	v.Metadata = maps.Clone(v.Metadata)
	return r.store.write(ctx, func(st *Snapshot) error {
		st.SourcingRecords[v.ID] = v
		return nil
	})
}

func (r *recordRepository) SaveOpportunity(ctx context.Context, v records.Opportunity) error {
	return r.store.write(ctx, func(st *Snapshot) error {
		st.Opportunities[v.ID] = v
		return nil
	})
}

func (r *recordRepository) SaveActivity(ctx context.Context, v records.Activity) error {
	return r.store.write(ctx, func(st *Snapshot) error {
		st.Activities[v.ID] = v
		return nil
	})
}

func (r *recordRepository) SaveNote(ctx context.Context, v records.Note) error {
	return r.store.write(ctx, func(st *Snapshot) error {
		st.Notes[v.ID] = v
		return nil
	})
}

func (r *recordRepository) SaveDocument(ctx context.Context, v records.Document) error {
	return r.store.write(ctx, func(st *Snapshot) error {
		st.Documents[v.ID] = v
		return nil
	})
}

func (r *recordRepository) SaveAssignee(ctx context.Context, v records.Assignee) error {
	return r.store.write(ctx, func(st *Snapshot) error {
		st.Assignees[v.ID] = v
		return nil
	})
}

func (r *recordRepository) InsertContact(ctx context.Context, v records.Contact) error {
	v.Metadata = maps.Clone(v.Metadata)
	return r.store.write(ctx, func(st *Snapshot) error {
		if _, exists := st.Contacts[v.ID]; exists {
			return records.ErrDuplicate
		}
		st.Contacts[v.ID] = v
		return nil
	})
}

func (r *recordRepository) InsertAccount(ctx context.Context, v records.Account) error {
	v.Metadata = maps.Clone(v.Metadata)
	return r.store.write(ctx, func(st *Snapshot) error {
		if _, exists := st.Accounts[v.ID]; exists {
			return records.ErrDuplicate
		}
		st.Accounts[v.ID] = v
		return nil
	})
}

func deleteFrom[T records.Record](m map[uuid.UUID]T, tenantID, id uuid.UUID) error {
	if _, err := find(m, tenantID, id); err != nil {
		return err
	}
	delete(m, id)
	return nil
}

func (r *recordRepository) Delete(ctx context.Context, t records.Type, tenantID, id uuid.UUID) error {
	return r.store.write(ctx, func(st *Snapshot) error {
		switch t {
		case records.TypeLead:
			return deleteFrom(st.Leads, tenantID, id)
		case records.TypeContact:
			return deleteFrom(st.Contacts, tenantID, id)
		case records.TypeAccount:
			return deleteFrom(st.Accounts, tenantID, id)
		case records.TypeSourcingRecord:
			return deleteFrom(st.SourcingRecords, tenantID, id)
		case records.TypeOpportunity:
			return deleteFrom(st.Opportunities, tenantID, id)
		case records.TypeActivity:
			return deleteFrom(st.Activities, tenantID, id)
		case records.TypeNote:
			return deleteFrom(st.Notes, tenantID, id)
		case records.TypeDocument:
			return deleteFrom(st.Documents, tenantID, id)
		}
		return records.ErrNotFound
	})
}

func listBy[T records.Record](m map[uuid.UUID]T, keep func(T) bool) []T {
	out := make([]T, 0)
	for _, v := range m {
		if keep(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RecordID().String() < out[j].RecordID().String()
	})
	return out
}

func (r *recordRepository) Leads(ctx context.Context, tenantID uuid.UUID, f lifecycle.Filter) (out []records.Lead, err error) {
	err = r.store.read(ctx, func(st *Snapshot) error {
		out = listBy(st.Leads, func(v records.Lead) bool { return v.TenantID == tenantID && f.Matches(v.Status) })
		return nil
	})
	return out, err
}

func (r *recordRepository) Contacts(ctx context.Context, tenantID uuid.UUID, f lifecycle.Filter) (out []records.Contact, err error) {
	err = r.store.read(ctx, func(st *Snapshot) error {
		out = listBy(st.Contacts, func(v records.Contact) bool { return v.TenantID == tenantID && f.Matches(v.Status) })
		return nil
	})
	return out, err
}

func (r *recordRepository) Accounts(ctx context.Context, tenantID uuid.UUID, f lifecycle.Filter) (out []records.Account, err error) {
	err = r.store.read(ctx, func(st *Snapshot) error {
		out = listBy(st.Accounts, func(v records.Account) bool { return v.TenantID == tenantID && f.Matches(v.Status) })
		return nil
	})
	return out, err
}

func (r *recordRepository) SourcingRecords(ctx context.Context, tenantID uuid.UUID, f lifecycle.Filter) (out []records.SourcingRecord, err error) {
	err = r.store.read(ctx, func(st *Snapshot) error {
		out = listBy(st.SourcingRecords, func(v records.SourcingRecord) bool { return v.TenantID == tenantID && f.Matches(v.Status) })
		return nil
	})
	return out, err
}

func (r *recordRepository) Tenants(ctx context.Context) (out []uuid.UUID, err error) {
	err = r.store.read(ctx, func(st *Snapshot) error {
		seen := map[uuid.UUID]struct{}{}
		for _, v := range st.Leads {
			seen[v.TenantID] = struct{}{}
		}
		for _, v := range st.Contacts {
			seen[v.TenantID] = struct{}{}
		}
		for id := range seen {
			out = append(out, id)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, err
}

func (r *recordRepository) ActivePersons(ctx context.Context, tenantID uuid.UUID) (out []records.PersonRef, err error) {
	err = r.store.read(ctx, func(st *Snapshot) error {
		for _, v := range listBy(st.Leads, func(v records.Lead) bool {
			return v.TenantID == tenantID && lifecycle.ActiveOnly.Matches(v.Status)
		}) {
			out = append(out, records.PersonRef{ID: v.ID, Type: records.TypeLead})
		}
		for _, v := range listBy(st.Contacts, func(v records.Contact) bool {
			return v.TenantID == tenantID && lifecycle.ActiveOrConverted.Matches(v.Status)
		}) {
			out = append(out, records.PersonRef{ID: v.ID, Type: records.TypeContact})
		}
		return nil
	})
	return out, err
}

func (r *recordRepository) PersonsForAccount(ctx context.Context, tenantID, accountID uuid.UUID) (out []records.PersonRef, err error) {
	linked := func(id *uuid.UUID) bool { return id != nil && *id == accountID }
	err = r.store.read(ctx, func(st *Snapshot) error {
		for _, v := range listBy(st.Leads, func(v records.Lead) bool { return v.TenantID == tenantID && linked(v.AccountID) }) {
			out = append(out, records.PersonRef{ID: v.ID, Type: records.TypeLead})
		}
		for _, v := range listBy(st.Contacts, func(v records.Contact) bool { return v.TenantID == tenantID && linked(v.AccountID) }) {
			out = append(out, records.PersonRef{ID: v.ID, Type: records.TypeContact})
		}
		return nil
	})
	return out, err
}

func (r *recordRepository) OpportunitiesForPerson(ctx context.Context, tenantID, personID uuid.UUID) (out []records.Opportunity, err error) {
	withLead := r.store.hasColumn("opportunities", "lead_id")
	err = r.store.read(ctx, func(st *Snapshot) error {
		out = listBy(st.Opportunities, func(v records.Opportunity) bool {
			if v.TenantID != tenantID {
				return false
			}
			if v.ContactID != nil && *v.ContactID == personID {
				return true
			}
			return withLead && v.LeadID != nil && *v.LeadID == personID
		})
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, err
}

func relatedTo(v records.Record, personID uuid.UUID) bool {
	return slices.Contains(v.PersonRefs(), personID)
}

func (r *recordRepository) RecentActivities(ctx context.Context, tenantID, personID uuid.UUID, limit int) (out []records.Activity, err error) {
	withOccurred := r.store.hasColumn("activities", "occurred_at")
	err = r.store.read(ctx, func(st *Snapshot) error {
		out = listBy(st.Activities, func(v records.Activity) bool {
			return v.TenantID == tenantID && relatedTo(v, personID)
		})
		return nil
	})
	if !withOccurred {
		for i := range out {
			out[i].OccurredAt = nil
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.OccurredAt != nil && b.OccurredAt == nil:
			return true
		case a.OccurredAt == nil && b.OccurredAt != nil:
			return false
		case a.OccurredAt != nil && !a.OccurredAt.Equal(*b.OccurredAt):
			return a.OccurredAt.After(*b.OccurredAt)
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return truncate(out, limit), err
}

func (r *recordRepository) RecentNotes(ctx context.Context, tenantID, personID uuid.UUID, limit int) (out []records.Note, err error) {
	err = r.store.read(ctx, func(st *Snapshot) error {
		out = listBy(st.Notes, func(v records.Note) bool {
			return v.TenantID == tenantID && relatedTo(v, personID)
		})
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return truncate(out, limit), err
}

func (r *recordRepository) RecentDocuments(ctx context.Context, tenantID, personID uuid.UUID, limit int) (out []records.Document, err error) {
	err = r.store.read(ctx, func(st *Snapshot) error {
		out = listBy(st.Documents, func(v records.Document) bool {
			return v.TenantID == tenantID && relatedTo(v, personID)
		})
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return truncate(out, limit), err
}

func truncate[T any](in []T, limit int) []T {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}

func (r *recordRepository) checkAssigneeColumns(t records.Type) error {
	table := t.Table()
	if !r.store.hasColumn(table, "assigned_to") || !r.store.hasColumn(table, "assigned_to_name") {
		return records.ErrColumnMissing
	}
	return nil
}

func assignedTo(id *uuid.UUID, assigneeID uuid.UUID) bool {
	return id != nil && *id == assigneeID
}

func (r *recordRepository) AssigneeCopies(ctx context.Context, tenantID uuid.UUID, t records.Type, assigneeID uuid.UUID) (out []records.AssigneeCopy, err error) {
	if err := r.checkAssigneeColumns(t); err != nil {
		return nil, err
	}
	err = r.store.read(ctx, func(st *Snapshot) error {
		add := func(id uuid.UUID, name *string, person *records.PersonRef) {
			out = append(out, records.AssigneeCopy{ID: id, TenantID: tenantID, Name: name, Person: person})
		}
		switch t {
		case records.TypeLead:
			for _, v := range listBy(st.Leads, func(v records.Lead) bool { return v.TenantID == tenantID && assignedTo(v.AssignedTo, assigneeID) }) {
				add(v.ID, v.AssignedToName, &records.PersonRef{ID: v.ID, Type: records.TypeLead})
			}
		case records.TypeContact:
			for _, v := range listBy(st.Contacts, func(v records.Contact) bool { return v.TenantID == tenantID && assignedTo(v.AssignedTo, assigneeID) }) {
				add(v.ID, v.AssignedToName, &records.PersonRef{ID: v.ID, Type: records.TypeContact})
			}
		case records.TypeAccount:
			for _, v := range listBy(st.Accounts, func(v records.Account) bool { return v.TenantID == tenantID && assignedTo(v.AssignedTo, assigneeID) }) {
				add(v.ID, v.AssignedToName, nil)
			}
		case records.TypeSourcingRecord:
			for _, v := range listBy(st.SourcingRecords, func(v records.SourcingRecord) bool {
				return v.TenantID == tenantID && assignedTo(v.AssignedTo, assigneeID)
			}) {
				add(v.ID, v.AssignedToName, nil)
			}
		case records.TypeOpportunity:
			for _, v := range listBy(st.Opportunities, func(v records.Opportunity) bool {
				return v.TenantID == tenantID && assignedTo(v.AssignedTo, assigneeID)
			}) {
				add(v.ID, v.AssignedToName, nil)
			}
		case records.TypeActivity:
			for _, v := range listBy(st.Activities, func(v records.Activity) bool {
				return v.TenantID == tenantID && assignedTo(v.AssignedTo, assigneeID)
			}) {
				add(v.ID, v.AssignedToName, nil)
			}
		default:
			return records.ErrColumnMissing
		}
		return nil
	})
	return out, err
}

func (r *recordRepository) SetAssigneeName(ctx context.Context, tenantID uuid.UUID, t records.Type, id uuid.UUID, name *string) error {
	if err := r.checkAssigneeColumns(t); err != nil {
		return err
	}
	return r.store.write(ctx, func(st *Snapshot) error {
		switch t {
		case records.TypeLead:
			return setName(st.Leads, tenantID, id, func(v *records.Lead) { v.AssignedToName = name })
		case records.TypeContact:
			return setName(st.Contacts, tenantID, id, func(v *records.Contact) { v.AssignedToName = name })
		case records.TypeAccount:
			return setName(st.Accounts, tenantID, id, func(v *records.Account) { v.AssignedToName = name })
		case records.TypeSourcingRecord:
			return setName(st.SourcingRecords, tenantID, id, func(v *records.SourcingRecord) { v.AssignedToName = name })
		case records.TypeOpportunity:
			return setName(st.Opportunities, tenantID, id, func(v *records.Opportunity) { v.AssignedToName = name })
		case records.TypeActivity:
			return setName(st.Activities, tenantID, id, func(v *records.Activity) { v.AssignedToName = name })
		}
		return records.ErrColumnMissing
	})
}

func setName[T records.Record](m map[uuid.UUID]T, tenantID, id uuid.UUID, apply func(*T)) error {
	v, err := find(m, tenantID, id)
	if err != nil {
		return err
	}
	apply(&v)
	m[id] = v
	return nil
}

func (r *recordRepository) HasColumn(ctx context.Context, table, column string) (bool, error) {
	_ = ctx
	return r.store.hasColumn(strings.ToLower(table), strings.ToLower(column)), nil
}
