package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/events"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/lifecycle"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
)

// RecordService is the write path the CRUD layer calls for source records.
// Every write is diffed against the stored row and the resulting person
// changed events leave with the same transaction.
type RecordService struct {
	store    Store
	notifier *ChangeNotifier
	log      *logrus.Entry
	now      func() time.Time
}

func NewRecordService(store Store, notifier *ChangeNotifier, log *logrus.Entry) *RecordService {
	return &RecordService{store: store, notifier: notifier, log: log, now: time.Now}
}

type loadFunc[T records.Record] func(ctx context.Context, tenantID, id uuid.UUID) (T, error)

type saveFunc[T records.Record] func(ctx context.Context, v T) error

// guardStatus keeps lifecycle status out of plain writes. Only
// LifecycleService moves a record between states.
func guardStatus(next, before records.Record) error {
	to, ok := next.(records.Stateful)
	if !ok {
		return nil
	}
	var from lifecycle.State
	if prev, ok := before.(records.Stateful); ok {
		from = prev.LifecycleState()
	}
	err := lifecycle.GuardStatusWrite(string(next.RecordType()), next.RecordID(), from, to.LifecycleState(), before != nil)
	return mapRepoError(err, string(next.RecordType()), next.RecordID().String())
}

func saveRecord[T records.Record](ctx context.Context, s *RecordService, v T, load loadFunc[T], save saveFunc[T]) error {
	if v.RecordID() == uuid.Nil || v.RecordTenantID() == uuid.Nil {
		return invalidInput(string(v.RecordType())+" id and tenant_id are required", nil)
	}
	_, err := writeAndNotify(ctx, s.store, s.notifier, v.RecordTenantID(), func(txCtx context.Context) (struct{}, []Envelope, error) {
		var before records.Record
		prev, err := load(txCtx, v.RecordTenantID(), v.RecordID())
		switch {
		case err == nil:
			before = prev
		case !errors.Is(err, records.ErrNotFound):
			return struct{}{}, nil, err
		}
		if err := guardStatus(v, before); err != nil {
			return struct{}{}, nil, err
		}
		if err := save(txCtx, v); err != nil {
			return struct{}{}, nil, err
		}
		envs, err := s.notifier.Detect(txCtx, before, v)
		return struct{}{}, envs, err
	})
	return err
}

func (s *RecordService) SaveLead(ctx context.Context, v records.Lead) error {
	return saveRecord(ctx, s, v, s.store.Records().Lead, s.store.Records().SaveLead)
}

func (s *RecordService) SaveContact(ctx context.Context, v records.Contact) error {
	return saveRecord(ctx, s, v, s.store.Records().Contact, s.store.Records().SaveContact)
}

func (s *RecordService) SaveAccount(ctx context.Context, v records.Account) error {
	return saveRecord(ctx, s, v, s.store.Records().Account, s.store.Records().SaveAccount)
}

func (s *RecordService) SaveSourcingRecord(ctx context.Context, v records.SourcingRecord) error {
	return saveRecord(ctx, s, v, s.store.Records().SourcingRecord, s.store.Records().SaveSourcingRecord)
}

func (s *RecordService) SaveOpportunity(ctx context.Context, v records.Opportunity) error {
	return saveRecord(ctx, s, v, s.store.Records().Opportunity, s.store.Records().SaveOpportunity)
}

func (s *RecordService) SaveActivity(ctx context.Context, v records.Activity) error {
	return saveRecord(ctx, s, v, s.store.Records().Activity, s.store.Records().SaveActivity)
}

func (s *RecordService) SaveNote(ctx context.Context, v records.Note) error {
	return saveRecord(ctx, s, v, s.store.Records().Note, s.store.Records().SaveNote)
}

func (s *RecordService) SaveDocument(ctx context.Context, v records.Document) error {
	return saveRecord(ctx, s, v, s.store.Records().Document, s.store.Records().SaveDocument)
}

// SaveAssignee updates the directory entry. A display name change emits an
// AssigneeRenamedV1 event that drives the assignment cascade.
func (s *RecordService) SaveAssignee(ctx context.Context, v records.Assignee) error {
	if v.ID == uuid.Nil || v.TenantID == uuid.Nil {
		return invalidInput("assignee id and tenant_id are required", nil)
	}
	_, err := writeAndNotify(ctx, s.store, s.notifier, v.TenantID, func(txCtx context.Context) (struct{}, []Envelope, error) {
		repo := s.store.Records()
		prev, prevErr := repo.Assignee(txCtx, v.TenantID, v.ID)
		if prevErr != nil && !errors.Is(prevErr, records.ErrNotFound) {
			return struct{}{}, nil, prevErr
		}
		if err := repo.SaveAssignee(txCtx, v); err != nil {
			return struct{}{}, nil, err
		}
		if prevErr == nil && prev.DisplayName() == v.DisplayName() {
			return struct{}{}, nil, nil
		}
		ev := &events.AssigneeRenamedV1{
			EventID:      uuid.New(),
			EventVersion: events.EventVersionV1,
			TenantID:     v.TenantID,
			AssigneeID:   v.ID,
			OccurredAt:   s.now().UTC(),
		}
		return struct{}{}, []Envelope{envelope(v.TenantID, events.TopicAssigneeRenamedV1, ev.EventID, ev)}, nil
	})
	return err
}

// Delete removes a source record. Records that left their original role
// are protected and must be archived instead.
func (s *RecordService) Delete(ctx context.Context, t records.Type, tenantID, id uuid.UUID) error {
	_, err := writeAndNotify(ctx, s.store, s.notifier, tenantID, func(txCtx context.Context) (struct{}, []Envelope, error) {
		before, state, err := loadRecord(txCtx, s.store.Records(), t, tenantID, id)
		if err != nil {
			return struct{}{}, nil, mapRepoError(err, string(t), id.String())
		}
		if err := lifecycle.GuardDelete(string(t), id, state); err != nil {
			return struct{}{}, nil, mapRepoError(err, string(t), id.String())
		}
		if err := s.store.Records().Delete(txCtx, t, tenantID, id); err != nil {
			return struct{}{}, nil, mapRepoError(err, string(t), id.String())
		}
		envs, err := s.notifier.Detect(txCtx, before, nil)
		return struct{}{}, envs, err
	})
	return err
}

// loadRecord fetches any source record by type. The returned state is the
// lifecycle state for types that carry one and active otherwise.
func loadRecord(ctx context.Context, repo records.Repository, t records.Type, tenantID, id uuid.UUID) (records.Record, lifecycle.State, error) {
	switch t {
	case records.TypeLead:
		v, err := repo.Lead(ctx, tenantID, id)
		return v, stateOrActive(v.Status), err
	case records.TypeContact:
		v, err := repo.Contact(ctx, tenantID, id)
		return v, stateOrActive(v.Status), err
	case records.TypeAccount:
		v, err := repo.Account(ctx, tenantID, id)
		return v, stateOrActive(v.Status), err
	case records.TypeSourcingRecord:
		v, err := repo.SourcingRecord(ctx, tenantID, id)
		return v, stateOrActive(v.Status), err
	case records.TypeOpportunity:
		v, err := repo.Opportunity(ctx, tenantID, id)
		return v, lifecycle.Active, err
	case records.TypeActivity:
		v, err := repo.Activity(ctx, tenantID, id)
		return v, lifecycle.Active, err
	case records.TypeNote:
		v, err := repo.Note(ctx, tenantID, id)
		return v, lifecycle.Active, err
	case records.TypeDocument:
		v, err := repo.Document(ctx, tenantID, id)
		return v, lifecycle.Active, err
	}
	return nil, "", invalidInput("unknown record type "+string(t), nil)
}
