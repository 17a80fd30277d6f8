// Package memory is a transactional in-process store for tests and local
// runs. A transaction works on a copy of the state and swaps it in on
// success, so a failed unit of work leaves nothing behind.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/aggregates/profile"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/entities/transition"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
)

// Snapshot is the full store state. It is what the sqlite backend persists.
type Snapshot struct {
	Leads           map[uuid.UUID]records.Lead           `json:"leads"`
	Contacts        map[uuid.UUID]records.Contact        `json:"contacts"`
	Accounts        map[uuid.UUID]records.Account        `json:"accounts"`
	SourcingRecords map[uuid.UUID]records.SourcingRecord `json:"sourcing_records"`
	Opportunities   map[uuid.UUID]records.Opportunity    `json:"opportunities"`
	Activities      map[uuid.UUID]records.Activity       `json:"activities"`
	Notes           map[uuid.UUID]records.Note           `json:"notes"`
	Documents       map[uuid.UUID]records.Document       `json:"documents"`
	Assignees       map[uuid.UUID]records.Assignee       `json:"assignees"`

	Profiles    map[uuid.UUID]profile.PersonProfile `json:"profiles"`
	Transitions []transition.EntityTransition       `json:"transitions"`
}

func NewSnapshot() Snapshot {
	return Snapshot{
		Leads:           map[uuid.UUID]records.Lead{},
		Contacts:        map[uuid.UUID]records.Contact{},
		Accounts:        map[uuid.UUID]records.Account{},
		SourcingRecords: map[uuid.UUID]records.SourcingRecord{},
		Opportunities:   map[uuid.UUID]records.Opportunity{},
		Activities:      map[uuid.UUID]records.Activity{},
		Notes:           map[uuid.UUID]records.Note{},
		Documents:       map[uuid.UUID]records.Document{},
		Assignees:       map[uuid.UUID]records.Assignee{},
		Profiles:        map[uuid.UUID]profile.PersonProfile{},
	}
}

// Clone copies every table. Row values are shared; rows are replaced
// wholesale on write and never mutated in place.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Leads:           cloneMap(s.Leads),
		Contacts:        cloneMap(s.Contacts),
		Accounts:        cloneMap(s.Accounts),
		SourcingRecords: cloneMap(s.SourcingRecords),
		Opportunities:   cloneMap(s.Opportunities),
		Activities:      cloneMap(s.Activities),
		Notes:           cloneMap(s.Notes),
		Documents:       cloneMap(s.Documents),
		Assignees:       cloneMap(s.Assignees),
		Profiles:        cloneMap(s.Profiles),
	}
	out.Transitions = append([]transition.EntityTransition(nil), s.Transitions...)
	return out
}

func cloneMap[V any](m map[uuid.UUID]V) map[uuid.UUID]V {
	if m == nil {
		return map[uuid.UUID]V{}
	}
	return maps.Clone(m)
}

// CommitHook runs while the store lock is held, before a transaction's state
// becomes visible. An error aborts the commit.
type CommitHook func(ctx context.Context, next Snapshot) error

type Option func(*Store)

func WithCommitHook(h CommitHook) Option {
	return func(s *Store) { s.hooks = append(s.hooks, h) }
}

// WithoutColumns simulates a deployment lacking optional columns, given as
// "table.column".
func WithoutColumns(cols ...string) Option {
	return func(s *Store) {
		for _, c := range cols {
			s.missing[c] = struct{}{}
		}
	}
}

type Store struct {
	mu      sync.Mutex
	state   Snapshot
	hooks   []CommitHook
	missing map[string]struct{}

	records     *recordRepository
	profiles    *profileRepository
	transitions *transitionRepository
}

func New(opts ...Option) *Store {
	s := &Store{
		state:   NewSnapshot(),
		missing: map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.records = &recordRepository{store: s}
	s.profiles = &profileRepository{store: s}
	s.transitions = &transitionRepository{store: s}
	return s
}

func (s *Store) Records() records.Repository        { return s.records }
func (s *Store) Profiles() profile.Repository       { return s.profiles }
func (s *Store) Transitions() transition.Repository { return s.transitions }

type txKey struct{}

type txState struct {
	store *Store
	state *Snapshot
}

func (s *Store) txFrom(ctx context.Context) *txState {
	tx, ok := ctx.Value(txKey{}).(*txState)
	if !ok || tx.store != s {
		return nil
	}
	return tx
}

// InTenantTx runs fn as one unit of work. Nested calls join the outer one.
func (s *Store) InTenantTx(ctx context.Context, tenantID uuid.UUID, fn func(txCtx context.Context) error) error {
	_ = tenantID
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	tx := &txState{store: s, state: &next}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	for _, h := range s.hooks {
		if err := h(ctx, next); err != nil {
			return err
		}
	}
	s.state = next
	return nil
}

// read runs fn against the transaction state in ctx, or the committed state.
func (s *Store) read(ctx context.Context, fn func(st *Snapshot) error) error {
	if tx := s.txFrom(ctx); tx != nil {
		return fn(tx.state)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.state)
}

// write runs fn inside the ambient transaction or an implicit one.
func (s *Store) write(ctx context.Context, fn func(st *Snapshot) error) error {
	if tx := s.txFrom(ctx); tx != nil {
		return fn(tx.state)
	}
	return s.InTenantTx(ctx, uuid.Nil, func(txCtx context.Context) error {
		return fn(s.txFrom(txCtx).state)
	})
}

// ExportState returns a copy of the committed state.
func (s *Store) ExportState() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// ImportState replaces the committed state without running commit hooks.
func (s *Store) ImportState(snap Snapshot) {
	next := NewSnapshot()
	merge(&next, snap)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = next
}

func merge(dst *Snapshot, src Snapshot) {
	maps.Copy(dst.Leads, src.Leads)
	maps.Copy(dst.Contacts, src.Contacts)
	maps.Copy(dst.Accounts, src.Accounts)
	maps.Copy(dst.SourcingRecords, src.SourcingRecords)
	maps.Copy(dst.Opportunities, src.Opportunities)
	maps.Copy(dst.Activities, src.Activities)
	maps.Copy(dst.Notes, src.Notes)
	maps.Copy(dst.Documents, src.Documents)
	maps.Copy(dst.Assignees, src.Assignees)
	maps.Copy(dst.Profiles, src.Profiles)
	dst.Transitions = append(dst.Transitions, src.Transitions...)
}

func (s *Store) hasColumn(table, column string) bool {
	_, missing := s.missing[table+"."+column]
	return !missing
}
