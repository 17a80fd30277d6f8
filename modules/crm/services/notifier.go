package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
	"github.com/wI2L/jsondiff"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/events"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/composables"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/eventbus"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/outbox"
)

// Envelope is one event on its way to the outbox or the bus. Payload is a
// pointer to one of the events package types.
type Envelope struct {
	TenantID uuid.UUID
	Topic    string
	EventID  uuid.UUID
	Payload  any
}

func envelope(tenantID uuid.UUID, topic string, eventID uuid.UUID, payload any) Envelope {
	return Envelope{TenantID: tenantID, Topic: topic, EventID: eventID, Payload: payload}
}

// Stager persists envelopes inside the write transaction.
type Stager interface {
	Stage(txCtx context.Context, envs []Envelope) error
}

// Flusher delivers envelopes after the write transaction committed.
type Flusher interface {
	Flush(ctx context.Context, envs []Envelope) error
}

// relevantColumns lists, per source type, the columns whose change can alter
// a person profile. Creates and deletes are always relevant.
var relevantColumns = map[records.Type][]string{
	records.TypeLead:        {"first_name", "last_name", "email", "phone", "job_title", "status", "account_id", "assigned_to"},
	records.TypeContact:     {"first_name", "last_name", "email", "phone", "job_title", "status", "account_id", "assigned_to"},
	records.TypeAccount:     {"name"},
	records.TypeOpportunity: {"stage", "contact_id", "lead_id", "name", "amount"},
	records.TypeActivity:    {"related_id", "subject", "type", "occurred_at"},
	records.TypeNote:        {"related_id", "title", "content"},
	records.TypeDocument:    {"related_id", "name"},
}

type NotifierOption func(*ChangeNotifier)

func WithStager(s Stager) NotifierOption {
	return func(n *ChangeNotifier) { n.stagers = append(n.stagers, s) }
}

func WithFlusher(f Flusher) NotifierOption {
	return func(n *ChangeNotifier) { n.flushers = append(n.flushers, f) }
}

// ChangeNotifier turns source record writes into person changed events.
type ChangeNotifier struct {
	store    Store
	stagers  []Stager
	flushers []Flusher
	log      *logrus.Entry
	now      func() time.Time
}

func NewChangeNotifier(store Store, log *logrus.Entry, opts ...NotifierOption) *ChangeNotifier {
	n := &ChangeNotifier{store: store, log: log, now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ChangedColumns returns the top-level fields that differ between two row
// snapshots, sorted.
func ChangedColumns(before, after map[string]any) ([]string, error) {
	patch, err := jsondiff.Compare(before, after)
	if err != nil {
		return nil, fmt.Errorf("diff snapshots: %w", err)
	}
	seen := map[string]struct{}{}
	for _, op := range patch {
		path := strings.TrimPrefix(string(op.Path), "/")
		if path == "" {
			continue
		}
		col, _, _ := strings.Cut(path, "/")
		seen[col] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for col := range seen {
		out = append(out, col)
	}
	sort.Strings(out)
	return out, nil
}

// Detect works out which persons a write affects. before is nil for a
// create, after is nil for a delete. It must run inside the write
// transaction so account fan-out sees the written state.
func (n *ChangeNotifier) Detect(txCtx context.Context, before, after records.Record) ([]Envelope, error) {
	if before == nil && after == nil {
		return nil, nil
	}
	row := after
	op := events.OpUpdate
	switch {
	case before == nil:
		op = events.OpCreate
	case after == nil:
		op = events.OpDelete
		row = before
	case before.RecordType() != after.RecordType():
		return nil, fmt.Errorf("notifier: cannot compare %s with %s", before.RecordType(), after.RecordType())
	}

	relevant, tracked := relevantColumns[row.RecordType()]
	if !tracked {
		return nil, nil
	}

	var columns []string
	if op == events.OpUpdate {
		changed, err := ChangedColumns(before.Snapshot(), after.Snapshot())
		if err != nil {
			return nil, err
		}
		columns = intersect(changed, relevant)
		if len(columns) == 0 {
			return nil, nil
		}
	}

	persons, err := n.affectedPersons(txCtx, row, before, after)
	if err != nil {
		return nil, err
	}

	reason := events.ReasonChanged
	if op == events.OpDelete && row.RecordType().IsPerson() {
		reason = events.ReasonDeleted
	}

	out := make([]Envelope, 0, len(persons))
	occurredAt := n.now().UTC()
	for _, personID := range persons {
		ev := &events.PersonChangedV1{
			EventID:      uuid.New(),
			EventVersion: events.EventVersionV1,
			TenantID:     row.RecordTenantID(),
			PersonID:     personID,
			Reason:       reason,
			SourceType:   row.RecordType(),
			SourceID:     row.RecordID(),
			Op:           op,
			Columns:      columns,
			OccurredAt:   occurredAt,
		}
		out = append(out, envelope(ev.TenantID, events.TopicPersonChangedV1, ev.EventID, ev))
		recordNotifierEvent(string(row.RecordType()), string(op))
	}
	return out, nil
}

func (n *ChangeNotifier) affectedPersons(ctx context.Context, row, before, after records.Record) ([]uuid.UUID, error) {
	if row.RecordType() != records.TypeAccount {
		var ids []uuid.UUID
		if before != nil {
			ids = append(ids, before.PersonRefs()...)
		}
		if after != nil {
			ids = append(ids, after.PersonRefs()...)
		}
		return dedupe(ids), nil
	}
	refs, err := n.store.Records().PersonsForAccount(ctx, row.RecordTenantID(), row.RecordID())
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ID)
	}
	return dedupe(ids), nil
}

// PersonChanged builds a change event for a single person without diffing.
func (n *ChangeNotifier) PersonChanged(tenantID, personID uuid.UUID, sourceType records.Type, sourceID uuid.UUID, columns ...string) Envelope {
	ev := &events.PersonChangedV1{
		EventID:      uuid.New(),
		EventVersion: events.EventVersionV1,
		TenantID:     tenantID,
		PersonID:     personID,
		Reason:       events.ReasonChanged,
		SourceType:   sourceType,
		SourceID:     sourceID,
		Op:           events.OpUpdate,
		Columns:      columns,
		OccurredAt:   n.now().UTC(),
	}
	recordNotifierEvent(string(sourceType), string(events.OpUpdate))
	return envelope(tenantID, events.TopicPersonChangedV1, ev.EventID, ev)
}

// Stage hands envelopes to the transactional sinks. A failure aborts the
// surrounding write.
func (n *ChangeNotifier) Stage(txCtx context.Context, envs []Envelope) error {
	if len(envs) == 0 {
		return nil
	}
	for _, s := range n.stagers {
		if err := s.Stage(txCtx, envs); err != nil {
			return err
		}
	}
	return nil
}

// Flush hands envelopes to the post-commit sinks. Failures are logged and
// never reach the caller: the write already committed.
func (n *ChangeNotifier) Flush(ctx context.Context, envs []Envelope) {
	if len(envs) == 0 {
		return
	}
	for _, f := range n.flushers {
		if err := f.Flush(ctx, envs); err != nil {
			loggerFor(ctx, n.log).WithError(err).WithFields(logrus.Fields{
				"events":     len(envs),
				"error_code": ErrorCode(err),
			}).Warn("crm.notifier.flush_failed")
		}
	}
}

func intersect(changed, relevant []string) []string {
	var out []string
	for _, c := range changed {
		for _, r := range relevant {
			if c == r {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// OutboxStager enqueues envelopes into a transactional outbox table. The
// ctx must carry a pgx transaction.
type OutboxStager struct {
	publisher outbox.Publisher
	table     pgx.Identifier
}

func NewOutboxStager(publisher outbox.Publisher, table pgx.Identifier) *OutboxStager {
	return &OutboxStager{publisher: publisher, table: table}
}

var errOutboxNeedsTx = errors.New("outbox stager requires an ambient pgx transaction")

func (s *OutboxStager) Stage(txCtx context.Context, envs []Envelope) error {
	if !composables.HasTx(txCtx) {
		return errOutboxNeedsTx
	}
	tx, err := composables.UseTx(txCtx)
	if err != nil {
		return err
	}
	msgs := make([]outbox.Message, 0, len(envs))
	for _, env := range envs {
		payload, err := json.Marshal(env.Payload)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", env.Topic, err)
		}
		msgs = append(msgs, outbox.Message{
			TenantID: env.TenantID,
			Topic:    env.Topic,
			EventID:  env.EventID,
			Payload:  payload,
		})
	}
	return s.publisher.EnqueueAll(txCtx, tx, s.table, msgs)
}

// BusFlusher publishes envelopes on the event bus with the same arguments
// the outbox dispatcher uses, so subscribers work in either mode.
type BusFlusher struct {
	bus eventbus.EventBusWithError
}

func NewBusFlusher(bus eventbus.EventBusWithError) *BusFlusher {
	return &BusFlusher{bus: bus}
}

func (f *BusFlusher) Flush(ctx context.Context, envs []Envelope) error {
	_ = ctx
	var errs []error
	for _, env := range envs {
		meta := &outbox.Meta{TenantID: env.TenantID, Topic: env.Topic, EventID: env.EventID}
		if err := f.bus.PublishE(meta, env.Payload); err != nil && !errors.Is(err, eventbus.ErrNoSubscribers) {
			errs = append(errs, fmt.Errorf("%s %s: %w", env.Topic, env.EventID, err))
		}
	}
	return errors.Join(errs...)
}

// writeAndNotify runs fn in a tenant transaction, stages the envelopes fn
// returns inside it and flushes them once the transaction committed.
func writeAndNotify[T any](ctx context.Context, store Store, n *ChangeNotifier, tenantID uuid.UUID, fn func(txCtx context.Context) (T, []Envelope, error)) (T, error) {
	var envs []Envelope
	out, err := inTx(ctx, store, tenantID, func(txCtx context.Context) (T, error) {
		res, staged, err := fn(txCtx)
		if err != nil {
			return res, err
		}
		if err := n.Stage(txCtx, staged); err != nil {
			return res, err
		}
		envs = staged
		return res, nil
	})
	if err != nil {
		return out, err
	}
	n.Flush(ctx, envs)
	return out, nil
}
