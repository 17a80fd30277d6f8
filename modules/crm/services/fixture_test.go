package services_test

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/events"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/infrastructure/memory"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/services"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/eventbus"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/locks"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/outbox"
)

type fixture struct {
	tenantID uuid.UUID
	store    *memory.Store
	locks    *locks.Local
	bus      eventbus.EventBusWithError

	notifier  *services.ChangeNotifier
	profiles  *services.ProfileService
	lifecycle *services.LifecycleService
	records   *services.RecordService
	cascade   *services.AssignmentCascade

	mu      sync.Mutex
	changed []*events.PersonChangedV1
	trans   []*events.TransitionV1
	renamed []*events.AssigneeRenamedV1
}

func newFixture(t *testing.T, opts ...memory.Option) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	entry := logrus.NewEntry(logger)

	f := &fixture{
		tenantID: uuid.New(),
		store:    memory.New(opts...),
		locks:    locks.NewLocal(),
		bus:      eventbus.NewEventPublisher(logger),
	}
	f.notifier = services.NewChangeNotifier(f.store, entry, services.WithFlusher(services.NewBusFlusher(f.bus)))
	f.profiles = services.NewProfileService(f.store, f.locks, services.ProfileConfig{RecentLimit: 3, TextMaxLen: 20}, entry)
	f.lifecycle = services.NewLifecycleService(f.store, f.notifier, entry)
	f.records = services.NewRecordService(f.store, f.notifier, entry)
	f.cascade = services.NewAssignmentCascade(f.store, f.notifier, entry)

	f.bus.Subscribe(func(_ *outbox.Meta, ev *events.PersonChangedV1) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.changed = append(f.changed, ev)
		return nil
	})
	f.bus.Subscribe(func(_ *outbox.Meta, ev *events.TransitionV1) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.trans = append(f.trans, ev)
		return nil
	})
	f.bus.Subscribe(func(_ *outbox.Meta, ev *events.AssigneeRenamedV1) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.renamed = append(f.renamed, ev)
		return nil
	})
	return f
}

func (f *fixture) changedPersons() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uuid.UUID, 0, len(f.changed))
	for _, ev := range f.changed {
		out = append(out, ev.PersonID)
	}
	return out
}

func (f *fixture) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changed, f.trans, f.renamed = nil, nil, nil
}

func (f *fixture) lead(first, last string) records.Lead {
	now := time.Now().UTC()
	return records.Lead{
		ID:        uuid.New(),
		TenantID:  f.tenantID,
		FirstName: first,
		LastName:  last,
		Email:     first + "@example.com",
		Company:   "Acme",
		Source:    "webinar",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func ptr[T any](v T) *T { return &v }
