package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/events"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/eventbus"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/outbox"
	eventbusdispatcher "github.com/andreibyf/aishacrm-2-sub007/pkg/outbox/dispatchers/eventbus"
)

// Dispatcher republishes relayed crm_outbox rows as typed events.
type Dispatcher struct {
	bus   eventbus.EventBusWithError
	inner *eventbusdispatcher.Dispatcher
}

func NewDispatcher(bus eventbus.EventBusWithError) *Dispatcher {
	inner := eventbusdispatcher.New(bus)
	inner.Register(events.TopicPersonChangedV1, eventbusdispatcher.JSON[events.PersonChangedV1]())
	inner.Register(events.TopicTransitionV1, eventbusdispatcher.JSON[events.TransitionV1]())
	inner.Register(events.TopicAssigneeRenamedV1, eventbusdispatcher.JSON[events.AssigneeRenamedV1]())
	return &Dispatcher{bus: bus, inner: inner}
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg outbox.DispatchedMessage) error {
	if d == nil || d.bus == nil {
		return fmt.Errorf("crm outbox dispatcher: bus is nil")
	}

	switch msg.Meta.Topic {
	case events.TopicPersonChangedV1, events.TopicTransitionV1, events.TopicAssigneeRenamedV1:
	default:
		return fmt.Errorf("crm outbox dispatcher: unsupported topic %q", msg.Meta.Topic)
	}
	if !json.Valid(msg.Payload) {
		return fmt.Errorf("crm outbox dispatcher: %s payload is not json", msg.Meta.Topic)
	}
	return d.inner.Dispatch(ctx, msg)
}

// CoalesceKey lets a relay batch collapse person.changed rows for the same
// person and reason into the newest one. Handlers recompute from current
// state, so the older rows carry no extra information.
func CoalesceKey(msg outbox.DispatchedMessage) (string, bool) {
	if msg.Meta.Topic != events.TopicPersonChangedV1 {
		return "", false
	}
	var ev struct {
		TenantID uuid.UUID     `json:"tenant_id"`
		PersonID uuid.UUID     `json:"person_id"`
		Reason   events.Reason `json:"reason"`
	}
	if err := json.Unmarshal(msg.Payload, &ev); err != nil || ev.PersonID == uuid.Nil {
		return "", false
	}
	tenant := ev.TenantID
	if tenant == uuid.Nil {
		tenant = msg.Meta.TenantID
	}
	return tenant.String() + "/" + ev.PersonID.String() + "/" + string(ev.Reason), true
}
