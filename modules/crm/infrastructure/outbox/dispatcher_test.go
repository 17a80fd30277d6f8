package outbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/events"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/eventbus"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/outbox"
)

func TestDispatcher_PublishesTypedEvents(t *testing.T) {
	bus := eventbus.NewEventPublisher(nil)
	d := NewDispatcher(bus)

	var changed *events.PersonChangedV1
	var renamed *events.AssigneeRenamedV1
	bus.Subscribe(func(_ *outbox.Meta, ev *events.PersonChangedV1) error {
		changed = ev
		return nil
	})
	bus.Subscribe(func(_ *outbox.Meta, ev *events.AssigneeRenamedV1) error {
		renamed = ev
		return nil
	})

	person := uuid.New()
	payload, err := json.Marshal(events.PersonChangedV1{PersonID: person, Reason: events.ReasonChanged})
	require.NoError(t, err)
	require.NoError(t, d.Dispatch(context.Background(), outbox.DispatchedMessage{
		Meta:    outbox.Meta{Topic: events.TopicPersonChangedV1, EventID: uuid.New()},
		Payload: payload,
	}))
	require.NotNil(t, changed)
	require.Equal(t, person, changed.PersonID)

	assignee := uuid.New()
	payload, err = json.Marshal(events.AssigneeRenamedV1{AssigneeID: assignee})
	require.NoError(t, err)
	require.NoError(t, d.Dispatch(context.Background(), outbox.DispatchedMessage{
		Meta:    outbox.Meta{Topic: events.TopicAssigneeRenamedV1},
		Payload: payload,
	}))
	require.Equal(t, assignee, renamed.AssigneeID)
}

func TestDispatcher_RejectsUnknownTopicAndBadPayload(t *testing.T) {
	d := NewDispatcher(eventbus.NewEventPublisher(nil))

	err := d.Dispatch(context.Background(), outbox.DispatchedMessage{
		Meta:    outbox.Meta{Topic: "org.changed.v1"},
		Payload: json.RawMessage(`{}`),
	})
	require.ErrorContains(t, err, "unsupported topic")

	err = d.Dispatch(context.Background(), outbox.DispatchedMessage{
		Meta:    outbox.Meta{Topic: events.TopicTransitionV1},
		Payload: json.RawMessage(`{"kind":`),
	})
	require.ErrorContains(t, err, "not json")

	var nilDispatcher *Dispatcher
	require.Error(t, nilDispatcher.Dispatch(context.Background(), outbox.DispatchedMessage{}))
}

func TestDispatcher_NoSubscribersIsReported(t *testing.T) {
	d := NewDispatcher(eventbus.NewEventPublisher(nil))

	err := d.Dispatch(context.Background(), outbox.DispatchedMessage{
		Meta:    outbox.Meta{Topic: events.TopicTransitionV1},
		Payload: json.RawMessage(`{"kind":"convert"}`),
	})
	require.ErrorIs(t, err, eventbus.ErrNoSubscribers)
}

func TestCoalesceKey(t *testing.T) {
	tenant, person := uuid.New(), uuid.New()
	msg := func(topic string, v any) outbox.DispatchedMessage {
		payload, err := json.Marshal(v)
		require.NoError(t, err)
		return outbox.DispatchedMessage{Meta: outbox.Meta{Topic: topic, TenantID: tenant}, Payload: payload}
	}

	changed, ok := CoalesceKey(msg(events.TopicPersonChangedV1, events.PersonChangedV1{
		TenantID: tenant, PersonID: person, Reason: events.ReasonChanged, SourceID: uuid.New(),
	}))
	require.True(t, ok)

	again, ok := CoalesceKey(msg(events.TopicPersonChangedV1, events.PersonChangedV1{
		TenantID: tenant, PersonID: person, Reason: events.ReasonChanged, SourceID: uuid.New(), Columns: []string{"status"},
	}))
	require.True(t, ok)
	require.Equal(t, changed, again)

	deleted, ok := CoalesceKey(msg(events.TopicPersonChangedV1, events.PersonChangedV1{
		TenantID: tenant, PersonID: person, Reason: events.ReasonDeleted,
	}))
	require.True(t, ok)
	require.NotEqual(t, changed, deleted)

	_, ok = CoalesceKey(msg(events.TopicTransitionV1, events.TransitionV1{TenantID: tenant}))
	require.False(t, ok)

	_, ok = CoalesceKey(outbox.DispatchedMessage{
		Meta:    outbox.Meta{Topic: events.TopicPersonChangedV1},
		Payload: json.RawMessage(`{"reason":`),
	})
	require.False(t, ok)
}
