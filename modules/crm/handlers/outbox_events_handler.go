package handlers

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/events"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/services"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/application"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/composables"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/outbox"
)

// OutboxEventsHandler keeps person profiles in step with the events the
// notifier emits, whether they arrive from the outbox relay or directly.
type OutboxEventsHandler struct {
	base     context.Context
	profiles *services.ProfileService
	cascade  *services.AssignmentCascade
	logger   *logrus.Entry
}

func NewOutboxEventsHandler(base context.Context, profiles *services.ProfileService, cascade *services.AssignmentCascade, logger *logrus.Entry) *OutboxEventsHandler {
	if base == nil {
		base = context.Background()
	}
	return &OutboxEventsHandler{base: base, profiles: profiles, cascade: cascade, logger: logger}
}

func RegisterOutboxEventHandlers(app application.Application) {
	base := context.Background()
	if app.DB() != nil {
		base = composables.WithPool(base, app.DB())
	}
	handler := NewOutboxEventsHandler(
		base,
		app.Service(services.ProfileService{}).(*services.ProfileService),
		app.Service(services.AssignmentCascade{}).(*services.AssignmentCascade),
		logrus.NewEntry(app.Logger()),
	)
	app.EventPublisher().Subscribe(handler.onPersonChangedV1)
	app.EventPublisher().Subscribe(handler.onAssigneeRenamedV1)
}

func (h *OutboxEventsHandler) context(meta *outbox.Meta) context.Context {
	ctx := outbox.ContextWithTrace(h.base, meta)
	ctx = composables.WithTenantID(ctx, meta.TenantID)
	return composables.WithLogger(ctx, h.logger.WithFields(logrus.Fields{
		"topic":    meta.Topic,
		"event_id": meta.EventID.String(),
	}))
}

// onPersonChangedV1 never returns recompute errors: a failed recompute is
// logged by the service and corrected by the next refresh.
func (h *OutboxEventsHandler) onPersonChangedV1(meta *outbox.Meta, ev *events.PersonChangedV1) error {
	if h == nil || h.profiles == nil || meta == nil || ev == nil {
		return nil
	}
	ctx := h.context(meta)
	if ev.Reason == events.ReasonDeleted {
		return h.profiles.Remove(ctx, ev.TenantID, ev.PersonID)
	}
	_ = h.profiles.Recompute(ctx, ev.TenantID, ev.PersonID)
	return nil
}

func (h *OutboxEventsHandler) onAssigneeRenamedV1(meta *outbox.Meta, ev *events.AssigneeRenamedV1) error {
	if h == nil || h.cascade == nil || meta == nil || ev == nil {
		return nil
	}
	_, err := h.cascade.OnAssigneeRenamed(h.context(meta), ev.TenantID, ev.AssigneeID)
	return err
}
