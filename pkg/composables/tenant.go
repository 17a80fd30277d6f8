package composables

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/andreibyf/aishacrm-2-sub007/pkg/constants"
)

var (
	ErrNoTenantID = errors.New("tenant id not found in context")
)

func WithTenantID(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, constants.TenantIDKey, tenantID)
}

func UseTenantID(ctx context.Context) (uuid.UUID, error) {
	v, ok := ctx.Value(constants.TenantIDKey).(uuid.UUID)
	if !ok || v == uuid.Nil {
		return uuid.Nil, ErrNoTenantID
	}
	return v, nil
}

// WithActor records who performs the current operation (user id, service name, ...).
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, constants.ActorKey, actor)
}

func UseActor(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(constants.ActorKey).(string)
	return v, ok && v != ""
}

func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, logger)
}

// UseLogger returns the logger attached to ctx, or nil when there is none.
func UseLogger(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return nil
	}
	switch typed := ctx.Value(constants.LoggerKey).(type) {
	case *logrus.Entry:
		return typed
	case *logrus.Logger:
		return logrus.NewEntry(typed)
	default:
		return nil
	}
}
