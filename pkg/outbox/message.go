package outbox

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Message is the unit stored in an outbox table.
type Message struct {
	TenantID uuid.UUID
	Topic    string
	EventID  uuid.UUID
	Payload  json.RawMessage
}

func (m Message) validate() error {
	switch {
	case m.TenantID == uuid.Nil:
		return invalidConfig("tenant_id is required")
	case m.EventID == uuid.Nil:
		return invalidConfig("event_id is required")
	case m.Topic == "":
		return invalidConfig("topic is required")
	}
	return nil
}

// Meta is handed to subscribers together with the decoded payload.
type Meta struct {
	Table    pgx.Identifier
	TenantID uuid.UUID
	Topic    string
	EventID  uuid.UUID
	Sequence int64
	Attempts int

	// W3C trace context captured at enqueue time.
	TraceParent string
	TraceState  string
}

type DispatchedMessage struct {
	Meta    Meta
	Payload json.RawMessage
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msg DispatchedMessage) error
}

type DispatcherFunc func(ctx context.Context, msg DispatchedMessage) error

func (f DispatcherFunc) Dispatch(ctx context.Context, msg DispatchedMessage) error {
	return f(ctx, msg)
}

// CoalesceFunc reports the key under which msg may be merged with other
// messages claimed in the same batch. Only the newest message of a key is
// dispatched and the others settle with its outcome. Messages without a key
// are always dispatched.
type CoalesceFunc func(msg DispatchedMessage) (key string, ok bool)
