package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/andreibyf/aishacrm-2-sub007/pkg/eventbus"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/outbox"
)

// Decoder turns a stored payload into the typed event published on the bus.
type Decoder func(payload json.RawMessage) (any, error)

// Dispatcher publishes relayed outbox messages onto an event bus.
//
// Topics with a registered Decoder are published as (meta, event); all other
// topics are published raw as (meta, topic, payload).
type Dispatcher struct {
	bus eventbus.EventBusWithError

	mu       sync.RWMutex
	decoders map[string]Decoder
}

func New(bus eventbus.EventBusWithError) *Dispatcher {
	return &Dispatcher{
		bus:      bus,
		decoders: map[string]Decoder{},
	}
}

func (d *Dispatcher) Register(topic string, decode Decoder) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.decoders[topic] = decode
}

// JSON returns a Decoder that unmarshals into a fresh *T.
func JSON[T any]() Decoder {
	return func(payload json.RawMessage) (any, error) {
		var v T
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, err
		}
		return &v, nil
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg outbox.DispatchedMessage) error {
	_ = ctx
	d.mu.RLock()
	decode, ok := d.decoders[msg.Meta.Topic]
	d.mu.RUnlock()

	// PublishE surfaces handler errors and panics so the relay retries.
	if !ok {
		return d.bus.PublishE(&msg.Meta, msg.Meta.Topic, msg.Payload)
	}
	ev, err := decode(msg.Payload)
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", msg.Meta.Topic, err)
	}
	return d.bus.PublishE(&msg.Meta, ev)
}
