package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/andreibyf/aishacrm-2-sub007/pkg/repo"
)

type Publisher interface {
	// Enqueue writes msg inside tx. Re-enqueueing an EventID returns the
	// sequence of the existing row.
	Enqueue(ctx context.Context, tx repo.Tx, table pgx.Identifier, msg Message) (sequence int64, err error)
	// EnqueueAll writes msgs inside tx in one round trip.
	EnqueueAll(ctx context.Context, tx repo.Tx, table pgx.Identifier, msgs []Message) error
}

type publisher struct {
	m *metrics
}

func NewPublisher() Publisher {
	return &publisher{m: getMetrics()}
}

func enqueueSQL(table pgx.Identifier) string {
	return fmt.Sprintf(`INSERT INTO %s (tenant_id, topic, payload, event_id, available_at, trace_parent, trace_state)
		VALUES ($1, $2, $3, $4, now(), NULLIF($5, ''), NULLIF($6, ''))
		ON CONFLICT (event_id) DO UPDATE SET event_id = EXCLUDED.event_id
		RETURNING sequence`, table.Sanitize())
}

func checkTarget(tx repo.Tx, table pgx.Identifier) error {
	if tx == nil {
		return invalidConfig("tx is required")
	}
	if len(table) == 0 {
		return invalidConfig("table is required")
	}
	return nil
}

func (p *publisher) Enqueue(ctx context.Context, tx repo.Tx, table pgx.Identifier, msg Message) (int64, error) {
	if err := checkTarget(tx, table); err != nil {
		return 0, err
	}
	if err := msg.validate(); err != nil {
		return 0, err
	}
	traceParent, traceState := injectTrace(ctx)

	var sequence int64
	if err := tx.QueryRow(ctx, enqueueSQL(table), msg.TenantID, msg.Topic, msg.Payload, msg.EventID, traceParent, traceState).Scan(&sequence); err != nil {
		return 0, fmt.Errorf("outbox enqueue: %w", err)
	}
	p.m.enqueued.WithLabelValues(TableLabel(table), msg.Topic).Inc()
	return sequence, nil
}

func (p *publisher) EnqueueAll(ctx context.Context, tx repo.Tx, table pgx.Identifier, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := checkTarget(tx, table); err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := msg.validate(); err != nil {
			return err
		}
	}
	traceParent, traceState := injectTrace(ctx)
	q := enqueueSQL(table)

	batch := &pgx.Batch{}
	for _, msg := range msgs {
		batch.Queue(q, msg.TenantID, msg.Topic, msg.Payload, msg.EventID, traceParent, traceState)
	}
	results := tx.SendBatch(ctx, batch)
	for _, msg := range msgs {
		var sequence int64
		if err := results.QueryRow().Scan(&sequence); err != nil {
			_ = results.Close()
			return fmt.Errorf("outbox enqueue %s: %w", msg.EventID, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("outbox enqueue: %w", err)
	}
	label := TableLabel(table)
	for _, msg := range msgs {
		p.m.enqueued.WithLabelValues(label, msg.Topic).Inc()
	}
	return nil
}
