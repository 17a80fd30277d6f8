package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error { return r.scan(dest...) }

func seqRow(seq int64) stubRow {
	return stubRow{scan: func(dest ...any) error {
		*dest[0].(*int64) = seq
		return nil
	}}
}

type stubBatch struct {
	rows   []pgx.Row
	closed bool
}

func (b *stubBatch) Exec() (pgconn.CommandTag, error) { return pgconn.CommandTag{}, nil }
func (b *stubBatch) Query() (pgx.Rows, error)         { return nil, errors.New("not implemented") }
func (b *stubBatch) QueryRow() pgx.Row {
	row := b.rows[0]
	b.rows = b.rows[1:]
	return row
}
func (b *stubBatch) Close() error {
	b.closed = true
	return nil
}

type stubTx struct {
	queryRow func(sql string, args ...any) pgx.Row
	batch    *stubBatch
	queued   []pgx.QueuedQuery
}

func (s *stubTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}

func (s *stubTx) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	for _, q := range b.QueuedQueries {
		s.queued = append(s.queued, *q)
	}
	return s.batch
}

func (s *stubTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (s *stubTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (s *stubTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	return s.queryRow(sql, args...)
}

var testTable = pgx.Identifier{"public", "crm_outbox"}

func TestPublisher_Validation(t *testing.T) {
	p := NewPublisher()
	tx := &stubTx{}
	ctx := context.Background()

	_, err := p.Enqueue(ctx, tx, testTable, Message{EventID: uuid.New(), Topic: "t"})
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = p.Enqueue(ctx, tx, testTable, Message{TenantID: uuid.New(), Topic: "t"})
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = p.Enqueue(ctx, tx, testTable, Message{TenantID: uuid.New(), EventID: uuid.New()})
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = p.Enqueue(ctx, tx, nil, Message{TenantID: uuid.New(), EventID: uuid.New(), Topic: "t"})
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = p.Enqueue(ctx, nil, testTable, Message{TenantID: uuid.New(), EventID: uuid.New(), Topic: "t"})
	require.ErrorIs(t, err, ErrInvalidConfig)

	err = p.EnqueueAll(ctx, tx, testTable, []Message{{TenantID: uuid.New(), EventID: uuid.New()}})
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.Empty(t, tx.queued)
	require.NoError(t, p.EnqueueAll(ctx, nil, testTable, nil))
}

func sampledContext(t *testing.T) context.Context {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

const wantTraceParent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

func TestPublisher_EnqueueCarriesTraceContext(t *testing.T) {
	msg := Message{TenantID: uuid.New(), Topic: "crm.person.changed.v1", EventID: uuid.New(), Payload: []byte(`{}`)}
	tx := &stubTx{queryRow: func(sql string, args ...any) pgx.Row {
		require.Contains(t, sql, `INSERT INTO "public"."crm_outbox"`)
		require.Contains(t, sql, "ON CONFLICT (event_id)")
		require.Equal(t, msg.TenantID, args[0])
		require.Equal(t, msg.EventID, args[3])
		require.Equal(t, wantTraceParent, args[4])
		return seqRow(42)
	}}

	seq, err := NewPublisher().Enqueue(sampledContext(t), tx, testTable, msg)
	require.NoError(t, err)
	require.Equal(t, int64(42), seq)
}

func TestPublisher_EnqueueAllBatches(t *testing.T) {
	tenant := uuid.New()
	msgs := []Message{
		{TenantID: tenant, Topic: "crm.person.changed.v1", EventID: uuid.New(), Payload: []byte(`{}`)},
		{TenantID: tenant, Topic: "crm.entity.transitioned.v1", EventID: uuid.New(), Payload: []byte(`{}`)},
	}
	tx := &stubTx{batch: &stubBatch{rows: []pgx.Row{seqRow(1), seqRow(2)}}}

	require.NoError(t, NewPublisher().EnqueueAll(sampledContext(t), tx, testTable, msgs))
	require.Len(t, tx.queued, 2)
	require.Equal(t, msgs[1].EventID, tx.queued[1].Arguments[3])
	require.Equal(t, wantTraceParent, tx.queued[0].Arguments[4])
	require.True(t, tx.batch.closed)
}

func TestPublisher_EnqueueAllSurfacesRowError(t *testing.T) {
	boom := errors.New("boom")
	tx := &stubTx{batch: &stubBatch{rows: []pgx.Row{stubRow{scan: func(...any) error { return boom }}}}}

	err := NewPublisher().EnqueueAll(context.Background(), tx, testTable, []Message{
		{TenantID: uuid.New(), Topic: "t", EventID: uuid.New()},
	})
	require.ErrorIs(t, err, boom)
	require.True(t, tx.batch.closed)
}

func TestContextWithTrace(t *testing.T) {
	ctx := ContextWithTrace(context.Background(), &Meta{TraceParent: wantTraceParent})
	sc := trace.SpanContextFromContext(ctx)
	require.True(t, sc.IsRemote())
	require.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())

	plain := context.Background()
	require.Equal(t, plain, ContextWithTrace(plain, &Meta{}))
	require.Equal(t, plain, ContextWithTrace(plain, nil))
}

func TestParseIdentifier(t *testing.T) {
	ident, err := ParseIdentifier(" public.crm_outbox ")
	require.NoError(t, err)
	require.Equal(t, pgx.Identifier{"public", "crm_outbox"}, ident)
	require.Equal(t, "public.crm_outbox", TableLabel(ident))

	for _, bad := range []string{"", "a.b.c", "crm;drop", "public.", "1table"} {
		_, err = ParseIdentifier(bad)
		require.ErrorIs(t, err, ErrInvalidConfig, bad)
	}
}
