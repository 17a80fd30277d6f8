package outbox

import (
	"cmp"
	"context"
	"fmt"
	"hash/fnv"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and *pgxpool.Conn.
type querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// tableStore holds the SQL for one outbox table.
type tableStore struct {
	pool  *pgxpool.Pool
	ident pgx.Identifier
	name  string
	label string
}

func newTableStore(pool *pgxpool.Pool, table pgx.Identifier) (*tableStore, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}
	if len(table) == 0 {
		return nil, invalidConfig("table is required")
	}
	return &tableStore{pool: pool, ident: table, name: table.Sanitize(), label: TableLabel(table)}, nil
}

// db prefers the pinned connection of a single-active relay.
func (s *tableStore) db(conn *pgxpool.Conn) querier {
	if conn != nil {
		return conn
	}
	return s.pool
}

type claimed struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Topic       string
	Payload     []byte
	EventID     uuid.UUID
	Sequence    int64
	Attempts    int
	TraceParent pgtype.Text
	TraceState  pgtype.Text
}

func (c claimed) message(table pgx.Identifier) DispatchedMessage {
	return DispatchedMessage{
		Meta: Meta{
			Table:       table,
			TenantID:    c.TenantID,
			Topic:       c.Topic,
			EventID:     c.EventID,
			Sequence:    c.Sequence,
			Attempts:    c.Attempts,
			TraceParent: c.TraceParent.String,
			TraceState:  c.TraceState.String,
		},
		Payload: c.Payload,
	}
}

// claim locks up to limit due rows and bumps their attempts in one
// statement. Rows come back in sequence order with attempts already counted.
func (s *tableStore) claim(ctx context.Context, db querier, now, lockCutoff time.Time, maxAttempts, limit int) ([]claimed, error) {
	q := fmt.Sprintf(`
		WITH due AS (
			SELECT id FROM %[1]s
			 WHERE published_at IS NULL
			   AND available_at <= $1
			   AND attempts < $2
			   AND (locked_at IS NULL OR locked_at < $3)
			 ORDER BY available_at, sequence
			 LIMIT $4
			 FOR UPDATE SKIP LOCKED
		)
		UPDATE %[1]s o
		   SET locked_at = $1, attempts = o.attempts + 1
		  FROM due
		 WHERE o.id = due.id
		RETURNING o.id, o.tenant_id, o.topic, o.payload, o.event_id, o.sequence, o.attempts, o.trace_parent, o.trace_state`,
		s.name)
	rows, err := db.Query(ctx, q, now, maxAttempts, lockCutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox claim: %w", err)
	}
	defer rows.Close()

	var out []claimed
	for rows.Next() {
		var c claimed
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Topic, &c.Payload, &c.EventID, &c.Sequence, &c.Attempts, &c.TraceParent, &c.TraceState); err != nil {
			return nil, fmt.Errorf("outbox claim scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox claim: %w", err)
	}
	slices.SortFunc(out, func(a, b claimed) int { return cmp.Compare(a.Sequence, b.Sequence) })
	return out, nil
}

// settlement is the outcome of one batch, written back in one transaction.
type settlement struct {
	published []uuid.UUID

	failedIDs  []uuid.UUID
	failedErrs []string
	failedAt   []time.Time
}

func (st *settlement) publish(id uuid.UUID) {
	st.published = append(st.published, id)
}

// fail releases id with lastError; it becomes due again at next.
func (st *settlement) fail(id uuid.UUID, lastError string, next time.Time) {
	st.failedIDs = append(st.failedIDs, id)
	st.failedErrs = append(st.failedErrs, lastError)
	st.failedAt = append(st.failedAt, next)
}

func (st *settlement) empty() bool {
	return len(st.published) == 0 && len(st.failedIDs) == 0
}

func (s *tableStore) settle(ctx context.Context, db querier, st settlement) error {
	if st.empty() {
		return nil
	}
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if len(st.published) > 0 {
		q := fmt.Sprintf(`UPDATE %s
		    SET published_at = now(), locked_at = NULL, last_error = NULL
		  WHERE id = ANY($1) AND published_at IS NULL`, s.name)
		if _, err := tx.Exec(ctx, q, pgtype.FlatArray[uuid.UUID](st.published)); err != nil {
			return fmt.Errorf("outbox ack: %w", err)
		}
	}
	if len(st.failedIDs) > 0 {
		q := fmt.Sprintf(`UPDATE %s o
		    SET locked_at = NULL, last_error = f.err, available_at = f.at
		   FROM unnest($1::uuid[], $2::text[], $3::timestamptz[]) AS f(id, err, at)
		  WHERE o.id = f.id AND o.published_at IS NULL`, s.name)
		if _, err := tx.Exec(ctx, q, pgtype.FlatArray[uuid.UUID](st.failedIDs), st.failedErrs, st.failedAt); err != nil {
			return fmt.Errorf("outbox nack: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *tableStore) depth(ctx context.Context, db querier) (pending, locked int64, err error) {
	q := fmt.Sprintf(`SELECT count(*), count(*) FILTER (WHERE locked_at IS NOT NULL)
		FROM %s WHERE published_at IS NULL`, s.name)
	if err := db.QueryRow(ctx, q).Scan(&pending, &locked); err != nil {
		return 0, 0, fmt.Errorf("outbox depth: %w", err)
	}
	return pending, locked, nil
}

// leaderKey is the session advisory lock a single-active relay holds.
func (s *tableStore) leaderKey() int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("outbox:" + s.label))
	return int64(h.Sum64())
}

func (s *tableStore) tryLead(ctx context.Context, conn *pgxpool.Conn) (bool, error) {
	var ok bool
	err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1::bigint)`, s.leaderKey()).Scan(&ok)
	return ok, err
}

func (s *tableStore) resign(ctx context.Context, conn *pgxpool.Conn) error {
	var ok bool
	return conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1::bigint)`, s.leaderKey()).Scan(&ok)
}

// clean removes published rows older than publishedBefore and, when
// deadBefore is set, rows that exhausted deadAttempts and were created
// before it.
func (s *tableStore) clean(ctx context.Context, publishedBefore time.Time, deadBefore *time.Time, deadAttempts int) (published, dead int64, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE published_at IS NOT NULL AND published_at < $1`, s.name), publishedBefore)
	if err != nil {
		return 0, 0, fmt.Errorf("outbox clean published: %w", err)
	}
	published = tag.RowsAffected()

	if deadBefore != nil {
		tag, err = tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s
		  WHERE published_at IS NULL AND attempts >= $1 AND created_at < $2`, s.name), deadAttempts, *deadBefore)
		if err != nil {
			return 0, 0, fmt.Errorf("outbox clean dead: %w", err)
		}
		dead = tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, err
	}
	return published, dead, nil
}
