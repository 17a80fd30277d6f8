package persistence

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/aggregates/profile"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/entities/transition"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/lifecycle"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/composables"
)

var allColumns = []string{
	"leads.job_title", "leads.assigned_to", "leads.assigned_to_name",
	"contacts.job_title", "contacts.assigned_to", "contacts.assigned_to_name",
	"accounts.assigned_to", "accounts.assigned_to_name",
	"opportunities.lead_id", "opportunities.assigned_to", "opportunities.assigned_to_name",
	"activities.occurred_at", "activities.assigned_to", "activities.assigned_to_name",
}

var _ pgx.Tx = (*stubTx)(nil)

// stubTx is a pgx.Tx that records statements instead of running them.
type stubTx struct {
	columns  []string
	execErr  error
	execTag  string
	rowErr   error
	execSQL  []string
	querySQL []string
}

func (s *stubTx) Begin(ctx context.Context) (pgx.Tx, error) { return s, nil }
func (s *stubTx) Commit(ctx context.Context) error          { return nil }
func (s *stubTx) Rollback(ctx context.Context) error        { return nil }
func (s *stubTx) Conn() *pgx.Conn                           { return nil }
func (s *stubTx) LargeObjects() pgx.LargeObjects            { return pgx.LargeObjects{} }

func (s *stubTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return &pgconn.StatementDescription{Name: name, SQL: sql}, nil
}

func (s *stubTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("copy not implemented")
}

func (s *stubTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	var results pgx.BatchResults
	return results
}

func (s *stubTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	s.execSQL = append(s.execSQL, sql)
	if s.execErr != nil {
		return pgconn.CommandTag{}, s.execErr
	}
	tag := s.execTag
	if tag == "" {
		tag = "INSERT 0 1"
	}
	return pgconn.NewCommandTag(tag), nil
}

func (s *stubTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	s.querySQL = append(s.querySQL, sql)
	if sql != columnsQuery {
		return &stubRows{}, nil
	}
	return &stubRows{columns: s.columns}, nil
}

func (s *stubTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	s.querySQL = append(s.querySQL, sql)
	return stubRow{err: s.rowErr}
}

type stubRow struct {
	err error
}

func (r stubRow) Scan(dest ...any) error { return r.err }

type stubRows struct {
	columns []string
	pos     int
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Values() ([]any, error)                       { return nil, nil }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

func (r *stubRows) Next() bool {
	if r.pos >= len(r.columns) {
		return false
	}
	r.pos++
	return true
}

func (r *stubRows) Scan(dest ...any) error {
	table, column, _ := strings.Cut(r.columns[r.pos-1], ".")
	*dest[0].(*string) = table
	*dest[1].(*string) = column
	return nil
}

func withStub(tx *stubTx) context.Context {
	return composables.WithTx(context.Background(), tx)
}

func without(cols []string, drop ...string) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		skip := false
		for _, d := range drop {
			if c == d {
				skip = true
			}
		}
		if !skip {
			out = append(out, c)
		}
	}
	return out
}

func TestRecordRepository_JoinsAmbientTx(t *testing.T) {
	tx := &stubTx{columns: allColumns}
	ctx := withStub(tx)
	require.True(t, composables.HasTx(ctx))

	got, err := composables.UseTx(ctx)
	require.NoError(t, err)
	require.Same(t, tx, got)
}

func TestRecordRepository_MissingRowIsNotFound(t *testing.T) {
	tx := &stubTx{columns: allColumns, rowErr: pgx.ErrNoRows}
	repo := NewRecordRepository(nil)

	_, err := repo.Lead(withStub(tx), uuid.New(), uuid.New())
	require.ErrorIs(t, err, records.ErrNotFound)
}

func TestRecordRepository_OtherErrorsAreWrapped(t *testing.T) {
	boom := errors.New("connection reset")
	tx := &stubTx{columns: allColumns, rowErr: boom}
	repo := NewRecordRepository(nil)

	_, err := repo.Account(withStub(tx), uuid.New(), uuid.New())
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, records.ErrNotFound)
}

func TestRecordRepository_SubstitutesMissingColumns(t *testing.T) {
	tx := &stubTx{
		columns: without(allColumns, "leads.job_title", "leads.assigned_to", "activities.occurred_at"),
		rowErr:  pgx.ErrNoRows,
	}
	repo := NewRecordRepository(nil)
	ctx := withStub(tx)

	_, _ = repo.Lead(ctx, uuid.New(), uuid.New())
	_, _ = repo.RecentActivities(ctx, uuid.New(), uuid.New(), 5)

	var leadSQL, activitySQL string
	for _, q := range tx.querySQL {
		switch {
		case strings.Contains(q, "FROM leads"):
			leadSQL = q
		case strings.Contains(q, "FROM activities"):
			activitySQL = q
		}
	}
	require.Contains(t, leadSQL, "''")
	require.NotContains(t, leadSQL, "job_title")
	require.Contains(t, leadSQL, "NULL::uuid AS assigned_to")
	require.Contains(t, activitySQL, "NULL::timestamptz AS occurred_at")
	require.Contains(t, activitySQL, "ORDER BY created_at DESC, id")

	ok, err := repo.HasColumn(ctx, "LEADS", "Email")
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = repo.HasColumn(ctx, "contacts", "job_title")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRecordRepository_ColumnsAreProbedOnce(t *testing.T) {
	tx := &stubTx{columns: allColumns, rowErr: pgx.ErrNoRows}
	repo := NewRecordRepository(nil)
	ctx := withStub(tx)

	_, _ = repo.Lead(ctx, uuid.New(), uuid.New())
	_, _ = repo.Contact(ctx, uuid.New(), uuid.New())

	probes := 0
	for _, q := range tx.querySQL {
		if q == columnsQuery {
			probes++
		}
	}
	require.Equal(t, 1, probes)
}

func TestRecordRepository_WriteSkipsMissingColumns(t *testing.T) {
	tx := &stubTx{columns: without(allColumns, "leads.job_title")}
	repo := NewRecordRepository(nil)

	err := repo.SaveLead(withStub(tx), records.Lead{ID: uuid.New(), TenantID: uuid.New(), FirstName: "Ada"})
	require.NoError(t, err)
	require.Len(t, tx.execSQL, 1)
	require.NotContains(t, tx.execSQL[0], "job_title")
	require.Contains(t, tx.execSQL[0], "ON CONFLICT (id) DO UPDATE SET")
	require.Contains(t, tx.execSQL[0], "WHERE leads.tenant_id = EXCLUDED.tenant_id")
}

func TestRecordRepository_InsertDuplicate(t *testing.T) {
	tx := &stubTx{columns: allColumns, execErr: &pgconn.PgError{Code: "23505"}}
	repo := NewRecordRepository(nil)

	err := repo.InsertContact(withStub(tx), records.Contact{ID: uuid.New(), TenantID: uuid.New()})
	require.ErrorIs(t, err, records.ErrDuplicate)
	require.NotContains(t, tx.execSQL[0], "ON CONFLICT")
}

func TestRecordRepository_UpsertAcrossTenantsIsNotFound(t *testing.T) {
	tx := &stubTx{columns: allColumns, execTag: "INSERT 0 0"}
	repo := NewRecordRepository(nil)

	err := repo.SaveAccount(withStub(tx), records.Account{ID: uuid.New(), TenantID: uuid.New(), Name: "Acme"})
	require.ErrorIs(t, err, records.ErrNotFound)
}

func TestRecordRepository_DeleteMissing(t *testing.T) {
	tx := &stubTx{columns: allColumns, execTag: "DELETE 0"}
	repo := NewRecordRepository(nil)

	err := repo.Delete(withStub(tx), records.TypeOpportunity, uuid.New(), uuid.New())
	require.ErrorIs(t, err, records.ErrNotFound)
	require.Contains(t, tx.execSQL[0], "DELETE FROM opportunities")

	err = repo.Delete(withStub(tx), records.Type("invoice"), uuid.New(), uuid.New())
	require.Error(t, err)
}

func TestRecordRepository_AssigneeColumnsMissing(t *testing.T) {
	tx := &stubTx{columns: without(allColumns, "accounts.assigned_to_name")}
	repo := NewRecordRepository(nil)
	ctx := withStub(tx)

	_, err := repo.AssigneeCopies(ctx, uuid.New(), records.TypeNote, uuid.New())
	require.ErrorIs(t, err, records.ErrColumnMissing)

	_, err = repo.AssigneeCopies(ctx, uuid.New(), records.TypeAccount, uuid.New())
	require.ErrorIs(t, err, records.ErrColumnMissing)

	name := "Ada Lovelace"
	err = repo.SetAssigneeName(ctx, uuid.New(), records.TypeAccount, uuid.New(), &name)
	require.ErrorIs(t, err, records.ErrColumnMissing)

	err = repo.SetAssigneeName(ctx, uuid.New(), records.TypeLead, uuid.New(), &name)
	require.NoError(t, err)
	require.Contains(t, tx.execSQL[len(tx.execSQL)-1], "UPDATE leads SET assigned_to_name")
}

func TestFilterClause(t *testing.T) {
	tenant := uuid.New()

	where, args := filterClause(lifecycle.Any, tenant)
	require.Equal(t, " WHERE tenant_id = $1", where)
	require.Equal(t, []any{tenant}, args)

	where, args = filterClause(lifecycle.ActiveOnly, tenant)
	require.Equal(t, " WHERE tenant_id = $1 AND COALESCE(status, 'active') = ANY($2)", where)
	require.Equal(t, []any{tenant, []string{"active"}}, args)
}

func TestProfileRepository_GetMissing(t *testing.T) {
	tx := &stubTx{rowErr: pgx.ErrNoRows}
	repo := NewProfileRepository(nil)

	_, err := repo.Get(withStub(tx), uuid.New(), uuid.New())
	require.ErrorIs(t, err, profile.ErrNotFound)
}

func TestProfileRepository_DeleteMissingIsNoop(t *testing.T) {
	tx := &stubTx{execTag: "DELETE 0"}
	repo := NewProfileRepository(nil)

	require.NoError(t, repo.Delete(withStub(tx), uuid.New(), uuid.New()))
}

func TestTransitionRepository_AppendDuplicate(t *testing.T) {
	tx := &stubTx{execErr: &pgconn.PgError{Code: "23505"}}
	repo := NewTransitionRepository(nil)

	lead := records.Lead{ID: uuid.New(), TenantID: uuid.New()}
	tr := transition.New(lead.TenantID, lead, records.TypeContact, uuid.New(), lifecycle.KindConvert, nil, lead.CreatedAt)
	err := repo.Append(withStub(tx), tr)
	require.ErrorIs(t, err, transition.ErrDuplicate)
}

func TestTransitionRepository_ConversionTrackingJoinsBothSides(t *testing.T) {
	tx := &stubTx{}
	repo := NewTransitionRepository(nil)

	rows, err := repo.ConversionTracking(withStub(tx), uuid.New())
	require.NoError(t, err)
	require.Empty(t, rows)
	require.Len(t, tx.querySQL, 1)
	require.Contains(t, tx.querySQL[0], ") source_side ON TRUE")
	require.Contains(t, tx.querySQL[0], ") target_side ON TRUE")
	require.Contains(t, tx.querySQL[0], "t.kind IN ('convert', 'promote')")
}
