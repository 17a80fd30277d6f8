package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/lifecycle"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/composables"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/repo"
)

// conn returns the ambient transaction, else the fallback pool, else the
// pool carried by ctx.
func conn(ctx context.Context, pool *pgxpool.Pool) (repo.Tx, error) {
	if composables.HasTx(ctx) {
		return composables.UseTx(ctx)
	}
	if pool != nil {
		return pool, nil
	}
	return composables.UsePool(ctx)
}

// optionalColumns may be absent on older deployments. Writes skip them and
// reads substitute a neutral value.
var optionalColumns = map[string]struct{}{
	"job_title":        {},
	"occurred_at":      {},
	"lead_id":          {},
	"assigned_to":      {},
	"assigned_to_name": {},
}

type field struct {
	col string
	val any
}

type RecordRepository struct {
	pool    *pgxpool.Pool
	columns *columnSet
}

func NewRecordRepository(pool *pgxpool.Pool) *RecordRepository {
	return &RecordRepository{pool: pool, columns: newColumnSet()}
}

var _ records.Repository = (*RecordRepository)(nil)

func (r *RecordRepository) HasColumn(ctx context.Context, table, column string) (bool, error) {
	ctx, err := r.probeCtx(ctx)
	if err != nil {
		return false, err
	}
	return r.columns.has(ctx, table, column)
}

// probeCtx makes sure the column probe can reach the database.
func (r *RecordRepository) probeCtx(ctx context.Context) (context.Context, error) {
	if composables.HasTx(ctx) || r.pool == nil {
		return ctx, nil
	}
	if _, err := composables.UsePool(ctx); err == nil {
		return ctx, nil
	}
	return composables.WithPool(ctx, r.pool), nil
}

func (r *RecordRepository) assigneeExpr(ctx context.Context, table string) (string, error) {
	ok, err := r.hasAssigneeColumns(ctx, table)
	if err != nil {
		return "", err
	}
	if ok {
		return "assigned_to, assigned_to_name", nil
	}
	return "NULL::uuid AS assigned_to, NULL::text AS assigned_to_name", nil
}

func (r *RecordRepository) hasAssigneeColumns(ctx context.Context, table string) (bool, error) {
	ctx, err := r.probeCtx(ctx)
	if err != nil {
		return false, err
	}
	for _, col := range []string{"assigned_to", "assigned_to_name"} {
		ok, err := r.columns.has(ctx, table, col)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (r *RecordRepository) optional(ctx context.Context, table, column, present, missing string) (string, error) {
	ctx, err := r.probeCtx(ctx)
	if err != nil {
		return "", err
	}
	return r.columns.optional(ctx, table, column, present, missing)
}

// write inserts a row, or upserts it by id when upsert is set. An upsert
// never moves a row across tenants.
func (r *RecordRepository) write(ctx context.Context, table string, fields []field, upsert bool) error {
	probe, err := r.probeCtx(ctx)
	if err != nil {
		return err
	}
	cols := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		if _, opt := optionalColumns[f.col]; opt {
			ok, err := r.columns.has(probe, table, f.col)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		}
		cols = append(cols, f.col)
		args = append(args, f.val)
	}

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if upsert {
		sets := make([]string, 0, len(cols))
		for _, c := range cols {
			if c == "id" || c == "tenant_id" || c == "created_at" {
				continue
			}
			sets = append(sets, c+" = EXCLUDED."+c)
		}
		q += fmt.Sprintf(" ON CONFLICT (id) DO UPDATE SET %s WHERE %s.tenant_id = EXCLUDED.tenant_id", strings.Join(sets, ", "), table)
	}

	tx, err := conn(ctx, r.pool)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, q, args...)
	if err != nil {
		return mapError(err, "write "+table)
	}
	if tag.RowsAffected() == 0 {
		return records.ErrNotFound
	}
	return nil
}

func queryOne[T any](ctx context.Context, pool *pgxpool.Pool, q string, scan func(pgx.Row) (T, error), args ...any) (T, error) {
	var zero T
	tx, err := conn(ctx, pool)
	if err != nil {
		return zero, err
	}
	v, err := scan(tx.QueryRow(ctx, q, args...))
	if err != nil {
		return zero, mapError(err, "query")
	}
	return v, nil
}

func queryAll[T any](ctx context.Context, pool *pgxpool.Pool, q string, scan func(pgx.Row) (T, error), args ...any) ([]T, error) {
	tx, err := conn(ctx, pool)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, q, args...)
	if err != nil {
		return nil, mapError(err, "query")
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, mapError(err, "scan")
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "rows")
	}
	return out, nil
}

func jsonMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// Leads

func (r *RecordRepository) leadSelect(ctx context.Context) (string, error) {
	jobTitle, err := r.optional(ctx, "leads", "job_title", "COALESCE(job_title, '')", "''")
	if err != nil {
		return "", err
	}
	assignee, err := r.assigneeExpr(ctx, "leads")
	if err != nil {
		return "", err
	}
	return `SELECT id, tenant_id, COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(email, ''),
	        COALESCE(phone, ''), ` + jobTitle + `, COALESCE(company, ''), COALESCE(source, ''),
	        COALESCE(status, 'active'), account_id, ` + assignee + `, COALESCE(metadata, '{}'::jsonb),
	        created_at, updated_at
	   FROM leads`, nil
}

func scanLead(row pgx.Row) (records.Lead, error) {
	var v records.Lead
	var status string
	err := row.Scan(&v.ID, &v.TenantID, &v.FirstName, &v.LastName, &v.Email, &v.Phone, &v.JobTitle, &v.Company,
		&v.Source, &status, &v.AccountID, &v.AssignedTo, &v.AssignedToName, &v.Metadata, &v.CreatedAt, &v.UpdatedAt)
	v.Status = lifecycle.State(status)
	return v, err
}

func (r *RecordRepository) Lead(ctx context.Context, tenantID, id uuid.UUID) (records.Lead, error) {
	sel, err := r.leadSelect(ctx)
	if err != nil {
		return records.Lead{}, err
	}
	return queryOne(ctx, r.pool, sel+" WHERE tenant_id = $1 AND id = $2", scanLead, tenantID, id)
}

func (r *RecordRepository) Leads(ctx context.Context, tenantID uuid.UUID, f lifecycle.Filter) ([]records.Lead, error) {
	sel, err := r.leadSelect(ctx)
	if err != nil {
		return nil, err
	}
	where, args := filterClause(f, tenantID)
	return queryAll(ctx, r.pool, sel+where+" ORDER BY id", scanLead, args...)
}

func (r *RecordRepository) SaveLead(ctx context.Context, v records.Lead) error {
	return r.write(ctx, "leads", leadFields(v), true)
}

func leadFields(v records.Lead) []field {
	return []field{
		{"id", v.ID}, {"tenant_id", v.TenantID}, {"first_name", v.FirstName}, {"last_name", v.LastName},
		{"email", v.Email}, {"phone", v.Phone}, {"job_title", v.JobTitle}, {"company", v.Company},
		{"source", v.Source}, {"status", string(stateOrActive(v.Status))}, {"account_id", v.AccountID},
		{"assigned_to", v.AssignedTo}, {"assigned_to_name", v.AssignedToName}, {"metadata", jsonMap(v.Metadata)},
		{"created_at", v.CreatedAt}, {"updated_at", v.UpdatedAt},
	}
}

// Contacts

func (r *RecordRepository) contactSelect(ctx context.Context) (string, error) {
	jobTitle, err := r.optional(ctx, "contacts", "job_title", "COALESCE(job_title, '')", "''")
	if err != nil {
		return "", err
	}
	assignee, err := r.assigneeExpr(ctx, "contacts")
	if err != nil {
		return "", err
	}
	return `SELECT id, tenant_id, COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(email, ''),
	        COALESCE(phone, ''), ` + jobTitle + `, COALESCE(status, 'active'), account_id, ` + assignee + `,
	        COALESCE(metadata, '{}'::jsonb), created_at, updated_at
	   FROM contacts`, nil
}

func scanContact(row pgx.Row) (records.Contact, error) {
	var v records.Contact
	var status string
	err := row.Scan(&v.ID, &v.TenantID, &v.FirstName, &v.LastName, &v.Email, &v.Phone, &v.JobTitle, &status,
		&v.AccountID, &v.AssignedTo, &v.AssignedToName, &v.Metadata, &v.CreatedAt, &v.UpdatedAt)
	v.Status = lifecycle.State(status)
	return v, err
}

func (r *RecordRepository) Contact(ctx context.Context, tenantID, id uuid.UUID) (records.Contact, error) {
	sel, err := r.contactSelect(ctx)
	if err != nil {
		return records.Contact{}, err
	}
	return queryOne(ctx, r.pool, sel+" WHERE tenant_id = $1 AND id = $2", scanContact, tenantID, id)
}

func (r *RecordRepository) Contacts(ctx context.Context, tenantID uuid.UUID, f lifecycle.Filter) ([]records.Contact, error) {
	sel, err := r.contactSelect(ctx)
	if err != nil {
		return nil, err
	}
	where, args := filterClause(f, tenantID)
	return queryAll(ctx, r.pool, sel+where+" ORDER BY id", scanContact, args...)
}

func contactFields(v records.Contact) []field {
	return []field{
		{"id", v.ID}, {"tenant_id", v.TenantID}, {"first_name", v.FirstName}, {"last_name", v.LastName},
		{"email", v.Email}, {"phone", v.Phone}, {"job_title", v.JobTitle}, {"status", string(stateOrActive(v.Status))},
		{"account_id", v.AccountID}, {"assigned_to", v.AssignedTo}, {"assigned_to_name", v.AssignedToName},
		{"metadata", jsonMap(v.Metadata)}, {"created_at", v.CreatedAt}, {"updated_at", v.UpdatedAt},
	}
}

func (r *RecordRepository) SaveContact(ctx context.Context, v records.Contact) error {
	return r.write(ctx, "contacts", contactFields(v), true)
}

func (r *RecordRepository) InsertContact(ctx context.Context, v records.Contact) error {
	return r.write(ctx, "contacts", contactFields(v), false)
}

// Accounts

func (r *RecordRepository) accountSelect(ctx context.Context) (string, error) {
	assignee, err := r.assigneeExpr(ctx, "accounts")
	if err != nil {
		return "", err
	}
	return `SELECT id, tenant_id, COALESCE(name, ''), COALESCE(industry, ''), COALESCE(website, ''),
	        COALESCE(status, 'active'), ` + assignee + `, COALESCE(metadata, '{}'::jsonb), created_at, updated_at
	   FROM accounts`, nil
}

func scanAccount(row pgx.Row) (records.Account, error) {
	var v records.Account
	var status string
	err := row.Scan(&v.ID, &v.TenantID, &v.Name, &v.Industry, &v.Website, &status, &v.AssignedTo, &v.AssignedToName,
		&v.Metadata, &v.CreatedAt, &v.UpdatedAt)
	v.Status = lifecycle.State(status)
	return v, err
}

func (r *RecordRepository) Account(ctx context.Context, tenantID, id uuid.UUID) (records.Account, error) {
	sel, err := r.accountSelect(ctx)
	if err != nil {
		return records.Account{}, err
	}
	return queryOne(ctx, r.pool, sel+" WHERE tenant_id = $1 AND id = $2", scanAccount, tenantID, id)
}

func (r *RecordRepository) Accounts(ctx context.Context, tenantID uuid.UUID, f lifecycle.Filter) ([]records.Account, error) {
	sel, err := r.accountSelect(ctx)
	if err != nil {
		return nil, err
	}
	where, args := filterClause(f, tenantID)
	return queryAll(ctx, r.pool, sel+where+" ORDER BY id", scanAccount, args...)
}

func accountFields(v records.Account) []field {
	return []field{
		{"id", v.ID}, {"tenant_id", v.TenantID}, {"name", v.Name}, {"industry", v.Industry}, {"website", v.Website},
		{"status", string(stateOrActive(v.Status))}, {"assigned_to", v.AssignedTo}, {"assigned_to_name", v.AssignedToName},
		{"metadata", jsonMap(v.Metadata)}, {"created_at", v.CreatedAt}, {"updated_at", v.UpdatedAt},
	}
}

func (r *RecordRepository) SaveAccount(ctx context.Context, v records.Account) error {
	return r.write(ctx, "accounts", accountFields(v), true)
}

func (r *RecordRepository) InsertAccount(ctx context.Context, v records.Account) error {
	return r.write(ctx, "accounts", accountFields(v), false)
}

// Sourcing records

func (r *RecordRepository) sourcingSelect(ctx context.Context) (string, error) {
	assignee, err := r.assigneeExpr(ctx, "sourcing_records")
	if err != nil {
		return "", err
	}
	return `SELECT id, tenant_id, COALESCE(company_name, ''), COALESCE(contact_name, ''), COALESCE(email, ''),
	        COALESCE(phone, ''), COALESCE(industry, ''), COALESCE(website, ''), COALESCE(source, ''),
	        COALESCE(status, 'active'), ` + assignee + `, COALESCE(metadata, '{}'::jsonb), created_at, updated_at
	   FROM sourcing_records`, nil
}

func scanSourcingRecord(row pgx.Row) (records.SourcingRecord, error) {
	var v records.SourcingRecord
	var status string
	err := row.Scan(&v.ID, &v.TenantID, &v.CompanyName, &v.ContactName, &v.Email, &v.Phone, &v.Industry, &v.Website,
		&v.Source, &status, &v.AssignedTo, &v.AssignedToName, &v.Metadata, &v.CreatedAt, &v.UpdatedAt)
	v.Status = lifecycle.State(status)
	return v, err
}

func (r *RecordRepository) SourcingRecord(ctx context.Context, tenantID, id uuid.UUID) (records.SourcingRecord, error) {
	sel, err := r.sourcingSelect(ctx)
	if err != nil {
		return records.SourcingRecord{}, err
	}
	return queryOne(ctx, r.pool, sel+" WHERE tenant_id = $1 AND id = $2", scanSourcingRecord, tenantID, id)
}

func (r *RecordRepository) SourcingRecords(ctx context.Context, tenantID uuid.UUID, f lifecycle.Filter) ([]records.SourcingRecord, error) {
	sel, err := r.sourcingSelect(ctx)
	if err != nil {
		return nil, err
	}
	where, args := filterClause(f, tenantID)
	return queryAll(ctx, r.pool, sel+where+" ORDER BY id", scanSourcingRecord, args...)
}

func (r *RecordRepository) SaveSourcingRecord(ctx context.Context, v records.SourcingRecord) error {
	return r.write(ctx, "sourcing_records", []field{
		{"id", v.ID}, {"tenant_id", v.TenantID}, {"company_name", v.CompanyName}, {"contact_name", v.ContactName},
		{"email", v.Email}, {"phone", v.Phone}, {"industry", v.Industry}, {"website", v.Website}, {"source", v.Source},
		{"status", string(stateOrActive(v.Status))}, {"assigned_to", v.AssignedTo}, {"assigned_to_name", v.AssignedToName},
		{"metadata", jsonMap(v.Metadata)}, {"created_at", v.CreatedAt}, {"updated_at", v.UpdatedAt},
	}, true)
}

// Opportunities

func (r *RecordRepository) opportunitySelect(ctx context.Context) (string, error) {
	leadID, err := r.optional(ctx, "opportunities", "lead_id", "lead_id", "NULL::uuid AS lead_id")
	if err != nil {
		return "", err
	}
	assignee, err := r.assigneeExpr(ctx, "opportunities")
	if err != nil {
		return "", err
	}
	return `SELECT id, tenant_id, COALESCE(name, ''), COALESCE(stage, ''), COALESCE(amount, 0)::text,
	        account_id, contact_id, ` + leadID + `, ` + assignee + `, created_at, updated_at
	   FROM opportunities`, nil
}

func scanOpportunity(row pgx.Row) (records.Opportunity, error) {
	var v records.Opportunity
	var amount string
	if err := row.Scan(&v.ID, &v.TenantID, &v.Name, &v.Stage, &amount, &v.AccountID, &v.ContactID, &v.LeadID,
		&v.AssignedTo, &v.AssignedToName, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return v, err
	}
	var err error
	v.Amount, err = parseAmount(amount)
	return v, err
}

func (r *RecordRepository) Opportunity(ctx context.Context, tenantID, id uuid.UUID) (records.Opportunity, error) {
	sel, err := r.opportunitySelect(ctx)
	if err != nil {
		return records.Opportunity{}, err
	}
	return queryOne(ctx, r.pool, sel+" WHERE tenant_id = $1 AND id = $2", scanOpportunity, tenantID, id)
}

func (r *RecordRepository) SaveOpportunity(ctx context.Context, v records.Opportunity) error {
	return r.write(ctx, "opportunities", []field{
		{"id", v.ID}, {"tenant_id", v.TenantID}, {"name", v.Name}, {"stage", v.Stage}, {"amount", v.Amount.String()},
		{"account_id", v.AccountID}, {"contact_id", v.ContactID}, {"lead_id", v.LeadID}, {"assigned_to", v.AssignedTo},
		{"assigned_to_name", v.AssignedToName}, {"created_at", v.CreatedAt}, {"updated_at", v.UpdatedAt},
	}, true)
}

func (r *RecordRepository) OpportunitiesForPerson(ctx context.Context, tenantID, personID uuid.UUID) ([]records.Opportunity, error) {
	sel, err := r.opportunitySelect(ctx)
	if err != nil {
		return nil, err
	}
	match, err := r.optional(ctx, "opportunities", "lead_id", "(contact_id = $2 OR lead_id = $2)", "contact_id = $2")
	if err != nil {
		return nil, err
	}
	q := sel + " WHERE tenant_id = $1 AND " + match + " ORDER BY updated_at DESC, id"
	return queryAll(ctx, r.pool, q, scanOpportunity, tenantID, personID)
}

// Activities, notes and documents

const personRelated = "related_id = $2 AND (related_type IS NULL OR related_type IN ('', 'lead', 'contact'))"

func (r *RecordRepository) activitySelect(ctx context.Context) (string, error) {
	occurredAt, err := r.optional(ctx, "activities", "occurred_at", "occurred_at", "NULL::timestamptz AS occurred_at")
	if err != nil {
		return "", err
	}
	assignee, err := r.assigneeExpr(ctx, "activities")
	if err != nil {
		return "", err
	}
	return `SELECT id, tenant_id, COALESCE(type, ''), COALESCE(subject, ''), COALESCE(body, ''),
	        COALESCE(related_type, ''), related_id, ` + occurredAt + `, ` + assignee + `, created_at, updated_at
	   FROM activities`, nil
}

func scanActivity(row pgx.Row) (records.Activity, error) {
	var v records.Activity
	var relatedType string
	err := row.Scan(&v.ID, &v.TenantID, &v.Type, &v.Subject, &v.Body, &relatedType, &v.RelatedID, &v.OccurredAt,
		&v.AssignedTo, &v.AssignedToName, &v.CreatedAt, &v.UpdatedAt)
	v.RelatedType = records.Type(relatedType)
	return v, err
}

func (r *RecordRepository) Activity(ctx context.Context, tenantID, id uuid.UUID) (records.Activity, error) {
	sel, err := r.activitySelect(ctx)
	if err != nil {
		return records.Activity{}, err
	}
	return queryOne(ctx, r.pool, sel+" WHERE tenant_id = $1 AND id = $2", scanActivity, tenantID, id)
}

func (r *RecordRepository) SaveActivity(ctx context.Context, v records.Activity) error {
	return r.write(ctx, "activities", []field{
		{"id", v.ID}, {"tenant_id", v.TenantID}, {"type", v.Type}, {"subject", v.Subject}, {"body", v.Body},
		{"related_type", string(v.RelatedType)}, {"related_id", v.RelatedID}, {"occurred_at", v.OccurredAt},
		{"assigned_to", v.AssignedTo}, {"assigned_to_name", v.AssignedToName}, {"created_at", v.CreatedAt},
		{"updated_at", v.UpdatedAt},
	}, true)
}

func (r *RecordRepository) RecentActivities(ctx context.Context, tenantID, personID uuid.UUID, limit int) ([]records.Activity, error) {
	sel, err := r.activitySelect(ctx)
	if err != nil {
		return nil, err
	}
	order, err := r.optional(ctx, "activities", "occurred_at",
		"occurred_at DESC NULLS LAST, created_at DESC, id", "created_at DESC, id")
	if err != nil {
		return nil, err
	}
	q := sel + " WHERE tenant_id = $1 AND " + personRelated + " ORDER BY " + order + " LIMIT $3"
	return queryAll(ctx, r.pool, q, scanActivity, tenantID, personID, limit)
}

const noteSelect = `SELECT id, tenant_id, COALESCE(title, ''), COALESCE(content, ''), COALESCE(related_type, ''),
        related_id, created_at, updated_at
   FROM notes`

func scanNote(row pgx.Row) (records.Note, error) {
	var v records.Note
	var relatedType string
	err := row.Scan(&v.ID, &v.TenantID, &v.Title, &v.Content, &relatedType, &v.RelatedID, &v.CreatedAt, &v.UpdatedAt)
	v.RelatedType = records.Type(relatedType)
	return v, err
}

func (r *RecordRepository) Note(ctx context.Context, tenantID, id uuid.UUID) (records.Note, error) {
	return queryOne(ctx, r.pool, noteSelect+" WHERE tenant_id = $1 AND id = $2", scanNote, tenantID, id)
}

func (r *RecordRepository) SaveNote(ctx context.Context, v records.Note) error {
	return r.write(ctx, "notes", []field{
		{"id", v.ID}, {"tenant_id", v.TenantID}, {"title", v.Title}, {"content", v.Content},
		{"related_type", string(v.RelatedType)}, {"related_id", v.RelatedID}, {"created_at", v.CreatedAt},
		{"updated_at", v.UpdatedAt},
	}, true)
}

func (r *RecordRepository) RecentNotes(ctx context.Context, tenantID, personID uuid.UUID, limit int) ([]records.Note, error) {
	q := noteSelect + " WHERE tenant_id = $1 AND " + personRelated + " ORDER BY created_at DESC, id LIMIT $3"
	return queryAll(ctx, r.pool, q, scanNote, tenantID, personID, limit)
}

const documentSelect = `SELECT id, tenant_id, COALESCE(name, ''), COALESCE(file_url, ''), COALESCE(related_type, ''),
        related_id, created_at, updated_at
   FROM documents`

func scanDocument(row pgx.Row) (records.Document, error) {
	var v records.Document
	var relatedType string
	err := row.Scan(&v.ID, &v.TenantID, &v.Name, &v.FileURL, &relatedType, &v.RelatedID, &v.CreatedAt, &v.UpdatedAt)
	v.RelatedType = records.Type(relatedType)
	return v, err
}

func (r *RecordRepository) Document(ctx context.Context, tenantID, id uuid.UUID) (records.Document, error) {
	return queryOne(ctx, r.pool, documentSelect+" WHERE tenant_id = $1 AND id = $2", scanDocument, tenantID, id)
}

func (r *RecordRepository) SaveDocument(ctx context.Context, v records.Document) error {
	return r.write(ctx, "documents", []field{
		{"id", v.ID}, {"tenant_id", v.TenantID}, {"name", v.Name}, {"file_url", v.FileURL},
		{"related_type", string(v.RelatedType)}, {"related_id", v.RelatedID}, {"created_at", v.CreatedAt},
		{"updated_at", v.UpdatedAt},
	}, true)
}

func (r *RecordRepository) RecentDocuments(ctx context.Context, tenantID, personID uuid.UUID, limit int) ([]records.Document, error) {
	q := documentSelect + " WHERE tenant_id = $1 AND " + personRelated + " ORDER BY created_at DESC, id LIMIT $3"
	return queryAll(ctx, r.pool, q, scanDocument, tenantID, personID, limit)
}

// Assignees

func scanAssignee(row pgx.Row) (records.Assignee, error) {
	var v records.Assignee
	err := row.Scan(&v.ID, &v.TenantID, &v.FirstName, &v.LastName, &v.Email)
	return v, err
}

func (r *RecordRepository) Assignee(ctx context.Context, tenantID, id uuid.UUID) (records.Assignee, error) {
	q := `SELECT id, tenant_id, COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(email, '')
	        FROM assignees WHERE tenant_id = $1 AND id = $2`
	return queryOne(ctx, r.pool, q, scanAssignee, tenantID, id)
}

func (r *RecordRepository) SaveAssignee(ctx context.Context, v records.Assignee) error {
	return r.write(ctx, "assignees", []field{
		{"id", v.ID}, {"tenant_id", v.TenantID}, {"first_name", v.FirstName}, {"last_name", v.LastName}, {"email", v.Email},
	}, true)
}

func (r *RecordRepository) Delete(ctx context.Context, t records.Type, tenantID, id uuid.UUID) error {
	if _, ok := records.ParseType(string(t)); !ok {
		return fmt.Errorf("delete: unknown record type %q", t)
	}
	tx, err := conn(ctx, r.pool)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, "DELETE FROM "+t.Table()+" WHERE tenant_id = $1 AND id = $2", tenantID, id)
	if err != nil {
		return mapError(err, "delete "+t.Table())
	}
	if tag.RowsAffected() == 0 {
		return records.ErrNotFound
	}
	return nil
}

// Listings

func filterClause(f lifecycle.Filter, tenantID uuid.UUID) (string, []any) {
	args := []any{tenantID}
	clause, arg := f.SQL("status", 2)
	if arg == nil {
		return " WHERE tenant_id = $1", args
	}
	return " WHERE tenant_id = $1 AND " + clause, append(args, arg)
}

func (r *RecordRepository) Tenants(ctx context.Context) ([]uuid.UUID, error) {
	q := `SELECT tenant_id FROM leads UNION SELECT tenant_id FROM contacts ORDER BY 1`
	return queryAll(ctx, r.pool, q, func(row pgx.Row) (uuid.UUID, error) {
		var id uuid.UUID
		err := row.Scan(&id)
		return id, err
	})
}

func scanPersonRef(row pgx.Row) (records.PersonRef, error) {
	var ref records.PersonRef
	var t string
	err := row.Scan(&ref.ID, &t)
	ref.Type = records.Type(t)
	return ref, err
}

func (r *RecordRepository) ActivePersons(ctx context.Context, tenantID uuid.UUID) ([]records.PersonRef, error) {
	leads, leadArg := lifecycle.ActiveOnly.SQL("status", 2)
	contacts, contactArg := lifecycle.ActiveOrConverted.SQL("status", 3)
	q := `SELECT id, 'lead' FROM leads WHERE tenant_id = $1 AND ` + leads + `
	      UNION ALL
	      SELECT id, 'contact' FROM contacts WHERE tenant_id = $1 AND ` + contacts + `
	      ORDER BY 2 DESC, 1`
	return queryAll(ctx, r.pool, q, scanPersonRef, tenantID, leadArg, contactArg)
}

func (r *RecordRepository) PersonsForAccount(ctx context.Context, tenantID, accountID uuid.UUID) ([]records.PersonRef, error) {
	q := `SELECT id, 'lead' FROM leads WHERE tenant_id = $1 AND account_id = $2
	      UNION ALL
	      SELECT id, 'contact' FROM contacts WHERE tenant_id = $1 AND account_id = $2
	      ORDER BY 2 DESC, 1`
	return queryAll(ctx, r.pool, q, scanPersonRef, tenantID, accountID)
}

// Assignments

func assigneeTable(t records.Type) (string, bool) {
	switch t {
	case records.TypeLead, records.TypeContact, records.TypeAccount, records.TypeOpportunity,
		records.TypeActivity, records.TypeSourcingRecord:
		return t.Table(), true
	}
	return "", false
}

func (r *RecordRepository) checkAssigneeColumns(ctx context.Context, t records.Type) (string, error) {
	table, ok := assigneeTable(t)
	if !ok {
		return "", records.ErrColumnMissing
	}
	has, err := r.hasAssigneeColumns(ctx, table)
	if err != nil {
		return "", err
	}
	if !has {
		return "", records.ErrColumnMissing
	}
	return table, nil
}

func (r *RecordRepository) AssigneeCopies(ctx context.Context, tenantID uuid.UUID, t records.Type, assigneeID uuid.UUID) ([]records.AssigneeCopy, error) {
	table, err := r.checkAssigneeColumns(ctx, t)
	if err != nil {
		return nil, err
	}
	q := "SELECT id, assigned_to_name FROM " + table + " WHERE tenant_id = $1 AND assigned_to = $2 ORDER BY id"
	return queryAll(ctx, r.pool, q, func(row pgx.Row) (records.AssigneeCopy, error) {
		cp := records.AssigneeCopy{TenantID: tenantID}
		if err := row.Scan(&cp.ID, &cp.Name); err != nil {
			return cp, err
		}
		if t.IsPerson() {
			cp.Person = &records.PersonRef{ID: cp.ID, Type: t}
		}
		return cp, nil
	}, tenantID, assigneeID)
}

func (r *RecordRepository) SetAssigneeName(ctx context.Context, tenantID uuid.UUID, t records.Type, id uuid.UUID, name *string) error {
	table, err := r.checkAssigneeColumns(ctx, t)
	if err != nil {
		return err
	}
	tx, err := conn(ctx, r.pool)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, "UPDATE "+table+" SET assigned_to_name = $3 WHERE tenant_id = $1 AND id = $2", tenantID, id, name)
	if err != nil {
		return mapError(err, "set assignee name")
	}
	if tag.RowsAffected() == 0 {
		return records.ErrNotFound
	}
	return nil
}

func stateOrActive(st lifecycle.State) lifecycle.State {
	if st == "" {
		return lifecycle.Active
	}
	return st
}
