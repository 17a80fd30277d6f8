package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/aggregates/profile"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
)

const (
	profileSelect = `SELECT person_id, tenant_id, person_type, first_name, last_name, email, phone, job_title, status,
        account_id, account_name, open_opportunity_count, open_pipeline_amount::text, opportunity_stages,
        recent_documents, recent_notes, recent_activities, last_activity_at, assigned_to, assigned_to_name,
        updated_at
   FROM person_profiles`

	profileUpsert = `INSERT INTO person_profiles (
        person_id, tenant_id, person_type, first_name, last_name, email, phone, job_title, status,
        account_id, account_name, open_opportunity_count, open_pipeline_amount, opportunity_stages,
        recent_documents, recent_notes, recent_activities, last_activity_at, assigned_to, assigned_to_name,
        updated_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
    ON CONFLICT (person_id) DO UPDATE SET
        person_type = EXCLUDED.person_type,
        first_name = EXCLUDED.first_name,
        last_name = EXCLUDED.last_name,
        email = EXCLUDED.email,
        phone = EXCLUDED.phone,
        job_title = EXCLUDED.job_title,
        status = EXCLUDED.status,
        account_id = EXCLUDED.account_id,
        account_name = EXCLUDED.account_name,
        open_opportunity_count = EXCLUDED.open_opportunity_count,
        open_pipeline_amount = EXCLUDED.open_pipeline_amount,
        opportunity_stages = EXCLUDED.opportunity_stages,
        recent_documents = EXCLUDED.recent_documents,
        recent_notes = EXCLUDED.recent_notes,
        recent_activities = EXCLUDED.recent_activities,
        last_activity_at = EXCLUDED.last_activity_at,
        assigned_to = EXCLUDED.assigned_to,
        assigned_to_name = EXCLUDED.assigned_to_name,
        updated_at = EXCLUDED.updated_at
    WHERE person_profiles.tenant_id = EXCLUDED.tenant_id`
)

type ProfileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

var _ profile.Repository = (*ProfileRepository)(nil)

func scanProfile(row pgx.Row) (profile.PersonProfile, error) {
	var p profile.PersonProfile
	var personType, amount string
	if err := row.Scan(&p.PersonID, &p.TenantID, &personType, &p.FirstName, &p.LastName, &p.Email, &p.Phone,
		&p.JobTitle, &p.Status, &p.AccountID, &p.AccountName, &p.OpenOpportunityCount, &amount,
		&p.OpportunityStages, &p.RecentDocuments, &p.RecentNotes, &p.RecentActivities, &p.LastActivityAt,
		&p.AssignedTo, &p.AssignedToName, &p.UpdatedAt); err != nil {
		return p, err
	}
	p.PersonType = records.Type(personType)
	var err error
	p.OpenPipelineAmount, err = parseAmount(amount)
	return p, err
}

func (r *ProfileRepository) Get(ctx context.Context, tenantID, personID uuid.UUID) (profile.PersonProfile, error) {
	p, err := queryOne(ctx, r.pool, profileSelect+" WHERE tenant_id = $1 AND person_id = $2", scanProfile, tenantID, personID)
	if errors.Is(err, records.ErrNotFound) {
		return p, profile.ErrNotFound
	}
	return p, err
}

func (r *ProfileRepository) List(ctx context.Context, tenantID uuid.UUID) ([]profile.PersonProfile, error) {
	return queryAll(ctx, r.pool, profileSelect+" WHERE tenant_id = $1 ORDER BY person_id", scanProfile, tenantID)
}

func (r *ProfileRepository) Upsert(ctx context.Context, p profile.PersonProfile) error {
	tx, err := conn(ctx, r.pool)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, profileUpsert,
		p.PersonID, p.TenantID, string(p.PersonType), p.FirstName, p.LastName, p.Email, p.Phone, p.JobTitle,
		p.Status, p.AccountID, p.AccountName, p.OpenOpportunityCount, p.OpenPipelineAmount.String(),
		nonNil(p.OpportunityStages), nonNil(p.RecentDocuments), nonNil(p.RecentNotes), nonNil(p.RecentActivities),
		p.LastActivityAt, p.AssignedTo, p.AssignedToName, p.UpdatedAt,
	)
	if err != nil {
		return mapError(err, "upsert person profile")
	}
	if tag.RowsAffected() == 0 {
		return profile.ErrNotFound
	}
	return nil
}

// Delete is a no-op for a missing profile.
func (r *ProfileRepository) Delete(ctx context.Context, tenantID, personID uuid.UUID) error {
	tx, err := conn(ctx, r.pool)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "DELETE FROM person_profiles WHERE tenant_id = $1 AND person_id = $2", tenantID, personID); err != nil {
		return mapError(err, "delete person profile")
	}
	return nil
}

// nonNil keeps jsonb columns from receiving NULL.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
