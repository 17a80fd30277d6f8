package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/entities/transition"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/lifecycle"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
)

const (
	transitionColumns = `t.id, t.tenant_id, t.source_type, t.source_id, t.target_type, t.target_id, t.kind, t.snapshot,
        t.performed_by, t.performed_at`

	transitionInsert = `INSERT INTO entity_transitions (
        id, tenant_id, source_type, source_id, target_type, target_id, kind, snapshot, performed_by, performed_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	// describeSide resolves the current name and status of either side of a
	// transition. The verb is the side prefix, source or target.
	describeSide = `LEFT JOIN LATERAL (
        SELECT trim(concat_ws(' ', l.first_name, l.last_name)) AS name, l.status FROM leads l
         WHERE t.%[1]s_type = 'lead' AND l.tenant_id = t.tenant_id AND l.id = t.%[1]s_id
        UNION ALL
        SELECT trim(concat_ws(' ', c.first_name, c.last_name)), c.status FROM contacts c
         WHERE t.%[1]s_type = 'contact' AND c.tenant_id = t.tenant_id AND c.id = t.%[1]s_id
        UNION ALL
        SELECT a.name, a.status FROM accounts a
         WHERE t.%[1]s_type = 'account' AND a.tenant_id = t.tenant_id AND a.id = t.%[1]s_id
        UNION ALL
        SELECT s.company_name, s.status FROM sourcing_records s
         WHERE t.%[1]s_type = 'sourcing_record' AND s.tenant_id = t.tenant_id AND s.id = t.%[1]s_id
        LIMIT 1
    ) %[1]s_side ON TRUE`
)

type TransitionRepository struct {
	pool *pgxpool.Pool
}

func NewTransitionRepository(pool *pgxpool.Pool) *TransitionRepository {
	return &TransitionRepository{pool: pool}
}

var _ transition.Repository = (*TransitionRepository)(nil)

func scanTransitionInto(row pgx.Row, extra ...any) (transition.EntityTransition, error) {
	var t transition.EntityTransition
	var sourceType, targetType, kind string
	dest := append([]any{&t.ID, &t.TenantID, &sourceType, &t.SourceID, &targetType, &t.TargetID, &kind, &t.Snapshot,
		&t.PerformedBy, &t.PerformedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return t, err
	}
	t.SourceType = records.Type(sourceType)
	t.TargetType = records.Type(targetType)
	t.Kind = lifecycle.Kind(kind)
	return t, nil
}

func scanTransition(row pgx.Row) (transition.EntityTransition, error) {
	return scanTransitionInto(row)
}

func (r *TransitionRepository) Append(ctx context.Context, t transition.EntityTransition) error {
	tx, err := conn(ctx, r.pool)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, transitionInsert, t.ID, t.TenantID, string(t.SourceType), t.SourceID, string(t.TargetType),
		t.TargetID, string(t.Kind), jsonMap(t.Snapshot), t.PerformedBy, t.PerformedAt)
	if isUniqueViolation(err) {
		return transition.ErrDuplicate
	}
	return mapError(err, "append entity transition")
}

func (r *TransitionRepository) ForSource(ctx context.Context, tenantID uuid.UUID, sourceType records.Type, sourceID uuid.UUID) ([]transition.EntityTransition, error) {
	q := "SELECT " + transitionColumns + ` FROM entity_transitions t
	       WHERE t.tenant_id = $1 AND t.source_type = $2 AND t.source_id = $3
	       ORDER BY t.performed_at DESC, t.id`
	return queryAll(ctx, r.pool, q, scanTransition, tenantID, string(sourceType), sourceID)
}

func (r *TransitionRepository) ForTarget(ctx context.Context, tenantID uuid.UUID, targetType records.Type, targetID uuid.UUID) ([]transition.EntityTransition, error) {
	q := "SELECT " + transitionColumns + ` FROM entity_transitions t
	       WHERE t.tenant_id = $1 AND t.target_type = $2 AND t.target_id = $3
	       ORDER BY t.performed_at DESC, t.id`
	return queryAll(ctx, r.pool, q, scanTransition, tenantID, string(targetType), targetID)
}

func (r *TransitionRepository) ConversionTracking(ctx context.Context, tenantID uuid.UUID) ([]transition.ConversionRow, error) {
	q := "SELECT " + transitionColumns + `,
	        COALESCE(source_side.name, ''), COALESCE(source_side.status, ''),
	        COALESCE(target_side.name, ''), COALESCE(target_side.status, '')
	   FROM entity_transitions t
	   ` + sideJoin("source") + `
	   ` + sideJoin("target") + `
	  WHERE t.tenant_id = $1 AND t.kind IN ('convert', 'promote')
	  ORDER BY t.performed_at DESC, t.id`
	return queryAll(ctx, r.pool, q, func(row pgx.Row) (transition.ConversionRow, error) {
		var out transition.ConversionRow
		var sourceStatus, targetStatus string
		t, err := scanTransitionInto(row, &out.SourceName, &sourceStatus, &out.TargetName, &targetStatus)
		if err != nil {
			return out, err
		}
		out.Transition = t
		out.SourceStatus = lifecycle.State(sourceStatus)
		out.TargetStatus = lifecycle.State(targetStatus)
		return out, nil
	}, tenantID)
}

func sideJoin(side string) string {
	return fmt.Sprintf(describeSide, side)
}
