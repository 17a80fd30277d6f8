package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/entities/transition"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/lifecycle"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
)

type transitionRepository struct {
	store *Store
}

// cloneTransition detaches t from the caller: the audit trail is append-only
// and a stored snapshot must not change after the fact.
func cloneTransition(t transition.EntityTransition) (transition.EntityTransition, error) {
	if t.PerformedBy != nil {
		by := *t.PerformedBy
		t.PerformedBy = &by
	}
	if t.Snapshot == nil {
		return t, nil
	}
	raw, err := json.Marshal(t.Snapshot)
	if err != nil {
		return t, fmt.Errorf("clone transition snapshot: %w", err)
	}
	var snap map[string]any
	if err := json.Unmarshal(raw, &snap); err != nil {
		return t, fmt.Errorf("clone transition snapshot: %w", err)
	}
	t.Snapshot = snap
	return t, nil
}

func (r *transitionRepository) Append(ctx context.Context, t transition.EntityTransition) error {
	t, err := cloneTransition(t)
	if err != nil {
		return err
	}
	return r.store.write(ctx, func(st *Snapshot) error {
		if t.Kind.Unique() {
			for _, existing := range st.Transitions {
				if existing.TenantID == t.TenantID && existing.SourceType == t.SourceType &&
					existing.SourceID == t.SourceID && existing.Kind == t.Kind {
					return transition.ErrDuplicate
				}
			}
		}
		st.Transitions = append(st.Transitions, t)
		return nil
	})
}

func (r *transitionRepository) filter(ctx context.Context, keep func(transition.EntityTransition) bool) (out []transition.EntityTransition, err error) {
	err = r.store.read(ctx, func(st *Snapshot) error {
		for _, t := range st.Transitions {
			if !keep(t) {
				continue
			}
			c, err := cloneTransition(t)
			if err != nil {
				return err
			}
			out = append(out, c)
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].PerformedAt.After(out[j].PerformedAt) })
	return out, err
}

func (r *transitionRepository) ForSource(ctx context.Context, tenantID uuid.UUID, sourceType records.Type, sourceID uuid.UUID) ([]transition.EntityTransition, error) {
	return r.filter(ctx, func(t transition.EntityTransition) bool {
		return t.TenantID == tenantID && t.SourceType == sourceType && t.SourceID == sourceID
	})
}

func (r *transitionRepository) ForTarget(ctx context.Context, tenantID uuid.UUID, targetType records.Type, targetID uuid.UUID) ([]transition.EntityTransition, error) {
	return r.filter(ctx, func(t transition.EntityTransition) bool {
		return t.TenantID == tenantID && t.TargetType == targetType && t.TargetID == targetID
	})
}

func (r *transitionRepository) ConversionTracking(ctx context.Context, tenantID uuid.UUID) ([]transition.ConversionRow, error) {
	ts, err := r.filter(ctx, func(t transition.EntityTransition) bool {
		return t.TenantID == tenantID && (t.Kind == lifecycle.KindConvert || t.Kind == lifecycle.KindPromote)
	})
	if err != nil {
		return nil, err
	}
	out := make([]transition.ConversionRow, 0, len(ts))
	err = r.store.read(ctx, func(st *Snapshot) error {
		for _, t := range ts {
			row := transition.ConversionRow{Transition: t}
			row.SourceName, row.SourceStatus = describe(st, t.SourceType, t.SourceID)
			row.TargetName, row.TargetStatus = describe(st, t.TargetType, t.TargetID)
			out = append(out, row)
		}
		return nil
	})
	return out, err
}

func describe(st *Snapshot, t records.Type, id uuid.UUID) (string, lifecycle.State) {
	switch t {
	case records.TypeLead:
		if v, ok := st.Leads[id]; ok {
			return v.FullName(), v.Status
		}
	case records.TypeContact:
		if v, ok := st.Contacts[id]; ok {
			return v.FullName(), v.Status
		}
	case records.TypeAccount:
		if v, ok := st.Accounts[id]; ok {
			return v.Name, v.Status
		}
	case records.TypeSourcingRecord:
		if v, ok := st.SourcingRecords[id]; ok {
			return v.CompanyName, v.Status
		}
	}
	return "", ""
}
