package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/aggregates/profile"
)

type profileRepository struct {
	store *Store
}

func (r *profileRepository) Get(ctx context.Context, tenantID, personID uuid.UUID) (out profile.PersonProfile, err error) {
	err = r.store.read(ctx, func(st *Snapshot) error {
		p, ok := st.Profiles[personID]
		if !ok || p.TenantID != tenantID {
			return profile.ErrNotFound
		}
		out = p
		return nil
	})
	return out, err
}

func (r *profileRepository) List(ctx context.Context, tenantID uuid.UUID) (out []profile.PersonProfile, err error) {
	err = r.store.read(ctx, func(st *Snapshot) error {
		for _, p := range st.Profiles {
			if p.TenantID == tenantID {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].PersonID.String() < out[j].PersonID.String() })
	return out, err
}

func (r *profileRepository) Upsert(ctx context.Context, p profile.PersonProfile) error {
	p.OpportunityStages = append([]string(nil), p.OpportunityStages...)
	p.RecentDocuments = append([]profile.DocumentSummary(nil), p.RecentDocuments...)
	p.RecentNotes = append([]profile.NoteSummary(nil), p.RecentNotes...)
	p.RecentActivities = append([]profile.ActivitySummary(nil), p.RecentActivities...)
	return r.store.write(ctx, func(st *Snapshot) error {
		st.Profiles[p.PersonID] = p
		return nil
	})
}

func (r *profileRepository) Delete(ctx context.Context, tenantID, personID uuid.UUID) error {
	return r.store.write(ctx, func(st *Snapshot) error {
		if p, ok := st.Profiles[personID]; ok && p.TenantID == tenantID {
			delete(st.Profiles, personID)
		}
		return nil
	})
}
