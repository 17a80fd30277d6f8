package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/aggregates/profile"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/lifecycle"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/locks"
)

// RollupLockKey guards full profile refreshes across all tenants.
const RollupLockKey = "crm:person_profiles:rollup"

func personLockKey(tenantID, personID uuid.UUID) string {
	return "crm:person:" + tenantID.String() + ":" + personID.String()
}

type ProfileConfig struct {
	RecentLimit    int
	TextMaxLen     int
	TerminalStages []string
	// Concurrency bounds parallel recomputes during RefreshAll.
	Concurrency int
}

func DefaultProfileConfig() ProfileConfig {
	return ProfileConfig{
		RecentLimit:    10,
		TextMaxLen:     500,
		TerminalStages: []string{"closed_won", "closed_lost", "won", "lost"},
		Concurrency:    4,
	}
}

type ProfileService struct {
	store    Store
	locks    locks.Coordinator
	cfg      ProfileConfig
	terminal map[string]struct{}
	log      *logrus.Entry
	now      func() time.Time
}

func NewProfileService(store Store, coordinator locks.Coordinator, cfg ProfileConfig, log *logrus.Entry) *ProfileService {
	def := DefaultProfileConfig()
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = def.RecentLimit
	}
	if cfg.TextMaxLen <= 0 {
		cfg.TextMaxLen = def.TextMaxLen
	}
	if cfg.TerminalStages == nil {
		cfg.TerminalStages = def.TerminalStages
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	terminal := make(map[string]struct{}, len(cfg.TerminalStages))
	for _, st := range cfg.TerminalStages {
		terminal[normalizeStage(st)] = struct{}{}
	}
	return &ProfileService{
		store:    store,
		locks:    coordinator,
		cfg:      cfg,
		terminal: terminal,
		log:      log,
		now:      time.Now,
	}
}

func (s *ProfileService) Get(ctx context.Context, tenantID, personID uuid.UUID) (profile.PersonProfile, error) {
	p, err := s.store.Profiles().Get(ctx, tenantID, personID)
	if err != nil {
		return profile.PersonProfile{}, mapRepoError(err, "person profile", personID.String())
	}
	return p, nil
}

func (s *ProfileService) List(ctx context.Context, tenantID uuid.UUID) ([]profile.PersonProfile, error) {
	return s.store.Profiles().List(ctx, tenantID)
}

// Recompute rebuilds the profile of personID from the source tables. It is
// a no-op when personID is neither an active lead nor a live contact.
func (s *ProfileService) Recompute(ctx context.Context, tenantID, personID uuid.UUID) (err error) {
	start := time.Now()
	ctx, span := startSpan(ctx, "crm.profile.recompute", tenantID, attribute.String("crm.person_id", personID.String()))
	defer func() { endSpan(span, err) }()

	var wrote bool
	err = s.store.InTenantTx(ctx, tenantID, func(txCtx context.Context) error {
		return s.locks.WithLock(txCtx, personLockKey(tenantID, personID), func(lockCtx context.Context) error {
			p, found, err := s.build(lockCtx, tenantID, personID)
			if err != nil || !found {
				return err
			}
			wrote = true
			return s.store.Profiles().Upsert(lockCtx, p)
		})
	})
	if err != nil {
		recordRecompute("error", start)
		err = aggregationFailure(fmt.Sprintf("recompute person %s", personID), err)
		logWithFields(ctx, s.log, logrus.WarnLevel, "crm.profile.recompute_failed", logrus.Fields{
			"tenant_id":  tenantID.String(),
			"person_id":  personID.String(),
			"error_code": ErrAggregationFailure.Code,
			"error":      err.Error(),
		})
		return err
	}
	if wrote {
		recordRecompute("ok", start)
	} else {
		recordRecompute("noop", start)
	}
	return nil
}

// Remove deletes the profile of personID once no lead or contact row with
// that id is left.
func (s *ProfileService) Remove(ctx context.Context, tenantID, personID uuid.UUID) error {
	return s.store.InTenantTx(ctx, tenantID, func(txCtx context.Context) error {
		return s.locks.WithLock(txCtx, personLockKey(tenantID, personID), func(lockCtx context.Context) error {
			repo := s.store.Records()
			if _, err := repo.Lead(lockCtx, tenantID, personID); !errors.Is(err, records.ErrNotFound) {
				return err
			}
			if _, err := repo.Contact(lockCtx, tenantID, personID); !errors.Is(err, records.ErrNotFound) {
				return err
			}
			return s.store.Profiles().Delete(lockCtx, tenantID, personID)
		})
	})
}

type RollupResult struct {
	Skipped   bool `json:"skipped"`
	Tenants   int  `json:"tenants"`
	Refreshed int  `json:"refreshed"`
	Failed    int  `json:"failed"`
}

// RefreshAll recomputes every active person of every tenant. When another
// rollup is in flight it returns immediately with Skipped set.
func (s *ProfileService) RefreshAll(ctx context.Context) (RollupResult, error) {
	var res RollupResult
	ran, err := s.locks.TryWithLock(ctx, RollupLockKey, func(lockCtx context.Context) error {
		var err error
		res, err = s.refreshAll(lockCtx)
		return err
	})
	if err != nil {
		recordRollup("error")
		return res, err
	}
	if !ran {
		recordRollup("skipped")
		logWithFields(ctx, s.log, logrus.DebugLevel, "crm.profile.rollup_skipped", logrus.Fields{"lock": RollupLockKey})
		return RollupResult{Skipped: true}, nil
	}
	recordRollup("ok")
	return res, nil
}

func (s *ProfileService) refreshAll(ctx context.Context) (RollupResult, error) {
	tenants, err := s.store.Records().Tenants(ctx)
	if err != nil {
		return RollupResult{}, err
	}

	var refreshed, failed atomic.Int64
	for _, tenantID := range tenants {
		persons, err := s.store.Records().ActivePersons(ctx, tenantID)
		if err != nil {
			return RollupResult{}, err
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.Concurrency)
		for _, ref := range persons {
			g.Go(func() error {
				// Failures are isolated per person and already logged.
				if err := s.Recompute(gctx, tenantID, ref.ID); err != nil {
					failed.Add(1)
					return nil
				}
				refreshed.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return RollupResult{}, err
		}
	}
	return RollupResult{
		Tenants:   len(tenants),
		Refreshed: int(refreshed.Load()),
		Failed:    int(failed.Load()),
	}, nil
}

func (s *ProfileService) build(ctx context.Context, tenantID, personID uuid.UUID) (profile.PersonProfile, bool, error) {
	repo := s.store.Records()
	p := profile.PersonProfile{PersonID: personID, TenantID: tenantID}

	var assignedTo *uuid.UUID
	var storedName *string
	lead, err := repo.Lead(ctx, tenantID, personID)
	switch {
	case err == nil && lifecycle.ActiveOnly.Matches(lead.Status):
		p.PersonType = records.TypeLead
		p.FirstName, p.LastName, p.Email, p.Phone, p.JobTitle = lead.FirstName, lead.LastName, lead.Email, lead.Phone, lead.JobTitle
		p.Status = string(stateOrActive(lead.Status))
		p.AccountID = lead.AccountID
		assignedTo, storedName = lead.AssignedTo, lead.AssignedToName
	case err != nil && !errors.Is(err, records.ErrNotFound):
		return p, false, err
	default:
		contact, err := repo.Contact(ctx, tenantID, personID)
		if errors.Is(err, records.ErrNotFound) {
			return p, false, nil
		}
		if err != nil {
			return p, false, err
		}
		if !lifecycle.ActiveOrConverted.Matches(contact.Status) {
			return p, false, nil
		}
		p.PersonType = records.TypeContact
		p.FirstName, p.LastName, p.Email, p.Phone, p.JobTitle = contact.FirstName, contact.LastName, contact.Email, contact.Phone, contact.JobTitle
		p.Status = string(stateOrActive(contact.Status))
		p.AccountID = contact.AccountID
		assignedTo, storedName = contact.AssignedTo, contact.AssignedToName
	}

	if p.AccountID != nil {
		acc, err := repo.Account(ctx, tenantID, *p.AccountID)
		switch {
		case err == nil:
			name := acc.Name
			p.AccountName = &name
		case !errors.Is(err, records.ErrNotFound):
			return p, false, err
		}
	}

	if err := s.aggregateOpportunities(ctx, &p); err != nil {
		return p, false, err
	}
	if err := s.aggregateRecent(ctx, &p); err != nil {
		return p, false, err
	}

	if assignedTo != nil {
		p.AssignedTo = assignedTo
		a, err := repo.Assignee(ctx, tenantID, *assignedTo)
		switch {
		case err == nil:
			name := a.DisplayName()
			p.AssignedToName = &name
		case errors.Is(err, records.ErrNotFound):
			p.AssignedToName = storedName
		default:
			return p, false, err
		}
	}

	p.UpdatedAt = s.now().UTC()
	return p, true, nil
}

func (s *ProfileService) aggregateOpportunities(ctx context.Context, p *profile.PersonProfile) error {
	opps, err := s.store.Records().OpportunitiesForPerson(ctx, p.TenantID, p.PersonID)
	if err != nil {
		return err
	}
	amount := decimal.Zero
	seen := map[string]struct{}{}
	stages := []string{}
	for _, o := range opps {
		stage := normalizeStage(o.Stage)
		if _, closed := s.terminal[stage]; closed {
			continue
		}
		p.OpenOpportunityCount++
		amount = amount.Add(o.Amount)
		if stage == "" {
			continue
		}
		if _, dup := seen[stage]; dup {
			continue
		}
		seen[stage] = struct{}{}
		stages = append(stages, strings.TrimSpace(o.Stage))
	}
	p.OpenPipelineAmount = amount
	p.OpportunityStages = stages
	return nil
}

func (s *ProfileService) aggregateRecent(ctx context.Context, p *profile.PersonProfile) error {
	repo := s.store.Records()
	limit := s.cfg.RecentLimit

	docs, err := repo.RecentDocuments(ctx, p.TenantID, p.PersonID, limit)
	if err != nil {
		return err
	}
	notes, err := repo.RecentNotes(ctx, p.TenantID, p.PersonID, limit)
	if err != nil {
		return err
	}
	acts, err := repo.RecentActivities(ctx, p.TenantID, p.PersonID, limit)
	if err != nil {
		return err
	}

	var last time.Time
	bump := func(t time.Time) {
		if t.After(last) {
			last = t
		}
	}

	p.RecentDocuments = make([]profile.DocumentSummary, 0, len(docs))
	for _, d := range docs {
		p.RecentDocuments = append(p.RecentDocuments, profile.DocumentSummary{
			ID:        d.ID,
			Name:      capText(d.Name, s.cfg.TextMaxLen),
			CreatedAt: d.CreatedAt,
		})
		bump(d.CreatedAt)
	}
	p.RecentNotes = make([]profile.NoteSummary, 0, len(notes))
	for _, n := range notes {
		p.RecentNotes = append(p.RecentNotes, profile.NoteSummary{
			ID:        n.ID,
			Title:     capText(n.Title, s.cfg.TextMaxLen),
			Excerpt:   capText(n.Content, s.cfg.TextMaxLen),
			CreatedAt: n.CreatedAt,
		})
		bump(n.CreatedAt)
	}
	p.RecentActivities = make([]profile.ActivitySummary, 0, len(acts))
	for _, a := range acts {
		p.RecentActivities = append(p.RecentActivities, profile.ActivitySummary{
			ID:         a.ID,
			Type:       a.Type,
			Subject:    capText(a.Subject, s.cfg.TextMaxLen),
			OccurredAt: a.OccurredAt,
			CreatedAt:  a.CreatedAt,
		})
		bump(a.When())
	}

	if !last.IsZero() {
		last = last.UTC()
		p.LastActivityAt = &last
	}
	return nil
}

func normalizeStage(stage string) string {
	return strings.ToLower(strings.TrimSpace(stage))
}

func stateOrActive(st lifecycle.State) lifecycle.State {
	if st == "" {
		return lifecycle.Active
	}
	return st
}

// capText truncates s to at most n runes.
func capText(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
