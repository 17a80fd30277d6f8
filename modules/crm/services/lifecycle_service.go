package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/entities/transition"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/events"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/lifecycle"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
)

// Metadata keys written by conversions.
const (
	MetaConvertedToContactID = "converted_to_contact_id"
	MetaConvertedAt          = "converted_at"
	MetaConvertedFromLeadID  = "converted_from_lead_id"
	MetaLeadSnapshot         = "lead_snapshot"
	MetaOriginalCompany      = "original_company"
	MetaOriginalSource       = "original_source"
	MetaPromotedToAccountID  = "promoted_to_account_id"
	MetaPromotedAt           = "promoted_at"
	MetaPromotedFromSourceID = "promoted_from_source_id"
	MetaSourceSnapshot       = "source_snapshot"
	MetaOriginalContactName  = "original_contact_name"
	MetaOriginalContactEmail = "original_contact_email"
	MetaOriginalContactPhone = "original_contact_phone"
)

type LifecycleService struct {
	store    Store
	notifier *ChangeNotifier
	log      *logrus.Entry
	now      func() time.Time
}

func NewLifecycleService(store Store, notifier *ChangeNotifier, log *logrus.Entry) *LifecycleService {
	return &LifecycleService{store: store, notifier: notifier, log: log, now: time.Now}
}

// ConvertLeadToContact turns an active lead into a contact carrying the same
// id. The contact insert, the lead status change and the audit entry commit
// together.
func (s *LifecycleService) ConvertLeadToContact(ctx context.Context, in ConvertLeadInput) (contactID uuid.UUID, err error) {
	if err := validateInput(&in); err != nil {
		return uuid.Nil, err
	}
	ctx, span := startSpan(ctx, "crm.lifecycle.convert", in.TenantID, attribute.String("crm.lead_id", in.LeadID.String()))
	defer func() { endSpan(span, err) }()

	id, err := writeAndNotify(ctx, s.store, s.notifier, in.TenantID, func(txCtx context.Context) (uuid.UUID, []Envelope, error) {
		repo := s.store.Records()
		lead, err := repo.Lead(txCtx, in.TenantID, in.LeadID)
		if err != nil {
			return uuid.Nil, nil, mapRepoError(err, "lead", in.LeadID.String())
		}
		if err := s.checkConvertible(lead); err != nil {
			return uuid.Nil, nil, err
		}

		accountID := lead.AccountID
		if in.AccountID != nil {
			if _, err := repo.Account(txCtx, in.TenantID, *in.AccountID); err != nil {
				return uuid.Nil, nil, mapRepoError(err, "account", in.AccountID.String())
			}
			accountID = in.AccountID
		}

		now := s.now().UTC()
		contact := records.Contact{
			ID:             lead.ID,
			TenantID:       lead.TenantID,
			FirstName:      lead.FirstName,
			LastName:       lead.LastName,
			Email:          lead.Email,
			Phone:          lead.Phone,
			JobTitle:       lead.JobTitle,
			Status:         lifecycle.ConvertedFromLead,
			AccountID:      accountID,
			AssignedTo:     lead.AssignedTo,
			AssignedToName: lead.AssignedToName,
			Metadata: map[string]any{
				MetaConvertedFromLeadID: lead.ID.String(),
				MetaLeadSnapshot:        lead.Snapshot(),
				MetaOriginalCompany:     lead.Company,
				MetaOriginalSource:      lead.Source,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repo.InsertContact(txCtx, contact); err != nil {
			if errors.Is(err, records.ErrDuplicate) {
				return uuid.Nil, nil, alreadyConverted(fmt.Sprintf("lead already converted to contact %s", lead.ID), err)
			}
			return uuid.Nil, nil, err
		}

		converted := lead
		converted.Status = lifecycle.ConvertedToContact
		converted.Metadata = withMetadata(lead.Metadata, map[string]any{
			MetaConvertedToContactID: contact.ID.String(),
			MetaConvertedAt:          now.Format(time.RFC3339Nano),
		})
		converted.UpdatedAt = now
		if err := repo.SaveLead(txCtx, converted); err != nil {
			return uuid.Nil, nil, err
		}

		tr := transition.New(in.TenantID, lead, records.TypeContact, contact.ID, lifecycle.KindConvert, in.PerformedBy, now)
		if err := s.store.Transitions().Append(txCtx, tr); err != nil {
			if errors.Is(err, transition.ErrDuplicate) {
				return uuid.Nil, nil, alreadyConverted(fmt.Sprintf("lead already converted to contact %s", lead.ID), err)
			}
			return uuid.Nil, nil, err
		}

		envs := []Envelope{
			s.notifier.PersonChanged(in.TenantID, contact.ID, records.TypeContact, contact.ID, "status"),
			transitionEnvelope(tr),
		}
		return contact.ID, envs, nil
	})
	s.observeTransition(ctx, lifecycle.KindConvert, in.TenantID, "lead", in.LeadID, err)
	return id, err
}

func (s *LifecycleService) checkConvertible(lead records.Lead) error {
	state := stateOrActive(lead.Status)
	if state == lifecycle.Active {
		return nil
	}
	if state == lifecycle.ConvertedToContact || state == lifecycle.Archived {
		target := lead.ID.String()
		if v, ok := lead.Metadata[MetaConvertedToContactID].(string); ok && v != "" {
			target = v
		}
		if state == lifecycle.Archived && lead.Metadata[MetaConvertedToContactID] == nil {
			return invalidTransition(fmt.Sprintf("lead %s is %s and cannot be converted", lead.ID, state.Describe()))
		}
		return alreadyConverted(fmt.Sprintf("lead already converted to contact %s", target), nil)
	}
	return invalidTransition(fmt.Sprintf("lead %s is %s and cannot be converted", lead.ID, state.Describe()))
}

// PromoteSourceToAccount turns an active sourcing record into an account
// carrying the same id.
func (s *LifecycleService) PromoteSourceToAccount(ctx context.Context, in PromoteSourceInput) (accountID uuid.UUID, err error) {
	in.Normalize()
	if err := validateInput(&in); err != nil {
		return uuid.Nil, err
	}
	ctx, span := startSpan(ctx, "crm.lifecycle.promote", in.TenantID, attribute.String("crm.source_id", in.SourceID.String()))
	defer func() { endSpan(span, err) }()

	id, err := writeAndNotify(ctx, s.store, s.notifier, in.TenantID, func(txCtx context.Context) (uuid.UUID, []Envelope, error) {
		repo := s.store.Records()
		src, err := repo.SourcingRecord(txCtx, in.TenantID, in.SourceID)
		if err != nil {
			return uuid.Nil, nil, mapRepoError(err, "sourcing record", in.SourceID.String())
		}
		switch state := stateOrActive(src.Status); state {
		case lifecycle.Active:
		case lifecycle.PromotedToAccount:
			return uuid.Nil, nil, alreadyConverted(fmt.Sprintf("sourcing record already promoted to account %s", src.ID), nil)
		default:
			return uuid.Nil, nil, invalidTransition(fmt.Sprintf("sourcing record %s is %s and cannot be promoted", src.ID, state.Describe()))
		}

		name := strings.TrimSpace(src.CompanyName)
		if in.AccountName != nil {
			name = *in.AccountName
		}
		if name == "" {
			return uuid.Nil, nil, invalidInput("account name is required: sourcing record has no company name", nil)
		}

		now := s.now().UTC()
		account := records.Account{
			ID:             src.ID,
			TenantID:       src.TenantID,
			Name:           name,
			Industry:       src.Industry,
			Website:        src.Website,
			Status:         lifecycle.PromotedFromSource,
			AssignedTo:     src.AssignedTo,
			AssignedToName: src.AssignedToName,
			Metadata: map[string]any{
				MetaPromotedFromSourceID: src.ID.String(),
				MetaSourceSnapshot:       src.Snapshot(),
				MetaOriginalSource:       src.Source,
				MetaOriginalContactName:  src.ContactName,
				MetaOriginalContactEmail: src.Email,
				MetaOriginalContactPhone: src.Phone,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repo.InsertAccount(txCtx, account); err != nil {
			if errors.Is(err, records.ErrDuplicate) {
				return uuid.Nil, nil, alreadyConverted(fmt.Sprintf("sourcing record already promoted to account %s", src.ID), err)
			}
			return uuid.Nil, nil, err
		}

		promoted := src
		promoted.Status = lifecycle.PromotedToAccount
		promoted.Metadata = withMetadata(src.Metadata, map[string]any{
			MetaPromotedToAccountID: account.ID.String(),
			MetaPromotedAt:          now.Format(time.RFC3339Nano),
		})
		promoted.UpdatedAt = now
		if err := repo.SaveSourcingRecord(txCtx, promoted); err != nil {
			return uuid.Nil, nil, err
		}

		tr := transition.New(in.TenantID, src, records.TypeAccount, account.ID, lifecycle.KindPromote, in.PerformedBy, now)
		if err := s.store.Transitions().Append(txCtx, tr); err != nil {
			if errors.Is(err, transition.ErrDuplicate) {
				return uuid.Nil, nil, alreadyConverted(fmt.Sprintf("sourcing record already promoted to account %s", src.ID), err)
			}
			return uuid.Nil, nil, err
		}
		return account.ID, []Envelope{transitionEnvelope(tr)}, nil
	})
	s.observeTransition(ctx, lifecycle.KindPromote, in.TenantID, "sourcing_record", in.SourceID, err)
	return id, err
}

func (s *LifecycleService) observeTransition(ctx context.Context, kind lifecycle.Kind, tenantID uuid.UUID, entity string, id uuid.UUID, err error) {
	fields := logrus.Fields{
		"tenant_id": tenantID.String(),
		"kind":      string(kind),
		"entity":    entity,
		"source_id": id.String(),
	}
	var svcErr *ServiceError
	switch {
	case err == nil:
		recordTransition(string(kind), "ok")
		logWithFields(ctx, s.log, logrus.InfoLevel, "crm.lifecycle.transitioned", fields)
	case errors.As(err, &svcErr):
		recordTransition(string(kind), string(svcErr.Kind))
		fields["error_code"] = svcErr.Code
		fields["reason"] = svcErr.Message
		logWithFields(ctx, s.log, logrus.InfoLevel, "crm.lifecycle.rejected", fields)
	default:
		recordTransition(string(kind), "error")
		fields["error"] = err.Error()
		logWithFields(ctx, s.log, logrus.ErrorLevel, "crm.lifecycle.failed", fields)
	}
}

// DeleteLead removes an active lead. Converted or archived leads are kept.
func (s *LifecycleService) DeleteLead(ctx context.Context, tenantID, leadID uuid.UUID) error {
	_, err := writeAndNotify(ctx, s.store, s.notifier, tenantID, func(txCtx context.Context) (struct{}, []Envelope, error) {
		lead, err := s.store.Records().Lead(txCtx, tenantID, leadID)
		if err != nil {
			return struct{}{}, nil, mapRepoError(err, "lead", leadID.String())
		}
		if err := lifecycle.GuardDelete("lead", lead.ID, stateOrActive(lead.Status)); err != nil {
			return struct{}{}, nil, mapRepoError(err, "lead", leadID.String())
		}
		if err := s.store.Records().Delete(txCtx, records.TypeLead, tenantID, leadID); err != nil {
			return struct{}{}, nil, mapRepoError(err, "lead", leadID.String())
		}
		envs, err := s.notifier.Detect(txCtx, lead, nil)
		return struct{}{}, envs, err
	})
	return err
}

// DeleteSourcingRecord removes an active sourcing record.
func (s *LifecycleService) DeleteSourcingRecord(ctx context.Context, tenantID, sourceID uuid.UUID) error {
	_, err := inTx(ctx, s.store, tenantID, func(txCtx context.Context) (struct{}, error) {
		src, err := s.store.Records().SourcingRecord(txCtx, tenantID, sourceID)
		if err != nil {
			return struct{}{}, mapRepoError(err, "sourcing record", sourceID.String())
		}
		if err := lifecycle.GuardDelete("sourcing record", src.ID, stateOrActive(src.Status)); err != nil {
			return struct{}{}, mapRepoError(err, "sourcing record", sourceID.String())
		}
		return struct{}{}, mapRepoError(s.store.Records().Delete(txCtx, records.TypeSourcingRecord, tenantID, sourceID), "sourcing record", sourceID.String())
	})
	return err
}

// ArchiveLead moves a converted lead to archived.
func (s *LifecycleService) ArchiveLead(ctx context.Context, tenantID, leadID uuid.UUID) error {
	_, err := writeAndNotify(ctx, s.store, s.notifier, tenantID, func(txCtx context.Context) (struct{}, []Envelope, error) {
		lead, err := s.store.Records().Lead(txCtx, tenantID, leadID)
		if err != nil {
			return struct{}{}, nil, mapRepoError(err, "lead", leadID.String())
		}
		from := stateOrActive(lead.Status)
		if !lifecycle.CanTransition(from, lifecycle.Archived) {
			return struct{}{}, nil, invalidTransition(fmt.Sprintf("lead %s is %s and cannot be archived", lead.ID, from.Describe()))
		}
		archived := lead
		archived.Status = lifecycle.Archived
		archived.UpdatedAt = s.now().UTC()
		if err := s.store.Records().SaveLead(txCtx, archived); err != nil {
			return struct{}{}, nil, err
		}
		envs, err := s.notifier.Detect(txCtx, lead, archived)
		return struct{}{}, envs, err
	})
	return err
}

// ArchiveSourcingRecord moves a promoted sourcing record to archived.
func (s *LifecycleService) ArchiveSourcingRecord(ctx context.Context, tenantID, sourceID uuid.UUID) error {
	_, err := inTx(ctx, s.store, tenantID, func(txCtx context.Context) (struct{}, error) {
		src, err := s.store.Records().SourcingRecord(txCtx, tenantID, sourceID)
		if err != nil {
			return struct{}{}, mapRepoError(err, "sourcing record", sourceID.String())
		}
		from := stateOrActive(src.Status)
		if !lifecycle.CanTransition(from, lifecycle.Archived) {
			return struct{}{}, invalidTransition(fmt.Sprintf("sourcing record %s is %s and cannot be archived", src.ID, from.Describe()))
		}
		src.Status = lifecycle.Archived
		src.UpdatedAt = s.now().UTC()
		return struct{}{}, s.store.Records().SaveSourcingRecord(txCtx, src)
	})
	return err
}

func (s *LifecycleService) ActiveLeads(ctx context.Context, tenantID uuid.UUID) ([]records.Lead, error) {
	return s.store.Records().Leads(ctx, tenantID, lifecycle.ActiveOnly)
}

func (s *LifecycleService) ActiveSourcingRecords(ctx context.Context, tenantID uuid.UUID) ([]records.SourcingRecord, error) {
	return s.store.Records().SourcingRecords(ctx, tenantID, lifecycle.ActiveOnly)
}

func (s *LifecycleService) ActiveContacts(ctx context.Context, tenantID uuid.UUID) ([]records.Contact, error) {
	return s.store.Records().Contacts(ctx, tenantID, lifecycle.ActiveOrConverted)
}

func (s *LifecycleService) ActiveAccounts(ctx context.Context, tenantID uuid.UUID) ([]records.Account, error) {
	return s.store.Records().Accounts(ctx, tenantID, lifecycle.ActiveOrConverted)
}

func (s *LifecycleService) ConversionTracking(ctx context.Context, tenantID uuid.UUID) ([]transition.ConversionRow, error) {
	return s.store.Transitions().ConversionTracking(ctx, tenantID)
}

func (s *LifecycleService) TransitionsForSource(ctx context.Context, tenantID uuid.UUID, sourceType records.Type, sourceID uuid.UUID) ([]transition.EntityTransition, error) {
	return s.store.Transitions().ForSource(ctx, tenantID, sourceType, sourceID)
}

func (s *LifecycleService) TransitionsForTarget(ctx context.Context, tenantID uuid.UUID, targetType records.Type, targetID uuid.UUID) ([]transition.EntityTransition, error) {
	return s.store.Transitions().ForTarget(ctx, tenantID, targetType, targetID)
}

// RecordTransition appends a merge or split entry to the audit trail.
// Convert and promote entries are only written by their operations.
func (s *LifecycleService) RecordTransition(ctx context.Context, t transition.EntityTransition) error {
	if !t.Kind.Valid() {
		return invalidInput(fmt.Sprintf("unknown transition kind %q", t.Kind), nil)
	}
	if t.Kind.Unique() {
		return newServiceError(KindInvalidTransition, http.StatusUnprocessableEntity, "CRM_INVALID_TRANSITION",
			fmt.Sprintf("%s transitions are recorded by their operation", t.Kind), nil)
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.PerformedAt.IsZero() {
		t.PerformedAt = s.now().UTC()
	}
	_, err := writeAndNotify(ctx, s.store, s.notifier, t.TenantID, func(txCtx context.Context) (struct{}, []Envelope, error) {
		if err := s.store.Transitions().Append(txCtx, t); err != nil {
			return struct{}{}, nil, err
		}
		return struct{}{}, []Envelope{transitionEnvelope(t)}, nil
	})
	return err
}

func transitionEnvelope(t transition.EntityTransition) Envelope {
	ev := &events.TransitionV1{
		EventID:      uuid.New(),
		EventVersion: events.EventVersionV1,
		TenantID:     t.TenantID,
		TransitionID: t.ID,
		Kind:         t.Kind,
		SourceType:   t.SourceType,
		SourceID:     t.SourceID,
		TargetType:   t.TargetType,
		TargetID:     t.TargetID,
		PerformedBy:  t.PerformedBy,
		OccurredAt:   t.PerformedAt,
	}
	return envelope(t.TenantID, events.TopicTransitionV1, ev.EventID, ev)
}

func withMetadata(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	maps.Copy(out, base)
	maps.Copy(out, extra)
	return out
}
