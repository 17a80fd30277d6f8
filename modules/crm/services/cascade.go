package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
)

// CascadeTypes are the entity types that store a denormalized assignee name.
var CascadeTypes = []records.Type{
	records.TypeLead,
	records.TypeContact,
	records.TypeAccount,
	records.TypeOpportunity,
	records.TypeActivity,
	records.TypeSourcingRecord,
}

type CascadeResult struct {
	AssigneeID uuid.UUID            `json:"assignee_id"`
	Name       string               `json:"name"`
	Written    map[records.Type]int `json:"written"`
	Skipped    []records.Type       `json:"skipped,omitempty"`
	Persons    int                  `json:"persons"`
}

// Writes is the total number of rows rewritten.
func (r CascadeResult) Writes() int {
	total := 0
	for _, n := range r.Written {
		total += n
	}
	return total
}

// AssignmentCascade rewrites denormalized assignee names after a rename.
type AssignmentCascade struct {
	store    Store
	notifier *ChangeNotifier
	log      *logrus.Entry
}

func NewAssignmentCascade(store Store, notifier *ChangeNotifier, log *logrus.Entry) *AssignmentCascade {
	return &AssignmentCascade{store: store, notifier: notifier, log: log}
}

// OnAssigneeRenamed writes the current display name of assigneeID onto every
// row that holds a different copy. Each entity type commits on its own, so a
// rerun after a partial failure picks up where it stopped. Entity types
// without the assignee columns are skipped.
func (c *AssignmentCascade) OnAssigneeRenamed(ctx context.Context, tenantID, assigneeID uuid.UUID) (res CascadeResult, err error) {
	ctx, span := startSpan(ctx, "crm.cascade.assignee_renamed", tenantID, attribute.String("crm.assignee_id", assigneeID.String()))
	defer func() { endSpan(span, err) }()

	assignee, err := c.store.Records().Assignee(ctx, tenantID, assigneeID)
	if err != nil {
		return res, mapRepoError(err, "assignee", assigneeID.String())
	}
	name := assignee.DisplayName()
	res = CascadeResult{AssigneeID: assigneeID, Name: name, Written: map[records.Type]int{}}

	for _, t := range CascadeTypes {
		written, persons, err := c.cascadeType(ctx, tenantID, t, assigneeID, name)
		if errors.Is(err, records.ErrColumnMissing) {
			res.Skipped = append(res.Skipped, t)
			logWithFields(ctx, c.log, logrus.DebugLevel, "crm.cascade.skipped", logrus.Fields{
				"tenant_id": tenantID.String(),
				"entity":    string(t),
			})
			continue
		}
		if err != nil {
			return res, err
		}
		res.Written[t] = written
		res.Persons += persons
	}

	logWithFields(ctx, c.log, logrus.InfoLevel, "crm.cascade.done", logrus.Fields{
		"tenant_id":   tenantID.String(),
		"assignee_id": assigneeID.String(),
		"writes":      res.Writes(),
		"skipped":     len(res.Skipped),
	})
	return res, nil
}

type cascadeCount struct {
	written int
	persons int
}

func (c *AssignmentCascade) cascadeType(ctx context.Context, tenantID uuid.UUID, t records.Type, assigneeID uuid.UUID, name string) (int, int, error) {
	count, err := writeAndNotify(ctx, c.store, c.notifier, tenantID, func(txCtx context.Context) (cascadeCount, []Envelope, error) {
		repo := c.store.Records()
		copies, err := repo.AssigneeCopies(txCtx, tenantID, t, assigneeID)
		if err != nil {
			return cascadeCount{}, nil, err
		}
		var out cascadeCount
		var envs []Envelope
		for _, cp := range copies {
			if cp.Name != nil && *cp.Name == name {
				continue
			}
			if err := repo.SetAssigneeName(txCtx, tenantID, t, cp.ID, &name); err != nil {
				return cascadeCount{}, nil, err
			}
			out.written++
			recordCascadeWrite(string(t))
			if cp.Person != nil {
				out.persons++
				envs = append(envs, c.notifier.PersonChanged(tenantID, cp.Person.ID, cp.Person.Type, cp.ID, "assigned_to_name"))
			}
		}
		return out, envs, nil
	})
	return count.written, count.persons, err
}
