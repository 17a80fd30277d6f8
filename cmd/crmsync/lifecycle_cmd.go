package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/services"
)

func newConvertLeadCmd() *cobra.Command {
	var tenant, lead, account, performedBy string

	cmd := &cobra.Command{
		Use:   "convert-lead",
		Short: "Convert a lead into a contact",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := services.ConvertLeadInput{}
			var err error
			if in.TenantID, err = parseID("tenant", tenant); err != nil {
				return err
			}
			if in.LeadID, err = parseID("lead", lead); err != nil {
				return err
			}
			if in.AccountID, err = parseOptionalID("account", account); err != nil {
				return err
			}
			if in.PerformedBy, err = parseOptionalID("performed-by", performedBy); err != nil {
				return err
			}
			return withRuntime(cmd, func(rt *runtime) error {
				start := time.Now()
				contactID, err := rt.lifecycle().ConvertLeadToContact(rt.ctx, in)
				if err != nil {
					return err
				}
				return writeResult("convert-lead", start, map[string]uuid.UUID{
					"lead_id":    in.LeadID,
					"contact_id": contactID,
				})
			})
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant uuid")
	cmd.Flags().StringVar(&lead, "lead", "", "lead uuid")
	cmd.Flags().StringVar(&account, "account", "", "account uuid to attach the contact to")
	cmd.Flags().StringVar(&performedBy, "performed-by", "", "acting user uuid")
	return cmd
}

func newPromoteSourceCmd() *cobra.Command {
	var tenant, source, name, performedBy string

	cmd := &cobra.Command{
		Use:   "promote-source",
		Short: "Promote a sourcing record into an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := services.PromoteSourceInput{AccountName: optionalString(name)}
			var err error
			if in.TenantID, err = parseID("tenant", tenant); err != nil {
				return err
			}
			if in.SourceID, err = parseID("source", source); err != nil {
				return err
			}
			if in.PerformedBy, err = parseOptionalID("performed-by", performedBy); err != nil {
				return err
			}
			return withRuntime(cmd, func(rt *runtime) error {
				start := time.Now()
				accountID, err := rt.lifecycle().PromoteSourceToAccount(rt.ctx, in)
				if err != nil {
					return err
				}
				return writeResult("promote-source", start, map[string]uuid.UUID{
					"source_id":  in.SourceID,
					"account_id": accountID,
				})
			})
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant uuid")
	cmd.Flags().StringVar(&source, "source", "", "sourcing record uuid")
	cmd.Flags().StringVar(&name, "name", "", "account name, defaults to the company name")
	cmd.Flags().StringVar(&performedBy, "performed-by", "", "acting user uuid")
	return cmd
}

// lifecycleTarget parses the --type/--tenant/--id triple shared by archive
// and delete. Only leads and sourcing records are accepted.
func lifecycleTarget(typ, tenant, id string) (records.Type, uuid.UUID, uuid.UUID, error) {
	t, ok := records.ParseType(typ)
	if !ok || (t != records.TypeLead && t != records.TypeSourcingRecord) {
		return "", uuid.Nil, uuid.Nil, withCode(exitUsage, fmt.Errorf("--type must be lead or sourcing_record, got %q", typ))
	}
	tenantID, err := parseID("tenant", tenant)
	if err != nil {
		return "", uuid.Nil, uuid.Nil, err
	}
	recordID, err := parseID("id", id)
	if err != nil {
		return "", uuid.Nil, uuid.Nil, err
	}
	return t, tenantID, recordID, nil
}

func newArchiveCmd() *cobra.Command {
	var typ, tenant, id string

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Archive a lead or sourcing record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, tenantID, recordID, err := lifecycleTarget(typ, tenant, id)
			if err != nil {
				return err
			}
			return withRuntime(cmd, func(rt *runtime) error {
				start := time.Now()
				svc := rt.lifecycle()
				if t == records.TypeLead {
					err = svc.ArchiveLead(rt.ctx, tenantID, recordID)
				} else {
					err = svc.ArchiveSourcingRecord(rt.ctx, tenantID, recordID)
				}
				if err != nil {
					return err
				}
				return writeResult("archive", start, map[string]any{"type": t, "id": recordID, "state": "archived"})
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", "lead", "lead or sourcing_record")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant uuid")
	cmd.Flags().StringVar(&id, "id", "", "record uuid")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var typ, tenant, id string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete an active lead or sourcing record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, tenantID, recordID, err := lifecycleTarget(typ, tenant, id)
			if err != nil {
				return err
			}
			return withRuntime(cmd, func(rt *runtime) error {
				start := time.Now()
				svc := rt.lifecycle()
				if t == records.TypeLead {
					err = svc.DeleteLead(rt.ctx, tenantID, recordID)
				} else {
					err = svc.DeleteSourcingRecord(rt.ctx, tenantID, recordID)
				}
				if err != nil {
					return err
				}
				return writeResult("delete", start, map[string]any{"type": t, "id": recordID, "deleted": true})
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", "lead", "lead or sourcing_record")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant uuid")
	cmd.Flags().StringVar(&id, "id", "", "record uuid")
	return cmd
}
