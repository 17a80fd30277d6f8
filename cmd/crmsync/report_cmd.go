package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/entities/transition"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Read-only lifecycle reports",
	}
	cmd.AddCommand(newReportConversionsCmd())
	cmd.AddCommand(newReportTransitionsCmd())
	return cmd
}

func newReportConversionsCmd() *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "conversions",
		Short: "List convert and promote transitions with both sides described",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := parseID("tenant", tenant)
			if err != nil {
				return err
			}
			return withRuntime(cmd, func(rt *runtime) error {
				start := time.Now()
				rows, err := rt.lifecycle().ConversionTracking(rt.ctx, tenantID)
				if err != nil {
					return err
				}
				if rows == nil {
					rows = []transition.ConversionRow{}
				}
				return writeResult("report conversions", start, rows)
			})
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant uuid")
	return cmd
}

func newReportTransitionsCmd() *cobra.Command {
	var tenant, typ, id string
	var asTarget bool

	cmd := &cobra.Command{
		Use:   "transitions",
		Short: "List the transitions recorded for one record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, ok := records.ParseType(typ)
			if !ok {
				return withCode(exitUsage, fmt.Errorf("--type: unknown record type %q", typ))
			}
			tenantID, err := parseID("tenant", tenant)
			if err != nil {
				return err
			}
			recordID, err := parseID("id", id)
			if err != nil {
				return err
			}
			return withRuntime(cmd, func(rt *runtime) error {
				start := time.Now()
				var rows []transition.EntityTransition
				if asTarget {
					rows, err = rt.lifecycle().TransitionsForTarget(rt.ctx, tenantID, t, recordID)
				} else {
					rows, err = rt.lifecycle().TransitionsForSource(rt.ctx, tenantID, t, recordID)
				}
				if err != nil {
					return err
				}
				if rows == nil {
					rows = []transition.EntityTransition{}
				}
				return writeResult("report transitions", start, rows)
			})
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant uuid")
	cmd.Flags().StringVar(&typ, "type", "lead", "record type")
	cmd.Flags().StringVar(&id, "id", "", "record uuid")
	cmd.Flags().BoolVar(&asTarget, "target", false, "match the record as the transition target")
	return cmd
}
