package main

import (
	"time"

	"github.com/spf13/cobra"
)

func newCascadeAssigneeCmd() *cobra.Command {
	var tenant, assignee string

	cmd := &cobra.Command{
		Use:   "cascade-assignee",
		Short: "Rewrite denormalized copies of an assignee's display name",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := parseID("tenant", tenant)
			if err != nil {
				return err
			}
			assigneeID, err := parseID("assignee", assignee)
			if err != nil {
				return err
			}
			return withRuntime(cmd, func(rt *runtime) error {
				start := time.Now()
				res, err := rt.cascade().OnAssigneeRenamed(rt.ctx, tenantID, assigneeID)
				if err != nil {
					return err
				}
				return writeResult("cascade-assignee", start, res)
			})
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant uuid")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee uuid")
	return cmd
}
