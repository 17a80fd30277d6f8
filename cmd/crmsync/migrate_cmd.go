package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/infrastructure/persistence"
)

func newMigrateCmd() *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the crm schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, func(rt *runtime) error {
				if err := rt.requirePool(); err != nil {
					return err
				}
				start := time.Now()
				if status {
					if err := persistence.MigrationStatus(rt.ctx, rt.pool); err != nil {
						return withCode(exitDB, err)
					}
					return nil
				}
				if err := persistence.Migrate(rt.ctx, rt.pool); err != nil {
					return withCode(exitDB, err)
				}
				return writeResult("migrate", start, map[string]any{"applied": true})
			})
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "print migration status instead of applying")
	return cmd
}
