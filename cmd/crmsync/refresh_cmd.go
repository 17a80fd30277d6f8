package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/aggregates/profile"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/services"
)

type refreshOutput struct {
	PersonID uuid.UUID              `json:"person_id"`
	Found    bool                   `json:"found"`
	Profile  *profile.PersonProfile `json:"profile,omitempty"`
}

func newRefreshCmd() *cobra.Command {
	var (
		tenant string
		person string
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Recompute one person profile, or every profile with --all",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if all {
				if tenant != "" || person != "" {
					return withCode(exitUsage, fmt.Errorf("--all cannot be combined with --tenant or --person"))
				}
				return withRuntime(cmd, func(rt *runtime) error {
					start := time.Now()
					res, err := rt.profiles().RefreshAll(rt.ctx)
					if err != nil {
						return err
					}
					return writeResult("refresh", start, res)
				})
			}

			tenantID, err := parseID("tenant", tenant)
			if err != nil {
				return err
			}
			personID, err := parseID("person", person)
			if err != nil {
				return err
			}
			return withRuntime(cmd, func(rt *runtime) error {
				start := time.Now()
				if err := rt.profiles().Recompute(rt.ctx, tenantID, personID); err != nil {
					return err
				}
				out := refreshOutput{PersonID: personID}
				p, err := rt.profiles().Get(rt.ctx, tenantID, personID)
				switch {
				case errors.Is(err, services.ErrNotFound):
				case err != nil:
					return err
				default:
					out.Found = true
					out.Profile = &p
				}
				return writeResult("refresh", start, out)
			})
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant uuid")
	cmd.Flags().StringVar(&person, "person", "", "lead or contact uuid")
	cmd.Flags().BoolVar(&all, "all", false, "recompute every active person of every tenant")
	return cmd
}
