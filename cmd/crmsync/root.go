package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/andreibyf/aishacrm-2-sub007/pkg/configuration"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "crmsync",
		Short:         "CRM person profile sync and entity lifecycle tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newConvertLeadCmd())
	cmd.AddCommand(newPromoteSourceCmd())
	cmd.AddCommand(newArchiveCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newCascadeAssigneeCmd())
	cmd.AddCommand(newReportCmd())
	cmd.AddCommand(newOutboxCmd())
	return cmd
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	configuration.Use().Unload()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(exitCode(err))
	}
}
