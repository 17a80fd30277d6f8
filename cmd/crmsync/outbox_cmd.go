package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	crmoutbox "github.com/andreibyf/aishacrm-2-sub007/modules/crm/infrastructure/outbox"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/outbox"
)

func newOutboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Operate on the crm outbox table",
	}
	cmd.AddCommand(newOutboxDrainCmd(), newOutboxCleanCmd())
	return cmd
}

func outboxLogger(rt *runtime) *logrus.Entry {
	return rt.logger.WithFields(logrus.Fields{
		"component": "outbox",
		"table":     outbox.TableLabel(rt.cfg.OutboxTable),
	})
}

// newCRMRelay builds a relay that republishes crm outbox rows onto the
// application event bus.
func newCRMRelay(rt *runtime, singleActive bool) (*outbox.Relay, error) {
	opts := outbox.RelayOptions{
		PollInterval:    rt.conf.Outbox.RelayPollInterval,
		BatchSize:       rt.conf.Outbox.RelayBatchSize,
		LockTTL:         rt.conf.Outbox.RelayLockTTL,
		MaxAttempts:     rt.conf.Outbox.RelayMaxAttempts,
		SingleActive:    singleActive,
		LastErrorMaxLen: rt.conf.Outbox.LastErrorMaxBytes,
		DispatchTimeout: rt.conf.Outbox.RelayDispatchTimeout,
		Logger:          outboxLogger(rt),
	}
	if rt.conf.Outbox.RelayCoalesce {
		opts.Coalesce = crmoutbox.CoalesceKey
	}
	return outbox.NewRelay(rt.pool, rt.cfg.OutboxTable, crmoutbox.NewDispatcher(rt.app.EventPublisher()), opts)
}

func newCRMCleaner(rt *runtime) (*outbox.Cleaner, error) {
	return outbox.NewCleaner(rt.pool, rt.cfg.OutboxTable, outbox.CleanerOptions{
		Enabled:               true,
		Interval:              rt.conf.Outbox.CleanerInterval,
		Retention:             rt.conf.Outbox.CleanerRetention,
		DeadRetention:         rt.conf.Outbox.CleanerDeadRetention,
		DeadAttemptsThreshold: rt.conf.Outbox.RelayMaxAttempts,
		Logger:                outboxLogger(rt),
	})
}

type drainOutput struct {
	Table string `json:"table"`
	outbox.BatchResult
}

func newOutboxDrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Dispatch every due outbox row once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, func(rt *runtime) error {
				if err := rt.requirePool(); err != nil {
					return err
				}
				start := time.Now()
				relay, err := newCRMRelay(rt, false)
				if err != nil {
					return withCode(exitUsage, fmt.Errorf("outbox relay: %w", err))
				}
				res, err := relay.Drain(rt.ctx)
				if err != nil {
					return withCode(exitDB, err)
				}
				return writeResult("outbox drain", start, drainOutput{
					Table:       outbox.TableLabel(rt.cfg.OutboxTable),
					BatchResult: res,
				})
			})
		},
	}
}

type cleanOutput struct {
	Table string `json:"table"`
	outbox.CleanResult
}

func newOutboxCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Delete published and dead outbox rows past their retention",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, func(rt *runtime) error {
				if err := rt.requirePool(); err != nil {
					return err
				}
				start := time.Now()
				cleaner, err := newCRMCleaner(rt)
				if err != nil {
					return withCode(exitUsage, fmt.Errorf("outbox cleaner: %w", err))
				}
				res, err := cleaner.Clean(rt.ctx)
				if err != nil {
					return withCode(exitDB, err)
				}
				return writeResult("outbox clean", start, cleanOutput{
					Table:       outbox.TableLabel(rt.cfg.OutboxTable),
					CleanResult: res,
				})
			})
		},
	}
}
