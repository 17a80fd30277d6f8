package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/andreibyf/aishacrm-2-sub007/pkg/configuration"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/logging"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/metrics"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/middleware"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the outbox relay, the profile refresher and the health endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf := configuration.Use()
			if conf.OpenTelemetry.Enabled {
				cleanup := logging.SetupTracing(cmd.Context(), conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL)
				defer cleanup()
				conf.Logger().Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
			}
			if addr == "" {
				addr = conf.Prometheus.Address
			}
			return withRuntime(cmd, func(rt *runtime) error {
				return serve(rt, addr)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address for /health and metrics (default PROMETHEUS_METRICS_ADDR)")
	return cmd
}

func serve(rt *runtime, addr string) error {
	g, ctx := errgroup.WithContext(rt.ctx)

	startOutboxBackground(ctx, g, rt)

	refresher := rt.refresher()
	g.Go(func() error {
		return ignoreCanceled(refresher.Run(ctx))
	})

	if rt.conf.Prometheus.Enabled {
		rt.app.RegisterControllers(metrics.NewPrometheusController(rt.conf.Prometheus.Path, nil))
	}
	router := rt.app.Router()
	router.Use(middleware.WithLogger(rt.logger, middleware.DefaultLoggerOptions()))
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		rt.logger.Infof("crmsync: listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// startOutboxBackground runs the crm relay and cleaner when the outbox
// notify mode is active.
func startOutboxBackground(ctx context.Context, g *errgroup.Group, rt *runtime) {
	outboxLog := rt.logger.WithField("component", "outbox")
	if rt.pool == nil || rt.cfg.NotifyMode != configuration.NotifyOutbox {
		outboxLog.Info("outbox: notify mode is not outbox; relay not started")
		return
	}
	if rt.conf.Outbox.RelayEnabled {
		relay, err := newCRMRelay(rt, rt.conf.Outbox.RelaySingleActive)
		if err != nil {
			outboxLog.WithError(err).Warn("outbox: failed to create relay")
		} else {
			g.Go(func() error {
				err := ignoreCanceled(relay.Run(ctx))
				if err != nil {
					outboxLog.WithError(err).Error("outbox: relay stopped")
				}
				return err
			})
		}
	}

	if rt.conf.Outbox.CleanerEnabled {
		cleaner, err := newCRMCleaner(rt)
		if err != nil {
			outboxLog.WithError(err).Warn("outbox: failed to create cleaner")
			return
		}
		g.Go(func() error {
			err := ignoreCanceled(cleaner.Run(ctx))
			if err != nil {
				outboxLog.WithError(err).Error("outbox: cleaner stopped")
			}
			return err
		})
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
