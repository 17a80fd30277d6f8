package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/services"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/application"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/composables"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/configuration"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/eventbus"
)

// runtime holds everything a command needs after bootstrap.
type runtime struct {
	conf   *configuration.Configuration
	logger *logrus.Logger
	pool   *pgxpool.Pool
	app    application.Application
	cfg    crm.Config
	ctx    context.Context

	closers []func() error
}

func connectDB(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("db connect failed: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping failed: %w", err)
	}
	return pool, nil
}

// bootstrap opens the configured store and lock backends and registers the
// crm module. The pool is only opened for the postgres store.
func bootstrap(ctx context.Context) (*runtime, error) {
	conf := configuration.Use()
	rt := &runtime{conf: conf, logger: conf.Logger()}

	cfg, err := crm.ConfigFrom(conf)
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	rt.cfg = cfg

	if conf.Store.Backend == configuration.StorePostgres {
		pool, err := connectDB(ctx, conf.Database.Opts)
		if err != nil {
			return nil, withCode(exitDB, err)
		}
		rt.pool = pool
		ctx = composables.WithPool(ctx, pool)
	}
	rt.ctx = ctx

	store, closeStore, err := crm.OpenStore(ctx, conf, rt.pool)
	if err != nil {
		rt.close()
		return nil, withCode(exitDB, err)
	}
	rt.closers = append(rt.closers, closeStore)

	coordinator, closeLocks, err := crm.NewCoordinator(conf)
	if err != nil {
		rt.close()
		return nil, withCode(exitUsage, err)
	}
	rt.closers = append(rt.closers, closeLocks)

	rt.app = application.New(&application.ApplicationOptions{
		Pool:     rt.pool,
		EventBus: eventbus.NewEventPublisher(rt.logger),
		Logger:   rt.logger,
	})
	if err := rt.app.RegisterModules(crm.NewModule(store, coordinator, cfg)); err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.WithError(err).Warn("crmsync: close failed")
		}
	}
	rt.closers = nil
	if rt.pool != nil {
		rt.pool.Close()
	}
}

func (rt *runtime) requirePool() error {
	if rt.pool == nil {
		return withCode(exitUsage, fmt.Errorf("this command requires CRM_STORE=postgres, got %q", rt.conf.Store.Backend))
	}
	return nil
}

func (rt *runtime) profiles() *services.ProfileService {
	return rt.app.Service(services.ProfileService{}).(*services.ProfileService)
}

func (rt *runtime) lifecycle() *services.LifecycleService {
	return rt.app.Service(services.LifecycleService{}).(*services.LifecycleService)
}

func (rt *runtime) cascade() *services.AssignmentCascade {
	return rt.app.Service(services.AssignmentCascade{}).(*services.AssignmentCascade)
}

func (rt *runtime) refresher() *services.ProfileRefresher {
	return rt.app.Service(services.ProfileRefresher{}).(*services.ProfileRefresher)
}

// withRuntime wraps a command body with bootstrap and teardown.
func withRuntime(cmd *cobra.Command, fn func(rt *runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.close()
	return fn(rt)
}
