package crm

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/infrastructure/memory"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/infrastructure/persistence"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/infrastructure/sqlite"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/services"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/configuration"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/locks"
)

// OpenStore builds the configured store backend. pool is required for the
// postgres backend and ignored otherwise. The returned func releases
// backend resources other than the pool.
func OpenStore(ctx context.Context, conf *configuration.Configuration, pool *pgxpool.Pool) (services.Store, func() error, error) {
	noop := func() error { return nil }
	switch conf.Store.Backend {
	case configuration.StorePostgres:
		if pool == nil {
			return nil, noop, fmt.Errorf("crm: postgres store requires a database pool")
		}
		return persistence.NewStore(pool), noop, nil
	case configuration.StoreSQLite:
		s, err := sqlite.Open(ctx, conf.Store.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case configuration.StoreMemory:
		return memory.New(), noop, nil
	}
	return nil, noop, fmt.Errorf("crm: unknown store backend %q", conf.Store.Backend)
}

// NewCoordinator builds the configured lock backend. The returned func
// closes the redis client when one was opened.
func NewCoordinator(conf *configuration.Configuration) (locks.Coordinator, func() error, error) {
	noop := func() error { return nil }
	switch conf.Lock.Backend {
	case configuration.LockLocal:
		return locks.NewLocal(), noop, nil
	case configuration.LockPostgres:
		return locks.NewAdvisory(), noop, nil
	case configuration.LockRedis:
		opts, err := redis.ParseURL(conf.Lock.RedisURL)
		if err != nil {
			return nil, noop, fmt.Errorf("crm: parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		return locks.NewRedis(client, locks.RedisOptions{TTL: conf.Lock.TTL, Poll: conf.Lock.Poll}), client.Close, nil
	}
	return nil, noop, fmt.Errorf("crm: unknown lock backend %q", conf.Lock.Backend)
}
