package persistence

import (
	"context"
	"strings"
	"sync"

	"github.com/andreibyf/aishacrm-2-sub007/pkg/composables"
)

const columnsQuery = `SELECT table_name, column_name
  FROM information_schema.columns
 WHERE table_schema = current_schema()`

// columnSet caches which columns the deployment has. Optional columns such
// as activities.occurred_at or leads.job_title differ between installs.
type columnSet struct {
	mu     sync.RWMutex
	loaded bool
	cols   map[string]struct{}
}

func newColumnSet() *columnSet {
	return &columnSet{}
}

func (c *columnSet) has(ctx context.Context, table, column string) (bool, error) {
	key := strings.ToLower(table) + "." + strings.ToLower(column)
	c.mu.RLock()
	if c.loaded {
		_, ok := c.cols[key]
		c.mu.RUnlock()
		return ok, nil
	}
	c.mu.RUnlock()

	if err := c.load(ctx); err != nil {
		return false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.cols[key]
	return ok, nil
}

func (c *columnSet) load(ctx context.Context) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	rows, err := tx.Query(ctx, columnsQuery)
	if err != nil {
		return mapError(err, "load columns")
	}
	defer rows.Close()

	cols := map[string]struct{}{}
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return mapError(err, "scan column")
		}
		cols[strings.ToLower(table)+"."+strings.ToLower(column)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return mapError(err, "load columns")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cols = cols
	c.loaded = true
	return nil
}

// Reset drops the cache so the next probe reloads it, e.g. after migrations.
func (c *columnSet) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
	c.cols = nil
}

// optional returns present when table.column exists and missing otherwise.
func (c *columnSet) optional(ctx context.Context, table, column, present, missing string) (string, error) {
	ok, err := c.has(ctx, table, column)
	if err != nil {
		return "", err
	}
	if ok {
		return present, nil
	}
	return missing, nil
}
