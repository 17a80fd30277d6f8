package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

type CleanerOptions struct {
	Enabled  bool
	Interval time.Duration
	// Retention applies to published rows.
	Retention time.Duration
	// DeadRetention applies to rows with at least DeadAttemptsThreshold
	// attempts. Zero keeps dead rows forever.
	DeadRetention         time.Duration
	DeadAttemptsThreshold int

	Logger *logrus.Entry
}

type Cleaner struct {
	store *tableStore
	opts  CleanerOptions
	m     *metrics
}

type CleanResult struct {
	Published int64 `json:"published"`
	Dead      int64 `json:"dead"`
}

func NewCleaner(pool *pgxpool.Pool, table pgx.Identifier, opts CleanerOptions) (*Cleaner, error) {
	store, err := newTableStore(pool, table)
	if err != nil {
		return nil, err
	}
	if opts.DeadRetention > 0 && opts.DeadAttemptsThreshold <= 0 {
		return nil, invalidConfig("dead retention requires DeadAttemptsThreshold > 0")
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Retention <= 0 {
		opts.Retention = 7 * 24 * time.Hour
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		opts.Logger = logrus.NewEntry(l)
	}
	return &Cleaner{store: store, opts: opts, m: getMetrics()}, nil
}

// Run cleans every Interval until ctx is done. It returns nil right away
// when the cleaner is disabled.
func (c *Cleaner) Run(ctx context.Context) error {
	if !c.opts.Enabled {
		return nil
	}
	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if _, err := c.Clean(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.opts.Logger.WithError(err).Warn("outbox: cleaner tick failed")
		}
	}
}

// Clean runs a single pass.
func (c *Cleaner) Clean(ctx context.Context) (CleanResult, error) {
	now := time.Now()
	var deadBefore *time.Time
	if c.opts.DeadRetention > 0 {
		t := now.Add(-c.opts.DeadRetention)
		deadBefore = &t
	}
	published, dead, err := c.store.clean(ctx, now.Add(-c.opts.Retention), deadBefore, c.opts.DeadAttemptsThreshold)
	if err != nil {
		return CleanResult{}, err
	}
	c.m.cleaned.WithLabelValues(c.store.label, "published").Add(float64(published))
	c.m.cleaned.WithLabelValues(c.store.label, "dead").Add(float64(dead))
	if published+dead > 0 {
		c.opts.Logger.WithFields(logrus.Fields{"published": published, "dead": dead}).Debug("outbox: cleaned")
	}
	return CleanResult{Published: published, Dead: dead}, nil
}
