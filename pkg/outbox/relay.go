package outbox

import (
	"cmp"
	"context"
	"errors"
	"math/rand"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

type RelayOptions struct {
	PollInterval    time.Duration
	BatchSize       int
	LockTTL         time.Duration
	MaxAttempts     int
	SingleActive    bool
	MaxBackoff      time.Duration
	JitterMax       time.Duration
	LastErrorMaxLen int
	DispatchTimeout time.Duration

	// Coalesce merges redundant messages of one batch. Nil dispatches all.
	Coalesce CoalesceFunc

	ObserveQueueDepthEvery time.Duration

	Logger *logrus.Entry
	Rand   *rand.Rand
}

func (o RelayOptions) withDefaults() RelayOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.LockTTL <= 0 {
		o.LockTTL = time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 25
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = time.Minute
	}
	if o.JitterMax == 0 {
		o.JitterMax = 200 * time.Millisecond
	}
	if o.LastErrorMaxLen <= 0 {
		o.LastErrorMaxLen = 2048
	}
	if o.DispatchTimeout == 0 {
		o.DispatchTimeout = 30 * time.Second
	}
	if o.ObserveQueueDepthEvery <= 0 {
		o.ObserveQueueDepthEvery = 10 * time.Second
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		o.Logger = logrus.NewEntry(l)
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec
	}
	return o
}

// Relay moves due rows of one outbox table to a Dispatcher. Delivery is at
// least once: a row is marked published only after Dispatch returned nil.
type Relay struct {
	store      *tableStore
	dispatcher Dispatcher
	opts       RelayOptions
	retry      *retryPolicy
	m          *metrics
}

func NewRelay(pool *pgxpool.Pool, table pgx.Identifier, dispatcher Dispatcher, opts RelayOptions) (*Relay, error) {
	store, err := newTableStore(pool, table)
	if err != nil {
		return nil, err
	}
	if dispatcher == nil {
		return nil, invalidConfig("dispatcher is required")
	}
	opts = opts.withDefaults()
	return &Relay{
		store:      store,
		dispatcher: dispatcher,
		opts:       opts,
		retry: &retryPolicy{
			maxAttempts: opts.MaxAttempts,
			maxBackoff:  opts.MaxBackoff,
			jitterMax:   opts.JitterMax,
			rnd:         opts.Rand,
		},
		m: getMetrics(),
	}, nil
}

// Run polls until ctx is done. With SingleActive only the process holding
// the table's advisory lock relays; the others keep trying to take it over.
func (r *Relay) Run(ctx context.Context) error {
	if !r.opts.SingleActive {
		r.m.leader.WithLabelValues(r.store.label).Set(1)
		return r.loop(ctx, nil)
	}
	for {
		conn, err := r.pool().Acquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.opts.Logger.WithError(err).Warn("outbox: acquire connection failed")
			if err := sleep(ctx, r.opts.PollInterval); err != nil {
				return err
			}
			continue
		}

		leader, err := r.store.tryLead(ctx, conn)
		if err != nil || !leader {
			conn.Release()
			r.m.leader.WithLabelValues(r.store.label).Set(0)
			if err != nil {
				r.opts.Logger.WithError(err).Warn("outbox: leader lock attempt failed")
			}
			if err := sleep(ctx, r.opts.PollInterval); err != nil {
				return err
			}
			continue
		}

		r.m.leader.WithLabelValues(r.store.label).Set(1)
		r.opts.Logger.Info("outbox: relay became leader")
		err = r.loop(ctx, conn)
		_ = r.store.resign(context.Background(), conn)
		conn.Release()
		r.m.leader.WithLabelValues(r.store.label).Set(0)
		return err
	}
}

func (r *Relay) pool() *pgxpool.Pool { return r.store.pool }

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *Relay) loop(ctx context.Context, conn *pgxpool.Conn) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()
	db := r.store.db(conn)
	var depthAt time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if now := time.Now(); now.After(depthAt) {
			r.observeDepth(ctx, db)
			depthAt = now.Add(r.opts.ObserveQueueDepthEvery)
		}
		if _, err := r.processBatch(ctx, db); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.opts.Logger.WithError(err).Warn("outbox: batch failed")
		}
	}
}

func (r *Relay) observeDepth(ctx context.Context, db querier) {
	pending, locked, err := r.store.depth(ctx, db)
	if err != nil {
		r.opts.Logger.WithError(err).Debug("outbox: observe queue depth failed")
		return
	}
	r.m.pending.WithLabelValues(r.store.label).Set(float64(pending))
	r.m.locked.WithLabelValues(r.store.label).Set(float64(locked))
}

type BatchResult struct {
	Claimed    int `json:"claimed"`
	Dispatched int `json:"dispatched"`
	Published  int `json:"published"`
	Failed     int `json:"failed"`
	Dead       int `json:"dead"`
	Coalesced  int `json:"coalesced"`
}

func (b *BatchResult) add(o BatchResult) {
	b.Claimed += o.Claimed
	b.Dispatched += o.Dispatched
	b.Published += o.Published
	b.Failed += o.Failed
	b.Dead += o.Dead
	b.Coalesced += o.Coalesced
}

// Drain relays until nothing is due or a batch published nothing, which
// leaves failing rows to their backoff.
func (r *Relay) Drain(ctx context.Context) (BatchResult, error) {
	var total BatchResult
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		res, err := r.processBatch(ctx, r.pool())
		total.add(res)
		if err != nil {
			return total, err
		}
		if res.Claimed == 0 || res.Published == 0 {
			return total, nil
		}
	}
}

// group is a message to dispatch plus the older messages it stands for.
type group struct {
	head    claimed
	members []claimed
}

// plan groups a sequence-ordered batch by coalesce key. The newest message
// of a key heads its group; groups keep the order of their heads.
func (r *Relay) plan(batch []claimed) []group {
	if r.opts.Coalesce == nil {
		groups := make([]group, len(batch))
		for i, c := range batch {
			groups[i] = group{head: c}
		}
		return groups
	}
	var groups []group
	byKey := map[string]int{}
	for _, c := range batch {
		key, ok := r.opts.Coalesce(c.message(r.store.ident))
		if !ok {
			groups = append(groups, group{head: c})
			continue
		}
		if i, seen := byKey[key]; seen {
			g := &groups[i]
			g.members = append(g.members, g.head)
			g.head = c
			continue
		}
		byKey[key] = len(groups)
		groups = append(groups, group{head: c})
	}
	slices.SortStableFunc(groups, func(a, b group) int { return cmp.Compare(a.head.Sequence, b.head.Sequence) })
	return groups
}

func (r *Relay) dispatch(ctx context.Context, c claimed) error {
	if r.opts.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.DispatchTimeout)
		defer cancel()
	}
	start := time.Now()
	err := r.dispatcher.Dispatch(ctx, c.message(r.store.ident))
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.m.dispatched.WithLabelValues(r.store.label, c.Topic, result).Inc()
	r.m.latency.WithLabelValues(r.store.label, c.Topic).Observe(time.Since(start).Seconds())
	return err
}

func (r *Relay) processBatch(ctx context.Context, db querier) (BatchResult, error) {
	now := time.Now()
	batch, err := r.store.claim(ctx, db, now, now.Add(-r.opts.LockTTL), r.opts.MaxAttempts, r.opts.BatchSize)
	if err != nil || len(batch) == 0 {
		return BatchResult{}, err
	}

	res := BatchResult{Claimed: len(batch)}
	var st settlement
	for _, g := range r.plan(batch) {
		err := r.dispatch(ctx, g.head)
		res.Dispatched++
		for _, c := range append(g.members, g.head) {
			if c.ID != g.head.ID {
				res.Coalesced++
				r.m.coalesced.WithLabelValues(r.store.label, c.Topic).Inc()
			}
			if err == nil {
				st.publish(c.ID)
				res.Published++
				continue
			}
			res.Failed++
			lastErr := clip(err.Error(), r.opts.LastErrorMaxLen)
			if r.retry.exhausted(c.Attempts) {
				res.Dead++
				r.m.dead.WithLabelValues(r.store.label, c.Topic).Inc()
				r.opts.Logger.WithError(err).WithFields(logFields(c)).Warn("outbox: message is dead")
				st.fail(c.ID, lastErr, time.Now())
				continue
			}
			st.fail(c.ID, lastErr, r.retry.nextAttemptAt(time.Now(), c.Attempts))
		}
	}
	if err := r.store.settle(ctx, db, st); err != nil {
		// Unsettled rows are retried once their lock expires.
		return res, err
	}
	return res, nil
}

func logFields(c claimed) logrus.Fields {
	return logrus.Fields{
		"topic":     c.Topic,
		"event_id":  c.EventID.String(),
		"tenant_id": c.TenantID.String(),
		"sequence":  c.Sequence,
		"attempts":  c.Attempts,
	}
}
