package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// ProfileRefresher periodically recomputes all profiles to correct drift
// left by failed or skipped recomputes.
type ProfileRefresher struct {
	profiles *ProfileService
	interval time.Duration
	log      *logrus.Entry
}

func NewProfileRefresher(profiles *ProfileService, interval time.Duration, log *logrus.Entry) *ProfileRefresher {
	return &ProfileRefresher{profiles: profiles, interval: interval, log: log}
}

// Run blocks until ctx is done. A zero interval disables the job.
func (r *ProfileRefresher) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		res, err := r.profiles.RefreshAll(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			loggerFor(ctx, r.log).WithError(err).Warn("crm.profile.refresh_tick_failed")
			continue
		}
		loggerFor(ctx, r.log).WithFields(logrus.Fields{
			"skipped":   res.Skipped,
			"tenants":   res.Tenants,
			"refreshed": res.Refreshed,
			"failed":    res.Failed,
		}).Debug("crm.profile.refresh_tick")
	}
}
