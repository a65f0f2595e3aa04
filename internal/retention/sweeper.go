// Package retention removes notifications past their keep period.
package retention

import (
	"context"
	"time"

	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/logger"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/metrics"
)

// DeletionStore removes notifications created before a cutoff.
type DeletionStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper deletes notifications older than a configured number of months.
// A month counts as 30 days; retention is a coarse housekeeping bound, not
// a calendar contract.
type Sweeper struct {
	store DeletionStore
	clock func() time.Time
	log   logger.Logger
}

func NewSweeper(store DeletionStore, log logger.Logger) *Sweeper {
	return &Sweeper{store: store, clock: time.Now, log: log}
}

// NewSweeperWithClock builds a sweeper with an injected time source.
func NewSweeperWithClock(store DeletionStore, clock func() time.Time, log logger.Logger) *Sweeper {
	return &Sweeper{store: store, clock: clock, log: log}
}

// ExecuteCleanup deletes notifications older than months * 30 days and
// reports whether anything was actually removed. Returns false without
// touching storage when months <= 0, which disables retention entirely.
func (s *Sweeper) ExecuteCleanup(ctx context.Context, months int) (bool, error) {
	if months <= 0 {
		return false, nil
	}
	cutoff := s.clock().Add(-time.Duration(months) * 30 * 24 * time.Hour)
	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return false, err
	}
	metrics.CleanupDeleted.Add(float64(deleted))
	s.log.Info("Retention sweep finished", map[string]interface{}{
		"cutoff":  cutoff.Format(time.RFC3339),
		"deleted": deleted,
	})
	return deleted > 0, nil
}
