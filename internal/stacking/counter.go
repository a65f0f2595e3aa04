// Package stacking folds bursts of identical events on a channel into one
// aggregate notification per threshold window.
package stacking

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	domerrors "github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/errors"
)

// Key identifies one aggregation counter: same channel, same related
// entity.
type Key struct {
	PluginID   string
	ChannelID  string
	EntityType string
	EntityID   string
}

// Result is the counter state after one increment.
type Result struct {
	// WindowCount is the position inside the current threshold window,
	// in [0, threshold). Zero means the increment completed a window.
	WindowCount int

	// Total is the cumulative number of increments ever applied.
	Total int

	// Emit reports whether this increment completed a window and an
	// aggregate notification must be published.
	Emit bool
}

// maxUpsertAttempts bounds retries on serialization conflicts.
const maxUpsertAttempts = 3

// CounterStore keeps one row per aggregation key. The row carries two
// numbers: a window counter that wraps to zero each time it reaches the
// threshold, and a cumulative total that never decreases except through
// read decrements. Both move in a single atomic upsert, so concurrent
// increments cannot lose updates or double-emit.
type CounterStore struct {
	db *sql.DB
}

func NewCounterStore(db *sql.DB) *CounterStore {
	return &CounterStore{db: db}
}

// Increment bumps the counter for the key and reports the resulting
// window position and total. Threshold must be at least 2.
func (s *CounterStore) Increment(ctx context.Context, k Key, threshold int) (Result, error) {
	var res Result
	var err error
	for attempt := 0; attempt < maxUpsertAttempts; attempt++ {
		res, err = s.increment(ctx, k, threshold)
		if err == nil {
			return res, nil
		}
		if !isTransient(err) {
			break
		}
	}
	return Result{}, domerrors.NewCounterUpsertFailedError(err, isTransient(err))
}

func (s *CounterStore) increment(ctx context.Context, k Key, threshold int) (Result, error) {
	var count, total int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO dom_notifications_stacking
			(channel_plugin_id, channel_id, related_entity_type, related_entity_id, count, total)
		 VALUES ($1, $2, $3, $4, 1 % $5, 1)
		 ON CONFLICT (channel_id, related_entity_type, related_entity_id)
		 DO UPDATE SET
			count = (dom_notifications_stacking.count + 1) % $5,
			total = dom_notifications_stacking.total + 1
		 RETURNING count, total`,
		k.PluginID, k.ChannelID, k.EntityType, k.EntityID, threshold,
	).Scan(&count, &total)
	if err != nil {
		return Result{}, err
	}
	return Result{WindowCount: count, Total: total, Emit: count == 0}, nil
}

// Decrement walks the cumulative total back after an aggregate is read, so
// the next window emits only after a full threshold of fresh events. The
// window position is left alone: moving it backwards would re-emit events
// already aggregated.
func (s *CounterStore) Decrement(ctx context.Context, k Key, by int) error {
	if by <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE dom_notifications_stacking
		 SET total = GREATEST(total - $4, 0)
		 WHERE channel_id = $1 AND related_entity_type = $2 AND related_entity_id = $3`,
		k.ChannelID, k.EntityType, k.EntityID, by,
	)
	if err != nil {
		return domerrors.NewQueryExecutionFailedError("counter decrement", err)
	}
	return nil
}

// DeleteByPlugin drops every counter owned by a channel plugin.
func (s *CounterStore) DeleteByPlugin(ctx context.Context, pluginID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM dom_notifications_stacking WHERE channel_plugin_id = $1`,
		pluginID,
	)
	if err != nil {
		return domerrors.NewQueryExecutionFailedError("counter delete by plugin", err)
	}
	return nil
}

// isTransient reports whether the error is a serialization failure or
// deadlock worth retrying.
func isTransient(err error) bool {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return false
	}
	switch pqErr.Code {
	case "40001", "40P01":
		return true
	}
	return false
}
