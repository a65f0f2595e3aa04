// Package subscription persists the (channel, user) -> subscribed/notify
// mapping. Row presence means subscribed; absence means not subscribed.
package subscription

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	domerrors "github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/errors"
)

// Row is one subscription: a user on one computed channel id.
type Row struct {
	UserID          string
	ChannelID       string
	ChannelPluginID string
	Notify          bool
}

// Store is the keyed subscription storage. Concurrent subscribe calls for
// the same key are benign: the unique constraint on (uid, channel_id) turns
// the losing insert into a no-op.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert adds subscription rows, ignoring rows that already exist.
func (s *Store) Insert(ctx context.Context, rows []Row) error {
	for _, r := range rows {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO dom_notifications_user_channels
				(uid, channel_id, channel_plugin_id, notify)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (uid, channel_id) DO NOTHING`,
			r.UserID, r.ChannelID, r.ChannelPluginID, r.Notify,
		)
		if err != nil {
			return domerrors.NewInsertFailedError("subscription insert", err)
		}
	}
	return nil
}

// Delete removes the given users' rows for one channel plugin.
func (s *Store) Delete(ctx context.Context, pluginID string, userIDs []string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM dom_notifications_user_channels
		 WHERE channel_plugin_id = $1 AND uid = ANY($2)`,
		pluginID, pq.Array(userIDs),
	)
	if err != nil {
		return domerrors.NewQueryExecutionFailedError("subscription delete", err)
	}
	return nil
}

// DeleteByPlugin removes every subscription row of a channel plugin.
func (s *Store) DeleteByPlugin(ctx context.Context, pluginID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM dom_notifications_user_channels WHERE channel_plugin_id = $1`,
		pluginID,
	)
	if err != nil {
		return domerrors.NewQueryExecutionFailedError("subscription delete by plugin", err)
	}
	return nil
}

// Exists reports whether the user is subscribed to the channel plugin.
func (s *Store) Exists(ctx context.Context, pluginID, userID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dom_notifications_user_channels
		 WHERE channel_plugin_id = $1 AND uid = $2`,
		pluginID, userID,
	).Scan(&count)
	if err != nil {
		return false, domerrors.NewQueryExecutionFailedError("subscription exists", err)
	}
	return count > 0, nil
}

// ListUsersByPlugin returns the distinct user ids subscribed to a channel
// plugin.
func (s *Store) ListUsersByPlugin(ctx context.Context, pluginID string) ([]string, error) {
	return s.listStrings(ctx,
		`SELECT DISTINCT uid FROM dom_notifications_user_channels
		 WHERE channel_plugin_id = $1`, pluginID)
}

// ListChannelIDsByPlugin returns the distinct computed channel ids present in
// the plugin's subscription rows.
func (s *Store) ListChannelIDsByPlugin(ctx context.Context, pluginID string) ([]string, error) {
	return s.listStrings(ctx,
		`SELECT DISTINCT channel_id FROM dom_notifications_user_channels
		 WHERE channel_plugin_id = $1`, pluginID)
}

// ListPluginsByUser returns the channel plugin ids a user is subscribed to.
func (s *Store) ListPluginsByUser(ctx context.Context, userID string) ([]string, error) {
	return s.listStrings(ctx,
		`SELECT DISTINCT channel_plugin_id FROM dom_notifications_user_channels
		 WHERE uid = $1`, userID)
}

// Recipients returns the users subscribed to any of the given channel ids,
// excluding the notification owner.
func (s *Store) Recipients(ctx context.Context, channelIDs []string, excludeUserID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT uid FROM dom_notifications_user_channels
		 WHERE channel_id = ANY($1) AND uid <> $2`,
		pq.Array(channelIDs), excludeUserID,
	)
	if err != nil {
		return nil, domerrors.NewQueryExecutionFailedError("subscription recipients", err)
	}
	return collectStrings(rows)
}

// NotifyEnabled reports the alert flag for a (plugin, user) pair. Missing
// rows report false.
func (s *Store) NotifyEnabled(ctx context.Context, pluginID, userID string) (bool, error) {
	var notify bool
	err := s.db.QueryRowContext(ctx,
		`SELECT notify FROM dom_notifications_user_channels
		 WHERE channel_plugin_id = $1 AND uid = $2
		 LIMIT 1`,
		pluginID, userID,
	).Scan(&notify)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, domerrors.NewQueryExecutionFailedError("subscription notify flag", err)
	}
	return notify, nil
}

// SetNotify updates the alert flag for every row of a (plugin, user) pair.
func (s *Store) SetNotify(ctx context.Context, pluginID, userID string, notify bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE dom_notifications_user_channels SET notify = $3
		 WHERE channel_plugin_id = $1 AND uid = $2`,
		pluginID, userID, notify,
	)
	if err != nil {
		return domerrors.NewQueryExecutionFailedError("subscription set notify", err)
	}
	return nil
}

func (s *Store) listStrings(ctx context.Context, query string, arg interface{}) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, domerrors.NewQueryExecutionFailedError("subscription list", err)
	}
	return collectStrings(rows)
}

func collectStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
