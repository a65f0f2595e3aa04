package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	domerrors "github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/errors"
)

// ErrNotFound is returned when a notification id does not exist.
var ErrNotFound = errors.New("notification not found")

// Store persists notifications in PostgreSQL. Channel ids live in a side
// table because a notification may target several computed channels.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectColumns = `n.id, n.channel_plugin_id, n.message, n.redirect_uri,
	n.related_entity_type, n.related_entity_id, n.owner_uid, n.published,
	n.stack_size, n.created, n.changed`

// Create persists the notification and its channel id rows in one
// transaction. Exactly one notification row is written per call.
func (s *Store) Create(ctx context.Context, n *Notification) error {
	if len(n.ChannelIDs) == 0 {
		return fmt.Errorf("notification requires at least one channel id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domerrors.NewInsertFailedError("notification create", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO dom_notification
			(id, channel_plugin_id, message, redirect_uri, related_entity_type,
			 related_entity_id, owner_uid, published, stack_size, created, changed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		n.ID, n.ChannelPluginID, n.Message, n.RedirectURI, n.RelatedType,
		n.RelatedID, n.OwnerID, n.Published, n.StackSize, n.CreatedAt, n.ChangedAt,
	)
	if err != nil {
		return domerrors.NewInsertFailedError("notification create", err)
	}

	for _, channelID := range n.ChannelIDs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO dom_notification_channels (nid, channel_id)
			 VALUES ($1, $2)`,
			n.ID, channelID,
		)
		if err != nil {
			return domerrors.NewInsertFailedError("notification channel ids", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domerrors.NewInsertFailedError("notification create", err)
	}
	return nil
}

// LoadByID returns one notification with its channel ids.
func (s *Store) LoadByID(ctx context.Context, id string) (*Notification, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+`, array_agg(nc.channel_id)
		 FROM dom_notification n
		 JOIN dom_notification_channels nc ON nc.nid = n.id
		 WHERE n.id = $1
		 GROUP BY n.id`,
		id,
	)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return n, err
}

// UpdateStackSize rewrites the stack size of an existing notification.
func (s *Store) UpdateStackSize(ctx context.Context, id string, stackSize int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE dom_notification SET stack_size = $2, changed = $3 WHERE id = $1`,
		id, stackSize, time.Now().UTC(),
	)
	if err != nil {
		return domerrors.NewQueryExecutionFailedError("update stack size", err)
	}
	return nil
}

// UnpublishByChannelStack unpublishes notifications on any of the given
// channel ids carrying exactly the given stack size. Superseded aggregates
// are hidden this way rather than deleted.
func (s *Store) UnpublishByChannelStack(ctx context.Context, channelIDs []string, stackSize int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dom_notification SET published = FALSE, changed = $3
		 WHERE stack_size = $2
		   AND id IN (
			SELECT nid FROM dom_notification_channels
			WHERE channel_id = ANY($1)
		 )`,
		pq.Array(channelIDs), stackSize, time.Now().UTC(),
	)
	if err != nil {
		return 0, domerrors.NewQueryExecutionFailedError("unpublish previous aggregate", err)
	}
	return res.RowsAffected()
}

// DeleteOlderThan removes every notification created strictly before cutoff,
// cascading to channel id rows and seen/read status rows. Returns the number
// of notifications removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.deleteWhere(ctx,
		`SELECT id FROM dom_notification WHERE created < $1`, cutoff)
}

// DeleteByChannelIDs removes every notification whose channel id set
// intersects the given ids, cascading status rows. Used by channel deletion.
func (s *Store) DeleteByChannelIDs(ctx context.Context, channelIDs []string) (int64, error) {
	if len(channelIDs) == 0 {
		return 0, nil
	}
	return s.deleteWhere(ctx,
		`SELECT DISTINCT nid FROM dom_notification_channels
		 WHERE channel_id = ANY($1)`, pq.Array(channelIDs))
}

func (s *Store) deleteWhere(ctx context.Context, idQuery string, arg interface{}) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, domerrors.NewQueryExecutionFailedError("notification delete", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, idQuery, arg)
	if err != nil {
		return 0, domerrors.NewQueryExecutionFailedError("notification delete", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, domerrors.NewQueryExecutionFailedError("notification delete", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, domerrors.NewQueryExecutionFailedError("notification delete", err)
	}

	if len(ids) == 0 {
		return 0, tx.Commit()
	}

	// Status rows first, then channel ids, then the notifications.
	for _, stmt := range []string{
		`DELETE FROM dom_notifications_seen WHERE nid = ANY($1)`,
		`DELETE FROM dom_notifications_read WHERE nid = ANY($1)`,
		`DELETE FROM dom_notification_channels WHERE nid = ANY($1)`,
		`DELETE FROM dom_notification WHERE id = ANY($1)`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, pq.Array(ids)); err != nil {
			return 0, domerrors.NewQueryExecutionFailedError("notification delete", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, domerrors.NewQueryExecutionFailedError("notification delete", err)
	}
	return int64(len(ids)), nil
}

// ListForUser returns the notification feed for a user: published
// notifications on channels the user is subscribed to, excluding the user's
// own, newest first.
func (s *Store) ListForUser(ctx context.Context, userID string, f Filters) ([]*Notification, error) {
	query := `SELECT ` + selectColumns + `, array_agg(nc.channel_id)
		 FROM dom_notification n
		 JOIN dom_notification_channels nc ON nc.nid = n.id
		 JOIN dom_notifications_user_channels uc ON uc.channel_id = nc.channel_id
		 WHERE uc.uid = $1 AND n.owner_uid <> $1`
	args := []interface{}{userID}

	if f.OnlyPublished {
		query += ` AND n.published = TRUE`
	}
	if f.ChannelPluginID != "" {
		args = append(args, f.ChannelPluginID)
		query += fmt.Sprintf(` AND n.channel_plugin_id = $%d`, len(args))
	}
	if f.OnlyUnseen {
		query += ` AND NOT EXISTS (
			SELECT 1 FROM dom_notifications_seen s
			WHERE s.nid = n.id AND s.uid = $1)`
	}
	if f.OnlyUnread {
		query += ` AND NOT EXISTS (
			SELECT 1 FROM dom_notifications_read r
			WHERE r.nid = n.id AND r.uid = $1)`
	}

	query += ` GROUP BY n.id ORDER BY n.created DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domerrors.NewQueryExecutionFailedError("notification feed", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(row rowScanner) (*Notification, error) {
	var n Notification
	var channelIDs pq.StringArray
	err := row.Scan(
		&n.ID, &n.ChannelPluginID, &n.Message, &n.RedirectURI,
		&n.RelatedType, &n.RelatedID, &n.OwnerID, &n.Published,
		&n.StackSize, &n.CreatedAt, &n.ChangedAt, &channelIDs,
	)
	if err != nil {
		return nil, err
	}
	n.ChannelIDs = channelIDs
	return &n, nil
}
