// Package status tracks per-user seen and read marks on notifications and
// answers the unseen badge count.
package status

import (
	"context"
	"database/sql"

	domerrors "github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/errors"
)

// Store persists seen/read marks. Marks are insert-only and idempotent:
// repeating a mark is a no-op reported through the bool return.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// MarkSeen records that the user has seen the notification. Returns true
// when the mark was newly created.
func (s *Store) MarkSeen(ctx context.Context, notificationID, userID string) (bool, error) {
	return s.mark(ctx, "dom_notifications_seen", notificationID, userID)
}

// MarkRead records that the user has read the notification. Returns true
// when the mark was newly created.
func (s *Store) MarkRead(ctx context.Context, notificationID, userID string) (bool, error) {
	return s.mark(ctx, "dom_notifications_read", notificationID, userID)
}

func (s *Store) mark(ctx context.Context, table, notificationID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO `+table+` (nid, uid) VALUES ($1, $2)
		 ON CONFLICT (nid, uid) DO NOTHING`,
		notificationID, userID,
	)
	if err != nil {
		return false, domerrors.NewInsertFailedError("status mark", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IsSeen reports whether the user has a seen mark on the notification.
func (s *Store) IsSeen(ctx context.Context, notificationID, userID string) (bool, error) {
	return s.exists(ctx, "dom_notifications_seen", notificationID, userID)
}

// IsRead reports whether the user has a read mark on the notification.
func (s *Store) IsRead(ctx context.Context, notificationID, userID string) (bool, error) {
	return s.exists(ctx, "dom_notifications_read", notificationID, userID)
}

func (s *Store) exists(ctx context.Context, table, notificationID, userID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+table+` WHERE nid = $1 AND uid = $2`,
		notificationID, userID,
	).Scan(&count)
	if err != nil {
		return false, domerrors.NewQueryExecutionFailedError("status check", err)
	}
	return count > 0, nil
}

// UnseenCount counts the published notifications addressed to the user's
// subscribed channels that the user has not seen and does not own.
func (s *Store) UnseenCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT n.id)
		 FROM dom_notification n
		 JOIN dom_notification_channels nc ON nc.nid = n.id
		 JOIN dom_notifications_user_channels uc ON uc.channel_id = nc.channel_id
		 WHERE uc.uid = $1
		   AND n.published = TRUE
		   AND n.owner_uid <> $1
		   AND NOT EXISTS (
			SELECT 1 FROM dom_notifications_seen s
			WHERE s.nid = n.id AND s.uid = $1
		   )`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, domerrors.NewQueryExecutionFailedError("unseen count", err)
	}
	return count, nil
}
