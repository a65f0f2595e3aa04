package notification

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	return NewStore(db), mock, func() { db.Close() }
}

func createTestNotification() *Notification {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	return &Notification{
		ID:              "11111111-1111-1111-1111-111111111111",
		ChannelPluginID: "likes",
		ChannelIDs:      []string{"likes:42"},
		Message:         "Someone liked your post.",
		RedirectURI:     "/post/9",
		RelatedType:     "post",
		RelatedID:       "9",
		OwnerID:         "7",
		Published:       true,
		CreatedAt:       now,
		ChangedAt:       now,
	}
}

func notificationRows(n *Notification) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "channel_plugin_id", "message", "redirect_uri",
		"related_entity_type", "related_entity_id", "owner_uid", "published",
		"stack_size", "created", "changed", "array_agg",
	}).AddRow(
		n.ID, n.ChannelPluginID, n.Message, n.RedirectURI,
		n.RelatedType, n.RelatedID, n.OwnerID, n.Published,
		n.StackSize, n.CreatedAt, n.ChangedAt,
		// Array columns scan from their Postgres literal form.
		"{"+strings.Join(n.ChannelIDs, ",")+"}",
	)
}

// ==========================
// Create Tests
// ==========================

func TestStore_Create(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	n := createTestNotification()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO dom_notification").
		WithArgs(n.ID, n.ChannelPluginID, n.Message, n.RedirectURI,
			n.RelatedType, n.RelatedID, n.OwnerID, n.Published,
			n.StackSize, n.CreatedAt, n.ChangedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO dom_notification_channels").
		WithArgs(n.ID, "likes:42").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, store.Create(context.Background(), n))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Create_WritesSchemaColumns(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	n := createTestNotification()

	// Pin the exact column list so the insert stays aligned with the
	// dom_notification DDL and the read-side selectColumns.
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO dom_notification\s*\(id, channel_plugin_id, message, redirect_uri, related_entity_type,\s*related_entity_id, owner_uid, published, stack_size, created, changed\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO dom_notification_channels \(nid, channel_id\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, store.Create(context.Background(), n))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Create_RequiresChannelIDs(t *testing.T) {
	store, _, cleanup := newTestStore(t)
	defer cleanup()

	n := createTestNotification()
	n.ChannelIDs = nil

	err := store.Create(context.Background(), n)
	assert.Error(t, err)
}

func TestStore_Create_RollsBackOnChannelInsertFailure(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	n := createTestNotification()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO dom_notification").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO dom_notification_channels").
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := store.Create(context.Background(), n)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Load Tests
// ==========================

func TestStore_LoadByID(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	want := createTestNotification()
	mock.ExpectQuery("SELECT (.+) FROM dom_notification n").
		WithArgs(want.ID).
		WillReturnRows(notificationRows(want))

	got, err := store.LoadByID(context.Background(), want.ID)
	assert.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Message, got.Message)
	assert.Equal(t, []string{"likes:42"}, got.ChannelIDs)
}

func TestStore_LoadByID_NotFound(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM dom_notification n").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.LoadByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// ==========================
// Unpublish Tests
// ==========================

func TestStore_UnpublishByChannelStack(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	mock.ExpectExec("UPDATE dom_notification SET published = FALSE").
		WithArgs(pq.Array([]string{"general"}), 5, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := store.UnpublishByChannelStack(context.Background(), []string{"general"}, 5)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Delete Tests
// ==========================

func TestStore_DeleteOlderThan(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ids := pq.Array([]string{"a", "b"})

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM dom_notification WHERE created").
		WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))
	mock.ExpectExec("DELETE FROM dom_notifications_seen").
		WithArgs(ids).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM dom_notifications_read").
		WithArgs(ids).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM dom_notification_channels").
		WithArgs(ids).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM dom_notification WHERE id").
		WithArgs(ids).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	deleted, err := store.DeleteOlderThan(context.Background(), cutoff)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteOlderThan_NothingToDelete(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM dom_notification WHERE created").
		WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	deleted, err := store.DeleteOlderThan(context.Background(), cutoff)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteByChannelIDs_EmptyInput(t *testing.T) {
	store, _, cleanup := newTestStore(t)
	defer cleanup()

	deleted, err := store.DeleteByChannelIDs(context.Background(), nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

// ==========================
// Feed Tests
// ==========================

func TestStore_ListForUser_MatchesSubscribedChannels(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	want := createTestNotification()
	mock.ExpectQuery("JOIN dom_notifications_user_channels uc").
		WithArgs("3").
		WillReturnRows(notificationRows(want))

	list, err := store.ListForUser(context.Background(), "3", Filters{})
	assert.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, want.ID, list[0].ID)
}

func TestStore_ListForUser_PluginFilterAndLimit(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	mock.ExpectQuery("JOIN dom_notifications_user_channels uc").
		WithArgs("3", "likes", 10).
		WillReturnRows(notificationRows(createTestNotification()))

	list, err := store.ListForUser(context.Background(), "3", Filters{
		ChannelPluginID: "likes",
		Limit:           10,
	})
	assert.NoError(t, err)
	assert.Len(t, list, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
