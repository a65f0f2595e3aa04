package status

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	return NewStore(db), mock, func() { db.Close() }
}

// ==========================
// Mark Tests
// ==========================

func TestStore_MarkSeen_FirstTransition(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO dom_notifications_seen").
		WithArgs("n1", "1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := store.MarkSeen(context.Background(), "n1", "1")
	assert.NoError(t, err)
	assert.True(t, created)
}

func TestStore_MarkSeen_RepeatIsNoOp(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO dom_notifications_seen").
		WithArgs("n1", "1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := store.MarkSeen(context.Background(), "n1", "1")
	assert.NoError(t, err)
	assert.False(t, created)
}

func TestStore_MarkRead(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO dom_notifications_read").
		WithArgs("n1", "1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := store.MarkRead(context.Background(), "n1", "1")
	assert.NoError(t, err)
	assert.True(t, created)
}

// ==========================
// Lookup Tests
// ==========================

func TestStore_IsRead(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM dom_notifications_read").
		WithArgs("n1", "1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	read, err := store.IsRead(context.Background(), "n1", "1")
	assert.NoError(t, err)
	assert.True(t, read)
}

func TestStore_UnseenCount(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	mock.ExpectQuery("SELECT COUNT\\(DISTINCT n.id\\)").
		WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := store.UnseenCount(context.Background(), "1")
	assert.NoError(t, err)
	assert.Equal(t, 4, count)
}
