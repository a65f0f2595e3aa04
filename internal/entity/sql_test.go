package entity

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func newTestLoader(t *testing.T) (*SQLLoader, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	return NewSQLLoader(db, ""), mock, func() { db.Close() }
}

func TestSQLLoader_LoadUser(t *testing.T) {
	loader, mock, cleanup := newTestLoader(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT id, display_name, COALESCE\("push_token", ''\) FROM users`).
		WithArgs("7").
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "push_token"}).
			AddRow("7", "Alice", "arn:device"))

	u, err := loader.LoadUser(context.Background(), "7")
	assert.NoError(t, err)
	assert.Equal(t, "7", u.EntityID())
	assert.Equal(t, "user", u.EntityTypeID())
	assert.Equal(t, "Alice", u.DisplayName())
	assert.Equal(t, "arn:device", u.PushToken())
	assert.Equal(t, "/user/7", u.URL())
	assert.Equal(t, "7", u.OwnerID(), "users own themselves")
}

func TestSQLLoader_LoadUser_NotFound(t *testing.T) {
	loader, mock, cleanup := newTestLoader(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, display_name").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "push_token"}))

	_, err := loader.LoadUser(context.Background(), "missing")
	assert.Error(t, err)
}

func TestSQLLoader_CustomTokenColumn(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	loader := NewSQLLoader(db, "device_arn")

	mock.ExpectQuery(`COALESCE\("device_arn", ''\)`).
		WithArgs("7").
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "device_arn"}).
			AddRow("7", "Alice", ""))

	u, err := loader.LoadUser(context.Background(), "7")
	assert.NoError(t, err)
	assert.Empty(t, u.PushToken())
}

func TestSQLLoader_Load_DispatchesUsers(t *testing.T) {
	loader, mock, cleanup := newTestLoader(t)
	defer cleanup()

	mock.ExpectQuery("FROM users").
		WithArgs("7").
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "push_token"}).
			AddRow("7", "Alice", ""))

	e, err := loader.Load(context.Background(), "user", "7")
	assert.NoError(t, err)
	_, isUser := e.(User)
	assert.True(t, isUser)
}

func TestSQLLoader_Load_GenericEntity(t *testing.T) {
	loader, mock, cleanup := newTestLoader(t)
	defer cleanup()

	mock.ExpectQuery("SELECT owner_uid FROM entities").
		WithArgs("post", "9").
		WillReturnRows(sqlmock.NewRows([]string{"owner_uid"}).AddRow("7"))

	e, err := loader.Load(context.Background(), "post", "9")
	assert.NoError(t, err)
	assert.Equal(t, "post", e.EntityTypeID())
	assert.Equal(t, "/post/9", e.URL())
	assert.Equal(t, "7", e.OwnerID())
}

func TestSQLLoader_LoadUsers(t *testing.T) {
	loader, mock, cleanup := newTestLoader(t)
	defer cleanup()

	mock.ExpectQuery("FROM users WHERE id = ANY").
		WithArgs(pq.Array([]string{"7", "8"})).
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "push_token"}).
			AddRow("7", "Alice", "arn:7").
			AddRow("8", "Bob", ""))

	users, err := loader.LoadUsers(context.Background(), []string{"7", "8"})
	assert.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, "Bob", users[1].DisplayName())
}
