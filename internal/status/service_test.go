package status

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/logger"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/notification"
)

type fakeLoader struct {
	notification *notification.Notification
	err          error
}

func (f *fakeLoader) LoadByID(ctx context.Context, id string) (*notification.Notification, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.notification, nil
}

func newTestService(t *testing.T, loader NotificationLoader) (*Service, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	svc := NewService(NewStore(db), loader, logger.NewNoOpLogger())
	return svc, mock, func() { db.Close() }
}

// ==========================
// Observer Tests
// ==========================

func TestService_MarkRead_FiresObserverOnFirstTransition(t *testing.T) {
	n := &notification.Notification{ID: "n1", Published: true}
	svc, mock, cleanup := newTestService(t, &fakeLoader{notification: n})
	defer cleanup()

	var gotUser string
	var gotNotification *notification.Notification
	svc.RegisterReadObserver(func(ctx context.Context, n *notification.Notification, userID string) error {
		gotNotification = n
		gotUser = userID
		return nil
	})

	mock.ExpectExec("INSERT INTO dom_notifications_read").
		WithArgs("n1", "5").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, svc.MarkRead(context.Background(), "n1", "5"))
	assert.Equal(t, n, gotNotification)
	assert.Equal(t, "5", gotUser)
}

func TestService_MarkRead_RepeatSkipsObservers(t *testing.T) {
	svc, mock, cleanup := newTestService(t, &fakeLoader{})
	defer cleanup()

	calls := 0
	svc.RegisterReadObserver(func(ctx context.Context, n *notification.Notification, userID string) error {
		calls++
		return nil
	})

	mock.ExpectExec("INSERT INTO dom_notifications_read").
		WithArgs("n1", "5").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, svc.MarkRead(context.Background(), "n1", "5"))
	assert.Zero(t, calls)
}

func TestService_MarkSeen_ObserverErrorIsNotPropagated(t *testing.T) {
	n := &notification.Notification{ID: "n1"}
	svc, mock, cleanup := newTestService(t, &fakeLoader{notification: n})
	defer cleanup()

	svc.RegisterSeenObserver(func(ctx context.Context, n *notification.Notification, userID string) error {
		return errors.New("observer exploded")
	})

	mock.ExpectExec("INSERT INTO dom_notifications_seen").
		WithArgs("n1", "5").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, svc.MarkSeen(context.Background(), "n1", "5"))
}

func TestService_MarkSeen_UnloadableNotificationSkipsObservers(t *testing.T) {
	svc, mock, cleanup := newTestService(t, &fakeLoader{err: errors.New("gone")})
	defer cleanup()

	calls := 0
	svc.RegisterSeenObserver(func(ctx context.Context, n *notification.Notification, userID string) error {
		calls++
		return nil
	})

	mock.ExpectExec("INSERT INTO dom_notifications_seen").
		WithArgs("n1", "5").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, svc.MarkSeen(context.Background(), "n1", "5"))
	assert.Zero(t, calls)
}

func TestService_MarkRead_StoreErrorPropagates(t *testing.T) {
	svc, mock, cleanup := newTestService(t, &fakeLoader{})
	defer cleanup()

	mock.ExpectExec("INSERT INTO dom_notifications_read").
		WithArgs("n1", "5").
		WillReturnError(errors.New("deadlock"))

	err := svc.MarkRead(context.Background(), "n1", "5")
	assert.Error(t, err)
}
