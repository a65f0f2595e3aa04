package status

import (
	"context"

	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/logger"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/notification"
)

// NotificationLoader loads a notification by id for observer callbacks.
type NotificationLoader interface {
	LoadByID(ctx context.Context, id string) (*notification.Notification, error)
}

// Observer reacts to a status transition of one notification for one user.
// Observers run after the mark is persisted; their errors are logged, not
// propagated, so a failing observer never undoes the mark.
type Observer func(ctx context.Context, n *notification.Notification, userID string) error

// Service layers transition observers on top of the mark store. Marking is
// idempotent end to end: observers fire only on the first transition.
type Service struct {
	store         *Store
	notifications NotificationLoader
	log           logger.Logger

	readObservers []Observer
	seenObservers []Observer
}

func NewService(store *Store, notifications NotificationLoader, log logger.Logger) *Service {
	return &Service{
		store:         store,
		notifications: notifications,
		log:           log,
	}
}

// RegisterReadObserver adds a callback fired when a notification first
// becomes read for a user. Registration happens during wiring, before the
// service handles traffic.
func (s *Service) RegisterReadObserver(o Observer) {
	s.readObservers = append(s.readObservers, o)
}

// RegisterSeenObserver adds a callback fired when a notification first
// becomes seen for a user.
func (s *Service) RegisterSeenObserver(o Observer) {
	s.seenObservers = append(s.seenObservers, o)
}

// MarkSeen marks the notification seen for the user and fires seen
// observers on first transition.
func (s *Service) MarkSeen(ctx context.Context, notificationID, userID string) error {
	created, err := s.store.MarkSeen(ctx, notificationID, userID)
	if err != nil {
		return err
	}
	if created {
		s.notify(ctx, s.seenObservers, notificationID, userID, "seen")
	}
	return nil
}

// MarkRead marks the notification read for the user and fires read
// observers on first transition.
func (s *Service) MarkRead(ctx context.Context, notificationID, userID string) error {
	created, err := s.store.MarkRead(ctx, notificationID, userID)
	if err != nil {
		return err
	}
	if created {
		s.notify(ctx, s.readObservers, notificationID, userID, "read")
	}
	return nil
}

// IsSeen reports whether the user has seen the notification.
func (s *Service) IsSeen(ctx context.Context, notificationID, userID string) (bool, error) {
	return s.store.IsSeen(ctx, notificationID, userID)
}

// IsRead reports whether the user has read the notification.
func (s *Service) IsRead(ctx context.Context, notificationID, userID string) (bool, error) {
	return s.store.IsRead(ctx, notificationID, userID)
}

// UnseenCount returns the user's unseen badge count.
func (s *Service) UnseenCount(ctx context.Context, userID string) (int, error) {
	return s.store.UnseenCount(ctx, userID)
}

func (s *Service) notify(ctx context.Context, observers []Observer, notificationID, userID, transition string) {
	if len(observers) == 0 {
		return
	}
	n, err := s.notifications.LoadByID(ctx, notificationID)
	if err != nil {
		s.log.WithError(err).Warn("Skipping status observers, notification not loadable", map[string]interface{}{
			"notification_id": notificationID,
			"transition":      transition,
		})
		return
	}
	for _, o := range observers {
		if err := o(ctx, n, userID); err != nil {
			s.log.WithError(err).Error("Status observer failed", map[string]interface{}{
				"notification_id": notificationID,
				"user_id":         userID,
				"transition":      transition,
			})
		}
	}
}
