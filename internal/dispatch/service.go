// Package dispatch creates notifications and reads them back on behalf of
// users. It is the module's front door: channel resolution, recipient
// context, channel hooks and persistence all happen behind AddNotification.
package dispatch

import (
	"context"
	"time"

	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/channel"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/entity"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/notification"
)

// AddRequest carries everything a caller can say about a notification to
// be created. Only ChannelID is always required; channels decide what else
// they need.
type AddRequest struct {
	// ChannelID is the channel plugin id to dispatch on.
	ChannelID string

	// Message overrides the channel's default message when non-empty.
	Message string

	// RelatedEntity is the entity the notification is about, if any.
	RelatedEntity entity.Entity

	// RedirectURI is an explicit redirect target. Mutually exclusive with
	// RelatedEntity as a redirect source; the channel arbitrates at read
	// time.
	RedirectURI string

	// Recipient is the addressed user, required by individual channels.
	Recipient entity.User

	// SenderID explicitly names the notification owner. When empty the
	// owner falls back to the related entity's owner, then to CurrentUserID.
	SenderID string

	// CurrentUserID is the acting user, the owner of last resort.
	CurrentUserID string

	// StackSize seeds the aggregate counter shown by @count placeholders.
	// Zero means a plain, unstacked notification.
	StackSize int
}

// Service is the notification dispatch surface.
type Service interface {
	// AddNotification creates and persists a notification on a channel.
	// A (nil, nil) return means the channel declined: either no channel id
	// could be computed from the request context, or a channel hook vetoed
	// the save. Both are normal outcomes, not errors.
	AddNotification(ctx context.Context, req AddRequest) (*notification.Notification, error)

	// FetchNotifications returns the user's notification feed, newest first.
	FetchNotifications(ctx context.Context, userID string, f notification.Filters) ([]*notification.Notification, error)

	// RetrieveMessage renders the notification's message with the channel's
	// placeholder providers applied.
	RetrieveMessage(ctx context.Context, n *notification.Notification) (string, error)

	// RetrieveRedirectURI resolves the notification's redirect target. An
	// empty result is valid; clients treat it as "no destination".
	RetrieveRedirectURI(ctx context.Context, n *notification.Notification) (string, error)

	// ExecuteCleanup deletes notifications older than the retention period.
	// Returns whether anything ran; months <= 0 disables cleanup.
	ExecuteCleanup(ctx context.Context, months int) (bool, error)

	// Registry exposes the channel behaviors for wiring and introspection.
	Registry() *channel.Registry
}

// Clock returns the current time. Injected for tests.
type Clock func() time.Time
