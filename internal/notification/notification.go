package notification

import (
	"time"

	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/entity"
)

// Notification is a single persisted notification. A notification targets one
// or more computed channel ids; the users subscribed to those ids are its
// recipients.
type Notification struct {
	ID              string    `json:"id"`
	ChannelPluginID string    `json:"channelPluginId"`
	ChannelIDs      []string  `json:"channelIds"`
	Message         string    `json:"message"`
	RedirectURI     string    `json:"redirectUri,omitempty"`
	RelatedType     string    `json:"relatedEntityType,omitempty"`
	RelatedID       string    `json:"relatedEntityId,omitempty"`
	OwnerID         string    `json:"ownerId"`
	Published       bool      `json:"published"`
	StackSize       int       `json:"stackSize"`
	CreatedAt       time.Time `json:"createdAt"`
	ChangedAt       time.Time `json:"changedAt"`

	// related caches the resolved related entity for the lifetime of this
	// in-memory object. Not persisted.
	related entity.Entity
}

// SetRelatedEntity records the entity this notification is about. The stored
// redirect URI and the related entity are mutually exclusive redirect
// targets; which one wins is decided at read time by the channel.
func (n *Notification) SetRelatedEntity(e entity.Entity) {
	if e == nil {
		n.RelatedType = ""
		n.RelatedID = ""
		n.related = nil
		return
	}
	n.RelatedType = e.EntityTypeID()
	n.RelatedID = e.EntityID()
	n.related = e
}

// RelatedEntity returns the cached related entity if one was attached in
// memory. Callers needing the entity for a loaded row resolve it through an
// entity.Loader using RelatedType and RelatedID.
func (n *Notification) RelatedEntity() entity.Entity {
	return n.related
}

// HasRelatedEntity reports whether a related entity reference is stored.
func (n *Notification) HasRelatedEntity() bool {
	return n.RelatedType != "" && n.RelatedID != ""
}

// Filters narrows a user's notification feed.
type Filters struct {
	ChannelPluginID string
	OnlyPublished   bool
	OnlyUnseen      bool
	OnlyUnread      bool
	Limit           int
	Offset          int
}
