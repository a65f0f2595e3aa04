// Package entity defines the contracts this module consumes from the host
// framework's persistence layer. The module never owns user or content
// storage; it only resolves references handed to it.
package entity

import "context"

// Entity is a reference to any persisted object of the host framework.
type Entity interface {
	EntityTypeID() string
	EntityID() string

	// OwnerID returns the id of the user owning the entity, or "" when the
	// entity type has no owner concept.
	OwnerID() string

	// URL returns the canonical URL of the entity, used for notifications on
	// channels that redirect to their related entity.
	URL() string
}

// User is an account entity.
type User interface {
	Entity

	DisplayName() string

	// PushToken returns the registered mobile push token, or "" when the user
	// has no registered device.
	PushToken() string
}

// Loader resolves entity references against the host framework storage.
type Loader interface {
	Load(ctx context.Context, entityType, id string) (Entity, error)
	LoadUser(ctx context.Context, id string) (User, error)
	LoadUsers(ctx context.Context, ids []string) ([]User, error)
}
