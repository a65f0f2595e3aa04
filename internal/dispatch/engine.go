package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/channel"
	domerrors "github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/errors"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/logger"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/metrics"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/entity"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/notification"
)

// NotificationStore is the persistence surface the engine writes through.
type NotificationStore interface {
	Create(ctx context.Context, n *notification.Notification) error
	LoadByID(ctx context.Context, id string) (*notification.Notification, error)
	ListForUser(ctx context.Context, userID string, f notification.Filters) ([]*notification.Notification, error)
}

// CleanupRunner removes notifications past the retention period.
type CleanupRunner interface {
	ExecuteCleanup(ctx context.Context, months int) (bool, error)
}

// PushEnqueuer hands a freshly created notification to the push pipeline.
// Enqueue failures never fail the dispatch.
type PushEnqueuer interface {
	EnqueueNotificationPush(ctx context.Context, notificationID string) error
}

// Engine is the default Service implementation.
type Engine struct {
	reg      *channel.Registry
	store    NotificationStore
	entities entity.Loader
	cleanup  CleanupRunner
	push     PushEnqueuer
	clock    Clock
	newID    func() string
	log      logger.Logger
}

// EngineOption tweaks engine construction.
type EngineOption func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithIDGenerator overrides notification id generation.
func WithIDGenerator(fn func() string) EngineOption {
	return func(e *Engine) { e.newID = fn }
}

// WithPushEnqueuer wires the push pipeline. Without it dispatch skips
// enqueueing entirely.
func WithPushEnqueuer(p PushEnqueuer) EngineOption {
	return func(e *Engine) { e.push = p }
}

func NewEngine(
	reg *channel.Registry,
	store NotificationStore,
	entities entity.Loader,
	cleanup CleanupRunner,
	log logger.Logger,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		reg:      reg,
		store:    store,
		entities: entities,
		cleanup:  cleanup,
		clock:    time.Now,
		newID:    uuid.NewString,
		log:      log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Registry() *channel.Registry { return e.reg }

// AddNotification resolves the channel, computes the concrete channel ids
// from the request context, runs the channel's save hook and persists the
// result. See Service for the (nil, nil) decline semantics.
func (e *Engine) AddNotification(ctx context.Context, req AddRequest) (*notification.Notification, error) {
	start := e.clock()

	b, err := e.reg.Resolve(req.ChannelID)
	if err != nil {
		return nil, err
	}

	rc := channel.Context{Recipient: req.Recipient, Entity: req.RelatedEntity}
	channelIDs := b.ComputedChannelIDs(rc)
	if len(channelIDs) == 0 {
		e.log.Debug("No channel ids computable from request context, declining", map[string]interface{}{
			"channel": b.ID(),
		})
		return nil, nil
	}

	now := e.clock()
	n := &notification.Notification{
		ID:              e.newID(),
		ChannelPluginID: b.ID(),
		ChannelIDs:      channelIDs,
		Message:         req.Message,
		RedirectURI:     req.RedirectURI,
		OwnerID:         e.ownerID(req),
		Published:       true,
		StackSize:       req.StackSize,
		CreatedAt:       now,
		ChangedAt:       now,
	}
	n.SetRelatedEntity(req.RelatedEntity)

	n = b.OnNotificationSave(n)
	if n == nil {
		metrics.NotificationsVetoed.WithLabelValues(b.ID()).Inc()
		e.log.Debug("Channel save hook vetoed notification", map[string]interface{}{
			"channel": b.ID(),
		})
		return nil, nil
	}

	if n.Message == "" {
		return nil, domerrors.NewMissingMessageError(b.ID())
	}
	if n.RedirectURI == "" && !n.HasRelatedEntity() {
		return nil, domerrors.NewMissingRedirectTargetError(b.ID())
	}

	if err := e.store.Create(ctx, n); err != nil {
		return nil, err
	}

	metrics.NotificationsCreated.WithLabelValues(b.ID()).Inc()
	metrics.DispatchDuration.WithLabelValues(b.ID()).Observe(e.clock().Sub(start).Seconds())

	if e.push != nil {
		if err := e.push.EnqueueNotificationPush(ctx, n.ID); err != nil {
			e.log.WithError(err).Warn("Failed to enqueue push delivery", map[string]interface{}{
				"notification_id": n.ID,
			})
		}
	}

	e.log.Info("Notification created", map[string]interface{}{
		"notification_id": n.ID,
		"channel":         b.ID(),
		"channel_ids":     len(channelIDs),
	})
	return n, nil
}

// ownerID picks the notification owner: explicit sender first, then the
// related entity's owner, then the acting user.
func (e *Engine) ownerID(req AddRequest) string {
	if req.SenderID != "" {
		return req.SenderID
	}
	if req.RelatedEntity != nil {
		if owner := req.RelatedEntity.OwnerID(); owner != "" {
			return owner
		}
	}
	return req.CurrentUserID
}

func (e *Engine) FetchNotifications(ctx context.Context, userID string, f notification.Filters) ([]*notification.Notification, error) {
	return e.store.ListForUser(ctx, userID, f)
}

// RetrieveMessage renders the message with every placeholder provider of
// the notification's channel applied.
func (e *Engine) RetrieveMessage(ctx context.Context, n *notification.Notification) (string, error) {
	b, err := e.resolveForNotification(n)
	if err != nil {
		return "", err
	}
	providers := b.PlaceholderProviders()
	if len(providers) == 0 {
		return n.Message, nil
	}
	pairs := make([]string, 0, len(providers)*2)
	for placeholder, provide := range providers {
		pairs = append(pairs, placeholder, provide(n))
	}
	return strings.NewReplacer(pairs...).Replace(n.Message), nil
}

// RetrieveRedirectURI resolves the redirect target. Channels flagged to use
// their related entity's URI resolve the entity first; the stored URI is
// the fallback. The channel gets the last word through its redirect hook.
func (e *Engine) RetrieveRedirectURI(ctx context.Context, n *notification.Notification) (string, error) {
	b, err := e.resolveForNotification(n)
	if err != nil {
		return "", err
	}

	uri := n.RedirectURI
	if b.UseEntityURI() && n.HasRelatedEntity() {
		related := n.RelatedEntity()
		if related == nil {
			related, err = e.entities.Load(ctx, n.RelatedType, n.RelatedID)
			if err != nil {
				e.log.WithError(err).Warn("Related entity not loadable, falling back to stored URI", map[string]interface{}{
					"notification_id": n.ID,
					"entity_type":     n.RelatedType,
					"entity_id":       n.RelatedID,
				})
				related = nil
			} else {
				n.SetRelatedEntity(related)
			}
		}
		if related != nil {
			uri = related.URL()
		}
	}
	return b.AlterRedirectURI(n, uri), nil
}

func (e *Engine) ExecuteCleanup(ctx context.Context, months int) (bool, error) {
	return e.cleanup.ExecuteCleanup(ctx, months)
}

// resolveForNotification resolves the behavior of a stored notification.
// Rows written before channel plugin ids were stored carry only computed
// channel ids, so resolution falls back to walking those.
func (e *Engine) resolveForNotification(n *notification.Notification) (channel.Behavior, error) {
	if n.ChannelPluginID != "" {
		return e.reg.Resolve(n.ChannelPluginID)
	}
	for _, id := range n.ChannelIDs {
		pluginID, err := e.reg.ResolveDefinitionFromComputedID(id)
		if err != nil {
			continue
		}
		return e.reg.Resolve(pluginID)
	}
	return nil, domerrors.NewAmbiguousChannelError(strings.Join(n.ChannelIDs, ","))
}
