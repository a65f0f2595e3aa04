package stacking

import (
	"context"

	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/channel"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/config"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/logger"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/metrics"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/dispatch"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/entity"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/notification"
)

// Counter is the counter storage the decorator increments.
type Counter interface {
	Increment(ctx context.Context, k Key, threshold int) (Result, error)
	Decrement(ctx context.Context, k Key, by int) error
}

// Unpublisher retracts a previously published aggregate notification.
type Unpublisher interface {
	UnpublishByChannelStack(ctx context.Context, channelIDs []string, stackSize int) (int64, error)
}

// Service decorates a dispatch service with aggregation. Channels with a
// configured stack threshold fold their events into the counter; only the
// increment completing a window produces a notification, carrying the
// cumulative event total as its stack size. Channels without stacking
// config pass through untouched.
type Service struct {
	inner    dispatch.Service
	counters Counter
	notifs   Unpublisher
	channels map[string]config.StackChannelConfig
	log      logger.Logger
}

// compile-time interface check
var _ dispatch.Service = (*Service)(nil)

func NewService(
	inner dispatch.Service,
	counters Counter,
	notifs Unpublisher,
	cfg config.StackingConfig,
	log logger.Logger,
) *Service {
	return &Service{
		inner:    inner,
		counters: counters,
		notifs:   notifs,
		channels: cfg.ByPlugin(),
		log:      log,
	}
}

// AddNotification folds the request into the channel's aggregation counter
// when stacking applies. Non-emitting increments return (nil, nil): the
// event is counted but nothing is persisted. An emitting increment creates
// the aggregate through the inner service and retracts the previous
// window's aggregate if one is still published.
func (s *Service) AddNotification(ctx context.Context, req dispatch.AddRequest) (*notification.Notification, error) {
	cfg, ok := s.channels[req.ChannelID]
	if !ok || cfg.Stack < 2 {
		return s.inner.AddNotification(ctx, req)
	}

	b, err := s.inner.Registry().Resolve(req.ChannelID)
	if err != nil {
		return nil, err
	}
	rc := channel.Context{Recipient: req.Recipient, Entity: req.RelatedEntity}
	channelIDs := b.ComputedChannelIDs(rc)
	if len(channelIDs) == 0 {
		return nil, nil
	}

	key := s.counterKey(b, req, channelIDs[0])
	res, err := s.counters.Increment(ctx, key, cfg.Stack)
	if err != nil {
		return nil, err
	}

	if !res.Emit {
		metrics.StackFolded.WithLabelValues(req.ChannelID).Inc()
		s.log.Debug("Event folded into aggregation counter", map[string]interface{}{
			"channel":      req.ChannelID,
			"window_count": res.WindowCount,
			"total":        res.Total,
		})
		return nil, nil
	}
	metrics.StackEmitted.WithLabelValues(req.ChannelID).Inc()

	aggregate := req
	aggregate.StackSize = res.Total
	if cfg.Message != "" {
		aggregate.Message = cfg.Message
	}
	if cfg.URI != "" {
		// Aggregates redirect to the configured overview, not to the last
		// folded entity.
		aggregate.RedirectURI = cfg.URI
		aggregate.RelatedEntity = nil
	}

	n, err := s.inner.AddNotification(ctx, aggregate)
	if err != nil || n == nil {
		return n, err
	}

	if res.Total > cfg.Stack {
		previous := res.Total - cfg.Stack
		retracted, err := s.notifs.UnpublishByChannelStack(ctx, n.ChannelIDs, previous)
		if err != nil {
			s.log.WithError(err).Error("Failed to retract previous aggregate", map[string]interface{}{
				"channel":    req.ChannelID,
				"stack_size": previous,
			})
		} else if retracted > 0 {
			s.log.Info("Retracted previous aggregate notification", map[string]interface{}{
				"channel":    req.ChannelID,
				"stack_size": previous,
				"retracted":  retracted,
			})
		}
	}
	return n, nil
}

// counterKey derives the aggregation key. The channel may nominate a
// different entity to aggregate on than the one the notification is about.
func (s *Service) counterKey(b channel.Behavior, req dispatch.AddRequest, channelID string) Key {
	probe := &notification.Notification{ChannelPluginID: req.ChannelID}
	probe.SetRelatedEntity(req.RelatedEntity)

	ent := b.StackRelatedEntity(probe)
	if ent == nil {
		ent = req.RelatedEntity
	}
	k := Key{PluginID: req.ChannelID, ChannelID: channelID}
	if ent != nil {
		k.EntityType = ent.EntityTypeID()
		k.EntityID = ent.EntityID()
	}
	return k
}

// OnNotificationRead is a status observer: reading a published aggregate
// walks its events out of the cumulative total, so the next aggregate only
// forms after a full window of fresh events.
func (s *Service) OnNotificationRead(ctx context.Context, n *notification.Notification, userID string) error {
	if !n.Published || n.StackSize == 0 {
		return nil
	}
	if _, ok := s.channels[n.ChannelPluginID]; !ok {
		return nil
	}
	if len(n.ChannelIDs) == 0 {
		return nil
	}
	k := Key{
		PluginID:  n.ChannelPluginID,
		ChannelID: n.ChannelIDs[0],
	}
	// The key must match the one the increment path used, which lets the
	// channel nominate a different entity to aggregate on.
	var ent entity.Entity
	if b, err := s.inner.Registry().Resolve(n.ChannelPluginID); err == nil {
		ent = b.StackRelatedEntity(n)
	}
	if ent != nil {
		k.EntityType = ent.EntityTypeID()
		k.EntityID = ent.EntityID()
	} else if n.HasRelatedEntity() {
		k.EntityType = n.RelatedType
		k.EntityID = n.RelatedID
	}
	return s.counters.Decrement(ctx, k, n.StackSize)
}

func (s *Service) FetchNotifications(ctx context.Context, userID string, f notification.Filters) ([]*notification.Notification, error) {
	return s.inner.FetchNotifications(ctx, userID, f)
}

func (s *Service) RetrieveMessage(ctx context.Context, n *notification.Notification) (string, error) {
	return s.inner.RetrieveMessage(ctx, n)
}

func (s *Service) RetrieveRedirectURI(ctx context.Context, n *notification.Notification) (string, error) {
	return s.inner.RetrieveRedirectURI(ctx, n)
}

func (s *Service) ExecuteCleanup(ctx context.Context, months int) (bool, error) {
	return s.inner.ExecuteCleanup(ctx, months)
}

func (s *Service) Registry() *channel.Registry {
	return s.inner.Registry()
}
