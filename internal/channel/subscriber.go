package channel

import (
	"context"

	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/logger"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/entity"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/subscription"
)

// SubscriptionStore is the persistence surface SubscriptionManager needs.
type SubscriptionStore interface {
	Insert(ctx context.Context, rows []subscription.Row) error
	Delete(ctx context.Context, pluginID string, userIDs []string) error
	DeleteByPlugin(ctx context.Context, pluginID string) error
	Exists(ctx context.Context, pluginID, userID string) (bool, error)
	ListUsersByPlugin(ctx context.Context, pluginID string) ([]string, error)
	ListChannelIDsByPlugin(ctx context.Context, pluginID string) ([]string, error)
	ListPluginsByUser(ctx context.Context, userID string) ([]string, error)
	NotifyEnabled(ctx context.Context, pluginID, userID string) (bool, error)
	SetNotify(ctx context.Context, pluginID, userID string, notify bool) error
}

// NotificationPurger removes notifications addressed to a set of computed
// channel ids. Used when a channel is deleted outright.
type NotificationPurger interface {
	DeleteByChannelIDs(ctx context.Context, channelIDs []string) (int64, error)
}

// CounterPurger drops aggregation counters owned by a channel plugin.
type CounterPurger interface {
	DeleteByPlugin(ctx context.Context, pluginID string) error
}

// SubscriptionManager ties channel behaviors to the subscription store. It
// computes concrete channel ids per user before writing rows, so derived
// channels store their per-recipient ids rather than the base id.
type SubscriptionManager struct {
	reg      *Registry
	store    SubscriptionStore
	users    entity.Loader
	notifs   NotificationPurger
	counters CounterPurger
	log      logger.Logger
}

func NewSubscriptionManager(
	reg *Registry,
	store SubscriptionStore,
	users entity.Loader,
	notifs NotificationPurger,
	counters CounterPurger,
	log logger.Logger,
) *SubscriptionManager {
	return &SubscriptionManager{
		reg:      reg,
		store:    store,
		users:    users,
		notifs:   notifs,
		counters: counters,
		log:      log,
	}
}

// SubscribedUsers returns the ids of users subscribed to the channel plugin.
func (m *SubscriptionManager) SubscribedUsers(ctx context.Context, pluginID string) ([]string, error) {
	if _, err := m.reg.Resolve(pluginID); err != nil {
		return nil, err
	}
	return m.store.ListUsersByPlugin(ctx, pluginID)
}

// IsSubscribed reports whether the user has any subscription row for the
// channel plugin.
func (m *SubscriptionManager) IsSubscribed(ctx context.Context, pluginID, userID string) (bool, error) {
	if _, err := m.reg.Resolve(pluginID); err != nil {
		return false, err
	}
	return m.store.Exists(ctx, pluginID, userID)
}

// Subscribe adds subscription rows for the given users. For computed
// channels each user's concrete channel ids are derived from the behavior;
// users for whom no id can be computed are skipped. Already subscribed
// users are left untouched.
func (m *SubscriptionManager) Subscribe(ctx context.Context, pluginID string, userIDs []string) error {
	b, err := m.reg.Resolve(pluginID)
	if err != nil {
		return err
	}

	var rows []subscription.Row
	for _, uid := range userIDs {
		ids := []string{b.ID()}
		if b.IsComputed() {
			user, err := m.users.LoadUser(ctx, uid)
			if err != nil {
				m.log.WithError(err).Warn("Skipping subscription for unloadable user", map[string]interface{}{
					"user_id": uid,
					"channel": pluginID,
				})
				continue
			}
			ids = b.ComputedChannelIDs(Context{Recipient: user})
			if len(ids) == 0 {
				continue
			}
		}
		for _, id := range ids {
			rows = append(rows, subscription.Row{
				UserID:          uid,
				ChannelID:       id,
				ChannelPluginID: pluginID,
				Notify:          true,
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return m.store.Insert(ctx, rows)
}

// Unsubscribe removes the users' subscription rows for the channel plugin.
func (m *SubscriptionManager) Unsubscribe(ctx context.Context, pluginID string, userIDs []string) error {
	if _, err := m.reg.Resolve(pluginID); err != nil {
		return err
	}
	return m.store.Delete(ctx, pluginID, userIDs)
}

// AlertsEnabled reports the user's push alert flag on the channel plugin.
func (m *SubscriptionManager) AlertsEnabled(ctx context.Context, pluginID, userID string) (bool, error) {
	if _, err := m.reg.Resolve(pluginID); err != nil {
		return false, err
	}
	return m.store.NotifyEnabled(ctx, pluginID, userID)
}

// SetAlertStatus flips the push alert flag for the user on the channel
// plugin and on every channel derived from it, so muting a parent silences
// its children too.
func (m *SubscriptionManager) SetAlertStatus(ctx context.Context, pluginID, userID string, enabled bool) error {
	b, err := m.reg.Resolve(pluginID)
	if err != nil {
		return err
	}
	if !b.IsMuteAllowed() {
		return nil
	}
	if err := m.store.SetNotify(ctx, pluginID, userID, enabled); err != nil {
		return err
	}
	for _, child := range m.reg.DerivedFrom(b.BaseID()) {
		if child.ID() == pluginID {
			continue
		}
		if err := m.store.SetNotify(ctx, child.ID(), userID, enabled); err != nil {
			return err
		}
	}
	return nil
}

// DeleteChannel removes everything tied to a channel plugin: the
// notifications addressed to its computed channel ids, its aggregation
// counters, and finally its subscription rows.
func (m *SubscriptionManager) DeleteChannel(ctx context.Context, pluginID string) error {
	if _, err := m.reg.Resolve(pluginID); err != nil {
		return err
	}

	channelIDs, err := m.store.ListChannelIDsByPlugin(ctx, pluginID)
	if err != nil {
		return err
	}
	if len(channelIDs) > 0 {
		deleted, err := m.notifs.DeleteByChannelIDs(ctx, channelIDs)
		if err != nil {
			return err
		}
		m.log.Info("Removed notifications of deleted channel", map[string]interface{}{
			"channel": pluginID,
			"deleted": deleted,
		})
	}
	if err := m.counters.DeleteByPlugin(ctx, pluginID); err != nil {
		return err
	}
	return m.store.DeleteByPlugin(ctx, pluginID)
}

// UserChannels lists the channel plugin ids a user is subscribed to.
func (m *SubscriptionManager) UserChannels(ctx context.Context, userID string) ([]string, error) {
	return m.store.ListPluginsByUser(ctx, userID)
}
