package push

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/logger"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/entity"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/notification"
)

// NotificationSource loads stored notifications and renders them for
// display.
type NotificationSource interface {
	LoadByID(ctx context.Context, id string) (*notification.Notification, error)
	RetrieveMessage(ctx context.Context, n *notification.Notification) (string, error)
	RetrieveRedirectURI(ctx context.Context, n *notification.Notification) (string, error)
}

// RecipientSource resolves the recipients of a notification's channel ids
// and their per-channel alert flags.
type RecipientSource interface {
	Recipients(ctx context.Context, channelIDs []string, excludeUserID string) ([]string, error)
	NotifyEnabled(ctx context.Context, pluginID, userID string) (bool, error)
}

// CleanupRunner triggers the retention sweep from the periodic task.
type CleanupRunner interface {
	ExecuteCleanup(ctx context.Context, months int) (bool, error)
}

// Sender delivers one payload to a device token.
type Sender interface {
	Send(ctx context.Context, token string, p Payload) error
}

// WorkerConfig tunes the push worker.
type WorkerConfig struct {
	Concurrency int

	// CleanupSchedule is a cron spec for the retention sweep; empty
	// disables the periodic task.
	CleanupSchedule string

	// KeepMonths is handed to the retention sweep.
	KeepMonths int

	// PushChannels lists the channel plugins whose notifications produce
	// user-visible alerts. Channels outside the list go out silent
	// (data-only). Empty means every channel is user-visible.
	PushChannels []string
}

// Worker consumes push delivery tasks and runs the periodic retention
// sweep. Delivery failures for individual recipients are logged and
// skipped; only a failure to load the notification's recipients retries
// the task.
type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	cfg       WorkerConfig

	notifs     NotificationSource
	recipients RecipientSource
	users      entity.Loader
	badges     *Badges
	gateway    Sender
	cleanup    CleanupRunner
	log        logger.Logger

	// visibleChannels is nil when cfg.PushChannels is empty.
	visibleChannels map[string]bool
}

func NewWorker(
	redisOpt asynq.RedisClientOpt,
	cfg WorkerConfig,
	notifs NotificationSource,
	recipients RecipientSource,
	users entity.Loader,
	badges *Badges,
	gateway Sender,
	cleanup CleanupRunner,
	log logger.Logger,
) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
	})
	var visible map[string]bool
	if len(cfg.PushChannels) > 0 {
		visible = make(map[string]bool, len(cfg.PushChannels))
		for _, plugin := range cfg.PushChannels {
			visible[plugin] = true
		}
	}
	return &Worker{
		server:     server,
		scheduler:  asynq.NewScheduler(redisOpt, nil),
		cfg:        cfg,
		notifs:     notifs,
		recipients: recipients,
		users:      users,
		badges:     badges,
		gateway:    gateway,
		cleanup:    cleanup,
		log:        log,

		visibleChannels: visible,
	}
}

// channelVisible reports whether the channel plugin may produce a
// user-visible alert.
func (w *Worker) channelVisible(pluginID string) bool {
	return w.visibleChannels == nil || w.visibleChannels[pluginID]
}

// Start runs the worker until the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeNotificationPush, w.handleNotificationPush)
	mux.HandleFunc(TaskTypeRetentionCleanup, w.handleRetentionCleanup)

	if w.cfg.CleanupSchedule != "" {
		task := asynq.NewTask(TaskTypeRetentionCleanup, nil)
		if _, err := w.scheduler.Register(w.cfg.CleanupSchedule, task); err != nil {
			return fmt.Errorf("register cleanup schedule: %w", err)
		}
		if err := w.scheduler.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	if err := w.server.Start(mux); err != nil {
		return fmt.Errorf("start push worker: %w", err)
	}
	w.log.Info("Push worker started", nil)

	<-ctx.Done()
	if w.cfg.CleanupSchedule != "" {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	w.log.Info("Push worker stopped", nil)
	return nil
}

func (w *Worker) handleNotificationPush(ctx context.Context, t *asynq.Task) error {
	var payload PushTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal push payload: %w", err)
	}

	n, err := w.notifs.LoadByID(ctx, payload.NotificationID)
	if err != nil {
		// Possibly already retracted by stacking; not worth a retry.
		w.log.WithError(err).Warn("Push task references unloadable notification, dropping", map[string]interface{}{
			"notification_id": payload.NotificationID,
		})
		return nil
	}
	if !n.Published {
		return nil
	}

	recipients, err := w.recipients.Recipients(ctx, n.ChannelIDs, n.OwnerID)
	if err != nil {
		return err
	}

	message, err := w.notifs.RetrieveMessage(ctx, n)
	if err != nil {
		return err
	}
	redirect, err := w.notifs.RetrieveRedirectURI(ctx, n)
	if err != nil {
		w.log.WithError(err).Warn("Redirect resolution failed, sending without destination", nil)
		redirect = ""
	}
	body := StripTags(message)

	for _, uid := range recipients {
		if err := w.sendToRecipient(ctx, n, uid, body, redirect); err != nil {
			w.log.WithError(err).Error("Push delivery to recipient failed", map[string]interface{}{
				"notification_id": n.ID,
				"user_id":         uid,
			})
		}
	}
	return nil
}

func (w *Worker) sendToRecipient(ctx context.Context, n *notification.Notification, userID, body, redirect string) error {
	enabled, err := w.recipients.NotifyEnabled(ctx, n.ChannelPluginID, userID)
	if err != nil {
		return err
	}

	user, err := w.users.LoadUser(ctx, userID)
	if err != nil {
		return err
	}
	token := user.PushToken()
	if token == "" {
		return nil
	}

	w.badges.Invalidate(ctx, userID)
	badge, err := w.badges.Get(ctx, userID)
	if err != nil {
		return err
	}

	// Muted channels and channels outside the push list still get a silent
	// badge update so app icons stay accurate.
	return w.gateway.Send(ctx, token, Payload{
		Body:     body,
		Badge:    badge,
		Redirect: redirect,
		Created:  n.CreatedAt,
		Silent:   !enabled || !w.channelVisible(n.ChannelPluginID),
	})
}

func (w *Worker) handleRetentionCleanup(ctx context.Context, _ *asynq.Task) error {
	ran, err := w.cleanup.ExecuteCleanup(ctx, w.cfg.KeepMonths)
	if err != nil {
		return err
	}
	if !ran {
		w.log.Debug("Retention sweep disabled, skipping", nil)
	}
	return nil
}
