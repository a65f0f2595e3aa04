package push

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/logger"
)

const (
	// TaskTypeNotificationPush delivers one notification to its recipients'
	// devices.
	TaskTypeNotificationPush = "notification:push"

	// TaskTypeRetentionCleanup is the periodic sweep of expired
	// notifications.
	TaskTypeRetentionCleanup = "notification:cleanup"
)

// PushTaskPayload identifies the notification to deliver.
type PushTaskPayload struct {
	NotificationID string `json:"notification_id"`
}

// Enqueuer hands push deliveries to the asynq queue.
type Enqueuer struct {
	client *asynq.Client
	log    logger.Logger
}

func NewEnqueuer(redisOpt asynq.RedisClientOpt, log logger.Logger) *Enqueuer {
	return &Enqueuer{client: asynq.NewClient(redisOpt), log: log}
}

// EnqueueNotificationPush queues delivery of a notification to its
// recipients.
func (e *Enqueuer) EnqueueNotificationPush(ctx context.Context, notificationID string) error {
	payload, err := json.Marshal(PushTaskPayload{NotificationID: notificationID})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskTypeNotificationPush, payload)
	info, err := e.client.Enqueue(task,
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return err
	}
	e.log.Debug("Push delivery enqueued", map[string]interface{}{
		"task_id":         info.ID,
		"notification_id": notificationID,
	})
	return nil
}

func (e *Enqueuer) Close() error {
	return e.client.Close()
}
