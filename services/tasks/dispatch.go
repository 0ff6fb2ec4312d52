package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// TypeNotificationDispatch is the asynq task type for an armed one-shot
// scheduled dispatch.
const TypeNotificationDispatch = "notification:dispatch"

// DispatchPayload carries only the notification ID; the handler re-reads the
// row and goes through the dispatch claim, so a stale task is harmless.
type DispatchPayload struct {
	NotificationID string `json:"notificationId"`
}

func NewDispatchTask(notificationID string, fireAt time.Time) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(DispatchPayload{NotificationID: notificationID})
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeNotificationDispatch, b)
	opts := []asynq.Option{asynq.ProcessAt(fireAt)}

	return task, opts, nil
}
