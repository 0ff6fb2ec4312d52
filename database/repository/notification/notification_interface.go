package notificationRepo

import (
	"context"
	"time"

	"campushub/models"
)

// UserNotification is a notification joined with the caller's delivery record.
type UserNotification struct {
	Notification models.Notification `json:"notification"`
	IsDelivered  bool                `json:"isDelivered"`
	IsRead       bool                `json:"isRead"`
}

// NotificationRepository persists notifications and recipient delivery
// records. It is the system of record for delivery state; the in-process
// connection registry never is.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id string) (*models.Notification, error)

	// DueForDispatch returns notifications with scheduledFor <= now,
	// sentAt unset and not canceled.
	DueForDispatch(ctx context.Context, now time.Time, limit int64) ([]models.Notification, error)

	// UpcomingWithin returns pending notifications scheduled inside the
	// horizon, used to arm one-shot timers at startup.
	UpcomingWithin(ctx context.Context, now time.Time, horizon time.Duration) ([]models.Notification, error)

	// ClaimForDispatch conditionally sets sentAt where it is still unset and
	// the notification is not canceled. Returns false when another pass (or a
	// cancellation) got there first; the caller must then skip dispatch.
	ClaimForDispatch(ctx context.Context, id string, at time.Time) (bool, error)

	// Cancel marks a notification canceled while sentAt is unset. Returns
	// false when the notification was already dispatched or does not exist.
	Cancel(ctx context.Context, id string) (bool, error)

	// MarkDelivered upserts recipient records with isDelivered set.
	MarkDelivered(ctx context.Context, notificationID string, userIDs []string, at time.Time) error
	// MarkRead flips isRead on one recipient record.
	MarkRead(ctx context.Context, notificationID, userID string, at time.Time) error

	// ListForUser returns the caller's notifications newest-first with their
	// read state.
	ListForUser(ctx context.Context, userID string, limit int64) ([]UserNotification, error)

	// Retention cleanup. Removes notifications past expiresAt or older than
	// the retention window, and their recipient records.
	DeleteExpired(ctx context.Context, now time.Time, retention time.Duration) (int64, error)
}
