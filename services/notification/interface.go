package notification

import (
	"context"
	"time"

	notificationRepo "campushub/database/repository/notification"
	"campushub/models"
)

// NotificationService is the dispatch/queueing/delivery engine. Producers
// (REST layer, scheduler sweeps) construct a notification and hand it to
// Publish; everything downstream of audience resolution is owned here.
type NotificationService interface {
	// Publish renders, persists and — unless scheduled for the future —
	// resolves the audience and dispatches immediately.
	Publish(ctx context.Context, n *models.Notification) (*models.DispatchResult, error)

	// Dispatch fans a notification out to the resolved recipients: all live
	// connections per user, offline queue otherwise. Per-recipient and
	// per-connection failures are contained.
	Dispatch(ctx context.Context, n *models.Notification, recipients []string) models.DispatchResult

	// Cancel prevents a scheduled notification from ever dispatching.
	// Fails once sentAt is set.
	Cancel(ctx context.Context, id string) error

	MarkRead(ctx context.Context, notificationID, userID string, at time.Time) error
	ListForUser(ctx context.Context, userID string, limit int64) ([]notificationRepo.UserNotification, error)
}

// Armer arms a one-shot timer for a near-term scheduled notification, as a
// latency optimization below the due-scan's polling granularity. The
// dispatch claim keeps an armed timer idempotent and cancellable.
type Armer interface {
	Arm(n *models.Notification) error
}
