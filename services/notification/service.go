package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	notificationRepo "campushub/database/repository/notification"
	userRepo "campushub/database/repository/user"
	"campushub/models"
	"campushub/realtime"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// dispatchConcurrency bounds how many recipients are processed in flight at
// once. Dispatch to one user never blocks dispatch to another.
const dispatchConcurrency = 16

// armHorizon is how far ahead a scheduled notification is worth a dedicated
// one-shot timer instead of waiting for the due-scan.
const armHorizon = 24 * time.Hour

// DefaultNotificationService is the production implementation.
type DefaultNotificationService struct {
	Registry  *realtime.Registry
	Queue     OfflineQueue
	Repo      notificationRepo.NotificationRepository
	Users     userRepo.UserRepository
	Resolver  *AudienceResolver
	Templates *TemplateEngine
	Channels  *MultiChannelSender
	Armer     Armer // optional; set by the scheduler
	Logger    *zap.Logger
}

func NewDefaultNotificationService(
	registry *realtime.Registry,
	queue OfflineQueue,
	repo notificationRepo.NotificationRepository,
	users userRepo.UserRepository,
	templates *TemplateEngine,
	channels *MultiChannelSender,
	logger *zap.Logger,
) *DefaultNotificationService {
	return &DefaultNotificationService{
		Registry:  registry,
		Queue:     queue,
		Repo:      repo,
		Users:     users,
		Resolver:  NewAudienceResolver(users),
		Templates: templates,
		Channels:  channels,
		Logger:    logger,
	}
}

// Publish validates and persists a notification, then either leaves it for
// the scheduler (future scheduledFor) or resolves and dispatches it now.
func (s *DefaultNotificationService) Publish(ctx context.Context, n *models.Notification) (*models.DispatchResult, error) {
	if !n.Type.Valid() {
		return nil, fmt.Errorf("unknown notification type %q", n.Type)
	}
	now := time.Now()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.Priority == "" {
		n.Priority = models.PriorityNormal
	}
	if len(n.DeliveryMethods) == 0 {
		n.DeliveryMethods = []models.DeliveryMethod{models.DeliveryRealtime}
	}

	if n.TemplateID != "" {
		title, message, err := s.Templates.Render(n.TemplateID, n.Variables)
		if err != nil {
			return nil, err
		}
		n.Title = title
		n.Message = message
	}

	if err := s.Repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("persist notification: %w", err)
	}

	if n.ScheduledFor != nil && n.ScheduledFor.After(now) {
		if s.Armer != nil && n.ScheduledFor.Sub(now) <= armHorizon {
			if err := s.Armer.Arm(n); err != nil {
				// The due-scan will still pick it up; arming is best-effort.
				s.Logger.Warn("failed to arm one-shot timer",
					zap.String("notificationId", n.ID),
					zap.Error(err),
				)
			}
		}
		return &models.DispatchResult{}, nil
	}

	return s.resolveClaimDispatch(ctx, n, now)
}

// resolveClaimDispatch is the shared immediate-delivery path used by Publish
// and by the scheduler for due notifications. Audience resolution happens
// before the claim so a resolution failure leaves sentAt unset and the
// notification is retried by the next due-scan pass.
func (s *DefaultNotificationService) resolveClaimDispatch(ctx context.Context, n *models.Notification, now time.Time) (*models.DispatchResult, error) {
	if n.Expired(now) {
		s.Logger.Info("skipping expired notification", zap.String("notificationId", n.ID))
		return &models.DispatchResult{}, nil
	}

	recipients, err := s.Resolver.Resolve(ctx, n.Audience)
	if err != nil {
		return nil, err
	}

	claimed, err := s.Repo.ClaimForDispatch(ctx, n.ID, now)
	if err != nil {
		return nil, fmt.Errorf("claim notification %s: %w", n.ID, err)
	}
	if !claimed {
		// Another pass or a cancellation got there first.
		return &models.DispatchResult{}, nil
	}
	n.SentAt = &now

	result := s.Dispatch(ctx, n, recipients)
	return &result, nil
}

// DispatchDue is the scheduler entry point for one due notification.
func (s *DefaultNotificationService) DispatchDue(ctx context.Context, n *models.Notification) (*models.DispatchResult, error) {
	return s.resolveClaimDispatch(ctx, n, time.Now())
}

// Dispatch pushes the payload to every live connection of every recipient
// and queues it for recipients with none. A recipient counts as delivered
// once the payload is placed where the client will see it: a live socket or
// the offline queue.
func (s *DefaultNotificationService) Dispatch(ctx context.Context, n *models.Notification, recipients []string) models.DispatchResult {
	event := models.Event{
		Event:   n.Type.EventName(),
		Payload: n,
		SentAt:  time.Now(),
	}

	// Users are only fetched when a non-realtime channel needs addresses.
	var usersByID map[string]models.User
	if s.Channels != nil && (n.HasMethod(models.DeliveryEmail) || n.HasMethod(models.DeliverySMS) || n.HasMethod(models.DeliveryPush)) {
		users, err := s.Users.GetByIDs(ctx, recipients)
		if err != nil {
			s.Logger.Warn("channel recipient lookup failed",
				zap.String("notificationId", n.ID),
				zap.Error(err),
			)
		} else {
			usersByID = make(map[string]models.User, len(users))
			for _, u := range users {
				usersByID[u.ID] = u
			}
		}
	}

	var (
		mu        sync.Mutex
		result    models.DispatchResult
		reachable []string
	)
	result.Recipients = len(recipients)

	sem := make(chan struct{}, dispatchConcurrency)
	var wg sync.WaitGroup
	for _, userID := range recipients {
		wg.Add(1)
		sem <- struct{}{}
		go func(userID string) {
			defer wg.Done()
			defer func() { <-sem }()

			delivered, queued := s.dispatchToUser(ctx, n, event, userID)

			if u, ok := usersByID[userID]; ok {
				// Channel failures are isolated; already logged inside.
				_ = s.Channels.Send(ctx, n, &u)
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case delivered:
				result.Delivered++
				reachable = append(reachable, userID)
			case queued:
				result.Queued++
				reachable = append(reachable, userID)
			default:
				result.Failed++
			}
		}(userID)
	}
	wg.Wait()

	if n.TrackRecipients && len(reachable) > 0 {
		if err := s.Repo.MarkDelivered(ctx, n.ID, reachable, time.Now()); err != nil {
			s.Logger.Warn("failed to persist delivery records",
				zap.String("notificationId", n.ID),
				zap.Error(err),
			)
		}
	}

	s.Logger.Info("notification dispatched",
		zap.String("notificationId", n.ID),
		zap.String("type", string(n.Type)),
		zap.Int("recipients", result.Recipients),
		zap.Int("delivered", result.Delivered),
		zap.Int("queued", result.Queued),
		zap.Int("failed", result.Failed),
	)
	return result
}

// dispatchToUser pushes to all of one user's live connections, or queues the
// payload when there are none. A failed push to one connection does not fail
// the others; if every live connection rejects the write the payload falls
// back to the offline queue.
func (s *DefaultNotificationService) dispatchToUser(ctx context.Context, n *models.Notification, event models.Event, userID string) (delivered, queued bool) {
	conns := s.Registry.ConnectionsForUser(userID)

	if len(conns) > 0 {
		pushed := false
		for _, c := range conns {
			if err := c.Send(event); err != nil {
				s.Logger.Debug("connection push failed",
					zap.String("connId", c.ID),
					zap.String("userId", userID),
					zap.Error(err),
				)
				continue
			}
			pushed = true
		}
		if pushed {
			return true, false
		}
	}

	if err := s.Queue.Enqueue(ctx, userID, n); err != nil {
		// Degraded offline store: live-path only, silent loss for offline
		// users. Covered by monitoring, not surfaced to the producer.
		s.Logger.Error("offline enqueue failed",
			zap.String("userId", userID),
			zap.String("notificationId", n.ID),
			zap.Error(err),
		)
		return false, false
	}
	return false, true
}

// Cancel prevents a scheduled notification from dispatching. An armed
// one-shot timer is defused by the same sentAt/canceled claim guard.
func (s *DefaultNotificationService) Cancel(ctx context.Context, id string) error {
	ok, err := s.Repo.Cancel(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("notification %s was already dispatched or does not exist", id)
	}
	return nil
}

func (s *DefaultNotificationService) MarkRead(ctx context.Context, notificationID, userID string, at time.Time) error {
	return s.Repo.MarkRead(ctx, notificationID, userID, at)
}

func (s *DefaultNotificationService) ListForUser(ctx context.Context, userID string, limit int64) ([]notificationRepo.UserNotification, error) {
	return s.Repo.ListForUser(ctx, userID, limit)
}
