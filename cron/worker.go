package cron

import (
	"context"
	"encoding/json"
	"time"

	"campushub/config"
	assignmentRepo "campushub/database/repository/assignment"
	"campushub/models"
	"campushub/services/tasks"
	"campushub/utils"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Dispatcher is the slice of the notification service the scheduler drives.
type Dispatcher interface {
	// DispatchDue resolves, claims and dispatches one due notification.
	DispatchDue(ctx context.Context, n *models.Notification) (*models.DispatchResult, error)
	// Publish is used for reminders synthesized on the fly by the sweep.
	Publish(ctx context.Context, n *models.Notification) (*models.DispatchResult, error)
}

// NotificationStore is the persistence surface the scheduler scans.
type NotificationStore interface {
	DueForDispatch(ctx context.Context, now time.Time, limit int64) ([]models.Notification, error)
	UpcomingWithin(ctx context.Context, now time.Time, horizon time.Duration) ([]models.Notification, error)
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	DeleteExpired(ctx context.Context, now time.Time, retention time.Duration) (int64, error)
}

// MarkerStore records that a reminder fired for a given (assignment, window)
// pair, so a sweep near a window edge cannot double-fire.
type MarkerStore interface {
	SetOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// ReminderWindow is one lookahead window of the assignment reminder sweep.
type ReminderWindow struct {
	Label     string
	Lookahead time.Duration
}

var defaultReminderWindows = []ReminderWindow{
	{Label: "within 24 hours", Lookahead: 24 * time.Hour},
	{Label: "within 7 days", Lookahead: 7 * 24 * time.Hour},
}

const dueScanBatchLimit = 100

// Scheduler owns the recurring sweeps: the minute due-scan, the hourly
// assignment reminder sweep and the daily retention cleanup, plus asynq
// one-shot timers for near-term schedules.
type Scheduler struct {
	Store       NotificationStore
	Assignments assignmentRepo.AssignmentRepository
	Dispatcher  Dispatcher
	Markers     MarkerStore
	Logger      *zap.Logger

	DueScanInterval  time.Duration
	ReminderInterval time.Duration
	CleanupInterval  time.Duration
	ReminderWindows  []ReminderWindow

	asynqClient *asynq.Client
}

func NewScheduler(
	store NotificationStore,
	assignments assignmentRepo.AssignmentRepository,
	dispatcher Dispatcher,
	markers MarkerStore,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		Store:            store,
		Assignments:      assignments,
		Dispatcher:       dispatcher,
		Markers:          markers,
		Logger:           logger,
		DueScanInterval:  time.Minute,
		ReminderInterval: time.Hour,
		CleanupInterval:  24 * time.Hour,
		ReminderWindows:  defaultReminderWindows,
	}
}

// Start launches the recurring loops and the asynq worker, arms timers for
// already-persisted near-term schedules, and returns. All loops stop when
// ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	s.startAsynq(ctx)
	s.armUpcoming(ctx)

	go s.loop(ctx, "due-scan", s.DueScanInterval, s.RunDueScan)
	go s.loop(ctx, "reminder-sweep", s.ReminderInterval, s.RunReminderSweep)
	go s.loop(ctx, "cleanup", s.CleanupInterval, s.RunCleanup)
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, run func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("scheduler loop shutting down", zap.String("loop", name))
			return
		case <-ticker.C:
			run(ctx)
		}
	}
}

// RunDueScan finds notifications with scheduledFor <= now and sentAt unset
// and dispatches them. A failure inside one notification's processing is
// logged and must not abort the rest of the batch. Idempotence comes from
// the conditional sentAt claim, not from this scan being exclusive.
func (s *Scheduler) RunDueScan(ctx context.Context) {
	now := time.Now()
	due, err := s.Store.DueForDispatch(ctx, now, dueScanBatchLimit)
	if err != nil {
		s.Logger.Error("due-scan query failed", zap.Error(err))
		return
	}

	for i := range due {
		n := due[i]
		if _, err := s.Dispatcher.DispatchDue(ctx, &n); err != nil {
			// sentAt stays unset on resolution errors, so the next pass
			// retries naturally.
			s.Logger.Warn("due notification dispatch failed",
				zap.String("notificationId", n.ID),
				zap.Error(err),
			)
		}
	}
}

// RunReminderSweep synthesizes templated due-date reminders for assignments
// inside each lookahead window. The per-(assignment, window) marker makes
// this once per window rather than best-effort per sweep.
func (s *Scheduler) RunReminderSweep(ctx context.Context) {
	now := time.Now()

	for _, window := range s.ReminderWindows {
		assignments, err := s.Assignments.DueBetween(ctx, now, now.Add(window.Lookahead))
		if err != nil {
			s.Logger.Error("reminder sweep query failed",
				zap.String("window", window.Label),
				zap.Error(err),
			)
			continue
		}

		for _, a := range assignments {
			key := utils.ReminderMarkerPrefix + a.ID + ":" + window.Label
			first, err := s.Markers.SetOnce(ctx, key, window.Lookahead)
			if err != nil {
				s.Logger.Warn("reminder marker failed",
					zap.String("assignmentId", a.ID),
					zap.Error(err),
				)
				continue
			}
			if !first {
				continue
			}

			n := &models.Notification{
				ID:         uuid.NewString(),
				Type:       models.TypeReminder,
				Priority:   models.PriorityHigh,
				TemplateID: "assignment_due_soon",
				Variables: map[string]string{
					"assignmentTitle": a.Title,
					"window":          window.Label,
					"dueDate":         a.DueDate.Format(time.RFC1123),
				},
				Audience: []models.Audience{
					{Kind: models.AudienceCourse, Value: a.CourseID},
				},
				DeliveryMethods: []models.DeliveryMethod{models.DeliveryRealtime, models.DeliveryPush},
				TrackRecipients: true,
				Data:            map[string]string{"assignmentId": a.ID},
			}
			if _, err := s.Dispatcher.Publish(ctx, n); err != nil {
				// Template or audience failures kill this one reminder only.
				s.Logger.Warn("assignment reminder failed",
					zap.String("assignmentId", a.ID),
					zap.String("window", window.Label),
					zap.Error(err),
				)
			}
		}
	}
}

// RunCleanup deletes notifications and recipient records past their expiry
// or the retention window.
func (s *Scheduler) RunCleanup(ctx context.Context) {
	deleted, err := s.Store.DeleteExpired(ctx, time.Now(), utils.NotificationRetention)
	if err != nil {
		s.Logger.Error("retention cleanup failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.Logger.Info("retention cleanup removed notifications", zap.Int64("count", deleted))
	}
}

// Arm enqueues a one-shot dispatch task at the notification's fire time.
// Satisfies notification.Armer.
func (s *Scheduler) Arm(n *models.Notification) error {
	if s.asynqClient == nil || n.ScheduledFor == nil {
		return nil
	}
	task, opts, err := tasks.NewDispatchTask(n.ID, *n.ScheduledFor)
	if err != nil {
		return err
	}
	if _, err := s.asynqClient.Enqueue(task, opts...); err != nil {
		return err
	}
	s.Logger.Debug("armed one-shot dispatch",
		zap.String("notificationId", n.ID),
		zap.Time("fireAt", *n.ScheduledFor),
	)
	return nil
}

// armUpcoming arms timers for schedules already inside the horizon at load
// time, to keep dispatch latency below the due-scan's polling granularity.
func (s *Scheduler) armUpcoming(ctx context.Context) {
	if s.asynqClient == nil {
		return
	}
	upcoming, err := s.Store.UpcomingWithin(ctx, time.Now(), 24*time.Hour)
	if err != nil {
		s.Logger.Warn("failed to load upcoming schedules", zap.Error(err))
		return
	}
	for i := range upcoming {
		if err := s.Arm(&upcoming[i]); err != nil {
			s.Logger.Warn("failed to arm upcoming schedule",
				zap.String("notificationId", upcoming[i].ID),
				zap.Error(err),
			)
		}
	}
}

// startAsynq runs the one-shot dispatch worker in the background.
func (s *Scheduler) startAsynq(ctx context.Context) {
	redisOpts := asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisSchedulerDB,
	}

	s.asynqClient = asynq.NewClient(redisOpts)

	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeNotificationDispatch, s.handleDispatchTask)

	go func() {
		if err := srv.Run(mux); err != nil {
			s.Logger.Error("asynq worker exited", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		srv.Shutdown()
		_ = s.asynqClient.Close()
	}()
}

// handleDispatchTask fires an armed one-shot timer. The row is re-read and
// the same claim guard applies, so a notification canceled after arming, or
// already taken by a due-scan pass, is a no-op here.
func (s *Scheduler) handleDispatchTask(ctx context.Context, task *asynq.Task) error {
	var p tasks.DispatchPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		s.Logger.Warn("invalid dispatch task payload", zap.Error(err))
		return err
	}

	n, err := s.Store.GetByID(ctx, p.NotificationID)
	if err != nil {
		s.Logger.Warn("armed notification no longer exists",
			zap.String("notificationId", p.NotificationID),
			zap.Error(err),
		)
		return nil
	}
	if n.SentAt != nil || n.Canceled {
		return nil
	}

	if _, err := s.Dispatcher.DispatchDue(ctx, n); err != nil {
		s.Logger.Warn("armed dispatch failed",
			zap.String("notificationId", n.ID),
			zap.Error(err),
		)
		return err
	}
	return nil
}
