package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"campushub/models"
	"campushub/services/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type fakeNotifStore struct {
	mu            sync.Mutex
	notifications map[string]*models.Notification
	deleteCalls   int
}

func newFakeNotifStore(ns ...*models.Notification) *fakeNotifStore {
	s := &fakeNotifStore{notifications: make(map[string]*models.Notification)}
	for _, n := range ns {
		clone := *n
		s.notifications[n.ID] = &clone
	}
	return s
}

func (s *fakeNotifStore) DueForDispatch(ctx context.Context, now time.Time, limit int64) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.notifications {
		if n.ScheduledFor != nil && !n.ScheduledFor.After(now) && n.SentAt == nil && !n.Canceled {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (s *fakeNotifStore) UpcomingWithin(ctx context.Context, now time.Time, horizon time.Duration) ([]models.Notification, error) {
	return nil, nil
}

func (s *fakeNotifStore) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, errors.New("not found")
	}
	clone := *n
	return &clone, nil
}

func (s *fakeNotifStore) DeleteExpired(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++
	return 3, nil
}

func (s *fakeNotifStore) markSent(id string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.SentAt != nil || n.Canceled {
		return false
	}
	n.SentAt = &at
	return true
}

func (s *fakeNotifStore) cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.notifications[id]; ok {
		n.Canceled = true
	}
}

// fakeDispatcher claims against the store the way the real service does, so
// scan idempotence is exercised end to end.
type fakeDispatcher struct {
	mu        sync.Mutex
	store     *fakeNotifStore
	dispatch  map[string]int
	failIDs   map[string]bool
	published []models.Notification
}

func newFakeDispatcher(store *fakeNotifStore) *fakeDispatcher {
	return &fakeDispatcher{
		store:    store,
		dispatch: make(map[string]int),
		failIDs:  make(map[string]bool),
	}
}

func (d *fakeDispatcher) DispatchDue(ctx context.Context, n *models.Notification) (*models.DispatchResult, error) {
	d.mu.Lock()
	fail := d.failIDs[n.ID]
	d.mu.Unlock()
	if fail {
		// Resolution failure: the claim never happens, so the notification
		// stays eligible for the next pass.
		return nil, errors.New("audience resolution failed")
	}
	if !d.store.markSent(n.ID, time.Now()) {
		return &models.DispatchResult{}, nil
	}
	d.mu.Lock()
	d.dispatch[n.ID]++
	d.mu.Unlock()
	return &models.DispatchResult{Recipients: 1, Delivered: 1}, nil
}

func (d *fakeDispatcher) Publish(ctx context.Context, n *models.Notification) (*models.DispatchResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.published = append(d.published, *n)
	return &models.DispatchResult{}, nil
}

func (d *fakeDispatcher) dispatchCount(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dispatch[id]
}

func (d *fakeDispatcher) publishedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.published)
}

type fakeAssignments struct {
	assignments []models.Assignment
}

func (f *fakeAssignments) DueBetween(ctx context.Context, from, to time.Time) ([]models.Assignment, error) {
	var out []models.Assignment
	for _, a := range f.assignments {
		if a.DueDate.After(from) && !a.DueDate.After(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeMarkers struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeMarkers() *fakeMarkers {
	return &fakeMarkers{seen: make(map[string]bool)}
}

func (m *fakeMarkers) SetOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func scheduledAt(id string, at time.Time) *models.Notification {
	return &models.Notification{
		ID:           id,
		Type:         models.TypeAnnouncement,
		Title:        "Scheduled announcement",
		ScheduledFor: &at,
		Audience: []models.Audience{
			{Kind: models.AudienceAll},
		},
		DeliveryMethods: []models.DeliveryMethod{models.DeliveryRealtime},
	}
}

func newTestScheduler(store *fakeNotifStore, dispatcher *fakeDispatcher, assignments *fakeAssignments) *Scheduler {
	if assignments == nil {
		assignments = &fakeAssignments{}
	}
	return &Scheduler{
		Store:           store,
		Assignments:     assignments,
		Dispatcher:      dispatcher,
		Markers:         newFakeMarkers(),
		Logger:          zap.NewNop(),
		ReminderWindows: defaultReminderWindows,
	}
}

func TestDueScanDispatchesEachNotificationOnce(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	store := newFakeNotifStore(scheduledAt("n1", past))
	dispatcher := newFakeDispatcher(store)
	s := newTestScheduler(store, dispatcher, nil)

	s.RunDueScan(context.Background())
	s.RunDueScan(context.Background())

	if got := dispatcher.dispatchCount("n1"); got != 1 {
		t.Errorf("n1 dispatched %d times across two scans, want 1", got)
	}
}

func TestDueScanIgnoresFutureAndCanceled(t *testing.T) {
	now := time.Now()
	store := newFakeNotifStore(
		scheduledAt("due", now.Add(-time.Minute)),
		scheduledAt("future", now.Add(time.Hour)),
		scheduledAt("canceled", now.Add(-time.Minute)),
	)
	store.cancel("canceled")
	dispatcher := newFakeDispatcher(store)
	s := newTestScheduler(store, dispatcher, nil)

	s.RunDueScan(context.Background())

	if got := dispatcher.dispatchCount("due"); got != 1 {
		t.Errorf("due dispatched %d times, want 1", got)
	}
	if got := dispatcher.dispatchCount("future"); got != 0 {
		t.Errorf("future notification dispatched %d times", got)
	}
	if got := dispatcher.dispatchCount("canceled"); got != 0 {
		t.Errorf("canceled notification dispatched %d times", got)
	}
}

func TestDueScanIsolatesPerNotificationFailures(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	store := newFakeNotifStore(scheduledAt("n1", past), scheduledAt("n2", past))
	dispatcher := newFakeDispatcher(store)
	dispatcher.failIDs["n1"] = true
	s := newTestScheduler(store, dispatcher, nil)

	s.RunDueScan(context.Background())
	if got := dispatcher.dispatchCount("n2"); got != 1 {
		t.Errorf("n2 dispatched %d times despite n1 failing, want 1", got)
	}

	// The failed notification never claimed, so the next pass retries it.
	dispatcher.failIDs["n1"] = false
	s.RunDueScan(context.Background())
	if got := dispatcher.dispatchCount("n1"); got != 1 {
		t.Errorf("n1 dispatched %d times after retry, want 1", got)
	}
}

func TestReminderSweepFiresOncePerAssignmentWindow(t *testing.T) {
	now := time.Now()
	assignments := &fakeAssignments{assignments: []models.Assignment{
		// Inside both the 24h and the 7d window.
		{ID: "a1", CourseID: "course:math101", Title: "Problem Set 3", DueDate: now.Add(10 * time.Hour)},
		// Inside the 7d window only.
		{ID: "a2", CourseID: "course:phys201", Title: "Lab Report", DueDate: now.Add(3 * 24 * time.Hour)},
	}}
	store := newFakeNotifStore()
	dispatcher := newFakeDispatcher(store)
	s := newTestScheduler(store, dispatcher, assignments)

	s.RunReminderSweep(context.Background())
	if got := dispatcher.publishedCount(); got != 3 {
		t.Fatalf("first sweep published %d reminders, want 3", got)
	}

	s.RunReminderSweep(context.Background())
	if got := dispatcher.publishedCount(); got != 3 {
		t.Errorf("second sweep published %d more reminders, want 0", got-3)
	}

	for _, n := range dispatcher.published {
		if n.Type != models.TypeReminder {
			t.Errorf("reminder type = %q", n.Type)
		}
		if n.TemplateID != "assignment_due_soon" {
			t.Errorf("reminder template = %q", n.TemplateID)
		}
		if len(n.Audience) != 1 || n.Audience[0].Kind != models.AudienceCourse {
			t.Errorf("reminder audience = %v, want one course descriptor", n.Audience)
		}
	}
}

func TestReminderSweepIsolatesPublishFailures(t *testing.T) {
	now := time.Now()
	assignments := &fakeAssignments{assignments: []models.Assignment{
		{ID: "a1", CourseID: "c1", Title: "First", DueDate: now.Add(10 * time.Hour)},
		{ID: "a2", CourseID: "c2", Title: "Second", DueDate: now.Add(11 * time.Hour)},
	}}
	store := newFakeNotifStore()
	dispatcher := &failFirstDispatcher{fakeDispatcher: newFakeDispatcher(store)}
	s := newTestScheduler(store, nil, assignments)
	s.Dispatcher = dispatcher

	s.RunReminderSweep(context.Background())

	// Both assignments were attempted despite the first publish failing.
	if got := dispatcher.attempts; got != 4 {
		t.Errorf("publish attempted %d times, want 4 (two assignments, two windows)", got)
	}
}

type failFirstDispatcher struct {
	*fakeDispatcher
	attempts int
}

func (d *failFirstDispatcher) Publish(ctx context.Context, n *models.Notification) (*models.DispatchResult, error) {
	d.attempts++
	if d.attempts == 1 {
		return nil, errors.New("template render failed")
	}
	return d.fakeDispatcher.Publish(ctx, n)
}

func TestCleanupDelegatesToStore(t *testing.T) {
	store := newFakeNotifStore()
	s := newTestScheduler(store, newFakeDispatcher(store), nil)

	s.RunCleanup(context.Background())

	if store.deleteCalls != 1 {
		t.Errorf("DeleteExpired called %d times, want 1", store.deleteCalls)
	}
}

func TestHandleDispatchTaskSkipsSentAndCanceled(t *testing.T) {
	now := time.Now()
	store := newFakeNotifStore(
		scheduledAt("pending", now.Add(-time.Minute)),
		scheduledAt("sent", now.Add(-time.Minute)),
		scheduledAt("canceled", now.Add(-time.Minute)),
	)
	store.markSent("sent", now)
	store.cancel("canceled")
	dispatcher := newFakeDispatcher(store)
	s := newTestScheduler(store, dispatcher, nil)

	for _, id := range []string{"pending", "sent", "canceled"} {
		task, _, err := tasks.NewDispatchTask(id, now)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.handleDispatchTask(context.Background(), task); err != nil {
			t.Errorf("handleDispatchTask(%s) failed: %v", id, err)
		}
	}

	if got := dispatcher.dispatchCount("pending"); got != 1 {
		t.Errorf("pending dispatched %d times, want 1", got)
	}
	if got := dispatcher.dispatchCount("sent"); got != 0 {
		t.Errorf("already-sent notification dispatched %d times", got)
	}
	if got := dispatcher.dispatchCount("canceled"); got != 0 {
		t.Errorf("canceled notification dispatched %d times", got)
	}
}

func TestHandleDispatchTaskMissingRowIsNoOp(t *testing.T) {
	store := newFakeNotifStore()
	dispatcher := newFakeDispatcher(store)
	s := newTestScheduler(store, dispatcher, nil)

	task := asynq.NewTask(tasks.TypeNotificationDispatch, []byte(`{"notificationId":"gone"}`))
	if err := s.handleDispatchTask(context.Background(), task); err != nil {
		t.Errorf("handleDispatchTask returned %v for a deleted row, want nil", err)
	}
}
