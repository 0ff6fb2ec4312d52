package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	notificationRepo "campushub/database/repository/notification"
	"campushub/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type fakeNotificationService struct {
	published  []*models.Notification
	publishErr error
	cancelErr  error
	canceled   []string
	reads      []string
	listed     []string
	items      []notificationRepo.UserNotification
}

func (f *fakeNotificationService) Publish(ctx context.Context, n *models.Notification) (*models.DispatchResult, error) {
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	n.ID = "n-test"
	f.published = append(f.published, n)
	return &models.DispatchResult{Recipients: 2, Delivered: 2}, nil
}

func (f *fakeNotificationService) Dispatch(ctx context.Context, n *models.Notification, recipients []string) models.DispatchResult {
	return models.DispatchResult{}
}

func (f *fakeNotificationService) Cancel(ctx context.Context, id string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.canceled = append(f.canceled, id)
	return nil
}

func (f *fakeNotificationService) MarkRead(ctx context.Context, notificationID, userID string, at time.Time) error {
	f.reads = append(f.reads, notificationID+":"+userID)
	return nil
}

func (f *fakeNotificationService) ListForUser(ctx context.Context, userID string, limit int64) ([]notificationRepo.UserNotification, error) {
	f.listed = append(f.listed, userID)
	return f.items, nil
}

func setupRouter(svc *fakeNotificationService, identity *models.Identity) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewNotificationHandler(svc, zap.NewNop())

	r := gin.New()
	api := r.Group("/api/notifications")
	if identity != nil {
		api.Use(func(c *gin.Context) {
			c.Set("identity", *identity)
			c.Next()
		})
	}
	api.POST("", h.CreateNotificationHandler)
	api.GET("", h.ListNotificationsHandler)
	api.DELETE("/:id", h.CancelNotificationHandler)
	api.PATCH("/:id/read", h.MarkReadHandler)
	return r
}

func postJSON(r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateNotification(t *testing.T) {
	svc := &fakeNotificationService{}
	r := setupRouter(svc, &models.Identity{UserID: "admin1", Role: models.RoleAdmin})

	w := postJSON(r, "/api/notifications", gin.H{
		"type":    "notice",
		"title":   "Campus closure",
		"message": "Campus closes early on Friday.",
		"audience": []gin.H{
			{"kind": "institution", "value": "inst1"},
		},
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if len(svc.published) != 1 {
		t.Fatalf("published %d notifications, want 1", len(svc.published))
	}
	n := svc.published[0]
	if n.Type != models.TypeNotice || n.Title != "Campus closure" {
		t.Errorf("published = %+v", n)
	}
	if !n.TrackRecipients {
		t.Error("scoped audience should default to tracking recipients")
	}
}

func TestCreateNotificationValidation(t *testing.T) {
	cases := []struct {
		name string
		body gin.H
	}{
		{"missing type", gin.H{
			"title": "x", "message": "y",
			"audience": []gin.H{{"kind": "all"}},
		}},
		{"missing audience", gin.H{
			"type": "notice", "title": "x", "message": "y",
		}},
		{"no content and no template", gin.H{
			"type":     "notice",
			"audience": []gin.H{{"kind": "all"}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeNotificationService{}
			r := setupRouter(svc, nil)
			w := postJSON(r, "/api/notifications", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if len(svc.published) != 0 {
				t.Error("invalid request reached the service")
			}
		})
	}
}

func TestCreateNotificationTrackingDefaults(t *testing.T) {
	// System-wide audience skips recipient records unless explicitly enabled.
	svc := &fakeNotificationService{}
	r := setupRouter(svc, nil)
	w := postJSON(r, "/api/notifications", gin.H{
		"type": "announcement", "title": "t", "message": "m",
		"audience": []gin.H{{"kind": "all"}},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	if svc.published[0].TrackRecipients {
		t.Error("audience \"all\" should default to trackRecipients=false")
	}

	w = postJSON(r, "/api/notifications", gin.H{
		"type": "announcement", "title": "t", "message": "m",
		"audience":        []gin.H{{"kind": "all"}},
		"trackRecipients": true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	if !svc.published[1].TrackRecipients {
		t.Error("explicit trackRecipients=true was not honored")
	}
}

func TestCreateNotificationServiceError(t *testing.T) {
	svc := &fakeNotificationService{publishErr: errors.New("unknown template")}
	r := setupRouter(svc, nil)
	w := postJSON(r, "/api/notifications", gin.H{
		"type": "notice", "templateId": "nope",
		"audience": []gin.H{{"kind": "all"}},
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestCancelNotification(t *testing.T) {
	svc := &fakeNotificationService{}
	r := setupRouter(svc, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/notifications/n1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if len(svc.canceled) != 1 || svc.canceled[0] != "n1" {
		t.Errorf("canceled = %v, want [n1]", svc.canceled)
	}

	svc.cancelErr = errors.New("already dispatched")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/notifications/n1", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestListNotificationsUsesCallerIdentity(t *testing.T) {
	svc := &fakeNotificationService{
		items: []notificationRepo.UserNotification{
			{Notification: models.Notification{ID: "n1"}, IsDelivered: true},
		},
	}
	r := setupRouter(svc, &models.Identity{UserID: "u1", Role: models.RoleStudent})

	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(svc.listed) != 1 || svc.listed[0] != "u1" {
		t.Errorf("listed for %v, want the caller u1", svc.listed)
	}
}

func TestListNotificationsWithoutIdentity(t *testing.T) {
	svc := &fakeNotificationService{}
	r := setupRouter(svc, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/notifications", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestMarkRead(t *testing.T) {
	svc := &fakeNotificationService{}
	r := setupRouter(svc, &models.Identity{UserID: "u1", Role: models.RoleStudent})

	req := httptest.NewRequest(http.MethodPatch, "/api/notifications/n1/read", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(svc.reads) != 1 || svc.reads[0] != "n1:u1" {
		t.Errorf("reads = %v, want [n1:u1]", svc.reads)
	}
}
