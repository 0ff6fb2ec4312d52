package handlers

import (
	"net/http"
	"time"

	"campushub/middleware"
	"campushub/models"
	"campushub/services/notification"
	"campushub/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NotificationHandler exposes the thin inbound surface over the dispatch
// engine: create/schedule, cancel, list, mark read.
type NotificationHandler struct {
	Service notification.NotificationService
	Logger  *zap.Logger
}

func NewNotificationHandler(svc notification.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{Service: svc, Logger: logger}
}

// CreateNotificationRequest is the producer-facing creation contract.
type CreateNotificationRequest struct {
	Type            models.NotificationType `json:"type" binding:"required"`
	Title           string                  `json:"title"`
	Message         string                  `json:"message"`
	TemplateID      string                  `json:"templateId"`
	Variables       map[string]string       `json:"variables"`
	Priority        models.Priority         `json:"priority"`
	Audience        []models.Audience       `json:"audience" binding:"required"`
	DeliveryMethods []models.DeliveryMethod `json:"deliveryMethods"`
	ScheduledFor    *time.Time              `json:"scheduledFor"`
	ExpiresAt       *time.Time              `json:"expiresAt"`
	TrackRecipients *bool                   `json:"trackRecipients"`
}

// CreateNotificationHandler accepts a notification and dispatches it, or
// persists it for the scheduler when scheduledFor is in the future.
func (h *NotificationHandler) CreateNotificationHandler(c *gin.Context) {
	var req CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.TemplateID == "" && (req.Title == "" || req.Message == "") {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request body", "either templateId or title and message are required")
		return
	}

	// System-wide announcements default to skipping per-recipient records.
	track := true
	for _, a := range req.Audience {
		if a.Kind == models.AudienceAll {
			track = false
		}
	}
	if req.TrackRecipients != nil {
		track = *req.TrackRecipients
	}

	n := &models.Notification{
		Type:            req.Type,
		Title:           req.Title,
		Message:         req.Message,
		TemplateID:      req.TemplateID,
		Variables:       req.Variables,
		Priority:        req.Priority,
		Audience:        req.Audience,
		DeliveryMethods: req.DeliveryMethods,
		ScheduledFor:    req.ScheduledFor,
		ExpiresAt:       req.ExpiresAt,
		TrackRecipients: track,
	}

	result, err := h.Service.Publish(c.Request.Context(), n)
	if err != nil {
		utils.JSONError(c, http.StatusUnprocessableEntity, "Failed to publish notification", err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":     n.ID,
		"result": result,
	})
}

// CancelNotificationHandler cancels a still-pending scheduled notification.
func (h *NotificationHandler) CancelNotificationHandler(c *gin.Context) {
	id := c.Param("id")
	if err := h.Service.Cancel(c.Request.Context(), id); err != nil {
		utils.JSONError(c, http.StatusConflict, "Failed to cancel notification", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "canceled": true})
}

// ListNotificationsHandler returns the caller's notifications with read state.
func (h *NotificationHandler) ListNotificationsHandler(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		utils.JSONError(c, http.StatusUnauthorized, "Insufficient authorization", "no identity in context")
		return
	}

	items, err := h.Service.ListForUser(c.Request.Context(), identity.UserID, 100)
	if err != nil {
		utils.JSONError(c, http.StatusInternalServerError, "Failed to list notifications", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

// MarkReadHandler records a read acknowledgment for the caller.
func (h *NotificationHandler) MarkReadHandler(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		utils.JSONError(c, http.StatusUnauthorized, "Insufficient authorization", "no identity in context")
		return
	}

	id := c.Param("id")
	if err := h.Service.MarkRead(c.Request.Context(), id, identity.UserID, time.Now()); err != nil {
		h.Logger.Warn("mark read failed", zap.String("notificationId", id), zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, "Failed to mark notification read", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "read": true})
}
