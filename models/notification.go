package models

import (
	"fmt"
	"time"
)

// NotificationType is a closed set; EventName is an exhaustive switch over it
// so an unhandled kind fails at compile time rather than at dispatch.
type NotificationType string

const (
	TypeNotice       NotificationType = "notice"
	TypeGrade        NotificationType = "grade"
	TypeAttendance   NotificationType = "attendance"
	TypeAssignment   NotificationType = "assignment"
	TypeSystem       NotificationType = "system"
	TypeReminder     NotificationType = "reminder"
	TypeAnnouncement NotificationType = "announcement"
)

// EventName maps a notification type to the client-facing socket event.
func (t NotificationType) EventName() string {
	switch t {
	case TypeNotice:
		return "notice:posted"
	case TypeGrade:
		return "grade:updated"
	case TypeAttendance:
		return "attendance:marked"
	case TypeAssignment:
		return "assignment:created"
	case TypeSystem, TypeReminder, TypeAnnouncement:
		return "notification:new"
	}
	return "notification:new"
}

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case TypeNotice, TypeGrade, TypeAttendance, TypeAssignment, TypeSystem, TypeReminder, TypeAnnouncement:
		return true
	}
	return false
}

// Priority of a notification.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// DeliveryMethod selects a delivery channel.
type DeliveryMethod string

const (
	DeliveryRealtime DeliveryMethod = "realtime"
	DeliveryEmail    DeliveryMethod = "email"
	DeliverySMS      DeliveryMethod = "sms"
	DeliveryPush     DeliveryMethod = "push"
)

// AudienceKind discriminates an audience descriptor.
type AudienceKind string

const (
	AudienceAll         AudienceKind = "all"
	AudienceRole        AudienceKind = "role"
	AudienceInstitution AudienceKind = "institution"
	AudienceBranch      AudienceKind = "branch"
	AudienceCourse      AudienceKind = "course"
	AudienceUsers       AudienceKind = "users"
)

// Audience is one abstract audience descriptor. A notification carries a
// list of them; the resolved recipient set is their deduplicated union.
type Audience struct {
	Kind    AudienceKind `bson:"kind" json:"kind"`
	Value   string       `bson:"value,omitempty" json:"value,omitempty"`
	UserIDs []string     `bson:"userIds,omitempty" json:"userIds,omitempty"`
}

func (a Audience) String() string {
	if a.Kind == AudienceUsers {
		return fmt.Sprintf("users(%d)", len(a.UserIDs))
	}
	if a.Value == "" {
		return string(a.Kind)
	}
	return string(a.Kind) + ":" + a.Value
}

// Notification is the unit of delivery. Immutable once created except for
// SentAt (set exactly once by the dispatch claim) and Canceled (settable
// only while SentAt is nil).
type Notification struct {
	ID              string            `bson:"id" json:"id"`
	Type            NotificationType  `bson:"type" json:"type"`
	Title           string            `bson:"title" json:"title"`
	Message         string            `bson:"message" json:"message"`
	Priority        Priority          `bson:"priority" json:"priority"`
	Audience        []Audience        `bson:"audience" json:"audience"`
	DeliveryMethods []DeliveryMethod  `bson:"deliveryMethods" json:"deliveryMethods"`
	TemplateID      string            `bson:"templateId,omitempty" json:"templateId,omitempty"`
	Variables       map[string]string `bson:"variables,omitempty" json:"variables,omitempty"`
	Data            map[string]string `bson:"data,omitempty" json:"data,omitempty"`
	TrackRecipients bool              `bson:"trackRecipients" json:"trackRecipients"`
	ScheduledFor    *time.Time        `bson:"scheduledFor,omitempty" json:"scheduledFor,omitempty"`
	ExpiresAt       *time.Time        `bson:"expiresAt,omitempty" json:"expiresAt,omitempty"`
	CreatedAt       time.Time         `bson:"createdAt" json:"createdAt"`
	SentAt          *time.Time        `bson:"sentAt,omitempty" json:"sentAt,omitempty"`
	Canceled        bool              `bson:"canceled" json:"canceled"`
}

// HasMethod reports whether the notification requests the given channel.
func (n *Notification) HasMethod(m DeliveryMethod) bool {
	for _, dm := range n.DeliveryMethods {
		if dm == m {
			return true
		}
	}
	return false
}

// Expired reports whether delivery should be suppressed.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}

// RecipientRecord tracks per-(notification, user) delivery and read state.
// The dispatcher writes IsDelivered; the client acknowledgment path writes
// IsRead. Removed only by retention cleanup.
type RecipientRecord struct {
	NotificationID string     `bson:"notificationId" json:"notificationId"`
	UserID         string     `bson:"userId" json:"userId"`
	IsDelivered    bool       `bson:"isDelivered" json:"isDelivered"`
	IsRead         bool       `bson:"isRead" json:"isRead"`
	DeliveredAt    *time.Time `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
	ReadAt         *time.Time `bson:"readAt,omitempty" json:"readAt,omitempty"`
	CreatedAt      time.Time  `bson:"createdAt" json:"createdAt"`
}

// DispatchResult summarizes one dispatch attempt.
type DispatchResult struct {
	Recipients int `json:"recipients"`
	Delivered  int `json:"delivered"` // pushed to at least one live connection
	Queued     int `json:"queued"`    // placed on the offline queue
	Failed     int `json:"failed"`    // neither path succeeded
}
