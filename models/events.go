package models

import "time"

// Socket event names produced by the server beyond the notification
// type-derived ones.
const (
	EventBacklog    string = "notification:backlog"
	EventRoomJoined string = "room:joined"
	EventRoomLeft   string = "room:left"
	EventPresence   string = "presence"
	EventTyping     string = "typing"
	EventPong       string = "pong"
	EventError      string = "error"
)

// Event is the envelope for everything pushed to a client.
type Event struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
	SentAt  time.Time   `json:"sentAt"`
}

// Client command types read from the socket.
const (
	CommandJoinRoom    string = "join_room"
	CommandLeaveRoom   string = "leave_room"
	CommandMarkRead    string = "mark_read"
	CommandTypingStart string = "typing_start"
	CommandTypingStop  string = "typing_stop"
	CommandPing        string = "ping"
)

// Command is the envelope for everything a client sends after the handshake.
type Command struct {
	Type           string `json:"type"`
	RoomID         string `json:"roomId,omitempty"`
	NotificationID string `json:"notificationId,omitempty"`
}

// PresencePayload announces a user joining or leaving a room the receiver
// explicitly joined.
type PresencePayload struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
	Online bool   `json:"online"`
}

// TypingPayload relays typing start/stop inside a room.
type TypingPayload struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
	Typing bool   `json:"typing"`
}
