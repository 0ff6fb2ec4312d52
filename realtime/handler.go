package realtime

import (
	"context"
	"net/http"
	"strings"
	"time"

	"campushub/models"
	"campushub/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// BacklogDrainer hands over and clears the notifications queued while the
// user had no live connection.
type BacklogDrainer interface {
	Drain(ctx context.Context, userID string) ([]models.Notification, error)
}

// ReadMarker records a client read acknowledgment.
type ReadMarker interface {
	MarkRead(ctx context.Context, notificationID, userID string, at time.Time) error
}

// Handler owns the websocket endpoint: handshake authentication,
// registration, the backlog catch-up, and the client command loop.
type Handler struct {
	Registry *Registry
	Backlog  BacklogDrainer
	Reads    ReadMarker
	Logger   *zap.Logger
}

func NewHandler(registry *Registry, backlog BacklogDrainer, reads ReadMarker, logger *zap.Logger) *Handler {
	return &Handler{
		Registry: registry,
		Backlog:  backlog,
		Reads:    reads,
		Logger:   logger,
	}
}

// handshakeToken pulls the bearer credential from the query string or the
// Authorization header.
func handshakeToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// ServeWS authenticates and upgrades one connection. An invalid or expired
// credential is refused with 401 before the upgrade, so a rejected handshake
// never creates registry state.
func (h *Handler) ServeWS(c *gin.Context) {
	token := handshakeToken(c)
	if token == "" {
		utils.JSONError(c, http.StatusUnauthorized, "Missing credentials", "a bearer token is required to connect")
		return
	}
	identity, err := utils.ExtractIdentityFromToken(token)
	if err != nil {
		utils.JSONError(c, http.StatusUnauthorized, "Invalid credentials", err.Error())
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.NewString(), identity, conn, h.Logger)
	h.Registry.Register(client)
	go client.WritePump()

	h.Logger.Info("client connected",
		zap.String("connId", client.ID),
		zap.String("userId", identity.UserID),
		zap.String("role", string(identity.Role)),
	)

	h.deliverBacklog(client)
	h.readLoop(client, conn)
}

// deliverBacklog drains the offline queue into the fresh connection. A
// degraded queue store is logged and skipped; the live path stays up.
func (h *Handler) deliverBacklog(client *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pending, err := h.Backlog.Drain(ctx, client.Identity.UserID)
	if err != nil {
		h.Logger.Warn("offline backlog drain failed",
			zap.String("userId", client.Identity.UserID),
			zap.Error(err),
		)
		return
	}
	if len(pending) == 0 {
		return
	}
	_ = client.Send(models.Event{
		Event:   models.EventBacklog,
		Payload: pending,
		SentAt:  time.Now(),
	})
}

func (h *Handler) readLoop(client *Client, conn *websocket.Conn) {
	defer h.disconnect(client, "read loop exited")

	for {
		var cmd models.Command
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		h.handleCommand(client, cmd)
	}
}

func (h *Handler) handleCommand(client *Client, cmd models.Command) {
	now := time.Now()

	switch cmd.Type {
	case models.CommandJoinRoom:
		if cmd.RoomID == "" {
			h.sendError(client, "join_room requires roomId")
			return
		}
		h.Registry.JoinRoom(client.ID, cmd.RoomID)
		_ = client.Send(models.Event{Event: models.EventRoomJoined, Payload: gin.H{"roomId": cmd.RoomID}, SentAt: now})
		h.Registry.BroadcastToRoom(cmd.RoomID, models.Event{
			Event:   models.EventPresence,
			Payload: models.PresencePayload{UserID: client.Identity.UserID, RoomID: cmd.RoomID, Online: true},
			SentAt:  now,
		}, client.ID)

	case models.CommandLeaveRoom:
		if cmd.RoomID == "" {
			h.sendError(client, "leave_room requires roomId")
			return
		}
		h.Registry.LeaveRoom(client.ID, cmd.RoomID)
		_ = client.Send(models.Event{Event: models.EventRoomLeft, Payload: gin.H{"roomId": cmd.RoomID}, SentAt: now})
		h.Registry.BroadcastToRoom(cmd.RoomID, models.Event{
			Event:   models.EventPresence,
			Payload: models.PresencePayload{UserID: client.Identity.UserID, RoomID: cmd.RoomID, Online: false},
			SentAt:  now,
		}, client.ID)

	case models.CommandMarkRead:
		if cmd.NotificationID == "" {
			h.sendError(client, "mark_read requires notificationId")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.Reads.MarkRead(ctx, cmd.NotificationID, client.Identity.UserID, now); err != nil {
			h.Logger.Warn("mark read failed",
				zap.String("notificationId", cmd.NotificationID),
				zap.String("userId", client.Identity.UserID),
				zap.Error(err),
			)
			h.sendError(client, "could not mark notification read")
		}

	case models.CommandTypingStart, models.CommandTypingStop:
		if cmd.RoomID == "" {
			return
		}
		h.Registry.BroadcastToRoom(cmd.RoomID, models.Event{
			Event: models.EventTyping,
			Payload: models.TypingPayload{
				UserID: client.Identity.UserID,
				RoomID: cmd.RoomID,
				Typing: cmd.Type == models.CommandTypingStart,
			},
			SentAt: now,
		}, client.ID)

	case models.CommandPing:
		_ = client.Send(models.Event{Event: models.EventPong, SentAt: now})

	default:
		h.sendError(client, "unknown command type: "+cmd.Type)
	}
}

func (h *Handler) sendError(client *Client, msg string) {
	_ = client.Send(models.Event{Event: models.EventError, Payload: gin.H{"message": msg}, SentAt: time.Now()})
}

// disconnect deregisters the connection and emits a disconnect notice only
// to the rooms the socket had explicitly joined, never globally.
func (h *Handler) disconnect(client *Client, reason string) {
	_, rooms, ok := h.Registry.Unregister(client.ID)
	client.Close()
	if !ok {
		return
	}
	now := time.Now()
	for _, room := range rooms {
		h.Registry.BroadcastToRoom(room, models.Event{
			Event:   models.EventPresence,
			Payload: models.PresencePayload{UserID: client.Identity.UserID, RoomID: room, Online: false},
			SentAt:  now,
		}, client.ID)
	}
	h.Logger.Info("client disconnected",
		zap.String("connId", client.ID),
		zap.String("userId", client.Identity.UserID),
		zap.String("reason", reason),
	)
}
