package realtime

import (
	"errors"
	"sync"

	"campushub/models"

	"go.uber.org/zap"
)

// Socket is the transport a Client writes to. *websocket.Conn satisfies it;
// tests use in-memory fakes.
type Socket interface {
	WriteJSON(v interface{}) error
	Close() error
}

// sendBufferSize bounds how far a slow consumer can fall behind before its
// connection is dropped.
const sendBufferSize = 64

var errSendBufferFull = errors.New("send buffer full")
var errClientClosed = errors.New("client closed")

// Client represents one live socket. Identity is derived from the bearer
// token at connect time and immutable afterwards.
type Client struct {
	ID       string
	Identity models.Identity

	socket Socket
	send   chan models.Event
	done   chan struct{}
	rooms  map[string]struct{} // ad-hoc rooms; guarded by the registry lock

	closeOnce sync.Once
	logger    *zap.Logger
}

// NewClient wraps an accepted socket. The caller registers it and starts
// WritePump.
func NewClient(id string, identity models.Identity, socket Socket, logger *zap.Logger) *Client {
	return &Client{
		ID:       id,
		Identity: identity,
		socket:   socket,
		send:     make(chan models.Event, sendBufferSize),
		done:     make(chan struct{}),
		rooms:    make(map[string]struct{}),
		logger:   logger,
	}
}

// Send queues an event for delivery on this connection. It never blocks: a
// full buffer means the consumer is too slow and the event is dropped for
// this connection only.
func (c *Client) Send(event models.Event) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- event:
		return nil
	default:
		c.logger.Warn("dropping event for slow connection",
			zap.String("connId", c.ID),
			zap.String("userId", c.Identity.UserID),
			zap.String("event", event.Event),
		)
		return errSendBufferFull
	}
}

// WritePump drains the send channel onto the socket. It exits on the first
// write error or when Close is called; the read loop handles deregistration.
func (c *Client) WritePump() {
	for {
		select {
		case <-c.done:
			return
		case event := <-c.send:
			if err := c.socket.WriteJSON(event); err != nil {
				c.logger.Debug("socket write failed",
					zap.String("connId", c.ID),
					zap.Error(err),
				)
				c.Close()
				return
			}
		}
	}
}

// Close tears down the connection exactly once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.socket.Close()
	})
}
