package realtime

import (
	"sync"

	"campushub/models"

	"go.uber.org/zap"
)

// Registry is the in-process index of live connections. It is rebuilt
// entirely from connect/disconnect events and is never the source of truth
// for delivery state; it only answers "who is live right now".
//
// One index per targeting dimension instead of concatenated room strings, so
// fan-out is a map lookup rather than string parsing. Multiple simultaneous
// connections per user are first-class: every entry is keyed by connection
// ID, and user fan-out returns all of that user's connections.
type Registry struct {
	mu            sync.RWMutex
	conns         map[string]*Client
	byUser        map[string]map[string]*Client
	byRole        map[string]map[string]*Client
	byInstitution map[string]map[string]*Client
	byBranch      map[string]map[string]*Client
	byRoom        map[string]map[string]*Client

	logger *zap.Logger
}

// NewRegistry creates an empty connection registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		conns:         make(map[string]*Client),
		byUser:        make(map[string]map[string]*Client),
		byRole:        make(map[string]map[string]*Client),
		byInstitution: make(map[string]map[string]*Client),
		byBranch:      make(map[string]map[string]*Client),
		byRoom:        make(map[string]map[string]*Client),
		logger:        logger,
	}
}

func addIndex(idx map[string]map[string]*Client, key string, c *Client) {
	set, ok := idx[key]
	if !ok {
		set = make(map[string]*Client)
		idx[key] = set
	}
	set[c.ID] = c
}

func dropIndex(idx map[string]map[string]*Client, key, connID string) {
	if set, ok := idx[key]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(idx, key)
		}
	}
}

// Register adds a connection and joins it to its identity-derived rooms.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[c.ID] = c
	addIndex(r.byUser, c.Identity.UserID, c)
	addIndex(r.byRole, string(c.Identity.Role), c)
	if c.Identity.InstitutionID != "" {
		addIndex(r.byInstitution, c.Identity.InstitutionID, c)
	}
	if c.Identity.BranchID != "" {
		addIndex(r.byBranch, c.Identity.BranchID, c)
	}

	r.logger.Debug("connection registered",
		zap.String("connId", c.ID),
		zap.String("userId", c.Identity.UserID),
		zap.String("role", string(c.Identity.Role)),
	)
}

// Unregister removes a connection and all of its room memberships. It
// returns the ad-hoc rooms the connection had joined so the caller can emit
// a scoped disconnect notice, and false when the connection was not
// registered.
func (r *Registry) Unregister(connID string) (*Client, []string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return nil, nil, false
	}
	delete(r.conns, connID)
	dropIndex(r.byUser, c.Identity.UserID, connID)
	dropIndex(r.byRole, string(c.Identity.Role), connID)
	if c.Identity.InstitutionID != "" {
		dropIndex(r.byInstitution, c.Identity.InstitutionID, connID)
	}
	if c.Identity.BranchID != "" {
		dropIndex(r.byBranch, c.Identity.BranchID, connID)
	}

	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
		dropIndex(r.byRoom, room, connID)
	}

	r.logger.Debug("connection unregistered",
		zap.String("connId", connID),
		zap.String("userId", c.Identity.UserID),
	)
	return c, rooms, true
}

// JoinRoom adds an ad-hoc room membership, independent of identity rooms.
func (r *Registry) JoinRoom(connID, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return false
	}
	c.rooms[roomID] = struct{}{}
	addIndex(r.byRoom, roomID, c)
	return true
}

// LeaveRoom removes an ad-hoc room membership.
func (r *Registry) LeaveRoom(connID, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return false
	}
	delete(c.rooms, roomID)
	dropIndex(r.byRoom, roomID, connID)
	return true
}

func snapshot(set map[string]*Client) []*Client {
	out := make([]*Client, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// ConnectionsForUser returns all live connections for a user. An empty
// result is the normal offline condition, not an error.
func (r *Registry) ConnectionsForUser(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.byUser[userID])
}

// ConnectionsForRole returns all live connections whose identity has the role.
func (r *Registry) ConnectionsForRole(role models.Role) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.byRole[string(role)])
}

// ConnectionsForInstitution returns all live connections scoped to an institution.
func (r *Registry) ConnectionsForInstitution(institutionID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.byInstitution[institutionID])
}

// ConnectionsForBranch returns all live connections scoped to a branch.
func (r *Registry) ConnectionsForBranch(branchID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.byBranch[branchID])
}

// ConnectionsForRoom returns all live connections in an ad-hoc room.
func (r *Registry) ConnectionsForRoom(roomID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.byRoom[roomID])
}

// Has reports whether a connection ID is registered.
func (r *Registry) Has(connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[connID]
	return ok
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// BroadcastToRoom pushes an event to every connection in an ad-hoc room,
// optionally excluding one connection (the sender). Send failures are
// isolated per connection.
func (r *Registry) BroadcastToRoom(roomID string, event models.Event, excludeConnID string) {
	for _, c := range r.ConnectionsForRoom(roomID) {
		if c.ID == excludeConnID {
			continue
		}
		if err := c.Send(event); err != nil {
			r.logger.Warn("room broadcast send failed",
				zap.String("room", roomID),
				zap.String("connId", c.ID),
				zap.Error(err),
			)
		}
	}
}
