package realtime

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"campushub/models"

	"go.uber.org/zap"
)

// fakeSocket records everything written to it.
type fakeSocket struct {
	mu     sync.Mutex
	events []models.Event
	closed bool
}

func (s *fakeSocket) WriteJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event, ok := v.(models.Event); ok {
		s.events = append(s.events, event)
	}
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSocket) received() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Event, len(s.events))
	copy(out, s.events)
	return out
}

func newTestClient(id string, identity models.Identity) (*Client, *fakeSocket) {
	sock := &fakeSocket{}
	c := NewClient(id, identity, sock, zap.NewNop())
	go c.WritePump()
	return c, sock
}

func waitForEvents(t *testing.T, sock *fakeSocket, want int) []models.Event {
	t.Helper()
	deadline := time.Now().Add(1500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if events := sock.received(); len(events) >= want {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}
	events := sock.received()
	t.Fatalf("expected %d events, got %d", want, len(events))
	return events
}

func TestRegisterIndexesIdentityDimensions(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	c, _ := newTestClient("c1", models.Identity{
		UserID:        "u1",
		Role:          models.RoleStudent,
		InstitutionID: "inst1",
		BranchID:      "b1",
	})
	defer c.Close()
	r.Register(c)

	if got := len(r.ConnectionsForUser("u1")); got != 1 {
		t.Errorf("ConnectionsForUser = %d, want 1", got)
	}
	if got := len(r.ConnectionsForRole(models.RoleStudent)); got != 1 {
		t.Errorf("ConnectionsForRole = %d, want 1", got)
	}
	if got := len(r.ConnectionsForInstitution("inst1")); got != 1 {
		t.Errorf("ConnectionsForInstitution = %d, want 1", got)
	}
	if got := len(r.ConnectionsForBranch("b1")); got != 1 {
		t.Errorf("ConnectionsForBranch = %d, want 1", got)
	}
	if got := len(r.ConnectionsForUser("other")); got != 0 {
		t.Errorf("ConnectionsForUser(other) = %d, want 0", got)
	}
}

func TestMultipleConnectionsPerUserAreFirstClass(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	identity := models.Identity{UserID: "u1", Role: models.RoleStudent}

	var socks []*fakeSocket
	for i := 0; i < 3; i++ {
		c, sock := newTestClient(fmt.Sprintf("c%d", i), identity)
		defer c.Close()
		r.Register(c)
		socks = append(socks, sock)
	}

	conns := r.ConnectionsForUser("u1")
	if len(conns) != 3 {
		t.Fatalf("ConnectionsForUser = %d, want 3", len(conns))
	}

	event := models.Event{Event: "notification:new", SentAt: time.Now()}
	for _, c := range conns {
		if err := c.Send(event); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	for i, sock := range socks {
		events := waitForEvents(t, sock, 1)
		if events[0].Event != "notification:new" {
			t.Errorf("connection %d got event %q", i, events[0].Event)
		}
	}
}

func TestUnregisterRemovesAllMemberships(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	c, _ := newTestClient("c1", models.Identity{
		UserID:        "u1",
		Role:          models.RoleProfessor,
		InstitutionID: "inst1",
	})
	defer c.Close()
	r.Register(c)
	r.JoinRoom("c1", "course:math101")

	_, rooms, ok := r.Unregister("c1")
	if !ok {
		t.Fatal("Unregister returned false for a registered connection")
	}
	if len(rooms) != 1 || rooms[0] != "course:math101" {
		t.Errorf("rooms = %v, want [course:math101]", rooms)
	}
	if r.Has("c1") {
		t.Error("connection still registered after Unregister")
	}
	if got := len(r.ConnectionsForUser("u1")); got != 0 {
		t.Errorf("ConnectionsForUser = %d after Unregister, want 0", got)
	}
	if got := len(r.ConnectionsForRole(models.RoleProfessor)); got != 0 {
		t.Errorf("ConnectionsForRole = %d after Unregister, want 0", got)
	}
	if got := len(r.ConnectionsForRoom("course:math101")); got != 0 {
		t.Errorf("ConnectionsForRoom = %d after Unregister, want 0", got)
	}
}

func TestRoleFanOutTargetsOnlyMatchingRole(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	s1, sock1 := newTestClient("c1", models.Identity{UserID: "u1", Role: models.RoleStudent})
	s2, sock2 := newTestClient("c2", models.Identity{UserID: "u2", Role: models.RoleStudent})
	p1, sock3 := newTestClient("c3", models.Identity{UserID: "u3", Role: models.RoleProfessor})
	defer s1.Close()
	defer s2.Close()
	defer p1.Close()
	r.Register(s1)
	r.Register(s2)
	r.Register(p1)

	event := models.Event{Event: "notice:posted", SentAt: time.Now()}
	for _, c := range r.ConnectionsForRole(models.RoleStudent) {
		if err := c.Send(event); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	waitForEvents(t, sock1, 1)
	waitForEvents(t, sock2, 1)

	time.Sleep(50 * time.Millisecond)
	if got := sock3.received(); len(got) != 0 {
		t.Errorf("professor connection received %d events, want 0", len(got))
	}
}

func TestJoinLeaveRoomBroadcast(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	c1, sock1 := newTestClient("c1", models.Identity{UserID: "u1", Role: models.RoleStudent})
	c2, sock2 := newTestClient("c2", models.Identity{UserID: "u2", Role: models.RoleStudent})
	defer c1.Close()
	defer c2.Close()
	r.Register(c1)
	r.Register(c2)

	r.JoinRoom("c1", "study-group")
	r.JoinRoom("c2", "study-group")

	r.BroadcastToRoom("study-group", models.Event{Event: models.EventTyping, SentAt: time.Now()}, "c1")

	waitForEvents(t, sock2, 1)
	time.Sleep(20 * time.Millisecond)
	if got := sock1.received(); len(got) != 0 {
		t.Errorf("sender received its own room broadcast (%d events)", len(got))
	}

	r.LeaveRoom("c2", "study-group")
	if got := len(r.ConnectionsForRoom("study-group")); got != 1 {
		t.Errorf("ConnectionsForRoom = %d after leave, want 1", got)
	}
}

func TestConcurrentRegisterUnregister(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			c, _ := newTestClient(id, models.Identity{
				UserID: fmt.Sprintf("u%d", i%10),
				Role:   models.RoleStudent,
			})
			r.Register(c)
			r.JoinRoom(id, "shared")
			r.Unregister(id)
			c.Close()
		}(i)
	}
	wg.Wait()

	if got := r.Len(); got != 0 {
		t.Errorf("registry has %d connections after churn, want 0", got)
	}
	if got := len(r.ConnectionsForRoom("shared")); got != 0 {
		t.Errorf("room index has %d connections after churn, want 0", got)
	}
}

func TestSlowConsumerSendDoesNotBlock(t *testing.T) {
	// No WritePump: the buffer fills and Send must fail fast, not block.
	sock := &fakeSocket{}
	c := NewClient("c1", models.Identity{UserID: "u1", Role: models.RoleStudent}, sock, zap.NewNop())
	defer c.Close()

	var full bool
	for i := 0; i < sendBufferSize+1; i++ {
		if err := c.Send(models.Event{Event: "notification:new"}); err != nil {
			full = true
			break
		}
	}
	if !full {
		t.Error("Send never failed with a full buffer and no consumer")
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	c, _ := newTestClient("c1", models.Identity{UserID: "u1", Role: models.RoleStudent})
	c.Close()
	if err := c.Send(models.Event{Event: "notification:new"}); err == nil {
		t.Error("Send succeeded on a closed client")
	}
}
