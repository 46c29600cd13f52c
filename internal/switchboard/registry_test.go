package switchboard

import (
	"sync"
	"testing"
	"time"

	"github.com/zulandar/switchboard/internal/wire"
)

type mockSender struct {
	mu     sync.Mutex
	events []wire.Event
}

func (s *mockSender) WriteEvent(ev wire.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *mockSender) Close() error { return nil }

func (s *mockSender) Events() []wire.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *mockSender) lastOfType(t wire.EventType) (wire.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Type == t {
			return s.events[i], true
		}
	}
	return wire.Event{}, false
}

func newTestRegistry() *Registry {
	return NewRegistry(RegistryOpts{
		Now: func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
}

func authFrame(t *testing.T, userID, identity string) wire.Event {
	t.Helper()
	ev, err := wire.NewEvent(wire.EventAuthenticate, wire.Authenticate{UserID: userID, Identity: identity})
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

func TestAuthenticate_BroadcastsOnline(t *testing.T) {
	r := newTestRegistry()
	alice, bob := &mockSender{}, &mockSender{}
	r.Register("c1", alice)
	r.Register("c2", bob)

	r.HandleEvent("c1", authFrame(t, "alice", "Alice"))

	ev, ok := bob.lastOfType(wire.EventPresence)
	if !ok {
		t.Fatal("bob received no presence event")
	}
	var p wire.Presence
	if err := ev.Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.UserID != "alice" || p.Status != wire.StatusOnline {
		t.Errorf("presence = %+v, want alice online", p)
	}
	if !r.Online("alice") {
		t.Error("alice should be online")
	}
}

func TestUnregister_BroadcastsOffline(t *testing.T) {
	r := newTestRegistry()
	alice, bob := &mockSender{}, &mockSender{}
	r.Register("c1", alice)
	r.Register("c2", bob)
	r.HandleEvent("c1", authFrame(t, "alice", "Alice"))

	r.Unregister("c1")

	ev, ok := bob.lastOfType(wire.EventPresence)
	if !ok {
		t.Fatal("bob received no presence event")
	}
	var p wire.Presence
	if err := ev.Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.UserID != "alice" || p.Status != wire.StatusOffline {
		t.Errorf("presence = %+v, want alice offline", p)
	}
	if p.LastSeenAt.IsZero() {
		t.Error("offline presence should carry lastSeenAt")
	}
	if r.Online("alice") {
		t.Error("alice should be offline")
	}
}

func TestUnregister_OfflineSuppressedAfterRebind(t *testing.T) {
	r := newTestRegistry()
	old, fresh, bob := &mockSender{}, &mockSender{}, &mockSender{}
	r.Register("c1", old)
	r.HandleEvent("c1", authFrame(t, "alice", "Alice"))

	// Alice reconnects before the old connection is torn down.
	r.Register("c2", fresh)
	r.HandleEvent("c2", authFrame(t, "alice", "Alice"))

	r.Register("c3", bob)
	r.Unregister("c1")

	if ev, ok := bob.lastOfType(wire.EventPresence); ok {
		var p wire.Presence
		if err := ev.Decode(&p); err == nil && p.Status == wire.StatusOffline {
			t.Error("stale connection close must not emit offline")
		}
	}
	if !r.Online("alice") {
		t.Error("alice should still be online via the fresh connection")
	}
}

func TestHandleEvent_DropsPreAuth(t *testing.T) {
	r := newTestRegistry()
	anon, bob := &mockSender{}, &mockSender{}
	r.Register("c1", anon)
	r.Register("c2", bob)

	ev, _ := wire.NewEvent(wire.EventBroadcast, wire.Broadcast{Text: "hi"})
	r.HandleEvent("c1", ev)

	if _, ok := bob.lastOfType(wire.EventBroadcast); ok {
		t.Error("event from unauthenticated connection must be dropped")
	}
}

func TestHandleEvent_UnicastTyping(t *testing.T) {
	r := newTestRegistry()
	alice, bob, carol := &mockSender{}, &mockSender{}, &mockSender{}
	r.Register("c1", alice)
	r.Register("c2", bob)
	r.Register("c3", carol)
	r.HandleEvent("c1", authFrame(t, "alice", "Alice"))
	r.HandleEvent("c2", authFrame(t, "bob", "Bob"))
	r.HandleEvent("c3", authFrame(t, "carol", "Carol"))

	typing, _ := wire.NewEvent(wire.EventTyping, wire.Typing{From: "alice", To: "bob"})
	r.HandleEvent("c1", typing)

	if _, ok := bob.lastOfType(wire.EventTyping); !ok {
		t.Error("bob should receive the typing event")
	}
	if _, ok := carol.lastOfType(wire.EventTyping); ok {
		t.Error("carol must not receive a typing event addressed to bob")
	}
}

func TestHandleEvent_UnicastToOfflineUser(t *testing.T) {
	r := newTestRegistry()
	alice := &mockSender{}
	r.Register("c1", alice)
	r.HandleEvent("c1", authFrame(t, "alice", "Alice"))

	// No connection for bob; must not panic and must not loop back.
	fr, _ := wire.NewEvent(wire.EventFriendRequest, wire.FriendRequest{From: "alice", To: "bob"})
	r.HandleEvent("c1", fr)

	if _, ok := alice.lastOfType(wire.EventFriendRequest); ok {
		t.Error("sender must not receive its own unicast event")
	}
}

func TestSendToUser(t *testing.T) {
	r := newTestRegistry()
	bob := &mockSender{}
	r.Register("c1", bob)
	r.HandleEvent("c1", authFrame(t, "bob", "Bob"))

	ev, _ := wire.NewEvent(wire.EventFriendRequest, wire.FriendRequest{From: "alice", To: "bob"})
	if !r.SendToUser("bob", ev) {
		t.Error("SendToUser = false for online user")
	}
	if r.SendToUser("ghost", ev) {
		t.Error("SendToUser = true for unknown user")
	}
}

func TestHandleEvent_BroadcastFansOut(t *testing.T) {
	r := newTestRegistry()
	alice, bob := &mockSender{}, &mockSender{}
	r.Register("c1", alice)
	r.Register("c2", bob)
	r.HandleEvent("c1", authFrame(t, "alice", "Alice"))

	crash, _ := wire.NewEvent(wire.EventCrash, wire.Crash{UserID: "alice", Message: "boom"})
	r.HandleEvent("c1", crash)

	// Broadcast reaches every connection, the sender's included.
	if _, ok := alice.lastOfType(wire.EventCrash); !ok {
		t.Error("alice should receive the crash broadcast")
	}
	if _, ok := bob.lastOfType(wire.EventCrash); !ok {
		t.Error("bob should receive the crash broadcast")
	}
}

func TestPresenceTable(t *testing.T) {
	r := newTestRegistry()
	alice := &mockSender{}
	r.Register("c1", alice)
	r.HandleEvent("c1", authFrame(t, "alice", "Alice"))
	r.Unregister("c1")

	recs := r.Presence()
	if len(recs) != 1 {
		t.Fatalf("len(Presence) = %d, want 1", len(recs))
	}
	if recs[0].UserID != "alice" || recs[0].Status != wire.StatusOffline {
		t.Errorf("presence record = %+v, want alice offline", recs[0])
	}
}

func TestStats(t *testing.T) {
	r := newTestRegistry()
	alice, anon := &mockSender{}, &mockSender{}
	r.Register("c1", alice)
	r.Register("c2", anon)
	r.HandleEvent("c1", authFrame(t, "alice", "Alice"))

	s := r.Stats()
	if s.Connections != 2 {
		t.Errorf("Connections = %d, want 2", s.Connections)
	}
	if s.OnlineUsers != 1 {
		t.Errorf("OnlineUsers = %d, want 1", s.OnlineUsers)
	}
	if s.Relayed == 0 {
		t.Error("Relayed should count the presence broadcast")
	}
}

func TestNextFire_FollowsSchedule(t *testing.T) {
	sched, err := cronParser.Parse("* * * * *")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	// Mid-minute, the next fire is exactly at the upcoming minute boundary.
	now := time.Date(2026, 3, 5, 10, 30, 45, 0, time.UTC)
	if d := nextFire(sched, now); d != 15*time.Second {
		t.Errorf("nextFire mid-minute = %v, want 15s", d)
	}
	// On the boundary itself, the schedule still points a full minute out,
	// never at a substitute cadence.
	boundary := time.Date(2026, 3, 5, 10, 31, 0, 0, time.UTC)
	if d := nextFire(sched, boundary); d != time.Minute {
		t.Errorf("nextFire on boundary = %v, want 1m", d)
	}
	if _, err := cronParser.Parse("not a cron"); err == nil {
		t.Error("Parse(invalid) should fail")
	}
}
