package wire

import (
	"encoding/json"
	"testing"
)

func TestNewEventAndDecode(t *testing.T) {
	ev, err := NewEvent(EventTyping, Typing{From: "alice", To: "bob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Type != EventTyping {
		t.Errorf("Type = %q, want %q", ev.Type, EventTyping)
	}

	var got Typing
	if err := ev.Decode(&got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.From != "alice" || got.To != "bob" {
		t.Errorf("decoded = %+v, want From=alice To=bob", got)
	}
}

func TestNewEvent_NilPayload(t *testing.T) {
	ev, err := NewEvent(EventCrash, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ev.Payload) != 0 {
		t.Errorf("Payload = %q, want empty", ev.Payload)
	}
	if err := ev.Decode(&Crash{}); err == nil {
		t.Error("Decode of empty payload should fail")
	}
}

func TestEvent_RoundTripsSeq(t *testing.T) {
	ev, err := NewEvent(EventBroadcast, Broadcast{Text: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ev.Seq = 42

	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Event
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Seq != 42 {
		t.Errorf("Seq = %d, want 42", back.Seq)
	}
	if back.Type != EventBroadcast {
		t.Errorf("Type = %q, want %q", back.Type, EventBroadcast)
	}
}

func TestUnicast(t *testing.T) {
	tests := []struct {
		t    EventType
		want bool
	}{
		{EventTyping, true},
		{EventFriendRequest, true},
		{EventPresence, false},
		{EventCrash, false},
		{EventAccount, false},
		{EventBroadcast, false},
		{EventFriendUpdate, false},
	}
	for _, tt := range tests {
		if got := Unicast(tt.t); got != tt.want {
			t.Errorf("Unicast(%q) = %v, want %v", tt.t, got, tt.want)
		}
	}
}

func TestTarget(t *testing.T) {
	ev, err := NewEvent(EventFriendRequest, FriendRequest{From: "alice", To: "bob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := Target(ev); got != "bob" {
		t.Errorf("Target = %q, want %q", got, "bob")
	}

	noTo, err := NewEvent(EventBroadcast, Broadcast{Text: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := Target(noTo); got != "" {
		t.Errorf("Target without recipient = %q, want empty", got)
	}

	if got := Target(Event{Type: EventTyping}); got != "" {
		t.Errorf("Target with no payload = %q, want empty", got)
	}
}
