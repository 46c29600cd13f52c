package store

import (
	"testing"
	"time"
)

func TestAppendMessage_CreatesConversation(t *testing.T) {
	s := New()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.AppendMessage("+15550002222", Message{
		ID:        "m1",
		Text:      "hey",
		Direction: DirectionInbound,
		Timestamp: ts,
	})

	conv, ok := s.Conversation("+15550002222")
	if !ok {
		t.Fatal("conversation not created")
	}
	if len(conv.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(conv.Messages))
	}
	if conv.LastMessage != "hey" {
		t.Errorf("LastMessage = %q, want hey", conv.LastMessage)
	}
	if !conv.LastTimestamp.Equal(ts) {
		t.Errorf("LastTimestamp = %v, want %v", conv.LastTimestamp, ts)
	}
	if conv.UnreadCount != 1 {
		t.Errorf("UnreadCount = %d, want 1", conv.UnreadCount)
	}
}

func TestAppendMessage_DuplicateIDSkipped(t *testing.T) {
	s := New()
	s.AppendMessage("+15550002222", Message{ID: "m1", Text: "first", Direction: DirectionInbound})
	s.AppendMessage("+15550002222", Message{ID: "m1", Text: "echo", Direction: DirectionInbound})

	conv, _ := s.Conversation("+15550002222")
	if len(conv.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1 after duplicate", len(conv.Messages))
	}
	if conv.Messages[0].Text != "first" {
		t.Errorf("Text = %q, want the original message kept", conv.Messages[0].Text)
	}
	if conv.UnreadCount != 1 {
		t.Errorf("UnreadCount = %d, want 1 (duplicate must not bump it)", conv.UnreadCount)
	}
}

func TestAppendMessage_UnreadSkippedWhileOpen(t *testing.T) {
	s := New()
	s.SetOpenConversation("+15550002222")
	s.AppendMessage("+15550002222", Message{ID: "m1", Direction: DirectionInbound})

	conv, _ := s.Conversation("+15550002222")
	if conv.UnreadCount != 0 {
		t.Errorf("UnreadCount = %d, want 0 while conversation is open", conv.UnreadCount)
	}

	// Outbound messages never count as unread either.
	s.SetOpenConversation("")
	s.AppendMessage("+15550002222", Message{ID: "m2", Direction: DirectionOutbound})
	conv, _ = s.Conversation("+15550002222")
	if conv.UnreadCount != 0 {
		t.Errorf("UnreadCount = %d, want 0 for outbound", conv.UnreadCount)
	}
}

func TestSetOpenConversation_ResetsUnread(t *testing.T) {
	s := New()
	s.AppendMessage("+15550002222", Message{ID: "m1", Direction: DirectionInbound})
	s.AppendMessage("+15550002222", Message{ID: "m2", Direction: DirectionInbound})

	conv, _ := s.Conversation("+15550002222")
	if conv.UnreadCount != 2 {
		t.Fatalf("UnreadCount = %d, want 2", conv.UnreadCount)
	}

	s.SetOpenConversation("+15550002222")
	conv, _ = s.Conversation("+15550002222")
	if conv.UnreadCount != 0 {
		t.Errorf("UnreadCount = %d, want 0 after opening", conv.UnreadCount)
	}
}

func TestUpdateDeliveryState(t *testing.T) {
	s := New()
	s.AppendMessage("+15550002222", Message{ID: "local-1", Direction: DirectionOutbound, DeliveryState: DeliverySending})

	s.UpdateDeliveryState("+15550002222", "local-1", DeliverySent)
	conv, _ := s.Conversation("+15550002222")
	if conv.Messages[0].DeliveryState != DeliverySent {
		t.Errorf("DeliveryState = %q, want sent", conv.Messages[0].DeliveryState)
	}

	// Unknown IDs are absorbed without panicking.
	s.UpdateDeliveryState("+15550002222", "nope", DeliveryFailed)
	s.UpdateDeliveryState("+15559999999", "local-1", DeliveryFailed)
}

func TestConversations_SortedMostRecentFirst(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.AppendMessage("+15550001111", Message{ID: "a", Timestamp: base})
	s.AppendMessage("+15550002222", Message{ID: "b", Timestamp: base.Add(time.Hour)})
	s.AppendMessage("+15550003333", Message{ID: "c", Timestamp: base.Add(30 * time.Minute)})

	convs := s.Conversations()
	if len(convs) != 3 {
		t.Fatalf("len = %d, want 3", len(convs))
	}
	want := []string{"+15550002222", "+15550003333", "+15550001111"}
	for i, w := range want {
		if convs[i].PhoneNumber != w {
			t.Errorf("convs[%d] = %s, want %s", i, convs[i].PhoneNumber, w)
		}
	}
}

func TestSetCallDuration_MatchesBySessionID(t *testing.T) {
	s := New()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Two calls to the same number; durations must land on the right entry.
	s.AppendCallLog(CallLogEntry{SessionID: "s1", PhoneNumber: "+15550002222", Type: CallOutgoing, StartedAt: start})
	s.AppendCallLog(CallLogEntry{SessionID: "s2", PhoneNumber: "+15550002222", Type: CallOutgoing, StartedAt: start.Add(time.Hour)})

	s.SetCallDuration("s1", 30)
	s.SetCallDuration("s2", 90)

	calls := s.CallLog()
	if len(calls) != 2 {
		t.Fatalf("len(calls) = %d, want 2", len(calls))
	}
	if calls[0].DurationSeconds == nil || *calls[0].DurationSeconds != 30 {
		t.Errorf("calls[0] duration = %v, want 30", calls[0].DurationSeconds)
	}
	if calls[1].DurationSeconds == nil || *calls[1].DurationSeconds != 90 {
		t.Errorf("calls[1] duration = %v, want 90", calls[1].DurationSeconds)
	}
}

func TestSetCallDuration_UnknownSessionIsNoOp(t *testing.T) {
	s := New()
	s.SetCallDuration("ghost", 10)
	if len(s.CallLog()) != 0 {
		t.Error("no entry should exist")
	}
}

func TestSubscribe_OrderAndUnsubscribe(t *testing.T) {
	s := New()
	var order []string
	unsubA := s.Subscribe(func(Change) { order = append(order, "a") })
	s.Subscribe(func(Change) { order = append(order, "b") })

	s.AppendMessage("+15550002222", Message{ID: "m1"})
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("order = %v, want [a b]", order)
	}

	unsubA()
	order = nil
	s.AppendMessage("+15550002222", Message{ID: "m2"})
	if len(order) != 1 || order[0] != "b" {
		t.Errorf("order after unsubscribe = %v, want [b]", order)
	}
}

func TestSubscribe_ChangePayload(t *testing.T) {
	s := New()
	var got []Change
	s.Subscribe(func(ch Change) { got = append(got, ch) })

	s.AppendCallLog(CallLogEntry{SessionID: "s1"})
	s.AppendMessage("+15550002222", Message{ID: "m1"})

	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Kind != ChangeCallLog || got[0].SessionID != "s1" {
		t.Errorf("first change = %+v", got[0])
	}
	if got[1].Kind != ChangeConversation || got[1].PhoneNumber != "+15550002222" {
		t.Errorf("second change = %+v", got[1])
	}
}
