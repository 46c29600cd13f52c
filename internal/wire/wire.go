// Package wire defines the realtime channel envelope and event payloads
// exchanged between Switchboard clients and the coordinating server.
package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies the kind of realtime event carried in an envelope.
type EventType string

const (
	EventCrash         EventType = "crash"
	EventPresence      EventType = "presence"
	EventAccount       EventType = "account"
	EventFriendRequest EventType = "friend-request"
	EventFriendUpdate  EventType = "friend-update"
	EventTyping        EventType = "typing"
	EventBroadcast     EventType = "broadcast"

	// EventAuthenticate is the control frame a client must send before any
	// other event from its connection is attributed to a user.
	EventAuthenticate EventType = "authenticate"
)

// Presence status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Event is the wire envelope. Payload holds the type-specific body.
// Events are immutable once constructed and delivered at-least-once;
// consumers must tolerate duplicates.
type Event struct {
	Type EventType `json:"type"`
	// Seq is a monotonic per-sender counter stamped by the sending client's
	// bus. It lets receivers detect duplicates; there is no cross-sender
	// ordering.
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an envelope of the given type around payload.
func NewEvent(t EventType, payload any) (Event, error) {
	if payload == nil {
		return Event{Type: t}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("wire: marshal %s payload: %w", t, err)
	}
	return Event{Type: t, Payload: raw}, nil
}

// Decode unmarshals the envelope payload into dst.
func (e Event) Decode(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("wire: %s event has no payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("wire: decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Unicast reports whether events of type t are delivered to a single
// recipient rather than broadcast. Typing indicators and friend requests
// are unicast; everything else fans out to all connections.
func Unicast(t EventType) bool {
	return t == EventTyping || t == EventFriendRequest
}

// Target extracts the recipient user ID from a unicast event payload.
// Returns "" when the payload carries no recipient.
func Target(e Event) string {
	var p struct {
		To string `json:"to"`
	}
	if len(e.Payload) == 0 {
		return ""
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return ""
	}
	return p.To
}

// Authenticate is the control payload binding a connection to a user.
type Authenticate struct {
	UserID   string `json:"userId"`
	Identity string `json:"identity"`
}

// Presence announces a user's online/offline transition.
type Presence struct {
	UserID     string    `json:"userId"`
	Identity   string    `json:"identity"`
	Status     string    `json:"status"`
	LastSeenAt time.Time `json:"lastSeenAt,omitempty"`
}

// Crash reports a client-side crash for fleet diagnostics.
type Crash struct {
	UserID  string    `json:"userId"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Account announces an account-level change (rename, avatar, deletion).
type Account struct {
	UserID string `json:"userId"`
	Action string `json:"action"`
	Detail string `json:"detail,omitempty"`
}

// FriendRequest asks another user for a friend connection. Unicast.
type FriendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message,omitempty"`
}

// FriendUpdate announces an accepted/declined/removed friend relation.
type FriendUpdate struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Status string `json:"status"`
}

// Typing signals that a user is typing in a conversation. Unicast.
type Typing struct {
	From         string `json:"from"`
	To           string `json:"to"`
	Conversation string `json:"conversation,omitempty"`
}

// Broadcast carries a free-form announcement to all connected clients.
type Broadcast struct {
	From string `json:"from,omitempty"`
	Text string `json:"text"`
}
