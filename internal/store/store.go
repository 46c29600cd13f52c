// Package store holds the client's in-memory call log and SMS conversation
// state. It is mutated only by the call coordinator and the message poller
// and notifies subscribers (the UI layer) on every change. Nothing here is
// persisted; process restart starts from an empty store.
package store

import (
	"log"
	"sort"
	"sync"
	"time"
)

// Direction of an SMS message relative to this client.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// DeliveryState of an outbound SMS message.
type DeliveryState string

const (
	DeliverySending   DeliveryState = "sending"
	DeliverySent      DeliveryState = "sent"
	DeliveryDelivered DeliveryState = "delivered"
	DeliveryFailed    DeliveryState = "failed"
)

// CallType distinguishes call-log entries.
type CallType string

const (
	CallOutgoing CallType = "outgoing"
	CallIncoming CallType = "incoming"
)

// Message is a single SMS within a conversation. ID is the provider message
// ID for inbound messages and a locally generated ID for outbound ones.
type Message struct {
	ID            string
	Text          string
	Direction     Direction
	Timestamp     time.Time
	DeliveryState DeliveryState
}

// Conversation groups messages exchanged with one phone number.
type Conversation struct {
	ID            string
	PhoneNumber   string
	Messages      []Message
	LastMessage   string
	LastTimestamp time.Time
	UnreadCount   int
}

// CallLogEntry records one placed or received call. Duration is nil until
// the call completes; the coordinator writes it back by SessionID.
type CallLogEntry struct {
	SessionID       string
	PhoneNumber     string
	Type            CallType
	StartedAt       time.Time
	DurationSeconds *int
}

// ChangeKind identifies what a change notification refers to.
type ChangeKind string

const (
	ChangeCallLog      ChangeKind = "call-log"
	ChangeConversation ChangeKind = "conversation"
)

// Change describes a single store mutation delivered to subscribers.
type Change struct {
	Kind        ChangeKind
	PhoneNumber string // set for conversation changes
	SessionID   string // set for call-log changes
}

type subscriber struct {
	id int
	fn func(Change)
}

// Store is the in-memory conversation and call-log state.
type Store struct {
	mu      sync.RWMutex
	calls   []CallLogEntry
	convs   map[string]*Conversation
	open    string // phone number of the conversation open in the UI
	subs    []subscriber
	nextSub int
}

// New creates an empty Store.
func New() *Store {
	return &Store{convs: make(map[string]*Conversation)}
}

// Subscribe registers fn for change notifications and returns an
// unsubscribe func. Notifications are delivered synchronously in
// subscription order.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// notify delivers a change to all subscribers. Callers must not hold mu.
func (s *Store) notify(ch Change) {
	s.mu.RLock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.RUnlock()
	for _, sub := range subs {
		sub.fn(ch)
	}
}

// AppendCallLog adds a call-log entry.
func (s *Store) AppendCallLog(entry CallLogEntry) {
	s.mu.Lock()
	s.calls = append(s.calls, entry)
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeCallLog, SessionID: entry.SessionID})
}

// SetCallDuration writes the final duration onto the entry with the given
// session ID. A missing entry is absorbed as a logged no-op; losing one UI
// update is cheaper than failing the caller.
func (s *Store) SetCallDuration(sessionID string, seconds int) {
	s.mu.Lock()
	found := false
	for i := range s.calls {
		if s.calls[i].SessionID == sessionID {
			d := seconds
			s.calls[i].DurationSeconds = &d
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		log.Printf("store: no call-log entry for session %s, dropping duration write", sessionID)
		return
	}
	s.notify(Change{Kind: ChangeCallLog, SessionID: sessionID})
}

// CallLog returns a copy of all call-log entries, oldest first.
func (s *Store) CallLog() []CallLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CallLogEntry, len(s.calls))
	copy(out, s.calls)
	return out
}

// AppendMessage merges a message into the conversation keyed by phone
// number, creating the conversation on first contact. A message ID already
// present in the conversation is absorbed as a no-op. Inbound messages
// increment the unread count unless the conversation is currently open.
func (s *Store) AppendMessage(phoneNumber string, msg Message) {
	s.mu.Lock()
	conv, ok := s.convs[phoneNumber]
	if !ok {
		conv = &Conversation{ID: phoneNumber, PhoneNumber: phoneNumber}
		s.convs[phoneNumber] = conv
	}
	for _, existing := range conv.Messages {
		if existing.ID == msg.ID {
			s.mu.Unlock()
			log.Printf("store: duplicate message %s for %s, skipping", msg.ID, phoneNumber)
			return
		}
	}
	conv.Messages = append(conv.Messages, msg)
	conv.LastMessage = msg.Text
	conv.LastTimestamp = msg.Timestamp
	if msg.Direction == DirectionInbound && s.open != phoneNumber {
		conv.UnreadCount++
	}
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeConversation, PhoneNumber: phoneNumber})
}

// UpdateDeliveryState flips the delivery state of a message. Unknown
// conversation or message IDs are absorbed as logged no-ops.
func (s *Store) UpdateDeliveryState(phoneNumber, msgID string, state DeliveryState) {
	s.mu.Lock()
	conv, ok := s.convs[phoneNumber]
	found := false
	if ok {
		for i := range conv.Messages {
			if conv.Messages[i].ID == msgID {
				conv.Messages[i].DeliveryState = state
				found = true
				break
			}
		}
	}
	s.mu.Unlock()
	if !found {
		log.Printf("store: message %s not found in %s, dropping state %s", msgID, phoneNumber, state)
		return
	}
	s.notify(Change{Kind: ChangeConversation, PhoneNumber: phoneNumber})
}

// SetOpenConversation marks the conversation for phoneNumber as open in the
// UI; its unread count resets immediately and stays at zero while open.
// Pass "" when the user leaves the conversation screen.
func (s *Store) SetOpenConversation(phoneNumber string) {
	s.mu.Lock()
	s.open = phoneNumber
	var changed bool
	if conv, ok := s.convs[phoneNumber]; ok && conv.UnreadCount > 0 {
		conv.UnreadCount = 0
		changed = true
	}
	s.mu.Unlock()
	if changed {
		s.notify(Change{Kind: ChangeConversation, PhoneNumber: phoneNumber})
	}
}

// Conversation returns a copy of the conversation for phoneNumber.
func (s *Store) Conversation(phoneNumber string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.convs[phoneNumber]
	if !ok {
		return Conversation{}, false
	}
	return copyConversation(conv), true
}

// Conversations returns copies of all conversations, most recent first.
func (s *Store) Conversations() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Conversation, 0, len(s.convs))
	for _, conv := range s.convs {
		out = append(out, copyConversation(conv))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastTimestamp.After(out[j].LastTimestamp)
	})
	return out
}

func copyConversation(conv *Conversation) Conversation {
	cp := *conv
	cp.Messages = make([]Message, len(conv.Messages))
	copy(cp.Messages, conv.Messages)
	return cp
}
