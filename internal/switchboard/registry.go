// Package switchboard implements the coordinating server of the realtime
// layer: per-connection identity binding, the presence table, and event
// fan-out to connected clients.
package switchboard

import (
	"log"
	"sync"
	"time"

	"github.com/zulandar/switchboard/internal/wire"
)

// sender is the write side of one client connection.
type sender interface {
	WriteEvent(wire.Event) error
	Close() error
}

// connection is the registry's view of one live transport connection.
type connection struct {
	id       string
	userID   string // empty until authenticated
	identity string
	conn     sender
}

// Registry owns all cross-connection shared state: the connection set, the
// userID binding map, and the presence table. All mutation is serialized
// behind one mutex; the registry has process lifetime and no persistence.
type Registry struct {
	mu       sync.Mutex
	conns    map[string]*connection // connID -> connection
	byUser   map[string]string      // userID -> connID, last writer wins
	presence map[string]wire.Presence
	relayed  uint64
	now      func() time.Time
}

// RegistryOpts holds parameters for creating a Registry.
type RegistryOpts struct {
	Now func() time.Time // injectable clock; defaults to time.Now
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts RegistryOpts) *Registry {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		conns:    make(map[string]*connection),
		byUser:   make(map[string]string),
		presence: make(map[string]wire.Presence),
		now:      now,
	}
}

// Register adds a fresh, unauthenticated connection.
func (r *Registry) Register(connID string, conn sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = &connection{id: connID, conn: conn}
}

// Authenticate binds the connection to a user, replacing any prior binding
// for that userID (last writer wins; no multi-device fan-out). The user's
// presence flips online and is broadcast to every connection.
func (r *Registry) Authenticate(connID, userID, identity string) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	c.userID = userID
	c.identity = identity
	r.byUser[userID] = connID
	rec := wire.Presence{
		UserID:   userID,
		Identity: identity,
		Status:   wire.StatusOnline,
	}
	r.presence[userID] = rec
	r.mu.Unlock()

	ev, err := wire.NewEvent(wire.EventPresence, rec)
	if err != nil {
		log.Printf("switchboard: build presence event: %v", err)
		return
	}
	r.Broadcast(ev)
}

// Unregister removes a closed connection. The offline presence event is
// suppressed when a newer connection has since rebound the same userID;
// a fast reconnect must not read as a flap.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, connID)

	emitOffline := false
	var rec wire.Presence
	if c.userID != "" && r.byUser[c.userID] == connID {
		delete(r.byUser, c.userID)
		rec = wire.Presence{
			UserID:     c.userID,
			Identity:   c.identity,
			Status:     wire.StatusOffline,
			LastSeenAt: r.now(),
		}
		r.presence[c.userID] = rec
		emitOffline = true
	}
	r.mu.Unlock()

	if !emitOffline {
		return
	}
	ev, err := wire.NewEvent(wire.EventPresence, rec)
	if err != nil {
		log.Printf("switchboard: build presence event: %v", err)
		return
	}
	r.Broadcast(ev)
}

// Broadcast sends the event to every open connection unconditionally.
func (r *Registry) Broadcast(ev wire.Event) {
	r.mu.Lock()
	targets := make([]*connection, 0, len(r.conns))
	for _, c := range r.conns {
		targets = append(targets, c)
	}
	r.relayed++
	r.mu.Unlock()

	for _, c := range targets {
		if err := c.conn.WriteEvent(ev); err != nil {
			log.Printf("switchboard: broadcast %s to conn %s: %v", ev.Type, c.id, err)
		}
	}
}

// SendToUser delivers the event to the connection currently bound to
// userID. Returns false when the user has no live binding; the caller
// must treat that as "recipient offline", not an error.
func (r *Registry) SendToUser(userID string, ev wire.Event) bool {
	r.mu.Lock()
	connID, ok := r.byUser[userID]
	var c *connection
	if ok {
		c = r.conns[connID]
	}
	if c != nil {
		r.relayed++
	}
	r.mu.Unlock()

	if c == nil {
		return false
	}
	if err := c.conn.WriteEvent(ev); err != nil {
		log.Printf("switchboard: send %s to user %s: %v", ev.Type, userID, err)
		return false
	}
	return true
}

// HandleEvent routes one inbound event from a connection. Events from
// unauthenticated connections are dropped until the authenticate control
// frame arrives. Typing and friend-request events are unicast; all other
// types fan out to every connection.
func (r *Registry) HandleEvent(connID string, ev wire.Event) {
	if ev.Type == wire.EventAuthenticate {
		var auth wire.Authenticate
		if err := ev.Decode(&auth); err != nil {
			log.Printf("switchboard: conn %s: bad authenticate frame: %v", connID, err)
			return
		}
		if auth.UserID == "" {
			log.Printf("switchboard: conn %s: authenticate without userId", connID)
			return
		}
		r.Authenticate(connID, auth.UserID, auth.Identity)
		return
	}

	r.mu.Lock()
	c, ok := r.conns[connID]
	authed := ok && c.userID != ""
	r.mu.Unlock()
	if !authed {
		log.Printf("switchboard: conn %s: dropping %s before authenticate", connID, ev.Type)
		return
	}

	if wire.Unicast(ev.Type) {
		target := wire.Target(ev)
		if target == "" {
			log.Printf("switchboard: conn %s: %s without recipient", connID, ev.Type)
			return
		}
		if !r.SendToUser(target, ev) {
			log.Printf("switchboard: %s for %s: recipient offline", ev.Type, target)
		}
		return
	}

	r.Broadcast(ev)
}

// Presence returns a copy of the presence table.
func (r *Registry) Presence() []wire.Presence {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wire.Presence, 0, len(r.presence))
	for _, rec := range r.presence {
		out = append(out, rec)
	}
	return out
}

// Online reports whether userID currently has a live connection binding.
func (r *Registry) Online(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byUser[userID]
	return ok
}

// Stats is a point-in-time summary for the digest log.
type Stats struct {
	Connections int
	OnlineUsers int
	Relayed     uint64
}

// Stats returns the current registry counters.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Connections: len(r.conns),
		OnlineUsers: len(r.byUser),
		Relayed:     r.relayed,
	}
}
