// Package partyline implements the client side of the realtime channel: one
// persistent connection to the coordinating server, an offline send queue,
// and fan-out of received events to subscribers. The name is the old
// telephone party line, one shared wire everyone on it hears.
package partyline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zulandar/switchboard/internal/wire"
)

// State of the bus connection.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// DefaultQueueCapacity bounds the offline queue; the oldest event is
// dropped on overflow. Sustained disconnection is explicitly lossy.
const DefaultQueueCapacity = 100

// DefaultReconnectDelay is the fixed delay between reconnect attempts.
// Reconnection is retried indefinitely; only Close is terminal.
const DefaultReconnectDelay = 3 * time.Second

// Conn is one established realtime connection.
type Conn interface {
	ReadEvent() (wire.Event, error)
	WriteEvent(wire.Event) error
	Close() error
}

// Dialer establishes realtime connections, enabling test mocks.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type subscriber struct {
	id int
	fn func(wire.Event)
}

// Bus maintains the realtime connection and the client's read-side caches.
type Bus struct {
	url            string
	userID         string
	identity       string
	dialer         Dialer
	reconnectDelay time.Duration
	queueCap       int

	mu      sync.Mutex
	state   State
	conn    Conn
	queue   []wire.Event
	seq     uint64
	subs    []subscriber
	nextSub int
	running bool
	closed  bool
	cancel  context.CancelFunc

	// read-side caches, merged before subscriber fan-out
	presence map[string]wire.Presence
	crashes  []wire.Crash
	accounts []wire.Account

	// duplicate detection for seq-stamped deliveries
	seen      map[string]struct{}
	seenOrder []string
}

// BusOpts holds parameters for creating a Bus.
type BusOpts struct {
	ServerURL      string
	UserID         string
	Identity       string        // defaults to UserID
	Dialer         Dialer        // defaults to the websocket dialer
	ReconnectDelay time.Duration // defaults to DefaultReconnectDelay
	QueueCapacity  int           // defaults to DefaultQueueCapacity
}

// New creates a Bus.
func New(opts BusOpts) (*Bus, error) {
	if opts.ServerURL == "" {
		return nil, fmt.Errorf("partyline: server URL is required")
	}
	if opts.UserID == "" {
		return nil, fmt.Errorf("partyline: user ID is required")
	}
	identity := opts.Identity
	if identity == "" {
		identity = opts.UserID
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &wsDialer{}
	}
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	capacity := opts.QueueCapacity
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Bus{
		url:            opts.ServerURL,
		userID:         opts.UserID,
		identity:       identity,
		dialer:         dialer,
		reconnectDelay: delay,
		queueCap:       capacity,
		state:          StateDisconnected,
		presence:       make(map[string]wire.Presence),
		seen:           make(map[string]struct{}),
	}, nil
}

// Connect starts the connection loop if it is not already running.
// It returns immediately; connection state is observable via State.
func (b *Bus) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("partyline: bus is closed")
	}
	if b.running {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.running = true
	go b.run(ctx)
	return nil
}

// run is the connect/read/reconnect loop. It exits only on Close.
func (b *Bus) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		b.setState(StateConnecting)
		conn, err := b.dialer.Dial(ctx, b.url)
		if err != nil {
			b.setState(StateDisconnected)
			log.Printf("partyline: dial %s: %v (retrying in %v)", b.url, err, b.reconnectDelay)
			if !b.sleep(ctx) {
				return
			}
			continue
		}

		if err := b.handshake(conn); err != nil {
			conn.Close()
			b.setState(StateDisconnected)
			log.Printf("partyline: handshake: %v (retrying in %v)", err, b.reconnectDelay)
			if !b.sleep(ctx) {
				return
			}
			continue
		}

		b.readLoop(ctx, conn)

		b.mu.Lock()
		if b.conn == conn {
			b.conn = nil
		}
		b.mu.Unlock()
		conn.Close()
		b.setState(StateDisconnected)

		if ctx.Err() != nil {
			return
		}
		if !b.sleep(ctx) {
			return
		}
	}
}

// handshake authenticates the fresh connection and flushes the offline
// queue in FIFO order. The bus lock is held throughout, so sends issued
// concurrently wait until the flush completes and submission order is
// preserved across the reconnect boundary.
func (b *Bus) handshake(conn Conn) error {
	auth, err := wire.NewEvent(wire.EventAuthenticate, wire.Authenticate{
		UserID:   b.userID,
		Identity: b.identity,
	})
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := conn.WriteEvent(auth); err != nil {
		return fmt.Errorf("send authenticate: %w", err)
	}
	for len(b.queue) > 0 {
		ev := b.queue[0]
		if err := conn.WriteEvent(ev); err != nil {
			// Leave the unsent tail queued for the next connection.
			return fmt.Errorf("flush queue: %w", err)
		}
		b.queue = b.queue[1:]
	}
	b.conn = conn
	b.state = StateConnected
	return nil
}

// sleep waits out the fixed reconnect delay. Returns false when the bus
// was closed while waiting.
func (b *Bus) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(b.reconnectDelay):
		return true
	}
}

// readLoop pumps inbound events until the connection errors.
func (b *Bus) readLoop(ctx context.Context, conn Conn) {
	for {
		ev, err := conn.ReadEvent()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("partyline: read: %v", err)
			}
			return
		}
		b.dispatch(ev)
	}
}

// Send transmits the event immediately when connected, otherwise queues it.
// The queue is a bounded FIFO; on overflow the oldest event is dropped.
// Send never blocks on the network outcome.
func (b *Bus) Send(ev wire.Event) {
	b.mu.Lock()
	b.seq++
	ev.Seq = b.seq

	if b.state == StateConnected && b.conn != nil {
		conn := b.conn
		if err := conn.WriteEvent(ev); err != nil {
			// The read loop will notice the broken connection; keep the
			// event for the next flush.
			b.enqueueLocked(ev)
			b.mu.Unlock()
			log.Printf("partyline: send %s: %v (queued)", ev.Type, err)
			return
		}
		b.mu.Unlock()
		return
	}

	b.enqueueLocked(ev)
	b.mu.Unlock()
}

func (b *Bus) enqueueLocked(ev wire.Event) {
	if len(b.queue) >= b.queueCap {
		b.queue = b.queue[1:]
	}
	b.queue = append(b.queue, ev)
}

// Subscribe registers fn for every received event and returns an
// unsubscribe func. Subscribers run synchronously in subscription order.
func (b *Bus) Subscribe(fn func(wire.Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSub
	b.nextSub++
	b.subs = append(b.subs, subscriber{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subs {
			if sub.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// dispatch merges a received event into the read-side caches, then fans it
// out to subscribers. Events arrive at-least-once; seq-stamped duplicates
// are dropped before any merge or fan-out, and unstamped crash and account
// entries are deduplicated by value so the caches stay idempotent either way.
func (b *Bus) dispatch(ev wire.Event) {
	b.mu.Lock()
	if ev.Seq != 0 {
		key := seenKey(ev)
		if _, dup := b.seen[key]; dup {
			b.mu.Unlock()
			log.Printf("partyline: duplicate %s event (seq %d), dropping", ev.Type, ev.Seq)
			return
		}
		b.rememberLocked(key)
	}
	switch ev.Type {
	case wire.EventPresence:
		var p wire.Presence
		if err := ev.Decode(&p); err == nil {
			b.presence[p.UserID] = p
		}
	case wire.EventCrash:
		var c wire.Crash
		if err := ev.Decode(&c); err == nil && !hasCrash(b.crashes, c) {
			b.crashes = append(b.crashes, c)
		}
	case wire.EventAccount:
		var a wire.Account
		if err := ev.Decode(&a); err == nil && !hasAccount(b.accounts, a) {
			b.accounts = append(b.accounts, a)
		}
	}
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.fn(ev)
	}
}

// seenKey identifies one delivered event. The payload joins the key because
// seq counters are per sender and restart with each client process.
func seenKey(ev wire.Event) string {
	return fmt.Sprintf("%s:%d:%s", ev.Type, ev.Seq, ev.Payload)
}

// seenLimit bounds the duplicate-detection window. Redeliveries cluster
// around reconnects, so a few hundred recent events is enough history.
const seenLimit = 256

func (b *Bus) rememberLocked(key string) {
	if len(b.seenOrder) >= seenLimit {
		delete(b.seen, b.seenOrder[0])
		b.seenOrder = b.seenOrder[1:]
	}
	b.seen[key] = struct{}{}
	b.seenOrder = append(b.seenOrder, key)
}

func hasCrash(list []wire.Crash, c wire.Crash) bool {
	for _, e := range list {
		if e == c {
			return true
		}
	}
	return false
}

func hasAccount(list []wire.Account, a wire.Account) bool {
	for _, e := range list {
		if e == a {
			return true
		}
	}
	return false
}

// State returns the current connection state.
func (b *Bus) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bus) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// QueueLen returns the number of events waiting in the offline queue.
func (b *Bus) QueueLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Presence returns a copy of the presence table.
func (b *Bus) Presence() map[string]wire.Presence {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]wire.Presence, len(b.presence))
	for k, v := range b.presence {
		out[k] = v
	}
	return out
}

// CrashLog returns a copy of received crash events.
func (b *Bus) CrashLog() []wire.Crash {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]wire.Crash, len(b.crashes))
	copy(out, b.crashes)
	return out
}

// AccountEvents returns a copy of received account events.
func (b *Bus) AccountEvents() []wire.Account {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]wire.Account, len(b.accounts))
	copy(out, b.accounts)
	return out
}

// Close tears down the connection and cancels any pending reconnect.
// A closed bus cannot be reconnected.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.running = false
	cancel := b.cancel
	conn := b.conn
	b.conn = nil
	b.state = StateDisconnected
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}
