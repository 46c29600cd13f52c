// Package call coordinates the lifecycle of a voice call placed through
// the telephony provider: dialing, the active-call timer, hangup, and the
// duration write-back to the call log.
package call

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zulandar/switchboard/internal/store"
	"github.com/zulandar/switchboard/internal/telco"
)

// State is the coordinator's call state.
type State string

const (
	StateIdle    State = "idle"
	StateDialing State = "dialing"
	StateActive  State = "active"
	StateEnding  State = "ending"
)

// Session describes the call currently tracked by the coordinator.
type Session struct {
	ID          string // local session ID, also the call-log key
	CallID      string // provider call control ID
	PhoneNumber string
	StartedAt   time.Time
	Elapsed     time.Duration
	Muted       bool
	Speaker     bool
}

// Coordinator drives one call at a time. All state transitions are
// serialized behind the mutex; provider calls happen with the mutex
// released so a slow API never blocks State or ToggleMute.
type Coordinator struct {
	api          telco.API
	store        *store.Store
	tickInterval time.Duration
	out          io.Writer

	mu         sync.Mutex
	state      State
	session    Session
	stopTicker chan struct{}
}

// CoordinatorOpts holds parameters for NewCoordinator.
type CoordinatorOpts struct {
	API          telco.API
	Store        *store.Store
	TickInterval time.Duration // defaults to 1s
	Out          io.Writer
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(opts CoordinatorOpts) (*Coordinator, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("call: api is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("call: store is required")
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Coordinator{
		api:          opts.API,
		store:        opts.Store,
		tickInterval: opts.TickInterval,
		out:          opts.Out,
		state:        StateIdle,
	}, nil
}

// State returns the current call state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns a snapshot of the tracked session. The boolean is false
// when no call is in progress.
func (c *Coordinator) Current() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle {
		return Session{}, false
	}
	return c.session, true
}

// Dial places a call to number. It refuses when a call is already in
// progress. A call-log entry is appended as soon as dialing starts; its
// duration stays unset until the call ends.
func (c *Coordinator) Dial(ctx context.Context, number string) (string, error) {
	if strings.TrimSpace(number) == "" {
		return "", fmt.Errorf("call: dial: number is required")
	}
	to := telco.FormatE164(number)

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return "", fmt.Errorf("call: dial: call already in progress (%s)", c.state)
	}
	sessionID := uuid.NewString()
	now := time.Now()
	c.state = StateDialing
	c.session = Session{
		ID:          sessionID,
		PhoneNumber: to,
		StartedAt:   now,
	}
	c.mu.Unlock()

	c.store.AppendCallLog(store.CallLogEntry{
		SessionID:   sessionID,
		PhoneNumber: to,
		Type:        store.CallOutgoing,
		StartedAt:   now,
	})

	callID, err := c.api.CreateCall(ctx, to)

	c.mu.Lock()
	if c.session.ID != sessionID {
		// A hangup raced the dial and tore the session down before the
		// provider answered. If the provider did create a call, end it so
		// nothing keeps ringing on their side.
		c.mu.Unlock()
		if err == nil && callID != "" {
			if herr := c.api.Hangup(ctx, callID); herr != nil {
				log.Printf("call: hangup orphaned call %s: %v", callID, herr)
			}
		}
		return "", fmt.Errorf("call: dial %s: hung up before connect", to)
	}
	if err != nil {
		c.state = StateIdle
		c.session = Session{}
		c.mu.Unlock()
		c.writeDuration(sessionID, 0)
		return "", fmt.Errorf("call: dial %s: %w", to, err)
	}
	c.session.CallID = callID
	c.session.StartedAt = time.Now()
	c.state = StateActive
	stop := make(chan struct{})
	c.stopTicker = stop
	c.mu.Unlock()

	fmt.Fprintf(c.out, "call %s connected (%s)\n", to, callID)
	go c.tick(sessionID, stop)
	return sessionID, nil
}

// tick advances the session's elapsed time until stopped.
func (c *Coordinator) tick(sessionID string, stop chan struct{}) {
	t := time.NewTicker(c.tickInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			c.mu.Lock()
			if c.state != StateActive || c.session.ID != sessionID {
				c.mu.Unlock()
				return
			}
			c.session.Elapsed = time.Since(c.session.StartedAt)
			c.mu.Unlock()
		}
	}
}

// Hangup ends the in-progress call. The provider's call status is checked
// first: when the remote side already ended the call, no hangup command is
// issued. Provider errors are logged but never keep the coordinator out of
// idle. Calling Hangup with no call in progress is a no-op.
func (c *Coordinator) Hangup(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateEnding {
		c.mu.Unlock()
		return nil
	}
	sess := c.session
	c.state = StateEnding
	if c.stopTicker != nil {
		close(c.stopTicker)
		c.stopTicker = nil
	}
	c.mu.Unlock()

	seconds := int(time.Since(sess.StartedAt).Seconds())

	if sess.CallID != "" {
		status, err := c.api.CallStatus(ctx, sess.CallID)
		switch {
		case err != nil:
			log.Printf("call: status check %s: %v", sess.CallID, err)
			// Status unknown; issue the hangup anyway.
			if err := c.api.Hangup(ctx, sess.CallID); err != nil {
				log.Printf("call: hangup %s: %v", sess.CallID, err)
			}
		case status.Ended():
			// Remote side already ended it; prefer the provider's duration.
			if status.DurationSecs > 0 {
				seconds = status.DurationSecs
			}
		default:
			if err := c.api.Hangup(ctx, sess.CallID); err != nil {
				log.Printf("call: hangup %s: %v", sess.CallID, err)
			}
		}
	}

	c.mu.Lock()
	if c.session.ID == sess.ID {
		c.state = StateIdle
		c.session = Session{}
	}
	c.mu.Unlock()

	c.writeDuration(sess.ID, seconds)
	fmt.Fprintf(c.out, "call ended after %ds\n", seconds)
	return nil
}

// ToggleMute flips the local mute flag. Returns the new value.
func (c *Coordinator) ToggleMute() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Muted = !c.session.Muted
	return c.session.Muted
}

// ToggleSpeaker flips the local speaker flag. Returns the new value.
func (c *Coordinator) ToggleSpeaker() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Speaker = !c.session.Speaker
	return c.session.Speaker
}

// writeDuration records the final duration on the call-log entry keyed by
// session ID. Matching by session ID keeps repeat calls to the same number
// from clobbering each other's durations.
func (c *Coordinator) writeDuration(sessionID string, seconds int) {
	c.store.SetCallDuration(sessionID, seconds)
}
