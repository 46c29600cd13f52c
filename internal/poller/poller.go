// Package poller pulls inbound messages from the telephony provider on a
// fixed interval, deduplicates them against the merge ledger, and merges
// the survivors into the conversation store. It also handles optimistic
// outbound sends.
package poller

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zulandar/switchboard/internal/ledger"
	"github.com/zulandar/switchboard/internal/store"
	"github.com/zulandar/switchboard/internal/telco"
)

// DefaultInterval is the poll cadence when none is configured.
const DefaultInterval = 5 * time.Second

// Poller periodically fetches inbound messages and merges new ones into
// the store.
type Poller struct {
	api      telco.API
	ledger   ledger.Ledger
	store    *store.Store
	interval time.Duration
	now      func() time.Time
	out      io.Writer

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// Opts holds parameters for New.
type Opts struct {
	API      telco.API
	Ledger   ledger.Ledger
	Store    *store.Store
	Interval time.Duration    // defaults to DefaultInterval
	Now      func() time.Time // injectable clock; defaults to time.Now
	Out      io.Writer
}

// New creates a Poller.
func New(opts Opts) (*Poller, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("poller: api is required")
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("poller: ledger is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("poller: store is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Poller{
		api:      opts.API,
		ledger:   opts.Ledger,
		store:    opts.Store,
		interval: opts.Interval,
		now:      opts.Now,
		out:      opts.Out,
	}, nil
}

// Start launches the poll loop. The first poll fires after one interval,
// not immediately. Returns an error if the poller is already running.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("poller: already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go func() {
		defer close(p.done)
		t := time.NewTicker(p.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := p.PollOnce(ctx); err != nil {
					log.Printf("poller: poll: %v", err)
				}
			}
		}
	}()
	return nil
}

// Stop halts the poll loop and waits for the in-flight poll to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
}

// PollOnce fetches the inbound page and merges messages newer than the
// cursor that the ledger has not seen. The cursor advances to the poll
// start time only after the whole batch merges cleanly; on fetch error it
// stays put so the next poll re-covers the window.
func (p *Poller) PollOnce(ctx context.Context) error {
	pollStart := p.now()
	cursor := p.ledger.Cursor()

	msgs, err := p.api.ListInbound(ctx)
	if err != nil {
		return fmt.Errorf("poller: list inbound: %w", err)
	}

	merged := 0
	for _, m := range msgs {
		if !m.SentAt.After(cursor) {
			continue
		}
		if p.ledger.Seen(m.ID) {
			continue
		}
		p.store.AppendMessage(m.From, store.Message{
			ID:            m.ID,
			Text:          m.Text,
			Direction:     store.DirectionInbound,
			Timestamp:     m.SentAt,
			DeliveryState: store.DeliveryDelivered,
		})
		if err := p.ledger.Mark(m.ID); err != nil {
			return fmt.Errorf("poller: ledger mark %s: %w", m.ID, err)
		}
		merged++
	}

	if err := p.ledger.SetCursor(pollStart); err != nil {
		return fmt.Errorf("poller: advance cursor: %w", err)
	}
	if merged > 0 {
		fmt.Fprintf(p.out, "merged %d new messages\n", merged)
	}
	return nil
}

// Send performs an optimistic outbound send: the message lands in the
// store as "sending" immediately, then flips to "sent" or "failed" when
// the provider answers. Failed sends are not retried automatically.
func (p *Poller) Send(ctx context.Context, to, text string) (string, error) {
	if strings.TrimSpace(to) == "" {
		return "", fmt.Errorf("poller: send: destination number is required")
	}
	number := telco.FormatE164(to)

	localID := "local-" + uuid.NewString()
	p.store.AppendMessage(number, store.Message{
		ID:            localID,
		Text:          text,
		Direction:     store.DirectionOutbound,
		Timestamp:     p.now(),
		DeliveryState: store.DeliverySending,
	})

	providerID, err := p.api.SendMessage(ctx, number, text)
	if err != nil {
		p.store.UpdateDeliveryState(number, localID, store.DeliveryFailed)
		return localID, fmt.Errorf("poller: send to %s: %w", number, err)
	}
	p.store.UpdateDeliveryState(number, localID, store.DeliverySent)
	// Provider-assigned IDs for our own sends also go in the ledger so a
	// later inbound listing echoing them cannot merge a duplicate.
	if err := p.ledger.Mark(providerID); err != nil {
		log.Printf("poller: ledger mark %s: %v", providerID, err)
	}
	return localID, nil
}
