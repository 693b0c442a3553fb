// Package relaypool wraps nbd-wtf/go-nostr's SimplePool behind the C2
// contract: add, connect, get_events, send, disconnect, with the 3s/7s
// timeouts and typed errors §4.2 and §7 specify.
package relaypool

import (
	"context"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// Pool is the process-wide relay client pool. Its lifecycle matches the
// enclosing driver's, per §4.2's concurrency note.
type Pool struct {
	pool           *nostr.SimplePool
	connectTimeout time.Duration
	eventsTimeout  time.Duration
}

// New creates a Pool. Zero timeouts fall back to the spec defaults (3s
// connect, 7s events), matching original_source/src/client.rs's
// CONNECTION_TIMEOUT/GET_EVENTS_TIMEOUT constants.
func New(ctx context.Context, connectTimeout, eventsTimeout time.Duration) *Pool {
	if connectTimeout <= 0 {
		connectTimeout = 3 * time.Second
	}
	if eventsTimeout <= 0 {
		eventsTimeout = 7 * time.Second
	}
	return &Pool{
		pool:           nostr.NewSimplePool(ctx),
		connectTimeout: connectTimeout,
		eventsTimeout:  eventsTimeout,
	}
}

// Add registers a relay URL with the pool. Idempotent: adding the same URL
// twice is a no-op, per §5's shared-resources note.
func (p *Pool) Add(url string) {
	p.pool.EnsureRelay(url)
}

// Connect establishes a session with url, bounded by the connect timeout.
func (p *Pool) Connect(ctx context.Context, url string) error {
	cctx, cancel := context.WithTimeout(ctx, p.connectTimeout)
	defer cancel()

	relay, err := p.pool.EnsureRelay(url)
	if err != nil {
		if cctx.Err() != nil {
			return fmt.Errorf("%w: %s", ErrConnectionTimeout, url)
		}
		return &RelayError{URL: url, Message: err.Error()}
	}
	if relay == nil {
		return fmt.Errorf("%w: %s", ErrConnectionTimeout, url)
	}
	return nil
}

// GetEvents queries relay for every event matching any of filters,
// terminating on the relay's end-of-stored-events notice or the events
// timeout, whichever is first, per §4.2.
func (p *Pool) GetEvents(ctx context.Context, relay string, filters []nostr.Filter) ([]*nostr.Event, error) {
	qctx, cancel := context.WithTimeout(ctx, p.eventsTimeout)
	defer cancel()

	ch := p.pool.SubManyEose(qctx, []string{relay}, filters)

	var events []*nostr.Event
	for {
		select {
		case ie, ok := <-ch:
			if !ok {
				return events, nil
			}
			events = append(events, ie.Event)
		case <-qctx.Done():
			if len(events) > 0 {
				return events, nil
			}
			return nil, fmt.Errorf("%w: %s", ErrConnectionTimeout, relay)
		}
	}
}

// Send publishes event to relay and returns the event's id once the relay
// acknowledges it.
func (p *Pool) Send(ctx context.Context, relay string, event *nostr.Event) (string, error) {
	results := p.pool.PublishMany(ctx, []string{relay}, *event)
	for res := range results {
		if res.Error != nil {
			if IsAuthRequired(res.Error) {
				return "", fmt.Errorf("%w: %s", ErrAuthRequired, relay)
			}
			return "", &RelayError{URL: relay, Message: res.Error.Error()}
		}
		return event.ID, nil
	}
	return "", &RelayError{URL: relay, Message: "no publish result received"}
}

// Disconnect tears down every relay session the pool holds.
func (p *Pool) Disconnect() {
	p.pool.Close("remote helper session ended")
}
