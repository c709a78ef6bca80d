// Package correlator bridges synchronous HTTP callers to the asynchronous
// signal bus: a caller registers a pending entry for a chatId, fires an
// INCOMING_MESSAGE, and waits for the matching OUTGOING_MESSAGE or its own
// deadline, whichever comes first. Both the webhook and REST API surfaces
// are thin wrappers around one Correlator each, so the at-most-one-in-
// flight invariant and timeout handling live in exactly one place.
package correlator

import (
	"context"
	"errors"
	"sync"

	"github.com/kenobot/kenobot/internal/bus"
)

// ErrConflict is returned by Register when a pending entry already exists
// for the given chatId.
var ErrConflict = errors.New("a request for this conversation is already in flight")

// ErrShutdown is the terminal error delivered to every pending Wait call
// when the Correlator is shut down.
var ErrShutdown = errors.New("server shutting down")

// Result is what a pending request ultimately resolves to: either the
// agent's reply text, or an error (timeout, shutdown).
type Result struct {
	Text string
	Err  error
}

// pendingEntry is the internal bookkeeping for one in-flight HTTP call.
type pendingEntry struct {
	chatID string
	result chan Result
	done   bool
}

// Correlator owns the pending-request table for one channel (e.g.
// "webhook" or "api"). It subscribes to OUTGOING_MESSAGE on construction
// and matches replies to pending entries by chatId.
type Correlator struct {
	bus     *bus.Bus
	channel string

	mu      sync.Mutex
	pending map[string]*pendingEntry // chatId -> entry
}

// New constructs a Correlator bound to channel and subscribes it to the
// bus's OUTGOING_MESSAGE signal.
func New(b *bus.Bus, channel string) *Correlator {
	c := &Correlator{
		bus:     b,
		channel: channel,
		pending: make(map[string]*pendingEntry),
	}
	b.On(bus.TypeOutgoingMessage, c.onOutgoing)
	return c
}

// Register creates a pending entry for chatID. It returns ErrConflict if
// an entry for chatID already exists, enforcing at-most-one-in-flight per
// conversation.
func (c *Correlator) Register(chatID string) (*pendingEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pending[chatID]; exists {
		return nil, ErrConflict
	}

	entry := &pendingEntry{
		chatID: chatID,
		result: make(chan Result, 1),
	}
	c.pending[chatID] = entry
	return entry, nil
}

// Wait blocks until entry is resolved by a matching OUTGOING_MESSAGE, ctx
// is done (caller-supplied deadline), or the Correlator is shut down.
// The pending entry is always removed from the table before Wait returns.
func (c *Correlator) Wait(ctx context.Context, entry *pendingEntry) (string, error) {
	select {
	case res := <-entry.result:
		return res.Text, res.Err
	case <-ctx.Done():
		c.evict(entry.chatID)
		return "", ctx.Err()
	}
}

// onOutgoing is the bus subscriber that resolves pending entries,
// matching by chatId and channel.
func (c *Correlator) onOutgoing(sig *bus.Signal) {
	chatID, ok := sig.ChatID()
	if !ok {
		return
	}
	if ch, ok := sig.Payload["channel"].(string); ok && ch != c.channel {
		return
	}

	c.mu.Lock()
	entry, exists := c.pending[chatID]
	if exists {
		delete(c.pending, chatID)
	}
	c.mu.Unlock()

	if !exists {
		// Either no request is pending for this chatId, or it already
		// timed out and was evicted; a late reply is silently dropped.
		return
	}

	text, _ := sig.Payload["text"].(string)
	entry.result <- Result{Text: text}
}

// evict removes the pending entry for chatID without resolving it,
// called when a caller's deadline elapses first.
func (c *Correlator) evict(chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, chatID)
}

// Pending reports whether chatID currently has an in-flight entry.
func (c *Correlator) Pending(chatID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, exists := c.pending[chatID]
	return exists
}

// Size returns the number of currently pending requests.
func (c *Correlator) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// ActiveChatIDs returns the chatIds with an in-flight request right now,
// backing the REST API's GET /api/v1/tasks/active route.
func (c *Correlator) ActiveChatIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.pending))
	for chatID := range c.pending {
		out = append(out, chatID)
	}
	return out
}

// Shutdown rejects every pending entry with ErrShutdown and clears the
// table. Safe to call once during orderly process shutdown.
func (c *Correlator) Shutdown() {
	c.mu.Lock()
	entries := make([]*pendingEntry, 0, len(c.pending))
	for _, e := range c.pending {
		entries = append(entries, e)
	}
	c.pending = make(map[string]*pendingEntry)
	c.mu.Unlock()

	for _, e := range entries {
		e.result <- Result{Err: ErrShutdown}
	}
}
