// Package router implements the node's address-keyed mailbox registry and
// message routing, generalized from a hub-and-spoke dispatcher into a
// transport-agnostic envelope router used by the portal worker.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ocx/relay/internal/metrics"
)

// Address is an opaque routable handle. Unlike the teacher's
// VirtualAddress (which always named a tenant/agent pair), an Address
// here may equally name a portal worker's internal/remote endpoint, a
// receive processor, or any other addressable actor.
type Address string

// Route is an ordered path of hops. Step pops the head address off the
// route, returning the consumed hop and the remainder — mirroring the
// reference router's `Route::step`.
type Route []Address

// Step returns the first address in the route and the remaining route. It
// is an error to step an empty route.
func (r Route) Step() (Address, Route, error) {
	if len(r) == 0 {
		return "", nil, fmt.Errorf("router: %w", ErrUnknownRoute)
	}
	return r[0], r[1:], nil
}

// RoutedMessage is the envelope the router moves between mailboxes: a
// payload plus the onward route still to traverse, the return route the
// recipient should reply along, and the address that actually originated
// the send.
type RoutedMessage struct {
	Payload []byte
	Onward  Route
	Return  Route
	Source  Address
}

// Mailbox is one actor's inbox: an address, the incoming/outgoing access
// control pair that gates delivery, and a buffered channel of
// RoutedMessage the owning actor drains.
type Mailbox struct {
	Addr      Address
	InCtrl    AccessControl
	OutCtrl   AccessControl
	inbox     chan RoutedMessage
}

// Messages exposes the receive side of the mailbox's channel to its
// owning actor.
func (m *Mailbox) Messages() <-chan RoutedMessage { return m.inbox }

// Router holds the live mailbox registry, guarded by an RWMutex exactly
// as the teacher's Hub guards its routing tables: registration/removal
// takes the write lock, and delivery takes only the read lock to look up
// the destination channel, which is then sent to lock-free.
type Router struct {
	mu       sync.RWMutex
	mailboxes map[Address]*Mailbox

	logger *slog.Logger

	// store, when set, mirrors mailbox liveness into a shared backing
	// store so other node processes can see addresses registered
	// elsewhere; the admin status feed reports only the local
	// MailboxCount. Never consulted on the portal's own
	// correctness-critical Send path — only local mailboxes are ever
	// routed to in-process.
	store MailboxStore

	metrics *metrics.Registry
}

// SetMetrics injects the Prometheus collector bundle Send increments.
// A nil Router.metrics (the zero value) is a valid no-metrics mode.
func (r *Router) SetMetrics(m *metrics.Registry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
}

// MailboxCount reports how many mailboxes are currently registered, for
// the admin status feed.
func (r *Router) MailboxCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mailboxes)
}

// Metrics returns the injected collector bundle, or nil if none was set —
// callers outside this package (the portal worker, tracking its own
// active-count/disconnect-reason collectors) check for nil themselves.
func (r *Router) Metrics() *metrics.Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics
}

// MailboxStore is the optional cross-process liveness mirror, satisfied
// by RedisMailboxStore.
type MailboxStore interface {
	MarkRegistered(ctx context.Context, addr Address) error
	MarkRemoved(ctx context.Context, addr Address) error
}

// New returns an empty Router.
func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		mailboxes: make(map[Address]*Mailbox),
		logger:    logger,
	}
}

// SetStore injects an optional cross-process mailbox liveness mirror.
func (r *Router) SetStore(s MailboxStore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store = s
}

// NewMailbox registers a fresh mailbox at addr with the given access
// control pair and a buffered inbox, returning it for the caller's actor
// loop to drain. Registering an address twice replaces the prior
// mailbox — the caller (a portal worker choosing a random tagged
// address) is responsible for avoiding collisions.
func (r *Router) NewMailbox(addr Address, inCtrl, outCtrl AccessControl) *Mailbox {
	mb := &Mailbox{
		Addr:    addr,
		InCtrl:  inCtrl,
		OutCtrl: outCtrl,
		inbox:   make(chan RoutedMessage, 32),
	}

	r.mu.Lock()
	r.mailboxes[addr] = mb
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.MarkRegistered(context.Background(), addr); err != nil {
			r.logger.Warn("router: failed to mirror mailbox registration", "address", addr, "error", err)
		}
	}

	return mb
}

// Stop unregisters addr's mailbox. It does not close the inbox channel —
// the owning actor is expected to have already stopped reading from it
// (or to be in the process of exiting) by the time Stop is called, per
// the actors' own cooperative teardown.
func (r *Router) Stop(addr Address) error {
	r.mu.Lock()
	_, ok := r.mailboxes[addr]
	delete(r.mailboxes, addr)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("router: %w: %s", ErrUnknownRoute, addr)
	}

	if r.store != nil {
		if err := r.store.MarkRemoved(context.Background(), addr); err != nil {
			r.logger.Warn("router: failed to mirror mailbox removal", "address", addr, "error", err)
		}
	}
	return nil
}

// Send routes msg by stepping its onward address off Onward and
// delivering to that mailbox, subject to the destination's incoming
// access control and the source mailbox's outgoing access control (when
// srcMailbox is non-nil — internal sends from the node runtime itself
// have no originating mailbox to check).
func (r *Router) Send(ctx context.Context, srcMailbox *Mailbox, msg RoutedMessage) error {
	dst, remainder, err := msg.Onward.Step()
	if err != nil {
		r.recordFailure()
		return err
	}
	msg.Onward = remainder

	r.mu.RLock()
	mb, ok := r.mailboxes[dst]
	r.mu.RUnlock()
	if !ok {
		r.recordFailure()
		return fmt.Errorf("router: %w: %s", ErrUnknownRoute, dst)
	}

	if srcMailbox != nil && srcMailbox.OutCtrl != nil && !srcMailbox.OutCtrl.Decide(msg.Source, dst, msg) {
		r.recordFailure()
		return fmt.Errorf("router: outgoing access control denied send from %s to %s", msg.Source, dst)
	}
	if mb.InCtrl != nil && !mb.InCtrl.Decide(msg.Source, dst, msg) {
		r.recordFailure()
		return fmt.Errorf("router: incoming access control denied delivery from %s to %s", msg.Source, dst)
	}

	select {
	case mb.inbox <- msg:
		r.recordSuccess()
		return nil
	case <-ctx.Done():
		r.recordFailure()
		return ctx.Err()
	}
}

func (r *Router) recordSuccess() {
	if r.metrics != nil {
		r.metrics.MessagesRouted.Inc()
	}
}

func (r *Router) recordFailure() {
	if r.metrics != nil {
		r.metrics.MessagesFailed.Inc()
	}
}
