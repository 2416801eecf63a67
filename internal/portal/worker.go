package portal

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/ocx/relay/internal/router"
)

// workerState enumerates the portal worker's lifecycle, per the
// reference implementation's possible transitions:
//
//	Outlet: SendPong -> Initialized
//	Inlet:  SendPing -> ReceivePong -> Initialized
type workerState uint8

const (
	stateSendPing workerState = iota
	stateSendPong
	stateReceivePong
	stateInitialized
)

// typeName distinguishes an inlet (accepts a local TCP connection) from
// an outlet (dials the real peer once the handshake completes).
type typeName uint8

const (
	typeInlet typeName = iota
	typeOutlet
)

func (t typeName) String() string {
	if t == typeInlet {
		return "inlet"
	}
	return "outlet"
}

// disconnectReason mirrors the reference DisconnectionReason, selecting
// which teardown steps startDisconnection runs.
type disconnectReason uint8

const (
	reasonFailedTx disconnectReason = iota
	reasonFailedRx
	reasonRemote
)

func (d disconnectReason) String() string {
	switch d {
	case reasonFailedTx:
		return "failed_tx"
	case reasonFailedRx:
		return "failed_rx"
	case reasonRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// disconnectSleep is the 1-second pause documented in spec.md §9 as a
// known hack avoiding a race where both ends tear down simultaneously
// and try to stop an already-stopped peer. The exact replacement (an
// epoch counter, or try-stop-then-await) is a documented follow-up, not
// built here.
var disconnectSleep = time.Second

// Worker is one actor per portal endpoint — an inlet or an outlet — with
// two mailboxes (internal, remote) and the state machine described in
// spec.md §4.E.
type Worker struct {
	rtr    *router.Router
	logger *slog.Logger

	state   workerState
	pingRoute router.Route // valid only in stateSendPing
	pongRoute router.Route // valid only in stateSendPong

	typeName typeName
	peerAddr string // outlet's dial target; empty for inlets

	conn net.Conn // the underlying TCP connection; nil for an outlet before it dials

	internalAddr router.Address
	remoteAddr   router.Address

	internalMb *router.Mailbox
	remoteMb   *router.Mailbox

	internalCh      chan internalMessage // fed directly by this worker's own receive processor
	remoteRoute     router.Route         // set once Initialized; nil otherwise
	isDisconnecting bool

	done chan struct{}
}

// StartInlet creates a worker for an already-accepted local connection
// and begins its handshake in a new goroutine: SendPing along
// pingRoute, waiting for Pong.
func StartInlet(ctx context.Context, rtr *router.Router, logger *slog.Logger, conn net.Conn, pingRoute router.Route, remoteInCtrl, remoteOutCtrl router.AccessControl) *Worker {
	w := newWorker(rtr, logger, typeInlet, "")
	w.conn = conn
	w.state = stateSendPing
	w.pingRoute = pingRoute
	w.register(remoteInCtrl, remoteOutCtrl)
	go w.run(ctx)
	return w
}

// StartOutlet creates a worker that will dial peerAddr once it has sent
// Pong along pongRoute, per the reference "do NOT dial TCP until after
// sending Pong."
func StartOutlet(ctx context.Context, rtr *router.Router, logger *slog.Logger, peerAddr string, pongRoute router.Route, remoteInCtrl, remoteOutCtrl router.AccessControl) *Worker {
	w := newWorker(rtr, logger, typeOutlet, peerAddr)
	w.state = stateSendPong
	w.pongRoute = pongRoute
	w.register(remoteInCtrl, remoteOutCtrl)
	go w.run(ctx)
	return w
}

func newWorker(rtr *router.Router, logger *slog.Logger, tn typeName, peerAddr string) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		rtr:          rtr,
		logger:       logger,
		typeName:     tn,
		peerAddr:     peerAddr,
		internalAddr: router.Address(randomTaggedAddress("portal_worker_internal")),
		remoteAddr:   router.Address(randomTaggedAddress("portal_worker_remote")),
		internalCh:   make(chan internalMessage, 1),
		done:         make(chan struct{}),
	}
}

func (w *Worker) register(remoteInCtrl, remoteOutCtrl router.AccessControl) {
	// The internal mailbox exists for address-space completeness and
	// logging only: nothing but this worker's own receive processor ever
	// notifies it, and that travels over internalCh directly rather than
	// through the router (see processor.go).
	w.internalMb = w.rtr.NewMailbox(w.internalAddr, router.DenyAll{}, router.DenyAll{})
	if remoteInCtrl == nil {
		remoteInCtrl = router.DenyAll{}
	}
	if remoteOutCtrl == nil {
		remoteOutCtrl = router.DenyAll{}
	}
	w.remoteMb = w.rtr.NewMailbox(w.remoteAddr, remoteInCtrl, remoteOutCtrl)

	if m := w.rtr.Metrics(); m != nil {
		m.WorkersActive.Inc()
	}
}

// RemoteAddress returns the address other actors route messages to in
// order to reach this worker's portal-message side.
func (w *Worker) RemoteAddress() router.Address { return w.remoteAddr }

// Done is closed once the worker has fully torn down.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	if err := w.initialize(ctx); err != nil {
		w.logger.Error("portal: worker initialization failed", "type", w.typeName, "error", err)
		return
	}

	for {
		select {
		case msg, ok := <-w.remoteMb.Messages():
			if !ok {
				return
			}
			if err := w.handleRemote(ctx, msg); err != nil {
				w.logger.Error("portal: worker message handling failed", "type", w.typeName, "error", err)
				return
			}
			if w.isDisconnecting {
				return
			}

		case im := <-w.internalCh:
			if w.isDisconnecting {
				continue
			}
			if im.disconnect {
				w.logger.Info("portal: tcp stream was dropped", "type", w.typeName, "address", w.internalAddr)
				if err := w.startDisconnection(ctx, reasonFailedRx); err != nil {
					w.logger.Error("portal: disconnection handling failed", "error", err)
				}
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// initialize runs the one-shot handshake step per spec.md §4.E.
func (w *Worker) initialize(ctx context.Context) error {
	switch w.state {
	case stateSendPing:
		// Force creation of an outlet on the other side. The return route
		// is this worker's own remote address, so whatever spawns the
		// outlet knows where to send Pong back to.
		if err := w.rtr.Send(ctx, w.remoteMb, router.RoutedMessage{
			Payload: mustEncode(Ping()),
			Onward:  w.pingRoute,
			Return:  router.Route{w.remoteAddr},
			Source:  w.remoteAddr,
		}); err != nil {
			return err
		}
		w.logger.Debug("portal: inlet sent ping", "address", w.internalAddr)
		w.state = stateReceivePong
		return nil

	case stateSendPong:
		if err := w.rtr.Send(ctx, w.remoteMb, router.RoutedMessage{
			Payload: mustEncode(Pong()),
			Onward:  w.pongRoute,
			Return:  router.Route{w.remoteAddr},
			Source:  w.remoteAddr,
		}); err != nil {
			return err
		}

		if w.conn == nil {
			conn, err := net.Dial("tcp", w.peerAddr)
			if err != nil {
				return fmt.Errorf("portal: outlet dial %s: %w", w.peerAddr, err)
			}
			w.conn = conn
			startReceiveProcessor(ctx, w.rtr, w.conn, w.remoteAddr, w.pongRoute, w.internalCh, w.logger)
			w.logger.Debug("portal: outlet connected", "peer", w.peerAddr, "address", w.internalAddr)
		}

		w.logger.Debug("portal: outlet sent pong", "address", w.internalAddr)
		w.remoteRoute = w.pongRoute
		w.state = stateInitialized
		return nil

	default:
		return errInvalidState()
	}
}

// handleRemote processes one RoutedMessage arriving at the remote
// mailbox, dispatching on the worker's current state exactly per
// spec.md's five numbered steps.
func (w *Worker) handleRemote(ctx context.Context, msg router.RoutedMessage) error {
	if w.isDisconnecting {
		return nil
	}

	if len(msg.Onward) > 0 {
		return errUnknownRoute()
	}

	portalMsg, err := decodeBytes(msg.Payload)
	if err != nil {
		return fmt.Errorf("portal: decode wire message: %w", err)
	}

	switch w.state {
	case stateReceivePong:
		if portalMsg.Tag != TagPong {
			return errProtocol()
		}

		startReceiveProcessor(ctx, w.rtr, w.conn, w.remoteAddr, msg.Return, w.internalCh, w.logger)
		w.logger.Debug("portal: inlet received pong", "address", w.internalAddr)

		w.remoteRoute = msg.Return
		w.state = stateInitialized
		return nil

	case stateInitialized:
		switch portalMsg.Tag {
		case TagPayload:
			if w.conn == nil {
				return errInvalidState()
			}
			if _, err := w.conn.Write(portalMsg.Payload); err != nil {
				w.logger.Warn("portal: failed to send message to peer", "peer", w.peerAddr, "error", err)
				return w.startDisconnection(ctx, reasonFailedTx)
			}
			return nil
		case TagDisconnect:
			return w.startDisconnection(ctx, reasonRemote)
		default: // Ping, Pong
			return errProtocol()
		}

	default: // stateSendPing, stateSendPong
		return errInvalidState()
	}
}

// startDisconnection runs the teardown sequence exactly per spec.md:
// set the latch, notify/stop per reason, then self-stop via the
// internal address.
func (w *Worker) startDisconnection(ctx context.Context, reason disconnectReason) error {
	w.isDisconnecting = true

	if m := w.rtr.Metrics(); m != nil {
		m.WorkersActive.Dec()
		m.DisconnectsTotal.WithLabelValues(reason.String()).Inc()
	}

	switch reason {
	case reasonFailedTx:
		w.notifyRemoteAboutDisconnection(ctx)
	case reasonFailedRx:
		w.notifyRemoteAboutDisconnection(ctx)
		w.stopReceiver(ctx)
	case reasonRemote:
		w.stopReceiver(ctx)
	}

	if err := w.rtr.Stop(w.internalAddr); err != nil {
		w.logger.Warn("portal: failed to stop internal mailbox", "error", err)
	}
	if err := w.rtr.Stop(w.remoteAddr); err != nil {
		w.logger.Warn("portal: failed to stop remote mailbox", "error", err)
	}

	w.logger.Info("portal: worker stopped due to connection drop", "type", w.typeName, "address", w.internalAddr)
	return nil
}

func (w *Worker) notifyRemoteAboutDisconnection(ctx context.Context) {
	if w.remoteRoute == nil {
		return
	}
	route := w.remoteRoute
	w.remoteRoute = nil

	if err := w.rtr.Send(ctx, w.remoteMb, router.RoutedMessage{
		Payload: mustEncode(Disconnect()),
		Onward:  route,
		Source:  w.remoteAddr,
	}); err != nil {
		w.logger.Warn("portal: failed to notify remote of disconnection", "error", err)
	} else {
		w.logger.Debug("portal: notified other side about connection drop", "type", w.typeName, "address", w.internalAddr)
	}

	// Avoids a race where both inlet and outlet drop at the same moment:
	// give the Disconnect message time to reach the other side before we
	// tear ourselves down.
	sleep(ctx, disconnectSleep)
}

func (w *Worker) stopReceiver(ctx context.Context) {
	// Same race-avoidance purpose as notifyRemoteAboutDisconnection: the
	// receive processor may already be stopping itself having seen EOF.
	sleep(ctx, disconnectSleep)

	if w.conn != nil {
		if err := w.conn.Close(); err != nil {
			w.logger.Debug("portal: closing connection during teardown", "error", err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func mustEncode(m Message) []byte {
	b, err := EncodeToBytes(m)
	if err != nil {
		// Encode only fails on a write error, and EncodeToBytes writes to
		// an in-memory buffer that never fails to write.
		panic(fmt.Sprintf("portal: unexpected encode failure: %v", err))
	}
	return b
}

func decodeBytes(b []byte) (Message, error) {
	return Decode(newByteReader(b))
}
