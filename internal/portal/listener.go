package portal

import (
	"context"
	"log/slog"
	"net"

	"github.com/ocx/relay/internal/router"
)

// InletListener accepts local TCP connections and starts a fresh Inlet
// worker per connection, each sending its Ping along the same configured
// pingRoute — the address of an OutletSpawner registered on the same
// router. The router delivers only to in-process mailboxes and the spawner
// drops messages with hops left, so pingRoute cannot reach a spawner on
// another node.
type InletListener struct {
	ln        net.Listener
	rtr       *router.Router
	logger    *slog.Logger
	pingRoute router.Route
	inCtrl    router.AccessControl
	outCtrl   router.AccessControl
}

// StartInletListener begins accepting on ln in a new goroutine. Accept
// errors stop the loop; the caller is expected to close ln (or cancel
// ctx, which this loop does not itself watch mid-Accept — closing ln is
// the actual way to unblock a pending Accept) to shut it down.
func StartInletListener(ctx context.Context, rtr *router.Router, logger *slog.Logger, ln net.Listener, pingRoute router.Route, inCtrl, outCtrl router.AccessControl) *InletListener {
	if logger == nil {
		logger = slog.Default()
	}
	l := &InletListener{
		ln:        ln,
		rtr:       rtr,
		logger:    logger,
		pingRoute: pingRoute,
		inCtrl:    inCtrl,
		outCtrl:   outCtrl,
	}
	go l.run(ctx)
	return l
}

func (l *InletListener) run(ctx context.Context) {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			l.logger.Warn("portal: inlet listener accept failed, stopping", "error", err)
			return
		}

		l.logger.Info("portal: accepted local connection", "remote", conn.RemoteAddr())
		StartInlet(ctx, l.rtr, l.logger, conn, l.pingRoute, l.inCtrl, l.outCtrl)
	}
}

// Addr reports the listener's bound network address.
func (l *InletListener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting new connections. In-flight workers are
// unaffected.
func (l *InletListener) Close() error { return l.ln.Close() }

// OutletSpawner sits at a well-known router address and, for every Ping
// it receives, starts a brand new Outlet worker dialing peerAddr and
// replying along the Ping's own return route — mirroring the reference
// TcpOutletListenProcessor, which exists purely to turn an incoming Ping
// into a freshly provisioned per-connection portal worker.
type OutletSpawner struct {
	addr     router.Address
	mb       *router.Mailbox
	rtr      *router.Router
	peerAddr string
	logger   *slog.Logger
	inCtrl   router.AccessControl
	outCtrl  router.AccessControl
}

// StartOutletSpawner registers a mailbox at addr and begins draining it
// in a new goroutine. peerAddr is the fixed TCP target every outlet this
// spawner creates will dial once its own handshake completes.
func StartOutletSpawner(ctx context.Context, rtr *router.Router, logger *slog.Logger, addr router.Address, peerAddr string, inCtrl, outCtrl router.AccessControl) *OutletSpawner {
	if logger == nil {
		logger = slog.Default()
	}
	s := &OutletSpawner{
		addr:     addr,
		rtr:      rtr,
		peerAddr: peerAddr,
		logger:   logger,
		inCtrl:   inCtrl,
		outCtrl:  outCtrl,
	}
	s.mb = rtr.NewMailbox(addr, inCtrl, outCtrl)
	go s.run(ctx)
	return s
}

// Address returns the spawner's own well-known routable address.
func (s *OutletSpawner) Address() router.Address { return s.addr }

func (s *OutletSpawner) run(ctx context.Context) {
	for {
		select {
		case msg, ok := <-s.mb.Messages():
			if !ok {
				return
			}
			s.handle(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (s *OutletSpawner) handle(ctx context.Context, msg router.RoutedMessage) {
	if len(msg.Onward) > 0 {
		s.logger.Warn("portal: outlet spawner received message with hops remaining, dropping")
		return
	}

	portalMsg, err := decodeBytes(msg.Payload)
	if err != nil {
		s.logger.Warn("portal: outlet spawner failed to decode message, dropping", "error", err)
		return
	}
	if portalMsg.Tag != TagPing {
		s.logger.Warn("portal: outlet spawner expected ping, dropping", "tag", portalMsg.Tag)
		return
	}
	if len(msg.Return) == 0 {
		s.logger.Warn("portal: outlet spawner received ping with no return route, dropping")
		return
	}

	s.logger.Info("portal: spawning outlet for peer", "peer", s.peerAddr)
	StartOutlet(ctx, s.rtr, s.logger, s.peerAddr, msg.Return, s.inCtrl, s.outCtrl)
}
