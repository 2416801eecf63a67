package portal

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/ocx/relay/internal/router"
)

// receiveProcessor is a producer actor owning the read half of a portal's
// TCP connection. It has no mailbox of its own to receive into — it only
// ever reads from the stream and forwards — matching the reference
// TcpPortalRecvProcessor, which "can't receive messages."
//
// Its disconnect notification to the paired worker travels over a plain
// Go channel rather than through the router's byte-oriented
// RoutedMessage path: internalMessage never leaves the node, so there is
// no reason to give it a wire encoding an attacker's tunneled bytes could
// ever collide with.
type receiveProcessor struct {
	conn         io.Reader
	ownAddress   router.Address
	onwardRoute  router.Route
	rtr          *router.Router
	internalCh   chan<- internalMessage
	logger       *slog.Logger
}

// startReceiveProcessor launches the processor's read loop in its own
// goroutine, per "one goroutine per worker/processor."
func startReceiveProcessor(ctx context.Context, rtr *router.Router, conn io.Reader, ownAddress router.Address, onwardRoute router.Route, internalCh chan<- internalMessage, logger *slog.Logger) {
	p := &receiveProcessor{
		conn:        conn,
		ownAddress:  ownAddress,
		onwardRoute: onwardRoute,
		rtr:         rtr,
		internalCh:  internalCh,
		logger:      logger,
	}
	go p.run(ctx)
}

func (p *receiveProcessor) run(ctx context.Context) {
	buf := make([]byte, 32*1024)
	for {
		n, err := p.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			wire, encErr := EncodeToBytes(Payload(chunk))
			if encErr != nil {
				p.logger.Error("portal: failed to encode payload", "error", encErr)
				break
			}
			sendErr := p.rtr.Send(ctx, nil, router.RoutedMessage{
				Payload: wire,
				Onward:  p.onwardRoute,
				Source:  p.ownAddress,
			})
			if sendErr != nil {
				p.logger.Warn("portal: failed to forward payload onward", "error", sendErr)
				break
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.logger.Warn("portal: read error on tunneled connection", "error", err)
			}
			break
		}
	}

	select {
	case p.internalCh <- internalMessage{disconnect: true}:
	case <-ctx.Done():
	}
}
