// Package adminfeed serves a read-only websocket endpoint streaming
// periodic JSON snapshots of node status, generalized from the
// teacher's spoke-facing ping/pong websocket loop into an admin-only
// status plane with no inbound message handling.
package adminfeed

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// StatusSnapshot is one point-in-time view of the node's liveness,
// serialized as JSON to every connected admin client.
type StatusSnapshot struct {
	Timestamp       time.Time `json:"timestamp"`
	MailboxCount    int       `json:"mailbox_count"`
	WorkersActive   float64   `json:"workers_active"`
	MessagesRouted  float64   `json:"messages_routed"`
	MessagesFailed  float64   `json:"messages_failed"`
}

// SnapshotFunc produces the current StatusSnapshot on demand.
type SnapshotFunc func() StatusSnapshot

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Feed serves /admin/status, pushing a StatusSnapshot every interval
// until the client disconnects.
type Feed struct {
	snapshot SnapshotFunc
	interval time.Duration
}

// NewFeed returns a Feed that calls snapshot on each tick.
func NewFeed(snapshot SnapshotFunc, interval time.Duration) *Feed {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Feed{snapshot: snapshot, interval: interval}
}

// ServeHTTP upgrades the request to a websocket and streams snapshots
// until the write fails (client gone) or the request's context is done.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[adminfeed] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	f.run(r.Context(), conn)
}

func (f *Feed) run(ctx context.Context, conn *websocket.Conn) {
	const writeWait = 10 * time.Second

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	write := func() error {
		snap := f.snapshot()
		payload, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, payload)
	}

	if err := write(); err != nil {
		return
	}

	for {
		select {
		case <-ticker.C:
			if err := write(); err != nil {
				log.Printf("[adminfeed] write failed, closing: %v", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
