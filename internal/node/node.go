// Package node wires together the router, identity state directory,
// configuration, portal listener, metrics, and admin status feed into
// one runnable process — the collaborator cmd/relay constructs and
// starts.
package node

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ocx/relay/internal/adminfeed"
	"github.com/ocx/relay/internal/identity"
	"github.com/ocx/relay/internal/metrics"
	"github.com/ocx/relay/internal/nodeconfig"
	"github.com/ocx/relay/internal/portal"
	"github.com/ocx/relay/internal/router"
)

// outletSpawnerAddress is the well-known router address this node's
// OutletSpawner binds to; every inlet's pingRoute names it directly
// since this repository's portal topology is single-hop.
const outletSpawnerAddress router.Address = "outlet_spawner"

// Node bundles one node process's live components.
type Node struct {
	Config   nodeconfig.Config
	Router   *router.Router
	StateDir identity.StateDirectory
	Metrics  *metrics.Registry

	logger *slog.Logger

	cancel context.CancelFunc

	tcpListener   net.Listener
	inletListener *portal.InletListener
	outletSpawner *portal.OutletSpawner
	redisAdapter  *router.RedisAdapter

	metricsSrv *http.Server
	adminSrv   *http.Server
}

// New constructs a Node from already-loaded collaborators. It does not
// start anything — call Start to begin accepting connections.
func New(cfg nodeconfig.Config, stateDir identity.StateDirectory, logger *slog.Logger) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	reg := metrics.NewDefaultRegistry()
	rtr := router.New(logger)
	rtr.SetMetrics(reg)

	return &Node{
		Config:   cfg,
		Router:   rtr,
		StateDir: stateDir,
		Metrics:  reg,
		logger:   logger,
	}
}

// Start binds the portal's TCP listener, the outlet spawner, the
// Prometheus metrics endpoint, and the admin status feed, per
// internal/node's §4.I wiring.
func (n *Node) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	ln, err := net.Listen("tcp", n.Config.Listener.Address)
	if err != nil {
		cancel()
		return fmt.Errorf("node: listen on %s: %w", n.Config.Listener.Address, err)
	}
	n.tcpListener = ln

	if n.Config.Redis.URL != "" {
		opts, err := goredis.ParseURL(n.Config.Redis.URL)
		if err != nil {
			cancel()
			ln.Close()
			return fmt.Errorf("node: parse redis url: %w", err)
		}
		adapter, err := router.NewRedisAdapter(opts.Addr, opts.Password, opts.DB)
		if err != nil {
			cancel()
			ln.Close()
			return fmt.Errorf("node: connect redis: %w", err)
		}
		n.redisAdapter = adapter
		n.Router.SetStore(router.NewRedisMailboxStore(adapter, ""))
		n.logger.Info("node: redis mailbox mirror enabled", "addr", opts.Addr)
	}

	n.outletSpawner = portal.StartOutletSpawner(ctx, n.Router, n.logger, outletSpawnerAddress, n.Config.Listener.PeerAddr, router.AllowAll{}, router.AllowAll{})
	n.inletListener = portal.StartInletListener(ctx, n.Router, n.logger, ln, router.Route{outletSpawnerAddress}, router.AllowAll{}, router.AllowAll{})

	if n.Config.Metrics.Address != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		n.metricsSrv = &http.Server{Addr: n.Config.Metrics.Address, Handler: mux}
		go func() {
			if err := n.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				n.logger.Error("node: metrics server failed", "error", err)
			}
		}()
	}

	if n.Config.AdminFeed.Address != "" {
		feed := adminfeed.NewFeed(n.snapshot, time.Duration(n.Config.AdminFeed.Interval)*time.Second)
		mux := http.NewServeMux()
		mux.Handle("/admin/status", feed)
		n.adminSrv = &http.Server{Addr: n.Config.AdminFeed.Address, Handler: mux}
		go func() {
			if err := n.adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				n.logger.Error("node: admin feed server failed", "error", err)
			}
		}()
	}

	n.logger.Info("node: started", "listen", n.Config.Listener.Address)
	return nil
}

// Stop closes the TCP listener and HTTP servers and cancels the
// context passed to every worker this node started.
func (n *Node) Stop(ctx context.Context) error {
	if n.cancel != nil {
		n.cancel()
	}
	if n.tcpListener != nil {
		n.tcpListener.Close()
	}
	if n.metricsSrv != nil {
		n.metricsSrv.Shutdown(ctx)
	}
	if n.adminSrv != nil {
		n.adminSrv.Shutdown(ctx)
	}
	if n.redisAdapter != nil {
		n.redisAdapter.Close()
	}
	return nil
}

func (n *Node) snapshot() adminfeed.StatusSnapshot {
	snap := adminfeed.StatusSnapshot{
		Timestamp:    time.Now(),
		MailboxCount: n.Router.MailboxCount(),
	}
	if n.Metrics != nil {
		snap.WorkersActive = gaugeValue(n.Metrics.WorkersActive)
		snap.MessagesRouted = counterValue(n.Metrics.MessagesRouted)
		snap.MessagesFailed = counterValue(n.Metrics.MessagesFailed)
	}
	return snap
}

func gaugeValue(g prometheus.Gauge) float64 {
	var pb dto.Metric
	if err := g.Write(&pb); err != nil {
		return 0
	}
	return pb.GetGauge().GetValue()
}

func counterValue(c prometheus.Counter) float64 {
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		return 0
	}
	return pb.GetCounter().GetValue()
}
