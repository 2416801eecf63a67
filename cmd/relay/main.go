// Command relay runs a single messaging/routing node: the router, a
// TCP portal listener, and the metrics/admin status endpoints.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ocx/relay/internal/identity"
	"github.com/ocx/relay/internal/node"
	"github.com/ocx/relay/internal/nodeconfig"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to relay.yaml (optional; defaults and env overrides still apply)")
	flag.Parse()

	log.Println("starting relay node...")

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := nodeconfig.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	stateDir, err := identity.NewFsStateDirectory()
	if err != nil {
		log.Fatalf("open state directory: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Log.Level),
	}))

	n := node.New(cfg, stateDir, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := n.Start(ctx); err != nil {
		log.Fatalf("start node: %v", err)
	}

	<-ctx.Done()
	log.Println("shutting down relay node...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := n.Stop(stopCtx); err != nil {
		log.Fatalf("stop node: %v", err)
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
