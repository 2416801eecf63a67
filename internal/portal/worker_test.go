package portal

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/relay/internal/router"
)

// startEchoPeer runs a tiny TCP server that echoes everything it reads
// back to the same connection, standing in for "the real peer" an outlet
// dials.
func startEchoPeer(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go io.Copy(conn, conn)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ln
}

func TestInletOutletHandshakeAndBytePump(t *testing.T) {
	oldSleep := disconnectSleep
	disconnectSleep = 5 * time.Millisecond
	defer func() { disconnectSleep = oldSleep }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rtr := router.New(slog.Default())
	peer := startEchoPeer(t)

	const spawnerAddr router.Address = "test_outlet_spawner"
	StartOutletSpawner(ctx, rtr, slog.Default(), spawnerAddr, peer.Addr().String(), router.AllowAll{}, router.AllowAll{})

	localConn, workerConn := net.Pipe()
	defer localConn.Close()

	inlet := StartInlet(ctx, rtr, slog.Default(), workerConn, router.Route{spawnerAddr}, router.AllowAll{}, router.AllowAll{})
	require.NotEmpty(t, inlet.RemoteAddress())

	const want = "hello through the tunnel"
	writeErrCh := make(chan error, 1)
	go func() {
		_, err := localConn.Write([]byte(want))
		writeErrCh <- err
	}()
	require.NoError(t, <-writeErrCh)

	readBuf := make([]byte, len(want))
	localConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := io.ReadFull(localConn, readBuf)
	require.NoError(t, err)
	assert.Equal(t, want, string(readBuf))
}

func TestWorkerTearsDownAfterLocalConnectionCloses(t *testing.T) {
	oldSleep := disconnectSleep
	disconnectSleep = 5 * time.Millisecond
	defer func() { disconnectSleep = oldSleep }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rtr := router.New(slog.Default())
	peer := startEchoPeer(t)

	const spawnerAddr router.Address = "test_outlet_spawner_2"
	StartOutletSpawner(ctx, rtr, slog.Default(), spawnerAddr, peer.Addr().String(), router.AllowAll{}, router.AllowAll{})

	localConn, workerConn := net.Pipe()

	inlet := StartInlet(ctx, rtr, slog.Default(), workerConn, router.Route{spawnerAddr}, router.AllowAll{}, router.AllowAll{})

	// Give the handshake a moment to complete, then close the local side —
	// the inlet's receive processor should see EOF and drive teardown.
	time.Sleep(50 * time.Millisecond)
	localConn.Close()

	select {
	case <-inlet.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not tear down after connection close")
	}
}
