package listener_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpcore/mcp/pkg/listener"
	"github.com/mcpcore/mcp/pkg/session"
)

func noopHandshake(ctx context.Context, s *session.Session) error { return nil }

func socketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "mcp.sock")
}

func TestListenerAcceptsConnectionAndFiresObservers(t *testing.T) {
	path := socketPath(t)
	l := listener.New(path, noopHandshake)

	created := make(chan *session.Session, 1)
	closed := make(chan *session.Session, 1)
	l.OnSessionCreated(func(s *session.Session) { created <- s })
	l.OnSessionClosed(func(s *session.Session) { closed <- s })

	ctx, cancel := context.WithCancel(context.Background())
	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- l.Serve(ctx) }()

	waitForSocket(t, path)

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)

	select {
	case <-created:
	case <-time.After(2 * time.Second):
		t.Fatal("session_created observer never fired")
	}

	require.NoError(t, conn.Close())

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("session_closed observer never fired")
	}

	cancel()
	select {
	case err := <-serveErrCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}

func TestListenerStopRemovesSocketFile(t *testing.T) {
	path := socketPath(t)
	l := listener.New(path, noopHandshake)

	ctx := context.Background()
	go l.Serve(ctx)
	waitForSocket(t, path)

	require.NoError(t, l.Stop())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "listener.Stop must remove the socket's filesystem entry")
}

func TestListenerRemovesStaleSocketBeforeBinding(t *testing.T) {
	path := socketPath(t)
	// Simulate a stale entry left behind by a crashed prior process.
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0644))

	l := listener.New(path, noopHandshake)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- l.Serve(ctx) }()

	waitForSocket(t, path)
	conn, err := net.Dial("unix", path)
	require.NoError(t, err, "listener should have bound despite the stale file")
	conn.Close()

	require.NoError(t, l.Stop())
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("socket %s was never created", path)
}
