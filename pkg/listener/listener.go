// Package listener implements the multi-session Unix-socket listener
// (C7): accepts one net.Conn per client, wraps it in a fresh session and
// lets registered observers wire tools/resources/prompts onto it before
// the handshake runs, then fans out created/closed events.
package listener

import (
	"context"
	"net"
	"os"
	"sync"

	"github.com/mcpcore/mcp/internal/logger"
	"github.com/mcpcore/mcp/pkg/session"
	"github.com/mcpcore/mcp/transport/unixsocket"
)

// SessionObserver is invoked for every accepted connection, before its
// session is started, so it can register request/notification handlers
// ahead of the initialize handshake.
type SessionObserver func(sess *session.Session)

// ClosedObserver is invoked after a session's dispatch loop has exited.
type ClosedObserver func(sess *session.Session)

// Listener accepts connections on a Unix domain socket and spins up one
// independent session per connection (spec §5 "N independent loops that
// share no mutable state").
type Listener struct {
	path string
	ln   net.Listener

	mu        sync.Mutex
	sessions  map[*session.Session]struct{}
	onCreated []SessionObserver
	onClosed  []ClosedObserver

	handshake session.HandshakeFunc

	stopOnce sync.Once
	stopped  chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Listener bound to a future Unix socket at path. The
// handshake function is the server-role handshake (see pkg/server) run
// on every accepted session.
func New(path string, handshake session.HandshakeFunc) *Listener {
	return &Listener{
		path:      path,
		sessions:  make(map[*session.Session]struct{}),
		handshake: handshake,
		stopped:   make(chan struct{}),
	}
}

// OnSessionCreated registers an observer fired for every accepted
// connection's session before Start is called on it.
func (l *Listener) OnSessionCreated(obs SessionObserver) {
	l.mu.Lock()
	l.onCreated = append(l.onCreated, obs)
	l.mu.Unlock()
}

// OnSessionClosed registers an observer fired after a session ends.
func (l *Listener) OnSessionClosed(obs ClosedObserver) {
	l.mu.Lock()
	l.onClosed = append(l.onClosed, obs)
	l.mu.Unlock()
}

// Serve binds the socket and accepts connections until ctx is cancelled
// or Stop is called. Invariant L2: a stale filesystem entry at path is
// removed before binding.
func (l *Listener) Serve(ctx context.Context) error {
	if err := removeStale(l.path); err != nil {
		return err
	}
	ln, err := net.Listen("unix", l.path)
	if err != nil {
		return err
	}
	l.ln = ln
	logger.Info("listener: accepting connections on", l.path)

	go func() {
		<-ctx.Done()
		_ = l.Stop()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-l.stopped:
				return nil
			default:
				return err
			}
		}
		l.wg.Add(1)
		go l.handleConn(ctx, conn)
	}
}

func removeStale(path string) error {
	if _, err := os.Stat(path); err == nil {
		return os.Remove(path)
	} else if !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (l *Listener) handleConn(ctx context.Context, conn net.Conn) {
	defer l.wg.Done()
	t := unixsocket.New(conn)
	sess := session.New(t)

	l.mu.Lock()
	l.sessions[sess] = struct{}{}
	created := append([]SessionObserver(nil), l.onCreated...)
	l.mu.Unlock()

	for _, obs := range created {
		obs(sess)
	}

	if err := sess.Start(ctx, l.handshake); err != nil {
		logger.Warn("listener: session failed to start", err)
	} else {
		<-sess.Done()
	}

	l.mu.Lock()
	delete(l.sessions, sess)
	closed := append([]ClosedObserver(nil), l.onClosed...)
	l.mu.Unlock()

	for _, obs := range closed {
		obs(sess)
	}
}

// Stop closes every active session (L1), then the listen socket, then
// removes the filesystem entry, and blocks until all accepted
// connections' handler goroutines have returned. A failing session
// never prevents its siblings from being stopped.
func (l *Listener) Stop() error {
	var err error
	l.stopOnce.Do(func() {
		close(l.stopped)

		l.mu.Lock()
		sessions := make([]*session.Session, 0, len(l.sessions))
		for s := range l.sessions {
			sessions = append(sessions, s)
		}
		l.mu.Unlock()

		for _, s := range sessions {
			if stopErr := s.Stop(context.Background()); stopErr != nil {
				logger.Warn("listener: error stopping session during shutdown", stopErr)
			}
		}

		if l.ln != nil {
			err = l.ln.Close()
		}
		l.wg.Wait()
		_ = os.Remove(l.path)
	})
	return err
}
