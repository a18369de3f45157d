// Package session implements the session engine (C5): the hardest
// component of the core. It owns a jsonrpc.Transport, frames/dispatches
// messages through it, negotiates readiness via a role-supplied
// handshake callback, and correlates outbound requests with their
// eventual responses through a pending-request table.
//
// The dispatch loop (loop.go) is the single goroutine described in
// spec §5: every pending-table mutation happens on it, so the table
// needs no lock. SendRequest and SendNotification are a thin API that
// hands a command to the loop over a channel and waits for its result;
// handler registration writes the handler maps under a mutex.
package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mcpcore/mcp/pkg/jsonrpc"
	"github.com/mcpcore/mcp/pkg/mcperr"
)

// State is the session state machine of spec §4.5.5.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateInitializing
	StateReady
	StateClosing
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// RequestHandler answers an inbound request. Returning a *mcperr.Error
// lets the handler pick a specific wire code; any other error is
// reported as InternalError.
type RequestHandler func(ctx context.Context, params json.RawMessage) (any, error)

// NotificationHandler reacts to an inbound notification. Notification
// handlers run synchronously on the dispatch loop (never spawned), so
// that notifications/progress delivery for a given token preserves its
// source order (spec §5) without extra bookkeeping; handlers must not
// block on anything that could stall — suspend in a request handler
// instead.
type NotificationHandler func(ctx context.Context, params json.RawMessage)

// HandshakeFunc drives a session from StateInitializing to the point it
// should become Ready. The client-role implementation sends `initialize`
// and `notifications/initialized`; the server-role implementation
// registers an `initialize` handler ahead of Start and simply waits for
// the `notifications/initialized` notification (see WaitForNotification).
type HandshakeFunc func(ctx context.Context, s *Session) error

// StateObserver is notified of every state transition. Keep it fast —
// it runs inline on whichever goroutine makes the transition (the
// caller of Start or Stop, or the dispatch loop on transport loss).
type StateObserver func(old, new State)

// Session is one JSON-RPC 2.0 peer connection. The zero value is not
// usable; construct with New.
type Session struct {
	transport jsonrpc.Transport

	stateMu   sync.Mutex
	state     State
	observers []StateObserver

	handlerMu    sync.RWMutex
	reqHandlers  map[string]RequestHandler
	notifyHandlers map[string]NotificationHandler
	waiters      map[string][]chan struct{}

	outboundReqCh    chan *outboundReqCmd
	outboundNotifyCh chan *outboundNotifyCmd
	cancelCh         chan *outboundReqCmd
	handlerDoneCh    chan *handlerDoneMsg

	stopOnce  sync.Once
	stopCh    chan struct{}
	stoppedCh chan struct{}

	baseCtx context.Context
}

// New constructs a Session bound to transport. It does not connect;
// call Start to drive it from Disconnected to Ready.
func New(transport jsonrpc.Transport) *Session {
	return &Session{
		transport:        transport,
		state:            StateDisconnected,
		reqHandlers:      make(map[string]RequestHandler),
		notifyHandlers:   make(map[string]NotificationHandler),
		waiters:          make(map[string][]chan struct{}),
		outboundReqCh:    make(chan *outboundReqCmd),
		outboundNotifyCh: make(chan *outboundNotifyCmd),
		cancelCh:         make(chan *outboundReqCmd),
		handlerDoneCh:    make(chan *handlerDoneMsg),
		stopCh:           make(chan struct{}),
		stoppedCh:        make(chan struct{}),
	}
}

// State returns the current session state.
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// OnStateChange registers an observer invoked on every transition.
func (s *Session) OnStateChange(obs StateObserver) {
	s.stateMu.Lock()
	s.observers = append(s.observers, obs)
	s.stateMu.Unlock()
}

func (s *Session) setState(new State) {
	s.stateMu.Lock()
	old := s.state
	if old == new {
		s.stateMu.Unlock()
		return
	}
	s.state = new
	obs := append([]StateObserver(nil), s.observers...)
	s.stateMu.Unlock()
	for _, o := range obs {
		o(old, new)
	}
}

// RegisterRequestHandler wires a handler for inbound requests with the
// given method. Safe to call before Start; safe but not required to be
// sequenced through the loop afterward (spec §5 shared-resource policy)
// since registration only ever adds entries and reads take a read lock.
func (s *Session) RegisterRequestHandler(method string, h RequestHandler) {
	s.handlerMu.Lock()
	s.reqHandlers[method] = h
	s.handlerMu.Unlock()
}

// RegisterNotificationHandler wires a handler for inbound notifications.
func (s *Session) RegisterNotificationHandler(method string, h NotificationHandler) {
	s.handlerMu.Lock()
	s.notifyHandlers[method] = h
	s.handlerMu.Unlock()
}

// WaitForNotification blocks until one instance of the named
// notification is dispatched, or ctx is done. Used by the server role's
// handshake to wait for notifications/initialized without a bespoke
// signal type.
func (s *Session) WaitForNotification(ctx context.Context, method string) error {
	ch := make(chan struct{})
	s.handlerMu.Lock()
	s.waiters[method] = append(s.waiters[method], ch)
	s.handlerMu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return mcperr.New(mcperr.KindTimeout, "timed out waiting for "+method)
	case <-s.stoppedCh:
		return mcperr.ConnectionClosed("session stopped while waiting for " + method)
	}
}

// Start drives the session Disconnected -> Connecting -> Initializing,
// launches the dispatch loop, runs handshake, and on success transitions
// to Ready. It must not be called more than once per session (invariant
// S2); reconnection requires a fresh Session.
func (s *Session) Start(ctx context.Context, handshake HandshakeFunc) error {
	if s.State() != StateDisconnected {
		return mcperr.AlreadyInitialized("session already started")
	}
	s.baseCtx = ctx
	s.setState(StateConnecting)
	if err := s.transport.Connect(ctx); err != nil {
		s.setState(StateError)
		return mcperr.Wrap(mcperr.KindTransportError, "connect failed", err)
	}
	s.setState(StateInitializing)
	go s.run()

	if err := handshake(ctx, s); err != nil {
		s.setState(StateError)
		_ = s.Stop(ctx)
		return err
	}
	s.setState(StateReady)
	return nil
}

// Stop is idempotent: it fails every pending request with
// ConnectionClosed (invariant P3), cancels every in-flight inbound
// handler, disconnects the transport, and only then returns.
func (s *Session) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.setState(StateClosing)
		close(s.stopCh)
	})
	<-s.stoppedCh
	err := s.transport.Disconnect(ctx)
	s.setState(StateDisconnected)
	return err
}

// Done is closed once the dispatch loop has exited.
func (s *Session) Done() <-chan struct{} { return s.stoppedCh }
