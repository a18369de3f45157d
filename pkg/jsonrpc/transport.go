package jsonrpc

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send when the transport (or, for inproc, the
// peer) has already disconnected.
var ErrClosed = errors.New("jsonrpc: transport closed")

// State is a Transport's connection state, reported through StateChanged.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport is the duplex carrier contract of spec §4.2 (C2). Concrete
// transports (stdio, Unix socket, Streamable HTTP+SSE) implement this;
// the session engine depends on nothing else.
//
// Events delivered through Messages/StateChanges/Errors are guaranteed
// serial per transport instance (no reordering within one peer
// direction) — the session engine relies on this to avoid locking its
// dispatch loop.
type Transport interface {
	// Connect completes when the peer is reachable. It must be safe to
	// call exactly once; Messages/StateChanges are only valid after it
	// returns without error.
	Connect(ctx context.Context) error

	// Disconnect is idempotent and completes when the carrier is closed.
	Disconnect(ctx context.Context) error

	// Send hands one encoded message to the OS; it completes before the
	// bytes are necessarily delivered end to end.
	Send(ctx context.Context, data []byte) error

	// Messages yields one decoded Message per inbound wire object.
	Messages() <-chan *Message

	// StateChanges yields a State each time the carrier's connectivity
	// changes. A Closed/Disconnected state delivered after the session
	// reaches Ready is terminal: the session fails every pending request.
	StateChanges() <-chan State

	// Errors yields transport-level failures, including the Decode error
	// (a *mcperr.Error of kind ParseError or InvalidRequest) for an
	// inbound object that could not be decoded; the session answers
	// those with an ErrorResponse, per §4.5.4 rule 4.
	Errors() <-chan error
}
