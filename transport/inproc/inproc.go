// Package inproc provides a pair of jsonrpc.Transport implementations
// wired directly to each other's channels, with no socket or process
// boundary. Used by the session/server/client test suites to exercise
// the full handshake and request/response/cancellation paths without a
// real carrier.
package inproc

import (
	"context"
	"sync"

	"github.com/mcpcore/mcp/pkg/jsonrpc"
)

// Transport is one end of an in-process pair. Send on one side delivers
// to the other side's Messages channel.
type Transport struct {
	name string

	peerMu sync.Mutex
	peer   *Transport

	messages     chan *jsonrpc.Message
	stateChanges chan jsonrpc.State
	errors       chan error

	closeOnce sync.Once
	closed    chan struct{}
}

// NewPair builds two Transports already linked to each other.
func NewPair() (a *Transport, b *Transport) {
	a = newTransport("a")
	b = newTransport("b")
	a.peer = b
	b.peer = a
	return a, b
}

func newTransport(name string) *Transport {
	return &Transport{
		name:         name,
		messages:     make(chan *jsonrpc.Message, 64),
		stateChanges: make(chan jsonrpc.State, 4),
		errors:       make(chan error, 4),
		closed:       make(chan struct{}),
	}
}

func (t *Transport) Connect(ctx context.Context) error {
	t.stateChanges <- jsonrpc.StateConnected
	return nil
}

func (t *Transport) Disconnect(ctx context.Context) error {
	t.closeOnce.Do(func() {
		close(t.closed)
		select {
		case t.stateChanges <- jsonrpc.StateClosed:
		default:
		}
	})
	return nil
}

// Send decodes and re-encodes through jsonrpc.Decode on the receiving
// side's behalf isn't necessary here since both ends already speak
// *jsonrpc.Message; Send accepts the wire bytes to match the Transport
// contract and decodes them once before delivery, exactly as a real
// carrier's read loop would.
func (t *Transport) Send(ctx context.Context, data []byte) error {
	msg, err := jsonrpc.Decode(data)
	if err != nil {
		return err
	}
	t.peerMu.Lock()
	peer := t.peer
	t.peerMu.Unlock()

	select {
	case peer.messages <- msg:
		return nil
	case <-peer.closed:
		return jsonrpc.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) Messages() <-chan *jsonrpc.Message  { return t.messages }
func (t *Transport) StateChanges() <-chan jsonrpc.State { return t.stateChanges }
func (t *Transport) Errors() <-chan error               { return t.errors }
