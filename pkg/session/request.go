package session

import (
	"context"
	"encoding/json"

	"github.com/mcpcore/mcp/pkg/jsonrpc"
	"github.com/mcpcore/mcp/pkg/mcperr"
)

// rpcResult is the one-shot completion sink value for a PendingRequest
// (spec §3): exactly one of result/err is meaningful.
type rpcResult struct {
	result json.RawMessage
	err    error
}

// outboundReqCmd is a request submitted to the dispatch loop. assignedID
// is written once, by the loop, before the command is registered in the
// pending table; it is read later only by the loop itself (when handling
// a cancelCh entry), so no lock is needed despite the cross-goroutine
// handoff — the loop is the sole reader and the sole writer, just at two
// different times, ordered by the channel send that put the command on
// cancelCh in the first place.
type outboundReqCmd struct {
	method     string
	params     json.RawMessage
	resultCh   chan rpcResult
	done       chan struct{}
	assignedID jsonrpc.ID
}

type outboundNotifyCmd struct {
	method string
	params json.RawMessage
	errCh  chan error
}

type handlerDoneMsg struct {
	id     jsonrpc.ID
	result any
	err    error
}

// SendRequest allocates a new unique id, enqueues the request, and
// blocks until a matching response is routed in, the session closes, or
// ctx is cancelled by the caller (which also emits notifications/cancelled
// to the peer, per spec §4.5.6).
//
// Accepted only in StateReady, except the literal "initialize" method,
// which the handshake is allowed to send while StateInitializing
// (invariant S1).
func (s *Session) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	raw, err := marshalAny(params)
	if err != nil {
		return nil, mcperr.Wrap(mcperr.KindInvalidParams, "marshal request params", err)
	}

	cmd := &outboundReqCmd{
		method:   method,
		params:   raw,
		resultCh: make(chan rpcResult, 1),
		done:     make(chan struct{}),
	}

	select {
	case s.outboundReqCh <- cmd:
	case <-ctx.Done():
		return nil, mcperr.Cancelled(ctx.Err().Error())
	case <-s.stoppedCh:
		return nil, mcperr.ConnectionClosed("session stopped")
	}

	go func() {
		select {
		case <-ctx.Done():
			select {
			case s.cancelCh <- cmd:
			case <-cmd.done:
			case <-s.stoppedCh:
			}
		case <-cmd.done:
		}
	}()

	select {
	case res := <-cmd.resultCh:
		return res.result, res.err
	case <-s.stoppedCh:
		return nil, mcperr.ConnectionClosed("session stopped")
	}
}

// SendNotification is fire-and-forget: it never blocks on a response.
// A failure to enqueue the bytes surfaces as TransportError.
func (s *Session) SendNotification(ctx context.Context, method string, params any) error {
	raw, err := marshalAny(params)
	if err != nil {
		return mcperr.Wrap(mcperr.KindInvalidParams, "marshal notification params", err)
	}
	cmd := &outboundNotifyCmd{method: method, params: raw, errCh: make(chan error, 1)}
	select {
	case s.outboundNotifyCh <- cmd:
	case <-ctx.Done():
		return mcperr.Cancelled(ctx.Err().Error())
	case <-s.stoppedCh:
		return mcperr.ConnectionClosed("session stopped")
	}
	select {
	case err := <-cmd.errCh:
		return err
	case <-s.stoppedCh:
		return mcperr.ConnectionClosed("session stopped")
	}
}

func marshalAny(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
