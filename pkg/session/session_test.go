package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpcore/mcp/pkg/jsonrpc"
	"github.com/mcpcore/mcp/pkg/mcperr"
	"github.com/mcpcore/mcp/pkg/session"
	"github.com/mcpcore/mcp/transport/inproc"
)

// fakeTransport is a minimal jsonrpc.Transport whose Errors channel the
// test can push onto directly, to exercise the loop's reaction to a
// decode failure without needing a real malformed line on the wire.
type fakeTransport struct {
	messages     chan *jsonrpc.Message
	stateChanges chan jsonrpc.State
	errors       chan error
	sent         chan []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		messages:     make(chan *jsonrpc.Message, 4),
		stateChanges: make(chan jsonrpc.State, 4),
		errors:       make(chan error, 4),
		sent:         make(chan []byte, 4),
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.stateChanges <- jsonrpc.StateConnected
	return nil
}
func (f *fakeTransport) Disconnect(ctx context.Context) error { return nil }
func (f *fakeTransport) Send(ctx context.Context, data []byte) error {
	f.sent <- data
	return nil
}
func (f *fakeTransport) Messages() <-chan *jsonrpc.Message  { return f.messages }
func (f *fakeTransport) StateChanges() <-chan jsonrpc.State { return f.stateChanges }
func (f *fakeTransport) Errors() <-chan error               { return f.errors }

// noopHandshake skips the real initialize exchange: these tests exercise
// the dispatch loop directly, not the handshake that pkg/server/pkg/client
// drive on top of it.
func noopHandshake(ctx context.Context, s *session.Session) error { return nil }

func newPairedSessions(t *testing.T) (a, b *session.Session) {
	t.Helper()
	ta, tb := inproc.NewPair()
	a = session.New(ta)
	b = session.New(tb)
	return a, b
}

func TestSessionSendRequestRoundTrip(t *testing.T) {
	a, b := newPairedSessions(t)
	b.RegisterRequestHandler("echo", func(ctx context.Context, params json.RawMessage) (any, error) {
		var m map[string]string
		if err := json.Unmarshal(params, &m); err != nil {
			return nil, err
		}
		return m, nil
	})

	ctx := context.Background()
	require.NoError(t, a.Start(ctx, noopHandshake))
	require.NoError(t, b.Start(ctx, noopHandshake))
	defer a.Stop(ctx)
	defer b.Stop(ctx)

	result, err := a.SendRequest(ctx, "echo", map[string]string{"hello": "world"})
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, json.Unmarshal(result, &out))
	assert.Equal(t, "world", out["hello"])
}

func TestSessionSendNotificationDoesNotBlockOnReply(t *testing.T) {
	a, b := newPairedSessions(t)
	received := make(chan string, 1)
	b.RegisterNotificationHandler("ping", func(ctx context.Context, params json.RawMessage) {
		var m map[string]string
		json.Unmarshal(params, &m)
		received <- m["who"]
	})

	ctx := context.Background()
	require.NoError(t, a.Start(ctx, noopHandshake))
	require.NoError(t, b.Start(ctx, noopHandshake))
	defer a.Stop(ctx)
	defer b.Stop(ctx)

	require.NoError(t, a.SendNotification(ctx, "ping", map[string]string{"who": "tester"}))

	select {
	case who := <-received:
		assert.Equal(t, "tester", who)
	case <-time.After(2 * time.Second):
		t.Fatal("notification handler never ran")
	}
}

func TestSessionUnknownMethodReturnsMethodNotFound(t *testing.T) {
	a, b := newPairedSessions(t)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx, noopHandshake))
	require.NoError(t, b.Start(ctx, noopHandshake))
	defer a.Stop(ctx)
	defer b.Stop(ctx)

	_, err := a.SendRequest(ctx, "nonexistent/method", nil)
	require.Error(t, err)

	var mErr *mcperr.Error
	require.True(t, errors.As(err, &mErr))
	assert.Equal(t, mcperr.KindMethodNotFound, mErr.Kind)
}

func TestSessionCancelPropagatesToHandlerAndCaller(t *testing.T) {
	a, b := newPairedSessions(t)

	started := make(chan struct{})
	handlerCancelled := make(chan struct{})
	b.RegisterRequestHandler("slow", func(ctx context.Context, params json.RawMessage) (any, error) {
		close(started)
		<-ctx.Done()
		close(handlerCancelled)
		return nil, ctx.Err()
	})

	ctx := context.Background()
	require.NoError(t, a.Start(ctx, noopHandshake))
	require.NoError(t, b.Start(ctx, noopHandshake))
	defer a.Stop(ctx)
	defer b.Stop(ctx)

	callCtx, cancel := context.WithCancel(ctx)
	resultCh := make(chan error, 1)
	go func() {
		_, err := a.SendRequest(callCtx, "slow", nil)
		resultCh <- err
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never started")
	}
	cancel()

	select {
	case err := <-resultCh:
		require.Error(t, err)
		var mErr *mcperr.Error
		require.True(t, errors.As(err, &mErr))
		assert.Equal(t, mcperr.KindCancelled, mErr.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("SendRequest did not return after caller cancellation")
	}

	select {
	case <-handlerCancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("handler's context was never cancelled by the peer's notifications/cancelled")
	}
}

func TestSessionSuppressesResponseForPeerCancelledRequest(t *testing.T) {
	// spec §4.5.6: propagate cancellation into the handler's context;
	// do not emit a response for that id once the handler returns.
	ft := newFakeTransport()
	s := session.New(ft)

	started := make(chan struct{})
	handlerDone := make(chan struct{})
	s.RegisterRequestHandler("slow", func(ctx context.Context, params json.RawMessage) (any, error) {
		close(started)
		<-ctx.Done()
		close(handlerDone)
		return nil, ctx.Err()
	})

	ctx := context.Background()
	require.NoError(t, s.Start(ctx, noopHandshake))
	defer s.Stop(ctx)

	reqBytes, err := jsonrpc.EncodeRequest("slow", nil, jsonrpc.NewIntID(1))
	require.NoError(t, err)
	reqMsg, err := jsonrpc.Decode(reqBytes)
	require.NoError(t, err)
	ft.messages <- reqMsg

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never started")
	}

	cancelBytes, err := jsonrpc.EncodeNotification("notifications/cancelled", map[string]any{"requestId": 1})
	require.NoError(t, err)
	cancelMsg, err := jsonrpc.Decode(cancelBytes)
	require.NoError(t, err)
	ft.messages <- cancelMsg

	select {
	case <-handlerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("handler's context was never cancelled")
	}

	select {
	case sent := <-ft.sent:
		t.Fatalf("session sent a response for a peer-cancelled request: %s", sent)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSessionStopFailsPendingRequestsWithConnectionClosed(t *testing.T) {
	a, b := newPairedSessions(t)

	started := make(chan struct{})
	b.RegisterRequestHandler("block", func(ctx context.Context, params json.RawMessage) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx := context.Background()
	require.NoError(t, a.Start(ctx, noopHandshake))
	require.NoError(t, b.Start(ctx, noopHandshake))
	defer b.Stop(ctx)

	resultCh := make(chan error, 1)
	go func() {
		_, err := a.SendRequest(ctx, "block", nil)
		resultCh <- err
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never started")
	}

	require.NoError(t, a.Stop(ctx))

	select {
	case err := <-resultCh:
		require.Error(t, err)
		var mErr *mcperr.Error
		require.True(t, errors.As(err, &mErr))
		assert.Equal(t, mcperr.KindConnectionClosed, mErr.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("SendRequest did not return once the session stopped")
	}
}

func TestSessionRepliesToDecodeErrorWithErrorResponse(t *testing.T) {
	ft := newFakeTransport()
	s := session.New(ft)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx, noopHandshake))
	defer s.Stop(ctx)

	ft.errors <- mcperr.New(mcperr.KindParseError, "unexpected token")

	select {
	case sent := <-ft.sent:
		msg, err := jsonrpc.Decode(sent)
		require.NoError(t, err)
		require.Equal(t, jsonrpc.KindErrorResponse, msg.Kind)
		assert.True(t, msg.ErrorResp.ID.IsNull())
		assert.Equal(t, mcperr.CodeForKind(mcperr.KindParseError), msg.ErrorResp.Error.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("session never replied to the decode error")
	}
}

func TestSessionIgnoresNonDecodeTransportErrors(t *testing.T) {
	ft := newFakeTransport()
	s := session.New(ft)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx, noopHandshake))
	defer s.Stop(ctx)

	ft.errors <- errors.New("connection reset by peer")

	select {
	case sent := <-ft.sent:
		t.Fatalf("session sent a reply for a non-decode transport error: %s", sent)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSessionRejectsOutboundRequestsBeforeReady(t *testing.T) {
	a, _ := newPairedSessions(t)
	// A session stuck in StateInitializing (handshake never completes)
	// must reject anything but "initialize" (invariant S1).
	blockHandshake := func(ctx context.Context, s *session.Session) error {
		<-ctx.Done()
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startErrCh := make(chan error, 1)
	go func() { startErrCh <- a.Start(ctx, blockHandshake) }()

	// Give Start a moment to reach StateInitializing before probing it.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, session.StateInitializing, a.State())

	_, err := a.SendRequest(ctx, "tools/list", nil)
	require.Error(t, err)
	var mErr *mcperr.Error
	require.True(t, errors.As(err, &mErr))
	assert.Equal(t, mcperr.KindNotInitialized, mErr.Kind)

	cancel()
	<-startErrCh
}
