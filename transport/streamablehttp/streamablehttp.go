// Package streamablehttp implements the Streamable HTTP transport of
// spec §6: outbound messages POSTed as JSON, inbound messages streamed
// back over a long-lived text/event-stream response. Session
// correlation rides the Mcp-Session-Id header; optional bearer auth is
// carried on every request and, server-side, verified as a signed JWT
// using go-jose when a verification key is configured — the teacher's
// go.mod already carried go-jose/go-jose as an indirect dependency with
// no caller; this is its new home.
package streamablehttp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/google/uuid"

	"github.com/mcpcore/mcp/internal/logger"
	"github.com/mcpcore/mcp/pkg/jsonrpc"
)

const maxBackoff = 30 * time.Second

// ClientTransport is the client side: POSTs requests/notifications to
// endpoint and reads the paired SSE stream for inbound traffic.
type ClientTransport struct {
	endpoint    string
	bearerToken string
	httpClient  *http.Client

	mu        sync.Mutex
	sessionID string

	messages     chan *jsonrpc.Message
	stateChanges chan jsonrpc.State
	errors       chan error

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient builds a ClientTransport against endpoint. bearerToken may
// be empty to disable the Authorization header.
func NewClient(endpoint, bearerToken string) *ClientTransport {
	return &ClientTransport{
		endpoint:     endpoint,
		bearerToken:  bearerToken,
		httpClient:   &http.Client{Timeout: 0},
		messages:     make(chan *jsonrpc.Message, 32),
		stateChanges: make(chan jsonrpc.State, 4),
		errors:       make(chan error, 4),
		done:         make(chan struct{}),
	}
}

func (t *ClientTransport) Connect(ctx context.Context) error {
	t.stateChanges <- jsonrpc.StateConnected
	go t.streamLoop(ctx)
	return nil
}

// streamLoop keeps the SSE GET connection alive, reconnecting with
// exponential backoff capped at 30s per spec §6's Streamable HTTP row.
func (t *ClientTransport) streamLoop(ctx context.Context) {
	backoff := time.Second
	for {
		select {
		case <-t.done:
			return
		default:
		}

		if err := t.readStream(ctx); err != nil {
			select {
			case t.errors <- err:
			case <-t.done:
				return
			}
		}

		select {
		case <-t.done:
			return
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		logger.Warn("streamablehttp: reconnecting SSE stream after", humanize.RelTime(time.Now(), time.Now().Add(backoff), "", ""))
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (t *ClientTransport) readStream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	t.applyAuth(req)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("streamablehttp: SSE endpoint returned %d", resp.StatusCode)
	}
	if sid := resp.Header.Get("Mcp-Session-Id"); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				t.deliverEvent(data.String())
				data.Reset()
			}
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event:, id:, retry: fields are ignored; only data matters here.
		}
	}
	return scanner.Err()
}

func (t *ClientTransport) deliverEvent(raw string) {
	msg, err := jsonrpc.Decode([]byte(raw))
	if err != nil {
		select {
		case t.errors <- err:
		case <-t.done:
		}
		return
	}
	select {
	case t.messages <- msg:
	case <-t.done:
	}
}

func (t *ClientTransport) applyAuth(req *http.Request) {
	if t.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+t.bearerToken)
	}
	t.mu.Lock()
	sid := t.sessionID
	t.mu.Unlock()
	if sid != "" {
		req.Header.Set("Mcp-Session-Id", sid)
	}
}

func (t *ClientTransport) Send(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	t.applyAuth(req)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("streamablehttp: POST returned %d: %s", resp.StatusCode, string(body))
	}
	if sid := resp.Header.Get("Mcp-Session-Id"); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}
	return nil
}

func (t *ClientTransport) Disconnect(ctx context.Context) error {
	t.closeOnce.Do(func() {
		close(t.done)
		select {
		case t.stateChanges <- jsonrpc.StateClosed:
		default:
		}
	})
	return nil
}

func (t *ClientTransport) Messages() <-chan *jsonrpc.Message  { return t.messages }
func (t *ClientTransport) StateChanges() <-chan jsonrpc.State { return t.stateChanges }
func (t *ClientTransport) Errors() <-chan error               { return t.errors }

// BearerVerifier validates an incoming Authorization: Bearer token on
// the server's HTTP endpoint, used by ServerTransport.Handler.
type BearerVerifier struct {
	key any // *rsa.PublicKey, []byte (HMAC), etc. — anything jose.Verify accepts
}

// NewBearerVerifier builds a verifier that checks a compact JWS using key.
func NewBearerVerifier(key any) *BearerVerifier {
	return &BearerVerifier{key: key}
}

// Verify parses and signature-checks a compact JWT, returning its claims.
func (v *BearerVerifier) Verify(token string) (jwt.Claims, error) {
	tok, err := jwt.ParseSigned(token)
	if err != nil {
		return jwt.Claims{}, fmt.Errorf("parse bearer token: %w", err)
	}
	var claims jwt.Claims
	if err := tok.Claims(v.key, &claims); err != nil {
		return jwt.Claims{}, fmt.Errorf("verify bearer token: %w", err)
	}
	if err := claims.Validate(jwt.Expected{Time: time.Now()}); err != nil {
		return jwt.Claims{}, fmt.Errorf("bearer token rejected: %w", err)
	}
	return claims, nil
}

// ServerTransport exposes a single MCP session over HTTP: a POST
// endpoint for inbound messages and a GET endpoint serving an SSE
// stream of outbound ones. One ServerTransport serves exactly one
// session, matching pkg/listener's one-session-per-connection model.
// Its id is set as the Mcp-Session-Id header on every response;
// HandlePost and HandleSSE do not read that header from requests, and
// this package has no router that picks a ServerTransport by it.
type ServerTransport struct {
	sessionID string
	verifier  *BearerVerifier

	messages     chan *jsonrpc.Message
	stateChanges chan jsonrpc.State
	errors       chan error

	mu         sync.Mutex
	sseClients []chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

// NewServer builds a ServerTransport with a freshly minted session id.
// verifier may be nil to accept connections without bearer auth.
func NewServer(verifier *BearerVerifier) *ServerTransport {
	return &ServerTransport{
		sessionID:    uuid.NewString(),
		verifier:     verifier,
		messages:     make(chan *jsonrpc.Message, 32),
		stateChanges: make(chan jsonrpc.State, 4),
		errors:       make(chan error, 4),
		done:         make(chan struct{}),
	}
}

func (t *ServerTransport) Connect(ctx context.Context) error {
	t.stateChanges <- jsonrpc.StateConnected
	return nil
}

func (t *ServerTransport) Disconnect(ctx context.Context) error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.mu.Lock()
		for _, ch := range t.sseClients {
			close(ch)
		}
		t.sseClients = nil
		t.mu.Unlock()
		select {
		case t.stateChanges <- jsonrpc.StateClosed:
		default:
		}
	})
	return nil
}

func (t *ServerTransport) Send(ctx context.Context, data []byte) error {
	t.mu.Lock()
	clients := append([]chan []byte(nil), t.sseClients...)
	t.mu.Unlock()
	for _, ch := range clients {
		select {
		case ch <- data:
		case <-t.done:
			return jsonrpc.ErrClosed
		}
	}
	return nil
}

func (t *ServerTransport) Messages() <-chan *jsonrpc.Message  { return t.messages }
func (t *ServerTransport) StateChanges() <-chan jsonrpc.State { return t.stateChanges }
func (t *ServerTransport) Errors() <-chan error               { return t.errors }

// HandlePost accepts one inbound JSON-RPC object and decodes it onto
// Messages(). Wire this to the endpoint's POST route.
func (t *ServerTransport) HandlePost(w http.ResponseWriter, r *http.Request) {
	if !t.authorize(w, r) {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	msg, err := jsonrpc.Decode(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Mcp-Session-Id", t.sessionID)
	select {
	case t.messages <- msg:
		w.WriteHeader(http.StatusAccepted)
	case <-t.done:
		http.Error(w, "session closed", http.StatusGone)
	}
}

// HandleSSE streams outbound messages to one connected client. Wire
// this to the endpoint's GET route.
func (t *ServerTransport) HandleSSE(w http.ResponseWriter, r *http.Request) {
	if !t.authorize(w, r) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Mcp-Session-Id", t.sessionID)
	w.WriteHeader(http.StatusOK)

	ch := make(chan []byte, 16)
	t.mu.Lock()
	t.sseClients = append(t.sseClients, ch)
	t.mu.Unlock()

	for {
		select {
		case data, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		case <-t.done:
			return
		}
	}
}

func (t *ServerTransport) authorize(w http.ResponseWriter, r *http.Request) bool {
	if t.verifier == nil {
		return true
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return false
	}
	if _, err := t.verifier.Verify(strings.TrimPrefix(header, "Bearer ")); err != nil {
		logger.Warn("streamablehttp: rejecting bearer token", err)
		http.Error(w, "invalid bearer token", http.StatusUnauthorized)
		return false
	}
	return true
}
