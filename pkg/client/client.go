// Package client implements the client-role dispatcher (C6): driving
// the initialize handshake from the client's side, issuing the
// server-facing method catalogue, and answering the requests a server
// is allowed to send back (sampling, roots, elicitation) plus the
// notification catalogue a client is expected to observe.
package client

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mcpcore/mcp/internal/logger"
	"github.com/mcpcore/mcp/pkg/jsonrpc"
	"github.com/mcpcore/mcp/pkg/mcp"
	"github.com/mcpcore/mcp/pkg/mcperr"
	"github.com/mcpcore/mcp/pkg/session"
)

// SamplingHandler answers an inbound sampling/createMessage request.
type SamplingHandler func(ctx context.Context, messages []mcp.SamplingMessage, prefs mcp.ModelPreferences, maxTokens int) (mcp.SamplingResult, error)

// RootsProvider answers roots/list.
type RootsProvider func(ctx context.Context) ([]mcp.Root, error)

// ElicitationHandler answers elicitation/create, typically by prompting
// the local human operator.
type ElicitationHandler func(ctx context.Context, message string, schema mcp.InputSchema) (action string, content map[string]any, err error)

// ProgressObserver reacts to notifications/progress.
type ProgressObserver func(token string, progress, total float64, message string)

// Client is one MCP client role bound to a single peer session.
type Client struct {
	sess *session.Session
	info mcp.Implementation
	caps mcp.ClientCapabilities

	mu           sync.Mutex
	serverCaps   mcp.ServerCapabilities
	experimental *mcp.ExperimentalFeatureSet

	sampling    SamplingHandler
	roots       RootsProvider
	elicitation ElicitationHandler
	onProgress  ProgressObserver
}

// New constructs a Client over transport. Call Start to run the
// handshake and reach StateReady.
func New(transport jsonrpc.Transport, info mcp.Implementation, caps mcp.ClientCapabilities) *Client {
	c := &Client{
		sess:         session.New(transport),
		info:         info,
		caps:         caps,
		experimental: mcp.NewExperimentalFeatureSet(),
	}
	c.registerHandlers()
	return c
}

// Session exposes the underlying session.
func (c *Client) Session() *session.Session { return c.sess }

// SetSamplingHandler wires the handler for inbound sampling/createMessage.
// Only meaningful if caps.Sampling was set to true at construction.
func (c *Client) SetSamplingHandler(h SamplingHandler) { c.sampling = h }

// SetRootsProvider wires the handler for inbound roots/list.
func (c *Client) SetRootsProvider(p RootsProvider) { c.roots = p }

// SetElicitationHandler wires the handler for inbound elicitation/create.
func (c *Client) SetElicitationHandler(h ElicitationHandler) { c.elicitation = h }

// OnProgress registers an observer for notifications/progress.
func (c *Client) OnProgress(obs ProgressObserver) { c.onProgress = obs }

// ServerCapabilities returns the capabilities the server advertised
// during the handshake. Only meaningful after Start returns.
func (c *Client) ServerCapabilities() mcp.ServerCapabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverCaps
}

func (c *Client) registerHandlers() {
	c.sess.RegisterRequestHandler("sampling/createMessage", c.handleCreateMessage)
	c.sess.RegisterRequestHandler("roots/list", c.handleRootsList)
	c.sess.RegisterRequestHandler("elicitation/create", c.handleElicitationCreate)
	c.sess.RegisterRequestHandler("ping", func(ctx context.Context, params json.RawMessage) (any, error) {
		return struct{}{}, nil
	})

	c.sess.RegisterNotificationHandler("notifications/progress", func(ctx context.Context, params json.RawMessage) {
		if c.onProgress == nil {
			return
		}
		var p struct {
			ProgressToken string  `json:"progressToken"`
			Progress      float64 `json:"progress"`
			Total         float64 `json:"total"`
			Message       string  `json:"message"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			logger.Warn("discarding malformed progress notification", err)
			return
		}
		c.onProgress(p.ProgressToken, p.Progress, p.Total, p.Message)
	})
	c.sess.RegisterNotificationHandler("notifications/message", func(ctx context.Context, params json.RawMessage) {
		logger.Info("server log notification", string(params))
	})
	// list_changed / resources-updated / tasks-status notifications have
	// no default behavior; callers observe them via RegisterNotificationHandler
	// directly on Session() if they need to react.
}

// Start connects the transport, sends initialize with this client's
// capabilities, waits for the server's reply, then sends
// notifications/initialized to complete the handshake (spec §4.4).
func (c *Client) Start(ctx context.Context) (mcp.InitializeResult, error) {
	var result mcp.InitializeResult
	handshakeErr := c.sess.Start(ctx, func(ctx context.Context, sess *session.Session) error {
		raw, err := sess.SendRequest(ctx, "initialize", mcp.InitializeParams{
			ProtocolVersion: mcp.ProtocolVersion,
			ClientInfo:      c.info,
			Capabilities:    c.caps,
		})
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &result); err != nil {
			return mcperr.Wrap(mcperr.KindInternalError, "decode initialize result", err)
		}
		if result.ProtocolVersion != mcp.ProtocolVersion {
			return mcperr.ProtocolVersionMismatch("server replied with " + result.ProtocolVersion)
		}
		c.mu.Lock()
		c.serverCaps = result.Capabilities
		c.experimental.Observe(result.Capabilities.Experimental)
		c.mu.Unlock()
		return sess.SendNotification(ctx, "notifications/initialized", nil)
	})
	return result, handshakeErr
}

func (c *Client) handleCreateMessage(ctx context.Context, params json.RawMessage) (any, error) {
	if c.sampling == nil {
		return nil, mcperr.CapabilityNotSupported("sampling not implemented by this client")
	}
	var req struct {
		Messages         []mcp.SamplingMessage `json:"messages"`
		ModelPreferences mcp.ModelPreferences  `json:"modelPreferences"`
		MaxTokens        int                   `json:"maxTokens"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, mcperr.Wrap(mcperr.KindInvalidParams, "sampling/createMessage", err)
	}
	return c.sampling(ctx, req.Messages, req.ModelPreferences, req.MaxTokens)
}

func (c *Client) handleRootsList(ctx context.Context, params json.RawMessage) (any, error) {
	if c.roots == nil {
		return struct {
			Roots []mcp.Root `json:"roots"`
		}{nil}, nil
	}
	roots, err := c.roots(ctx)
	if err != nil {
		return nil, err
	}
	return struct {
		Roots []mcp.Root `json:"roots"`
	}{roots}, nil
}

func (c *Client) handleElicitationCreate(ctx context.Context, params json.RawMessage) (any, error) {
	if c.elicitation == nil {
		return nil, mcperr.CapabilityNotSupported("elicitation not implemented by this client")
	}
	var req struct {
		Message         string          `json:"message"`
		RequestedSchema mcp.InputSchema `json:"requestedSchema"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, mcperr.Wrap(mcperr.KindInvalidParams, "elicitation/create", err)
	}
	action, content, err := c.elicitation(ctx, req.Message, req.RequestedSchema)
	if err != nil {
		return nil, err
	}
	return struct {
		Action  string         `json:"action"`
		Content map[string]any `json:"content,omitempty"`
	}{action, content}, nil
}

// ListTools issues tools/list, which must have been advertised by the
// server during initialize.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	c.mu.Lock()
	ok := c.serverCaps.Tools != nil
	c.mu.Unlock()
	if !ok {
		return nil, mcperr.CapabilityNotSupported("server did not advertise tools")
	}
	raw, err := c.sess.SendRequest(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var res struct {
		Tools []mcp.Tool `json:"tools"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, mcperr.Wrap(mcperr.KindInternalError, "decode tools/list", err)
	}
	return res.Tools, nil
}

// CallTool issues tools/call for name with the given arguments.
func (c *Client) CallTool(ctx context.Context, name string, args any) (mcp.ToolResult, error) {
	c.mu.Lock()
	ok := c.serverCaps.Tools != nil
	c.mu.Unlock()
	if !ok {
		return mcp.ToolResult{}, mcperr.CapabilityNotSupported("server did not advertise tools")
	}
	raw, err := c.sess.SendRequest(ctx, "tools/call", struct {
		Name      string `json:"name"`
		Arguments any    `json:"arguments"`
	}{name, args})
	if err != nil {
		return mcp.ToolResult{}, err
	}
	var res mcp.ToolResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return mcp.ToolResult{}, mcperr.Wrap(mcperr.KindInternalError, "decode tools/call result", err)
	}
	return res, nil
}

// ListResources issues resources/list, which must have been advertised
// by the server during initialize.
func (c *Client) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	c.mu.Lock()
	ok := c.serverCaps.Resources != nil
	c.mu.Unlock()
	if !ok {
		return nil, mcperr.CapabilityNotSupported("server did not advertise resources")
	}
	raw, err := c.sess.SendRequest(ctx, "resources/list", nil)
	if err != nil {
		return nil, err
	}
	var res struct {
		Resources []mcp.Resource `json:"resources"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, mcperr.Wrap(mcperr.KindInternalError, "decode resources/list", err)
	}
	return res.Resources, nil
}

// ReadResource issues resources/read for uri.
func (c *Client) ReadResource(ctx context.Context, uri string) ([]mcp.ResourceContents, error) {
	c.mu.Lock()
	ok := c.serverCaps.Resources != nil
	c.mu.Unlock()
	if !ok {
		return nil, mcperr.CapabilityNotSupported("server did not advertise resources")
	}
	raw, err := c.sess.SendRequest(ctx, "resources/read", struct {
		URI string `json:"uri"`
	}{uri})
	if err != nil {
		return nil, err
	}
	var res struct {
		Contents []mcp.ResourceContents `json:"contents"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, mcperr.Wrap(mcperr.KindInternalError, "decode resources/read", err)
	}
	return res.Contents, nil
}

// ListPrompts issues prompts/list, which must have been advertised by
// the server during initialize.
func (c *Client) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	c.mu.Lock()
	ok := c.serverCaps.Prompts != nil
	c.mu.Unlock()
	if !ok {
		return nil, mcperr.CapabilityNotSupported("server did not advertise prompts")
	}
	raw, err := c.sess.SendRequest(ctx, "prompts/list", nil)
	if err != nil {
		return nil, err
	}
	var res struct {
		Prompts []mcp.Prompt `json:"prompts"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, mcperr.Wrap(mcperr.KindInternalError, "decode prompts/list", err)
	}
	return res.Prompts, nil
}

// GetPrompt issues prompts/get.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]string) (mcp.PromptResult, error) {
	c.mu.Lock()
	ok := c.serverCaps.Prompts != nil
	c.mu.Unlock()
	if !ok {
		return mcp.PromptResult{}, mcperr.CapabilityNotSupported("server did not advertise prompts")
	}
	raw, err := c.sess.SendRequest(ctx, "prompts/get", struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments,omitempty"`
	}{name, args})
	if err != nil {
		return mcp.PromptResult{}, err
	}
	var res mcp.PromptResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return mcp.PromptResult{}, mcperr.Wrap(mcperr.KindInternalError, "decode prompts/get", err)
	}
	return res, nil
}

// Complete issues completion/complete.
func (c *Client) Complete(ctx context.Context, ref json.RawMessage, argName, argValue string) (mcp.CompletionResult, error) {
	c.mu.Lock()
	ok := c.serverCaps.Completions
	c.mu.Unlock()
	if !ok {
		return mcp.CompletionResult{}, mcperr.CapabilityNotSupported("server did not advertise completions")
	}
	raw, err := c.sess.SendRequest(ctx, "completion/complete", struct {
		Ref      json.RawMessage `json:"ref"`
		Argument struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"argument"`
	}{Ref: ref, Argument: struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}{argName, argValue}})
	if err != nil {
		return mcp.CompletionResult{}, err
	}
	var res mcp.CompletionResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return mcp.CompletionResult{}, mcperr.Wrap(mcperr.KindInternalError, "decode completion/complete", err)
	}
	return res, nil
}

// SetLogLevel issues logging/setLevel.
func (c *Client) SetLogLevel(ctx context.Context, level string) error {
	_, err := c.sess.SendRequest(ctx, "logging/setLevel", struct {
		Level string `json:"level"`
	}{level})
	return err
}

// Stop closes the underlying session.
func (c *Client) Stop(ctx context.Context) error { return c.sess.Stop(ctx) }
