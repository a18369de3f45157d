// Package server implements the server-role dispatcher (C6): the
// initialize handshake from the server's side, the tools/resources/
// prompts/completion/logging/tasks method table, and the handful of
// requests a server is allowed to issue back to its client (sampling,
// roots, elicitation).
//
// The registration API (RegisterTool/RegisterResource/RegisterPrompt)
// and its singleton-free construction follow the teacher's
// pkg/server/server.go; the dispatch itself is new, built on
// pkg/session instead of the teacher's blocking read/write loop.
package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mcpcore/mcp/internal/logger"
	"github.com/mcpcore/mcp/pkg/jsonrpc"
	"github.com/mcpcore/mcp/pkg/mcp"
	"github.com/mcpcore/mcp/pkg/mcperr"
	"github.com/mcpcore/mcp/pkg/session"
)

// ToolHandler executes a tools/call invocation.
type ToolHandler func(ctx context.Context, args json.RawMessage) (mcp.ToolResult, error)

// ResourceReader serves the contents of one registered resource URI.
type ResourceReader func(ctx context.Context, uri string) (mcp.ResourceContents, error)

// PromptHandler renders a registered prompt template with the supplied
// arguments.
type PromptHandler func(ctx context.Context, args map[string]string) (mcp.PromptResult, error)

// CompletionHandler answers completion/complete for a ref+argument pair.
type CompletionHandler func(ctx context.Context, ref, argument, value string) (mcp.CompletionResult, error)

type registeredTool struct {
	tool    mcp.Tool
	handler ToolHandler
}

type registeredResource struct {
	resource mcp.Resource
	reader   ResourceReader
}

type registeredPrompt struct {
	prompt  mcp.Prompt
	handler PromptHandler
}

// Server is one MCP server role bound to a single peer session. Build
// one per connection. pkg/listener does not build Servers: it wraps each
// accepted Unix socket connection in a bare session.Session.
type Server struct {
	sess *session.Session
	info mcp.Implementation
	caps mcp.ServerCapabilities

	mu        sync.Mutex
	tools     map[string]registeredTool
	toolOrder []string

	resources     map[string]registeredResource
	resourceOrder []string
	templates     []mcp.ResourceTemplate

	prompts     map[string]registeredPrompt
	promptOrder []string

	completion    CompletionHandler
	subscriptions map[string]bool

	clientCaps   mcp.ClientCapabilities
	experimental *mcp.ExperimentalFeatureSet

	tasks *mcp.TaskStore
}

// New constructs a Server over transport, ready to have tools/resources/
// prompts registered before Serve is called.
func New(transport jsonrpc.Transport, info mcp.Implementation, caps mcp.ServerCapabilities) *Server {
	s := &Server{
		sess:          session.New(transport),
		info:          info,
		caps:          caps,
		tools:         make(map[string]registeredTool),
		resources:     make(map[string]registeredResource),
		prompts:       make(map[string]registeredPrompt),
		experimental:  mcp.NewExperimentalFeatureSet(),
		tasks:         mcp.NewTaskStore(),
		subscriptions: make(map[string]bool),
	}
	s.registerMethodTable()
	return s
}

// Session exposes the underlying session for callers that need
// OnStateChange or Stop directly.
func (s *Server) Session() *session.Session { return s.sess }

// RegisterTool wires a callable tool into tools/list and tools/call.
func (s *Server) RegisterTool(tool mcp.Tool, h ToolHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tools[tool.Name]; !exists {
		s.toolOrder = append(s.toolOrder, tool.Name)
	}
	s.tools[tool.Name] = registeredTool{tool: tool, handler: h}
	if s.caps.Tools == nil {
		s.caps.Tools = &mcp.ListChangedCapability{}
	}
	logger.Info("registered tool:", tool.Name)
}

// RegisterResource wires a static, individually-addressable resource.
func (s *Server) RegisterResource(r mcp.Resource, reader ResourceReader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.resources[r.URI]; !exists {
		s.resourceOrder = append(s.resourceOrder, r.URI)
	}
	s.resources[r.URI] = registeredResource{resource: r, reader: reader}
	if s.caps.Resources == nil {
		s.caps.Resources = &mcp.ResourcesCapability{}
	}
	logger.Info("registered resource:", r.URI)
}

// RegisterResourceTemplate adds an RFC 6570 template to resources/templates/list.
func (s *Server) RegisterResourceTemplate(t mcp.ResourceTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates = append(s.templates, t)
	if s.caps.Resources == nil {
		s.caps.Resources = &mcp.ResourcesCapability{}
	}
}

// RegisterPrompt wires a named prompt template.
func (s *Server) RegisterPrompt(p mcp.Prompt, h PromptHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.prompts[p.Name]; !exists {
		s.promptOrder = append(s.promptOrder, p.Name)
	}
	s.prompts[p.Name] = registeredPrompt{prompt: p, handler: h}
	if s.caps.Prompts == nil {
		s.caps.Prompts = &mcp.ListChangedCapability{}
	}
	logger.Info("registered prompt:", p.Name)
}

// SetCompletionHandler wires completion/complete. Optional: if unset,
// the server reports CapabilityNotSupported for that method.
func (s *Server) SetCompletionHandler(h CompletionHandler) {
	s.mu.Lock()
	s.completion = h
	s.mu.Unlock()
}

// Tasks exposes the server's task store to async tool handlers.
func (s *Server) Tasks() *mcp.TaskStore { return s.tasks }

// Serve drives the session through the handshake and blocks until the
// peer disconnects or ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.sess.Start(ctx, s.handshake); err != nil {
		return err
	}
	select {
	case <-s.sess.Done():
		return nil
	case <-ctx.Done():
		return s.sess.Stop(context.Background())
	}
}

// handshake is the HandshakeFunc a server session runs: the
// initialize/tools-etc handlers are already registered (registerMethodTable
// ran in New, ahead of Start), so the server role only needs to wait for
// the notifications/initialized that completes the §4.4 handshake.
func (s *Server) handshake(ctx context.Context, sess *session.Session) error {
	return sess.WaitForNotification(ctx, "notifications/initialized")
}

func (s *Server) registerMethodTable() {
	s.sess.RegisterRequestHandler("initialize", s.handleInitialize)
	s.sess.RegisterRequestHandler("ping", s.handlePing)
	s.sess.RegisterRequestHandler("tools/list", s.handleToolsList)
	s.sess.RegisterRequestHandler("tools/call", s.handleToolsCall)
	s.sess.RegisterRequestHandler("resources/list", s.handleResourcesList)
	s.sess.RegisterRequestHandler("resources/templates/list", s.handleResourceTemplatesList)
	s.sess.RegisterRequestHandler("resources/read", s.handleResourcesRead)
	s.sess.RegisterRequestHandler("resources/subscribe", s.handleResourcesSubscribe)
	s.sess.RegisterRequestHandler("resources/unsubscribe", s.handleResourcesUnsubscribe)
	s.sess.RegisterRequestHandler("prompts/list", s.handlePromptsList)
	s.sess.RegisterRequestHandler("prompts/get", s.handlePromptsGet)
	s.sess.RegisterRequestHandler("completion/complete", s.handleCompletion)
	s.sess.RegisterRequestHandler("logging/setLevel", s.handleSetLevel)
	s.sess.RegisterRequestHandler("tasks/get", s.handleTasksGet)
	s.sess.RegisterRequestHandler("tasks/cancel", s.handleTasksCancel)
	s.sess.RegisterRequestHandler("tasks/list", s.handleTasksList)
}

func (s *Server) handleInitialize(ctx context.Context, params json.RawMessage) (any, error) {
	var req mcp.InitializeParams
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, mcperr.Wrap(mcperr.KindInvalidParams, "initialize", err)
	}
	s.mu.Lock()
	s.clientCaps = req.Capabilities
	s.experimental.Observe(req.Capabilities.Experimental)
	s.mu.Unlock()

	version := req.ProtocolVersion
	if version != mcp.ProtocolVersion {
		logger.Warn("client requested protocol version, replying with server version", req.ProtocolVersion, mcp.ProtocolVersion)
		version = mcp.ProtocolVersion
	}
	return mcp.InitializeResult{
		ProtocolVersion: version,
		ServerInfo:      s.info,
		Capabilities:    s.caps,
	}, nil
}

func (s *Server) handlePing(ctx context.Context, params json.RawMessage) (any, error) {
	return struct{}{}, nil
}

func (s *Server) handleToolsList(ctx context.Context, params json.RawMessage) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mcp.Tool, 0, len(s.toolOrder))
	for _, name := range s.toolOrder {
		out = append(out, s.tools[name].tool)
	}
	return struct {
		Tools []mcp.Tool `json:"tools"`
	}{out}, nil
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (any, error) {
	var req struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, mcperr.Wrap(mcperr.KindInvalidParams, "tools/call", err)
	}
	s.mu.Lock()
	rt, ok := s.tools[req.Name]
	s.mu.Unlock()
	if !ok {
		return nil, mcperr.ToolNotFound(req.Name)
	}
	result, err := rt.handler(ctx, req.Arguments)
	if err != nil {
		return mcp.ToolResult{
			Content: []mcp.ContentItem{mcp.NewTextContent(err.Error())},
			IsError: true,
		}, nil
	}
	return result, nil
}

func (s *Server) handleResourcesList(ctx context.Context, params json.RawMessage) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mcp.Resource, 0, len(s.resourceOrder))
	for _, uri := range s.resourceOrder {
		out = append(out, s.resources[uri].resource)
	}
	return struct {
		Resources []mcp.Resource `json:"resources"`
	}{out}, nil
}

func (s *Server) handleResourceTemplatesList(ctx context.Context, params json.RawMessage) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return struct {
		ResourceTemplates []mcp.ResourceTemplate `json:"resourceTemplates"`
	}{s.templates}, nil
}

func (s *Server) handleResourcesRead(ctx context.Context, params json.RawMessage) (any, error) {
	var req struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, mcperr.Wrap(mcperr.KindInvalidParams, "resources/read", err)
	}
	s.mu.Lock()
	rr, ok := s.resources[req.URI]
	s.mu.Unlock()
	if !ok {
		return nil, mcperr.ResourceNotFound(req.URI)
	}
	contents, err := rr.reader(ctx, req.URI)
	if err != nil {
		return nil, mcperr.Wrap(mcperr.KindInternalError, "read resource", err)
	}
	return struct {
		Contents []mcp.ResourceContents `json:"contents"`
	}{[]mcp.ResourceContents{contents}}, nil
}

// handleResourcesSubscribe/Unsubscribe record which URIs this client
// wants notifications/resources/updated for; NotifyResourceUpdated
// checks this set before sending one.
func (s *Server) handleResourcesSubscribe(ctx context.Context, params json.RawMessage) (any, error) {
	var req struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, mcperr.Wrap(mcperr.KindInvalidParams, "resources/subscribe", err)
	}
	s.mu.Lock()
	s.subscriptions[req.URI] = true
	s.mu.Unlock()
	return struct{}{}, nil
}

func (s *Server) handleResourcesUnsubscribe(ctx context.Context, params json.RawMessage) (any, error) {
	var req struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, mcperr.Wrap(mcperr.KindInvalidParams, "resources/unsubscribe", err)
	}
	s.mu.Lock()
	delete(s.subscriptions, req.URI)
	s.mu.Unlock()
	return struct{}{}, nil
}

// NotifyResourceUpdated sends notifications/resources/updated for uri,
// but only if the client has subscribed to it (spec: a write to a
// resource no client asked about has nothing to notify).
func (s *Server) NotifyResourceUpdated(ctx context.Context, uri string) error {
	s.mu.Lock()
	subscribed := s.subscriptions[uri]
	s.mu.Unlock()
	if !subscribed {
		return nil
	}
	return s.sess.SendNotification(ctx, "notifications/resources/updated", map[string]string{"uri": uri})
}

// NotifyResourcesListChanged announces that the set of registered
// resources itself changed (a new row became addressable), distinct
// from an existing resource's content changing. A no-op unless the
// negotiated capability advertised listChanged support.
func (s *Server) NotifyResourcesListChanged(ctx context.Context) error {
	if s.caps.Resources == nil || !s.caps.Resources.ListChanged {
		return nil
	}
	return s.sess.SendNotification(ctx, "notifications/resources/list_changed", nil)
}

func (s *Server) handlePromptsList(ctx context.Context, params json.RawMessage) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mcp.Prompt, 0, len(s.promptOrder))
	for _, name := range s.promptOrder {
		out = append(out, s.prompts[name].prompt)
	}
	return struct {
		Prompts []mcp.Prompt `json:"prompts"`
	}{out}, nil
}

func (s *Server) handlePromptsGet(ctx context.Context, params json.RawMessage) (any, error) {
	var req struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, mcperr.Wrap(mcperr.KindInvalidParams, "prompts/get", err)
	}
	s.mu.Lock()
	rp, ok := s.prompts[req.Name]
	s.mu.Unlock()
	if !ok {
		return nil, mcperr.PromptNotFound(req.Name)
	}
	return rp.handler(ctx, req.Arguments)
}

func (s *Server) handleCompletion(ctx context.Context, params json.RawMessage) (any, error) {
	s.mu.Lock()
	h := s.completion
	s.mu.Unlock()
	if h == nil {
		return nil, mcperr.CapabilityNotSupported("completion/complete not implemented")
	}
	var req struct {
		Ref      json.RawMessage `json:"ref"`
		Argument struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"argument"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, mcperr.Wrap(mcperr.KindInvalidParams, "completion/complete", err)
	}
	return h(ctx, string(req.Ref), req.Argument.Name, req.Argument.Value)
}

func (s *Server) handleSetLevel(ctx context.Context, params json.RawMessage) (any, error) {
	var req struct {
		Level string `json:"level"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, mcperr.Wrap(mcperr.KindInvalidParams, "logging/setLevel", err)
	}
	level, ok := logger.ParseLevel(req.Level)
	if !ok {
		return nil, mcperr.New(mcperr.KindInvalidParams, "logging/setLevel: unknown level "+req.Level)
	}
	logger.SetLevel(level)
	logger.SetSink(func(lvl logger.LogLevel, message string) {
		_ = s.sess.SendNotification(context.Background(), "notifications/message", map[string]any{
			"level":  req.Level,
			"logger": "mcp",
			"data":   message,
		})
	})
	logger.Info("client requested log level", req.Level)
	return struct{}{}, nil
}

func (s *Server) handleTasksGet(ctx context.Context, params json.RawMessage) (any, error) {
	var req struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, mcperr.Wrap(mcperr.KindInvalidParams, "tasks/get", err)
	}
	t, ok := s.tasks.Get(req.TaskID)
	if !ok {
		return nil, mcperr.TaskNotFound(req.TaskID)
	}
	return t, nil
}

func (s *Server) handleTasksCancel(ctx context.Context, params json.RawMessage) (any, error) {
	var req struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, mcperr.Wrap(mcperr.KindInvalidParams, "tasks/cancel", err)
	}
	if !s.tasks.Update(req.TaskID, mcp.TaskCancelled, "cancelled by client") {
		return nil, mcperr.TaskNotFound(req.TaskID)
	}
	t, _ := s.tasks.Get(req.TaskID)
	s.tasks.Delete(req.TaskID)
	return t, nil
}

func (s *Server) handleTasksList(ctx context.Context, params json.RawMessage) (any, error) {
	return struct {
		Tasks []*mcp.Task `json:"tasks"`
	}{s.tasks.List()}, nil
}

// CreateMessage issues sampling/createMessage to the client, which must
// have advertised the sampling capability during initialize.
func (s *Server) CreateMessage(ctx context.Context, messages []mcp.SamplingMessage, prefs mcp.ModelPreferences, maxTokens int) (mcp.SamplingResult, error) {
	s.mu.Lock()
	ok := s.clientCaps.Sampling
	s.mu.Unlock()
	if !ok {
		return mcp.SamplingResult{}, mcperr.CapabilityNotSupported("client did not advertise sampling")
	}
	raw, err := s.sess.SendRequest(ctx, "sampling/createMessage", struct {
		Messages        []mcp.SamplingMessage `json:"messages"`
		ModelPreferences mcp.ModelPreferences  `json:"modelPreferences,omitempty"`
		MaxTokens       int                    `json:"maxTokens,omitempty"`
	}{messages, prefs, maxTokens})
	if err != nil {
		return mcp.SamplingResult{}, err
	}
	var res mcp.SamplingResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return mcp.SamplingResult{}, mcperr.Wrap(mcperr.KindInternalError, "decode sampling result", err)
	}
	return res, nil
}

// ListRoots issues roots/list to the client.
func (s *Server) ListRoots(ctx context.Context) ([]mcp.Root, error) {
	s.mu.Lock()
	rootsCap := s.clientCaps.Roots
	s.mu.Unlock()
	if rootsCap == nil {
		return nil, mcperr.CapabilityNotSupported("client did not advertise roots")
	}
	raw, err := s.sess.SendRequest(ctx, "roots/list", nil)
	if err != nil {
		return nil, err
	}
	var res struct {
		Roots []mcp.Root `json:"roots"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, mcperr.Wrap(mcperr.KindInternalError, "decode roots", err)
	}
	return res.Roots, nil
}

// Elicit issues elicitation/create, asking the client's user for
// structured input mid-tool-call.
func (s *Server) Elicit(ctx context.Context, message string, schema mcp.InputSchema) (map[string]any, error) {
	s.mu.Lock()
	ok := s.clientCaps.Elicitation
	s.mu.Unlock()
	if !ok {
		return nil, mcperr.CapabilityNotSupported("client did not advertise elicitation")
	}
	raw, err := s.sess.SendRequest(ctx, "elicitation/create", struct {
		Message         string          `json:"message"`
		RequestedSchema mcp.InputSchema `json:"requestedSchema"`
	}{message, schema})
	if err != nil {
		return nil, err
	}
	var res struct {
		Action  string         `json:"action"`
		Content map[string]any `json:"content"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, mcperr.Wrap(mcperr.KindInternalError, "decode elicitation result", err)
	}
	if res.Action != "accept" {
		return nil, mcperr.New(mcperr.KindCancelled, "elicitation "+res.Action)
	}
	return res.Content, nil
}

// sweepTasksPeriodically runs TaskStore.SweepExpired on an interval;
// role dispatchers that create many short-lived async tasks should run
// this in a goroutine started alongside Serve.
func (s *Server) sweepTasksPeriodically(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tasks.SweepExpired(now)
		}
	}
}

// StartTaskSweeper launches the periodic TaskStore GC. Call it once per
// Server alongside Serve when any registered tool creates async tasks.
func (s *Server) StartTaskSweeper(ctx context.Context, interval time.Duration) {
	go s.sweepTasksPeriodically(ctx, interval)
}
