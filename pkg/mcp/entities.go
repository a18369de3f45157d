// Package mcp implements the MCP entity model (C3): the value types
// exchanged over the session once past the JSON-RPC envelope, and the
// capability negotiator (C4) that governs which of them a peer may use.
//
// Field names and JSON tags follow the teacher's pkg/protocol/jsonrpc.go
// Tool/Resource types, generalized to the full entity set spec.md §3
// requires and split into the tagged content-item union §4.3 describes.
package mcp

import "encoding/json"

// Implementation identifies a peer (client or server) by name/version,
// exchanged during initialize and stored for the session's lifetime.
type Implementation struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Title      string `json:"title,omitempty"`
	WebsiteURL string `json:"websiteUrl,omitempty"`
}

// InputSchema is a minimal JSON-Schema-shaped description of a tool's
// arguments, per the teacher's protocol.InputSchema.
type InputSchema struct {
	Type                 string                    `json:"type"`
	Properties           map[string]SchemaProperty `json:"properties,omitempty"`
	Required             []string                  `json:"required,omitempty"`
	AdditionalProperties bool                      `json:"additionalProperties"`
}

// SchemaProperty describes one property of an InputSchema.
type SchemaProperty struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Tool is a named, schema-described callable exposed by a server.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema InputSchema `json:"inputSchema"`
}

// Resource is addressable read-only content identified by URI.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceTemplate is an RFC 6570 URI pattern generating resources.
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceContents is the tagged union of §4.3: exactly one of Text/Blob
// is present, distinguished by which field Marshal emits.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"` // base64
}

// PromptArgument describes one named variable a Prompt template accepts.
type PromptArgument struct {
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Prompt is a parameterized template producing a sequence of role-tagged
// messages.
type Prompt struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description,omitempty"`
	Arguments   map[string]PromptArgument `json:"arguments,omitempty"`
}

// Role tags a PromptMessage or SamplingMessage's speaker.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PromptMessage is one role-tagged message of a PromptResult.
type PromptMessage struct {
	Role    Role          `json:"role"`
	Content []ContentItem `json:"content"`
}

// PromptResult is the result of prompts/get.
type PromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// ToolResult is the result of tools/call. IsError distinguishes an
// application-level failure (still a successful JSON-RPC response, per
// spec §4.6/§7) from a protocol-level error.
type ToolResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError"`
}

// Root is a file:// boundary advertised by the client to the server.
type Root struct {
	URI  string `json:"uri"`
	Name string `json:"name,omitempty"`
}

// ModelPreferences hints a sampling request's model-selection tradeoffs.
type ModelPreferences struct {
	Hints                []ModelHint `json:"hints,omitempty"`
	CostPriority         float64     `json:"costPriority,omitempty"`
	SpeedPriority        float64     `json:"speedPriority,omitempty"`
	IntelligencePriority float64     `json:"intelligencePriority,omitempty"`
}

// ModelHint names a preferred model family/id.
type ModelHint struct {
	Name string `json:"name,omitempty"`
}

// SamplingMessage is one message of a sampling/createMessage request.
type SamplingMessage struct {
	Role    Role          `json:"role"`
	Content []ContentItem `json:"content"`
}

// SamplingResult is the result of sampling/createMessage.
type SamplingResult struct {
	Role       Role          `json:"role"`
	Content    []ContentItem `json:"content"`
	Model      string        `json:"model,omitempty"`
	StopReason string        `json:"stopReason,omitempty"`
}

// CompletionResult is the result of completion/complete.
type CompletionResult struct {
	Values  []string `json:"values"`
	Total   int      `json:"total,omitempty"`
	HasMore bool     `json:"hasMore,omitempty"`
}

// rawJSON names json.RawMessage for opaque application payloads the core
// never interprets (per spec §1 scope note). No entity type in this
// package uses it.
type rawJSON = json.RawMessage
