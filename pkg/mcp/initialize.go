package mcp

// ProtocolVersion is the version this library speaks by default. A
// server that cannot serve the requested version replies with this one
// instead (spec §4.4 step 2); the client then accepts or aborts.
const ProtocolVersion = "2025-06-18"

// InitializeParams is the params object of the client's initialize
// request.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ClientInfo      Implementation     `json:"clientInfo"`
	Capabilities    ClientCapabilities `json:"capabilities"`
}

// InitializeResult is the server's reply to initialize.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	Instructions    string             `json:"instructions,omitempty"`
}
