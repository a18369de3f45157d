package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolRoundTrip(t *testing.T) {
	tool := Tool{
		Name:        "add",
		Description: "adds two numbers",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]SchemaProperty{
				"a": {Type: "number", Description: "first addend"},
			},
			Required: []string{"a"},
		},
	}
	data, err := json.Marshal(tool)
	require.NoError(t, err)

	var got Tool
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, tool, got)
}

func TestResourceRoundTrip(t *testing.T) {
	r := Resource{URI: "test://hello", Name: "hello", MimeType: "text/plain"}
	data, err := json.Marshal(r)
	require.NoError(t, err)

	var got Resource
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, r, got)
}

func TestResourceContentsTextOmitsBlob(t *testing.T) {
	rc := ResourceContents{URI: "test://hello", MimeType: "text/plain", Text: "hi"}
	data, err := json.Marshal(rc)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	_, hasBlob := raw["blob"]
	assert.False(t, hasBlob)
}

func TestPromptRoundTrip(t *testing.T) {
	p := Prompt{
		Name:        "greeting",
		Description: "says hello",
		Arguments: map[string]PromptArgument{
			"name": {Description: "who to greet", Required: true},
		},
	}
	data, err := json.Marshal(p)
	require.NoError(t, err)

	var got Prompt
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, p, got)
}

func TestImplementationRoundTrip(t *testing.T) {
	impl := Implementation{Name: "mcp-demo", Version: "0.1.0", Title: "Demo Server"}
	data, err := json.Marshal(impl)
	require.NoError(t, err)

	var got Implementation
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, impl, got)
}
