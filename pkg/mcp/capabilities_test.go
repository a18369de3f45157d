package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerCapabilitiesMarshalOmitsDisabledCategories(t *testing.T) {
	caps := ServerCapabilities{Tools: &ListChangedCapability{ListChanged: true}}
	data, err := json.Marshal(caps)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))

	_, hasTools := raw["tools"]
	_, hasResources := raw["resources"]
	_, hasPrompts := raw["prompts"]
	_, hasLogging := raw["logging"]
	assert.True(t, hasTools)
	assert.False(t, hasResources)
	assert.False(t, hasPrompts)
	assert.False(t, hasLogging)
}

func TestServerCapabilitiesRoundTrip(t *testing.T) {
	caps := ServerCapabilities{
		Logging:     true,
		Prompts:     &ListChangedCapability{ListChanged: true},
		Resources:   &ResourcesCapability{Subscribe: true, ListChanged: true},
		Tools:       &ListChangedCapability{},
		Completions: true,
		Tasks:       true,
	}

	data, err := json.Marshal(caps)
	require.NoError(t, err)

	var got ServerCapabilities
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, caps.Logging, got.Logging)
	assert.Equal(t, caps.Completions, got.Completions)
	assert.Equal(t, caps.Tasks, got.Tasks)
	require.NotNil(t, got.Prompts)
	assert.True(t, got.Prompts.ListChanged)
	require.NotNil(t, got.Resources)
	assert.True(t, got.Resources.Subscribe)
	require.NotNil(t, got.Tools)
	assert.False(t, got.Tools.ListChanged)
}

func TestServerCapabilitiesUnmarshalAbsentCategoryStaysNil(t *testing.T) {
	var caps ServerCapabilities
	require.NoError(t, json.Unmarshal([]byte(`{}`), &caps))
	assert.Nil(t, caps.Prompts)
	assert.Nil(t, caps.Resources)
	assert.Nil(t, caps.Tools)
	assert.False(t, caps.Logging)
}

func TestClientCapabilitiesRoundTrip(t *testing.T) {
	caps := ClientCapabilities{
		Sampling:    true,
		Roots:       &ListChangedCapability{ListChanged: true},
		Elicitation: true,
		Tasks:       true,
	}

	data, err := json.Marshal(caps)
	require.NoError(t, err)

	var got ClientCapabilities
	require.NoError(t, json.Unmarshal(data, &got))

	assert.True(t, got.Sampling)
	assert.True(t, got.Elicitation)
	assert.True(t, got.Tasks)
	require.NotNil(t, got.Roots)
	assert.True(t, got.Roots.ListChanged)
}

func TestClientCapabilitiesMarshalOmitsDisabledCategories(t *testing.T) {
	data, err := json.Marshal(ClientCapabilities{})
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Empty(t, raw)
}

func TestExperimentalFeatureSetObservesKeysAcrossCalls(t *testing.T) {
	s := NewExperimentalFeatureSet()
	assert.False(t, s.Has("widgets"))

	s.Observe(map[string]any{"widgets": struct{}{}})
	assert.True(t, s.Has("widgets"))
	assert.False(t, s.Has("gadgets"))

	s.Observe(map[string]any{"gadgets": struct{}{}})
	assert.True(t, s.Has("widgets"))
	assert.True(t, s.Has("gadgets"))
}
