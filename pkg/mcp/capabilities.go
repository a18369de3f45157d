package mcp

import mapset "github.com/deckarep/golang-set/v2"

// ServerCapabilities is the bag of booleans/sub-flags a server advertises
// during initialize. A category is present in the wire JSON iff enabled;
// sub-flags appear only when true, so MarshalJSON builds the object by
// hand rather than relying on struct tags (the teacher's Tool/Resource
// types use plain tags because every field there is always present; this
// one cannot be).
type ServerCapabilities struct {
	Logging     bool
	Prompts     *ListChangedCapability
	Resources   *ResourcesCapability
	Tools       *ListChangedCapability
	Completions bool
	Tasks       bool
	Experimental map[string]any
}

// ListChangedCapability is the shape shared by prompts/tools: just
// whether the category emits a list-changed notification.
type ListChangedCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability additionally advertises subscribe support.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

type serverCapabilitiesWire struct {
	Logging      map[string]any         `json:"logging,omitempty"`
	Prompts      *ListChangedCapability `json:"prompts,omitempty"`
	Resources    *ResourcesCapability   `json:"resources,omitempty"`
	Tools        *ListChangedCapability `json:"tools,omitempty"`
	Completions  map[string]any         `json:"completions,omitempty"`
	Tasks        map[string]any         `json:"tasks,omitempty"`
	Experimental map[string]any         `json:"experimental,omitempty"`
}

func (c ServerCapabilities) wire() serverCapabilitiesWire {
	w := serverCapabilitiesWire{Experimental: c.Experimental}
	if c.Logging {
		w.Logging = map[string]any{}
	}
	if c.Prompts != nil {
		w.Prompts = c.Prompts
	}
	if c.Resources != nil {
		w.Resources = c.Resources
	}
	if c.Tools != nil {
		w.Tools = c.Tools
	}
	if c.Completions {
		w.Completions = map[string]any{}
	}
	if c.Tasks {
		w.Tasks = map[string]any{}
	}
	return w
}

func (c ServerCapabilities) MarshalJSON() ([]byte, error) {
	return marshalJSON(c.wire())
}

func (c *ServerCapabilities) UnmarshalJSON(data []byte) error {
	var w serverCapabilitiesWire
	if err := unmarshalJSON(data, &w); err != nil {
		return err
	}
	c.Logging = w.Logging != nil
	c.Prompts = w.Prompts
	c.Resources = w.Resources
	c.Tools = w.Tools
	c.Completions = w.Completions != nil
	c.Tasks = w.Tasks != nil
	c.Experimental = w.Experimental
	return nil
}

// ClientCapabilities mirrors ServerCapabilities for the client-to-server
// role reversal (sampling, roots, elicitation).
type ClientCapabilities struct {
	Sampling     bool
	Roots        *ListChangedCapability
	Elicitation  bool
	Tasks        bool
	Experimental map[string]any
}

type clientCapabilitiesWire struct {
	Sampling     map[string]any         `json:"sampling,omitempty"`
	Roots        *ListChangedCapability `json:"roots,omitempty"`
	Elicitation  map[string]any         `json:"elicitation,omitempty"`
	Tasks        map[string]any         `json:"tasks,omitempty"`
	Experimental map[string]any         `json:"experimental,omitempty"`
}

func (c ClientCapabilities) MarshalJSON() ([]byte, error) {
	w := clientCapabilitiesWire{Roots: c.Roots, Experimental: c.Experimental}
	if c.Sampling {
		w.Sampling = map[string]any{}
	}
	if c.Elicitation {
		w.Elicitation = map[string]any{}
	}
	if c.Tasks {
		w.Tasks = map[string]any{}
	}
	return marshalJSON(w)
}

func (c *ClientCapabilities) UnmarshalJSON(data []byte) error {
	var w clientCapabilitiesWire
	if err := unmarshalJSON(data, &w); err != nil {
		return err
	}
	c.Sampling = w.Sampling != nil
	c.Roots = w.Roots
	c.Elicitation = w.Elicitation != nil
	c.Tasks = w.Tasks != nil
	c.Experimental = w.Experimental
	return nil
}

// ExperimentalFeatureSet tracks which experimental capability keys have
// been observed from a remote peer's capabilities object, backed by a
// hash-set so Has is an O(1) membership test. Client and Server record
// the peer's keys with Observe during initialize; neither consults Has
// when gating requests.
type ExperimentalFeatureSet struct {
	seen mapset.Set[string]
}

func NewExperimentalFeatureSet() *ExperimentalFeatureSet {
	return &ExperimentalFeatureSet{seen: mapset.NewSet[string]()}
}

func (s *ExperimentalFeatureSet) Observe(experimental map[string]any) {
	for k := range experimental {
		s.seen.Add(k)
	}
}

func (s *ExperimentalFeatureSet) Has(feature string) bool {
	return s.seen.Contains(feature)
}
