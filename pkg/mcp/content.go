package mcp

import (
	"encoding/json"
	"fmt"
)

// ContentItemType tags the variant of a ContentItem, per spec §4.3.
type ContentItemType string

const (
	ContentText         ContentItemType = "text"
	ContentImage        ContentItemType = "image"
	ContentAudio        ContentItemType = "audio"
	ContentResource     ContentItemType = "resource"
	ContentResourceLink ContentItemType = "resource_link"
)

// ContentItem is one element of an ordered content sequence carried by a
// ToolResult or PromptMessage. Exactly the fields relevant to Type are
// populated; the codec preserves item order because Content is a slice,
// never a map.
type ContentItem struct {
	Type ContentItemType `json:"type"`

	// type == text
	Text string `json:"text,omitempty"`

	// type == image | audio
	Data     string `json:"data,omitempty"` // base64
	MimeType string `json:"mimeType,omitempty"`

	// type == resource
	Resource *ResourceContents `json:"resource,omitempty"`

	// type == resource_link
	URI         string `json:"uri,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// NewTextContent builds a text content item.
func NewTextContent(text string) ContentItem {
	return ContentItem{Type: ContentText, Text: text}
}

// NewImageContent builds an image content item from base64 data.
func NewImageContent(base64Data, mimeType string) ContentItem {
	return ContentItem{Type: ContentImage, Data: base64Data, MimeType: mimeType}
}

// NewAudioContent builds an audio content item from base64 data.
func NewAudioContent(base64Data, mimeType string) ContentItem {
	return ContentItem{Type: ContentAudio, Data: base64Data, MimeType: mimeType}
}

// NewResourceContent embeds a resource's contents directly in a result.
func NewResourceContent(rc ResourceContents) ContentItem {
	return ContentItem{Type: ContentResource, Resource: &rc}
}

// NewResourceLinkContent references a resource by URI without embedding it.
func NewResourceLinkContent(uri, name, description string) ContentItem {
	return ContentItem{Type: ContentResourceLink, URI: uri, Name: name, Description: description}
}

// Validate reports whether the item's populated fields match its declared
// Type, catching malformed content before it reaches the wire.
func (c ContentItem) Validate() error {
	switch c.Type {
	case ContentText:
		if c.Text == "" {
			return fmt.Errorf("mcp: text content item has empty text")
		}
	case ContentImage, ContentAudio:
		if c.Data == "" || c.MimeType == "" {
			return fmt.Errorf("mcp: %s content item requires data and mimeType", c.Type)
		}
	case ContentResource:
		if c.Resource == nil {
			return fmt.Errorf("mcp: resource content item missing resource")
		}
	case ContentResourceLink:
		if c.URI == "" {
			return fmt.Errorf("mcp: resource_link content item missing uri")
		}
	default:
		return fmt.Errorf("mcp: unknown content item type %q", c.Type)
	}
	return nil
}

// UnmarshalJSON is the identity unmarshaler; ContentItem's fields are
// already tagged so encoding/json's default behavior round-trips
// correctly. It exists to document the invariant and give a single
// extension point should future content types need custom unmarshaling.
func (c *ContentItem) UnmarshalJSON(data []byte) error {
	type alias ContentItem
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*c = ContentItem(a)
	return nil
}
