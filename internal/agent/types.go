// Package agent talks to the remote agent runtime that hosts the diet
// navigator agents.
package agent

import (
	"encoding/json"
	"fmt"

	"google.golang.org/genai"
)

// Message is what gets sent to the runtime: either plain text or a
// multimodal content object.
type Message struct {
	Text    string
	Content *genai.Content
}

// TextMessage wraps a plain prompt.
func TextMessage(text string) Message {
	return Message{Text: text}
}

// ContentMessage wraps a multimodal content object.
func ContentMessage(c *genai.Content) Message {
	return Message{Content: c}
}

// IsMultimodal reports whether the message carries a content object.
func (m Message) IsMultimodal() bool {
	return m.Content != nil
}

// Payload returns the value placed in the runtime's "message" input field.
func (m Message) Payload() any {
	if m.Content != nil {
		return m.Content
	}
	return m.Text
}

// payloadValue returns Payload in plain JSON types (string or map).
func (m Message) payloadValue() (any, error) {
	if m.Content == nil {
		return m.Text, nil
	}
	raw, err := json.Marshal(m.Content)
	if err != nil {
		return nil, fmt.Errorf("encode message content: %w", err)
	}
	var v map[string]any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode message content: %w", err)
	}
	return v, nil
}

// Query identifies one streamed turn.
type Query struct {
	UserID    string
	SessionID string
	Message   Message
}
