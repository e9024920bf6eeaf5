package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Wire event types emitted by the backend over the chat websocket.
const (
	EventReasoning        = "reasoning"
	EventAssistantPartial = "assistant_partial"
	EventAssistant        = "assistant"
	EventError            = "error"
)

// Event is one inbound frame. Partial is only meaningful for reasoning
// events; assistant_partial frames carry the full accumulated text so far,
// not a delta.
type Event struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Partial bool   `json:"partial,omitempty"`
}

// Outbound is the single command shape the client transmits.
type Outbound struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func NewUserMessage(content string) Outbound {
	return Outbound{Type: "user_message", Content: content}
}

var errMissingType = errors.New("event has no type")

// DecodeEvent parses one websocket frame. Callers drop frames that fail to
// decode; a bad frame never terminates the stream.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, errMissingType
	}
	return ev, nil
}
