package voice

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ToolCallEvent is the inbound webhook payload: one requested tool
// invocation for one call.
type ToolCallEvent struct {
	// CallID groups turns within a single voice conversation.
	CallID string `json:"callId"`
	// ToolCallID is unique per invocation; it must be echoed back so the
	// platform can correlate the result, and it keys the replay cache.
	ToolCallID string `json:"toolCallId"`
	// ToolName names the capability being invoked.
	ToolName string `json:"toolName"`
	// PracticeID identifies the tenant. Required on the first turn of a
	// call; subsequent turns use the practice recorded in state.
	PracticeID string `json:"practiceId,omitempty"`
	// Arguments is the tool-specific payload. Some platforms send it as a
	// JSON object, others as a JSON-encoded string; DecodeArguments
	// accepts both.
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// DecodeArguments unmarshals the event's arguments into v, unwrapping one
// level of string encoding when the platform double-encodes.
func (e *ToolCallEvent) DecodeArguments(v any) error {
	raw := []byte(strings.TrimSpace(string(e.Arguments)))
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return fmt.Errorf("voice: unwrap encoded arguments: %w", err)
		}
		inner = strings.TrimSpace(inner)
		if inner == "" {
			return nil
		}
		raw = []byte(inner)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("voice: parse arguments: %w", err)
	}
	return nil
}

// ValidateArguments reports whether the arguments payload is well formed,
// so the dispatcher can reject garbage before any state is touched.
func (e *ToolCallEvent) ValidateArguments() error {
	var shape map[string]any
	return e.DecodeArguments(&shape)
}

// Message is the assistant-voiced portion of a response.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FollowUp asks the platform to invoke another tool in the same turn,
// without waiting for the caller to speak again.
type FollowUp struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Response is the outbound envelope. Exactly one is returned per inbound
// tool call, business failures included.
type Response struct {
	ToolCallID       string    `json:"toolCallId"`
	Result           any       `json:"result,omitempty"`
	Error            string    `json:"error,omitempty"`
	Message          *Message  `json:"message,omitempty"`
	FollowUpToolCall *FollowUp `json:"followUpToolCall,omitempty"`
}

func assistantSays(content string) *Message {
	return &Message{Role: "assistant", Content: content}
}
