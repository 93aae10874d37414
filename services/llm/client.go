package llm

import (
	"context"
	"encoding/json"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool describes a function the model may call. Parameters is a raw
// JSON Schema object.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall is the model's request to invoke a tool. Arguments carries
// the raw JSON-encoded argument object.
type ToolCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Completion holds assistant text or tool calls. A backend returns at
// most one of the two populated.
type Completion struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
}

// ChatClient defines the standard interface for any chat-capable LLM backend.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message, tools []Tool) (*Completion, error)
}
