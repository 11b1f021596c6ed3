// Package llm provides reasoning provider clients. All providers are
// normalized to a single Message/ToolCall shape; wire format conversion
// happens at the provider boundary (openai.go, ollama.go).
package llm

import "time"

// Message is a single entry in a conversation transcript.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on tool result messages
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	// ID correlates the eventual tool result with this call. Providers
	// that do not assign IDs (Ollama) get synthesized ones.
	ID       string       `json:"id,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the tool and carries decoded arguments.
// Arguments are always a decoded object here; the OpenAI wire format
// (JSON-encoded string) is converted at the provider boundary.
type FunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolSchema describes a callable tool for the model.
// Parameters is a JSON Schema object.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatResponse is the unified response from any reasoning provider.
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Message   Message

	InputTokens  int
	OutputTokens int
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// ToolResultMessage builds a tool-role message carrying a tool's output,
// correlated to the originating call by id.
func ToolResultMessage(id, content string) Message {
	return Message{Role: "tool", Content: content, ToolCallID: id}
}
