package llm

import "context"

// Client is the interface all reasoning providers implement.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	Chat(ctx context.Context, messages []Message, tools []ToolSchema) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error

	// Name identifies the provider for logging.
	Name() string
}
