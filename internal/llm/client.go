package llm

import "context"

// Client is the interface every completion provider must implement.
// Implementations are safe for concurrent use; no request-scoped state
// is shared between calls.
type Client interface {
	// Chat sends one completion request and returns the response.
	// tools may be nil to force a text-only answer.
	Chat(ctx context.Context, model string, messages []Message, tools []ToolSchema) (*Response, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
