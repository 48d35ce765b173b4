// Package llm provides the completion capability: a provider-neutral
// client interface and adapters for Anthropic and Ollama.
package llm

import "log/slog"

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message represents one message in a completion conversation.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on tool result messages
}

// ToolCall is a request from the model to invoke a named tool.
type ToolCall struct {
	// ID is the provider-assigned call ID (required by Anthropic for
	// tool_result correlation; empty for providers without IDs).
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolSchema describes one tool offered to the model.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON-schema-shaped
}

// ResponseKind tags the shape of a completion response.
type ResponseKind int

const (
	// KindText is a response carrying only text.
	KindText ResponseKind = iota
	// KindToolCalls is a response carrying only tool-call requests.
	KindToolCalls
	// KindMixed carries text alongside tool-call requests. The text is
	// provisional thinking, not a final answer.
	KindMixed
)

// Response is the unified result of one completion call. All fields use
// proper Go types; wire format conversion happens at provider boundaries
// (anthropic.go, ollama.go).
type Response struct {
	Model   string
	Message Message

	// Token usage (provider-neutral)
	InputTokens  int
	OutputTokens int
}

// Kind reports the tagged shape of the response.
func (r *Response) Kind() ResponseKind {
	switch {
	case len(r.Message.ToolCalls) == 0:
		return KindText
	case r.Message.Content == "":
		return KindToolCalls
	default:
		return KindMixed
	}
}

// Final reports whether the response is a final answer. This is the
// contract-level finality marker: a response with zero tool calls is
// final; any text accompanying tool calls is provisional.
func (r *Response) Final() bool {
	return len(r.Message.ToolCalls) == 0
}
