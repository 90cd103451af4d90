// Package llm implements multi-provider LLM access with tool calling.
package llm

import "context"

// Message represents a chat message
type Message struct {
	Role       string           `json:"role"` // "user", "assistant", "system", "tool"
	Content    string           `json:"content"`
	Name       string           `json:"name,omitempty"`         // Tool name for tool result messages
	ToolCalls  []OpenAIToolCall `json:"tool_calls,omitempty"`   // Assistant messages only
	ToolCallID string           `json:"tool_call_id,omitempty"` // Tool result messages only
}

// ToolExecutor runs a named tool with parsed arguments and returns its result.
// Failures are reported inside the result value, not raised.
type ToolExecutor func(ctx context.Context, name string, arguments map[string]any) any

// ToolCallRecord captures one executed tool call for the caller to inspect.
type ToolCallRecord struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	Result    any            `json:"result"`
}

// RunResult is the outcome of one tool-calling conversation. A failed run
// still returns a RunResult with Err set and any tool calls collected so far.
type RunResult struct {
	FinalResponse string           `json:"final_response"`
	ToolCallsMade []ToolCallRecord `json:"tool_calls_made"`
	Iterations    int              `json:"iterations"`
	Err           *Error           `json:"error,omitempty"`
}

// Provider is the interface for LLM backends
type Provider interface {
	// Name returns the canonical provider id used by the registry
	Name() string

	// ModelName returns the model being used
	ModelName() string

	// HealthCheck reports whether the backend is reachable. Best effort
	// with a short timeout; returns false on any fault.
	HealthCheck(ctx context.Context) bool

	// Chat performs a single request/response turn. The system prompt is
	// injected wherever the backend's wire format requires it.
	Chat(ctx context.Context, messages []Message, tools []OpenAITool, systemPrompt string) (*ToolCallResponse, error)

	// ChatWithTools runs the tool-calling loop until the model produces a
	// final answer, the model call fails, or maxIterations is reached.
	ChatWithTools(ctx context.Context, userMessage string, tools []OpenAITool, executor ToolExecutor, systemPrompt string, maxIterations int) *RunResult
}
