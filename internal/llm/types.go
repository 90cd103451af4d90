package llm

// OpenAI-compatible tool calling types. All providers accept tool
// definitions in this shape and convert them to their native format.

// OpenAITool represents a tool definition in OpenAI format
type OpenAITool struct {
	Type     string         `json:"type"` // "function"
	Function OpenAIFunction `json:"function"`
}

// OpenAIFunction represents a function definition
type OpenAIFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// OpenAIToolCall represents a tool call from the model
type OpenAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"` // "function"
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"` // JSON string
	} `json:"function"`
}

// NewToolCall builds a tool call with arguments already serialized to JSON.
// Backends whose wire format carries no call id synthesize one from the
// function name.
func NewToolCall(id, name, arguments string) OpenAIToolCall {
	tc := OpenAIToolCall{ID: id, Type: "function"}
	tc.Function.Name = name
	tc.Function.Arguments = arguments
	return tc
}

// ToolCallResponse contains the model's response for one turn
type ToolCallResponse struct {
	Content   string           // Text content (may be empty if only tool calls)
	ToolCalls []OpenAIToolCall // Tool calls requested by the model
	Done      bool             // Whether the model is done (no more tool calls)
}

// ToolRequestMessage is the message format for tool calling API requests.
// Uses *string for Content to allow null values for assistant messages with tool calls.
type ToolRequestMessage struct {
	Role       string           `json:"role"`
	Content    *string          `json:"content"` // Pointer to allow null
	Name       string           `json:"name,omitempty"`
	ToolCalls  []OpenAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

// ConvertMessagesToToolFormat converts internal Message slice to ToolRequestMessage slice
// for use with the OpenAI-compatible tool calling API.
func ConvertMessagesToToolFormat(messages []Message) []ToolRequestMessage {
	result := make([]ToolRequestMessage, 0, len(messages))
	for _, msg := range messages {
		tm := ToolRequestMessage{
			Role:       msg.Role,
			Name:       msg.Name,
			ToolCalls:  msg.ToolCalls,
			ToolCallID: msg.ToolCallID,
		}
		// For assistant messages with tool calls, content should be null if empty
		// For all other messages, content should be set (even if empty string)
		if msg.Role == "assistant" && len(msg.ToolCalls) > 0 && msg.Content == "" {
			tm.Content = nil
		} else {
			content := msg.Content
			tm.Content = &content
		}
		result = append(result, tm)
	}
	return result
}
