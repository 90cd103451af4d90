package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// DefaultMaxIterations caps the tool loop when the caller does not.
const DefaultMaxIterations = 5

// maxIterationsResponse is the fixed final response when the cap is reached
// while the model keeps requesting tools.
const maxIterationsResponse = "Max iterations reached"

// runToolLoop drives the chat/execute cycle shared by all providers. Each
// iteration makes one model call; requested tool calls execute sequentially
// in the order received, and their results are appended to the conversation
// before the next call. The history is owned by this invocation alone.
func runToolLoop(ctx context.Context, p Provider, userMessage string, tools []OpenAITool, executor ToolExecutor, systemPrompt string, maxIterations int) *RunResult {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	known := make(map[string]bool, len(tools))
	for _, t := range tools {
		known[t.Function.Name] = true
	}

	messages := []Message{{Role: "user", Content: userMessage}}
	var records []ToolCallRecord

	for iteration := 1; iteration <= maxIterations; iteration++ {
		slog.Debug("llm iteration", "provider", p.Name(), "iteration", iteration)

		resp, err := p.Chat(ctx, messages, tools, systemPrompt)
		if err != nil {
			return &RunResult{
				ToolCallsMade: records,
				Iterations:    iteration,
				Err:           Classify(p.Name(), err),
			}
		}

		if len(resp.ToolCalls) == 0 {
			// No more tool calls - we're done
			return &RunResult{
				FinalResponse: resp.Content,
				ToolCallsMade: records,
				Iterations:    iteration,
			}
		}

		messages = append(messages, Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			name := tc.Function.Name
			args := ParseArguments(tc.Function.Arguments)

			var result any
			if known[name] {
				slog.Info("executing tool", "tool", name, "arguments", args)
				result = executor(ctx, name, args)
			} else {
				slog.Warn("model requested unknown tool", "tool", name)
				result = map[string]any{"error": "Unknown tool: " + name}
			}

			records = append(records, ToolCallRecord{
				Tool:      name,
				Arguments: args,
				Result:    result,
			})

			messages = append(messages, Message{
				Role:       "tool",
				Name:       name,
				Content:    encodeToolResult(result),
				ToolCallID: tc.ID,
			})
		}
	}

	return &RunResult{
		FinalResponse: maxIterationsResponse,
		ToolCallsMade: records,
		Iterations:    maxIterations,
		Err:           &Error{Kind: ErrMaxIterations, Provider: p.Name(), Message: maxIterationsResponse},
	}
}

// ParseArguments decodes a JSON-encoded argument string. Malformed input
// falls back to an empty argument set rather than aborting the run.
func ParseArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

// encodeToolResult renders a tool result for the conversation history.
func encodeToolResult(result any) string {
	if s, ok := result.(string); ok {
		return s
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(encoded)
}
