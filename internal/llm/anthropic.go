package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Anthropic implements Provider using the Claude Messages API
type Anthropic struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	client  *http.Client
}

// Anthropic API types
type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string or []anthropicContentBlock
}

type anthropicContentBlock struct {
	Type      string `json:"type"`                  // "text", "tool_use", "tool_result"
	Text      string `json:"text,omitempty"`        // for text blocks
	ID        string `json:"id,omitempty"`          // for tool_use blocks
	Name      string `json:"name,omitempty"`        // for tool_use blocks
	Input     any    `json:"input,omitempty"`       // for tool_use blocks
	ToolUseID string `json:"tool_use_id,omitempty"` // for tool_result blocks
	Content   string `json:"content,omitempty"`     // for tool_result blocks (result text)
}

type anthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type anthropicResponse struct {
	ID           string                  `json:"id"`
	Type         string                  `json:"type"`
	Role         string                  `json:"role"`
	Content      []anthropicContentBlock `json:"content"`
	Model        string                  `json:"model"`
	StopReason   string                  `json:"stop_reason"`
	StopSequence *string                 `json:"stop_sequence"`
	Usage        struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *anthropicError `json:"error,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewAnthropic creates a new Anthropic provider
func NewAnthropic(apiKey, model string, timeout time.Duration) *Anthropic {
	if model == "" {
		model = DefaultModels["anthropic"]
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Anthropic{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: "https://api.anthropic.com/v1",
		Timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the canonical provider id
func (a *Anthropic) Name() string { return "anthropic" }

// ModelName returns the model being used
func (a *Anthropic) ModelName() string { return a.Model }

// HealthCheck sends a minimal message request to verify API access
func (a *Anthropic) HealthCheck(ctx context.Context) bool {
	if a.APIKey == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	reqBody := anthropicRequest{
		Model:     a.Model,
		MaxTokens: 10,
		Messages:  []anthropicMessage{{Role: "user", Content: "Hi"}},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.BaseURL+"/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// convertToAnthropicMessages converts internal messages to Anthropic format.
// Tool results become tool_result blocks; consecutive results from one turn
// are combined into a single user message as the API expects.
func (a *Anthropic) convertToAnthropicMessages(messages []Message) []anthropicMessage {
	var anthropicMsgs []anthropicMessage

	for _, msg := range messages {
		if msg.Role == "tool" {
			block := anthropicContentBlock{
				Type:      "tool_result",
				ToolUseID: msg.ToolCallID,
				Content:   msg.Content,
			}
			if n := len(anthropicMsgs); n > 0 && anthropicMsgs[n-1].Role == "user" {
				if blocks, ok := anthropicMsgs[n-1].Content.([]anthropicContentBlock); ok {
					anthropicMsgs[n-1].Content = append(blocks, block)
					continue
				}
			}
			anthropicMsgs = append(anthropicMsgs, anthropicMessage{
				Role:    "user",
				Content: []anthropicContentBlock{block},
			})
			continue
		}

		// Handle assistant messages with tool calls
		if msg.Role == "assistant" && len(msg.ToolCalls) > 0 {
			var blocks []anthropicContentBlock
			if msg.Content != "" {
				blocks = append(blocks, anthropicContentBlock{
					Type: "text",
					Text: msg.Content,
				})
			}
			for _, tc := range msg.ToolCalls {
				var input any
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
					input = map[string]any{} // fallback to empty object
				}
				blocks = append(blocks, anthropicContentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Function.Name,
					Input: input,
				})
			}
			anthropicMsgs = append(anthropicMsgs, anthropicMessage{
				Role:    "assistant",
				Content: blocks,
			})
			continue
		}

		// Regular text messages
		anthropicMsgs = append(anthropicMsgs, anthropicMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	return anthropicMsgs
}

// convertToolsToAnthropic converts OpenAI tool format to Anthropic format
func convertToolsToAnthropic(tools []OpenAITool) []anthropicTool {
	result := make([]anthropicTool, 0, len(tools))
	for _, t := range tools {
		result = append(result, anthropicTool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}
	return result
}

// Chat sends a single chat request to the Claude API. The system prompt goes
// into the dedicated system field. Presence of tool_use blocks is
// authoritative for continuation regardless of the reported stop reason.
func (a *Anthropic) Chat(ctx context.Context, messages []Message, tools []OpenAITool, systemPrompt string) (*ToolCallResponse, error) {
	if a.APIKey == "" {
		return nil, &Error{
			Kind:     ErrAuthenticationFailed,
			Provider: "anthropic",
			Message:  "Anthropic API key not configured. Use 'climate-agent config set anthropic_api_key <key>' or set ANTHROPIC_API_KEY",
		}
	}

	reqBody := anthropicRequest{
		Model:     a.Model,
		MaxTokens: 4096,
		System:    systemPrompt,
		Messages:  a.convertToAnthropicMessages(messages),
	}
	if len(tools) > 0 {
		reqBody.Tools = convertToolsToAnthropic(tools)
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.BaseURL+"/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, Classify("anthropic", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Classify("anthropic", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("anthropic", resp.StatusCode, body)
	}

	var anthropicResp anthropicResponse
	if err := json.Unmarshal(body, &anthropicResp); err != nil {
		return nil, &Error{Kind: ErrProtocol, Provider: "anthropic", Message: fmt.Sprintf("failed to parse response: %v", err)}
	}

	if anthropicResp.Error != nil {
		return nil, &Error{Kind: ErrTransport, Provider: "anthropic", Message: anthropicResp.Error.Message}
	}

	var textContent strings.Builder
	var toolCalls []OpenAIToolCall

	for _, block := range anthropicResp.Content {
		switch block.Type {
		case "text":
			textContent.WriteString(block.Text)
		case "tool_use":
			inputJSON, _ := json.Marshal(block.Input)
			toolCalls = append(toolCalls, NewToolCall(block.ID, block.Name, string(inputJSON)))
		}
	}

	return &ToolCallResponse{
		Content:   textContent.String(),
		ToolCalls: toolCalls,
		Done:      len(toolCalls) == 0,
	}, nil
}

// ChatWithTools runs the tool loop against the Claude API
func (a *Anthropic) ChatWithTools(ctx context.Context, userMessage string, tools []OpenAITool, executor ToolExecutor, systemPrompt string, maxIterations int) *RunResult {
	return runToolLoop(ctx, a, userMessage, tools, executor, systemPrompt, maxIterations)
}

// Ensure Anthropic implements Provider
var _ Provider = (*Anthropic)(nil)
