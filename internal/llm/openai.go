package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAI implements Provider using the OpenAI chat completions API
type OpenAI struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	client  *http.Client
}

// OpenAI API request/response types
type openAIRequest struct {
	Model      string               `json:"model"`
	Messages   []ToolRequestMessage `json:"messages"`
	Tools      []OpenAITool         `json:"tools,omitempty"`
	ToolChoice interface{}          `json:"tool_choice,omitempty"` // "auto", "none", or specific
	Stream     bool                 `json:"stream,omitempty"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role      string           `json:"role"`
			Content   string           `json:"content"`
			ToolCalls []OpenAIToolCall `json:"tool_calls,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *openAIError `json:"error,omitempty"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// NewOpenAI creates a new OpenAI provider
func NewOpenAI(apiKey, model string, timeout time.Duration) *OpenAI {
	if model == "" {
		model = DefaultModels["openai"]
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &OpenAI{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: "https://api.openai.com/v1",
		Timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the canonical provider id
func (o *OpenAI) Name() string { return "openai" }

// ModelName returns the model being used
func (o *OpenAI) ModelName() string { return o.Model }

// HealthCheck probes the models endpoint
func (o *OpenAI) HealthCheck(ctx context.Context) bool {
	if o.APIKey == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", o.BaseURL+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+o.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Chat sends a single chat request to OpenAI. The system prompt is injected
// as a leading system message.
func (o *OpenAI) Chat(ctx context.Context, messages []Message, tools []OpenAITool, systemPrompt string) (*ToolCallResponse, error) {
	if o.APIKey == "" {
		return nil, &Error{
			Kind:     ErrAuthenticationFailed,
			Provider: "openai",
			Message:  "OpenAI API key not configured. Use 'climate-agent config set openai_api_key <key>' or set OPENAI_API_KEY",
		}
	}

	msgs := make([]Message, 0, len(messages)+1)
	if systemPrompt != "" {
		msgs = append(msgs, Message{Role: "system", Content: systemPrompt})
	}
	msgs = append(msgs, messages...)

	reqBody := openAIRequest{
		Model:    o.Model,
		Messages: ConvertMessagesToToolFormat(msgs),
		Stream:   false,
	}
	if len(tools) > 0 {
		reqBody.Tools = tools
		reqBody.ToolChoice = "auto"
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.BaseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, Classify("openai", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Classify("openai", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("openai", resp.StatusCode, body)
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(body, &openAIResp); err != nil {
		return nil, &Error{Kind: ErrProtocol, Provider: "openai", Message: fmt.Sprintf("failed to parse response: %v", err)}
	}

	if openAIResp.Error != nil {
		return nil, &Error{Kind: ErrTransport, Provider: "openai", Message: openAIResp.Error.Message}
	}

	if len(openAIResp.Choices) == 0 {
		return nil, &Error{Kind: ErrProtocol, Provider: "openai", Message: "no response choices returned"}
	}

	choice := openAIResp.Choices[0]
	return &ToolCallResponse{
		Content:   choice.Message.Content,
		ToolCalls: choice.Message.ToolCalls,
		Done:      len(choice.Message.ToolCalls) == 0,
	}, nil
}

// ChatWithTools runs the tool loop against the OpenAI API
func (o *OpenAI) ChatWithTools(ctx context.Context, userMessage string, tools []OpenAITool, executor ToolExecutor, systemPrompt string, maxIterations int) *RunResult {
	return runToolLoop(ctx, o, userMessage, tools, executor, systemPrompt, maxIterations)
}

// Ensure OpenAI implements Provider
var _ Provider = (*OpenAI)(nil)
