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

// defaultOllamaURL is the local inference endpoint when none is configured.
const defaultOllamaURL = "http://localhost:11434"

// Ollama implements Provider using a local Ollama server
type Ollama struct {
	Model   string
	BaseURL string
	Timeout time.Duration
	client  *http.Client
}

// Ollama API request/response types
type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []OpenAITool    `json:"tools,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

// ollamaToolCall carries structured arguments and no call id on the wire.
type ollamaToolCall struct {
	Function ollamaFunction `json:"function"`
}

type ollamaFunction struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ollamaResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

// NewOllama creates a new Ollama provider
func NewOllama(model, baseURL string, timeout time.Duration) *Ollama {
	if model == "" {
		model = DefaultModels["ollama"]
	}
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Ollama{
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the canonical provider id
func (o *Ollama) Name() string { return "ollama" }

// ModelName returns the model being used
func (o *Ollama) ModelName() string { return o.Model }

// HealthCheck probes the Ollama tags endpoint
func (o *Ollama) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", o.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// convertToOllamaMessages converts internal messages to Ollama format. The
// system prompt is prepended as a leading system message; tool result
// messages carry no call id because the Ollama wire format has none.
func (o *Ollama) convertToOllamaMessages(messages []Message, systemPrompt string) []ollamaMessage {
	result := make([]ollamaMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		result = append(result, ollamaMessage{Role: "system", Content: systemPrompt})
	}
	for _, msg := range messages {
		om := ollamaMessage{Role: msg.Role, Content: msg.Content}
		for _, tc := range msg.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, ollamaToolCall{
				Function: ollamaFunction{
					Name:      tc.Function.Name,
					Arguments: ParseArguments(tc.Function.Arguments),
				},
			})
		}
		result = append(result, om)
	}
	return result
}

// Chat sends a single chat request to Ollama
func (o *Ollama) Chat(ctx context.Context, messages []Message, tools []OpenAITool, systemPrompt string) (*ToolCallResponse, error) {
	reqBody := ollamaRequest{
		Model:    o.Model,
		Messages: o.convertToOllamaMessages(messages, systemPrompt),
		Stream:   false,
	}
	if len(tools) > 0 {
		reqBody.Tools = tools
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.BaseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, Classify("ollama", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Classify("ollama", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("ollama", resp.StatusCode, body)
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		return nil, &Error{Kind: ErrProtocol, Provider: "ollama", Message: fmt.Sprintf("failed to parse response: %v", err)}
	}

	if ollamaResp.Error != "" {
		return nil, &Error{Kind: ErrTransport, Provider: "ollama", Message: ollamaResp.Error}
	}

	var toolCalls []OpenAIToolCall
	for _, tc := range ollamaResp.Message.ToolCalls {
		arguments, _ := json.Marshal(tc.Function.Arguments)
		toolCalls = append(toolCalls, NewToolCall(tc.Function.Name, tc.Function.Name, string(arguments)))
	}

	return &ToolCallResponse{
		Content:   ollamaResp.Message.Content,
		ToolCalls: toolCalls,
		Done:      len(toolCalls) == 0,
	}, nil
}

// ChatWithTools runs the tool loop against the local Ollama server
func (o *Ollama) ChatWithTools(ctx context.Context, userMessage string, tools []OpenAITool, executor ToolExecutor, systemPrompt string, maxIterations int) *RunResult {
	return runToolLoop(ctx, o, userMessage, tools, executor, systemPrompt, maxIterations)
}

// Ensure Ollama implements Provider
var _ Provider = (*Ollama)(nil)
