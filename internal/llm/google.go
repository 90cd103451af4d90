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

// Google implements Provider using the Gemini REST API
type Google struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	client  *http.Client
}

// Gemini API types. Parameter schemas use typed Schema objects rather than
// raw JSON Schema, and conversation roles are "user" and "model".
type googleRequest struct {
	SystemInstruction *googleContent  `json:"systemInstruction,omitempty"`
	Contents          []googleContent `json:"contents"`
	Tools             []googleTool    `json:"tools,omitempty"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *googleFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *googleFunctionResponse `json:"functionResponse,omitempty"`
}

type googleFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type googleFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type googleTool struct {
	FunctionDeclarations []googleFunctionDeclaration `json:"functionDeclarations"`
}

type googleFunctionDeclaration struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Parameters  *googleSchema `json:"parameters,omitempty"`
}

type googleSchema struct {
	Type        string                   `json:"type"`
	Description string                   `json:"description,omitempty"`
	Properties  map[string]*googleSchema `json:"properties,omitempty"`
	Required    []string                 `json:"required,omitempty"`
}

type googleResponse struct {
	Candidates []struct {
		Content      googleContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	Error *googleAPIError `json:"error,omitempty"`
}

type googleAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// NewGoogle creates a new Google Gemini provider
func NewGoogle(apiKey, model string, timeout time.Duration) *Google {
	if model == "" {
		model = DefaultModels["google"]
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Google{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		Timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the canonical provider id
func (g *Google) Name() string { return "google" }

// ModelName returns the model being used
func (g *Google) ModelName() string { return g.Model }

// HealthCheck sends a minimal generation request to verify API access
func (g *Google) HealthCheck(ctx context.Context) bool {
	if g.APIKey == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	reqBody := googleRequest{
		Contents: []googleContent{{Role: "user", Parts: []googlePart{{Text: "Hi"}}}},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.generateURL(), bytes.NewReader(jsonBody))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (g *Google) generateURL() string {
	return fmt.Sprintf("%s/models/%s:generateContent", g.BaseURL, g.Model)
}

// convertToolsToGoogle converts OpenAI tool format to Gemini function
// declarations with typed parameter schemas.
func convertToolsToGoogle(tools []OpenAITool) []googleTool {
	decls := make([]googleFunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, googleFunctionDeclaration{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  convertGoogleSchema(t.Function.Parameters),
		})
	}
	return []googleTool{{FunctionDeclarations: decls}}
}

// convertGoogleSchema converts a JSON Schema parameter spec to a typed
// Gemini schema, preserving the required field list. Declarations without
// properties omit the schema entirely; the API rejects empty OBJECT schemas.
func convertGoogleSchema(params map[string]interface{}) *googleSchema {
	if params == nil {
		return nil
	}
	props, ok := params["properties"].(map[string]interface{})
	if !ok || len(props) == 0 {
		return nil
	}

	properties := make(map[string]*googleSchema, len(props))
	for name, raw := range props {
		prop, _ := raw.(map[string]interface{})
		propType := "STRING"
		if t, ok := prop["type"].(string); ok {
			switch strings.ToUpper(t) {
			case "INTEGER":
				propType = "INTEGER"
			case "NUMBER":
				propType = "NUMBER"
			case "BOOLEAN":
				propType = "BOOLEAN"
			}
		}
		description, _ := prop["description"].(string)
		properties[name] = &googleSchema{
			Type:        propType,
			Description: description,
		}
	}

	return &googleSchema{
		Type:       "OBJECT",
		Properties: properties,
		Required:   stringList(params["required"]),
	}
}

// stringList coerces a decoded JSON array into a string slice.
func stringList(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// convertToGoogleContents converts internal messages to Gemini contents.
// Assistant turns map to the "model" role; tool results become
// functionResponse parts, combined into one user turn as the API expects.
func convertToGoogleContents(messages []Message) []googleContent {
	var contents []googleContent

	for _, msg := range messages {
		switch msg.Role {
		case "tool":
			part := googlePart{FunctionResponse: &googleFunctionResponse{
				Name:     msg.Name,
				Response: googleFunctionResult(msg.Content),
			}}
			if n := len(contents); n > 0 && contents[n-1].Role == "user" &&
				len(contents[n-1].Parts) > 0 && contents[n-1].Parts[0].FunctionResponse != nil {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, googleContent{Role: "user", Parts: []googlePart{part}})
		case "assistant":
			var parts []googlePart
			if msg.Content != "" {
				parts = append(parts, googlePart{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, googlePart{FunctionCall: &googleFunctionCall{
					Name: tc.Function.Name,
					Args: ParseArguments(tc.Function.Arguments),
				}})
			}
			if len(parts) == 0 {
				parts = append(parts, googlePart{Text: ""})
			}
			contents = append(contents, googleContent{Role: "model", Parts: parts})
		default:
			contents = append(contents, googleContent{Role: "user", Parts: []googlePart{{Text: msg.Content}}})
		}
	}

	return contents
}

// googleFunctionResult wraps a tool result for a functionResponse part.
// Structured results pass through; anything else is wrapped as a value.
func googleFunctionResult(content string) map[string]any {
	var decoded map[string]any
	if err := json.Unmarshal([]byte(content), &decoded); err == nil && decoded != nil {
		return map[string]any{"result": decoded}
	}
	return map[string]any{"result": map[string]any{"value": content}}
}

// classifyGoogleError maps a Gemini API error to an error kind. The REST API
// reports invalid keys as 400s, so the message text is checked first.
func classifyGoogleError(status int, message string) *Error {
	lower := strings.ToLower(message)
	kind := ErrTransport
	switch {
	case strings.Contains(lower, "timeout"):
		kind = ErrTimeout
	case strings.Contains(lower, "api key") || strings.Contains(lower, "auth"):
		kind = ErrAuthenticationFailed
	case strings.Contains(lower, "rate") || strings.Contains(lower, "quota"):
		kind = ErrRateLimited
	case status == 401 || status == 403:
		kind = ErrAuthenticationFailed
	case status == 429:
		kind = ErrRateLimited
	}
	return &Error{Kind: kind, Provider: "google", Message: message, StatusCode: status}
}

// Chat sends a single generation request to the Gemini API. The system
// prompt goes into the systemInstruction field.
func (g *Google) Chat(ctx context.Context, messages []Message, tools []OpenAITool, systemPrompt string) (*ToolCallResponse, error) {
	if g.APIKey == "" {
		return nil, &Error{
			Kind:     ErrAuthenticationFailed,
			Provider: "google",
			Message:  "Google API key not configured. Use 'climate-agent config set google_api_key <key>' or set GOOGLE_API_KEY",
		}
	}

	reqBody := googleRequest{
		Contents: convertToGoogleContents(messages),
	}
	if systemPrompt != "" {
		reqBody.SystemInstruction = &googleContent{Parts: []googlePart{{Text: systemPrompt}}}
	}
	if len(tools) > 0 {
		reqBody.Tools = convertToolsToGoogle(tools)
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.generateURL(), bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, Classify("google", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Classify("google", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp googleResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
			return nil, classifyGoogleError(resp.StatusCode, errResp.Error.Message)
		}
		return nil, classifyGoogleError(resp.StatusCode, string(body))
	}

	var googleResp googleResponse
	if err := json.Unmarshal(body, &googleResp); err != nil {
		return nil, &Error{Kind: ErrProtocol, Provider: "google", Message: fmt.Sprintf("failed to parse response: %v", err)}
	}

	var textContent strings.Builder
	var toolCalls []OpenAIToolCall

	if len(googleResp.Candidates) > 0 {
		for _, part := range googleResp.Candidates[0].Content.Parts {
			if part.Text != "" {
				textContent.WriteString(part.Text)
			}
			if part.FunctionCall != nil {
				arguments, _ := json.Marshal(part.FunctionCall.Args)
				// Gemini has no separate call ids; use the function name
				toolCalls = append(toolCalls, NewToolCall(part.FunctionCall.Name, part.FunctionCall.Name, string(arguments)))
			}
		}
	}

	return &ToolCallResponse{
		Content:   textContent.String(),
		ToolCalls: toolCalls,
		Done:      len(toolCalls) == 0,
	}, nil
}

// ChatWithTools runs the tool loop against the Gemini API
func (g *Google) ChatWithTools(ctx context.Context, userMessage string, tools []OpenAITool, executor ToolExecutor, systemPrompt string, maxIterations int) *RunResult {
	return runToolLoop(ctx, g, userMessage, tools, executor, systemPrompt, maxIterations)
}

// Ensure Google implements Provider
var _ Provider = (*Google)(nil)
