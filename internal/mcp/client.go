// Package mcp implements the JSON-RPC over HTTP client used to reach
// remote tool servers.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/humac/mcp-iot-poc/internal/llm"
)

const (
	handshakeTimeout = 10 * time.Second
	callTimeout      = 30 * time.Second
	healthTimeout    = 5 * time.Second

	maxAttempts = 3
	backoffBase = time.Second
	backoffCap  = 10 * time.Second
)

// ToolDef is a tool description as returned by a server's tools/list.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// Client speaks the MCP JSON-RPC envelope to one tool server. A client is
// safe for concurrent use: the cached tool list is read-only after
// Initialize, and each call carries its own state.
type Client struct {
	ServerURL  string
	ServerName string

	tools  []ToolDef
	client *http.Client
	sleep  func(time.Duration) // overridable in tests
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      int    `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// NewClient creates a client for the tool server at serverURL.
func NewClient(serverURL, serverName string) *Client {
	if serverName == "" {
		serverName = "mcp-server"
	}
	return &Client{
		ServerURL:  strings.TrimRight(serverURL, "/"),
		ServerName: serverName,
		client:     &http.Client{},
		sleep:      time.Sleep,
	}
}

// makeRequest POSTs one JSON-RPC payload to the server's /mcp endpoint.
// Connection-level failures are retried with exponential backoff; a received
// HTTP response is final and never retried, even when non-2xx.
func (c *Client) makeRequest(ctx context.Context, payload rpcRequest, timeout time.Duration) (*rpcResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	backoff := backoffBase
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := c.doPost(reqCtx, body)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt < maxAttempts {
			slog.Warn("mcp request failed, retrying",
				"server", c.ServerName, "method", payload.Method,
				"attempt", attempt, "error", err)
			c.sleep(backoff)
			backoff *= 2
			if backoff > backoffCap {
				backoff = backoffCap
			}
		}
	}
	return nil, lastErr
}

// doPost makes one attempt. A non-nil error means the request never produced
// an HTTP response; those are the only failures the caller may retry.
func (c *Client) doPost(ctx context.Context, body []byte) (*rpcResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.ServerURL+"/mcp", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, readErr := io.ReadAll(httpResp.Body)
	if readErr != nil {
		return nil, readErr
	}

	if httpResp.StatusCode != http.StatusOK {
		// The server answered; surface the status as a final error result.
		return &rpcResponse{Error: &rpcError{
			Code:    -32000,
			Message: fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode, respBody),
		}}, nil
	}

	var resp rpcResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return &rpcResponse{Error: &rpcError{
			Code:    -32700,
			Message: fmt.Sprintf("malformed response: %v", err),
		}}, nil
	}
	return &resp, nil
}

// Initialize performs the initialize and tools/list handshake and caches the
// returned tool metadata. Returns false on any fault, never errors.
func (c *Client) Initialize(ctx context.Context) bool {
	initResp, err := c.makeRequest(ctx, rpcRequest{JSONRPC: "2.0", Method: "initialize", ID: 1}, handshakeTimeout)
	if err != nil {
		slog.Error("failed to initialize mcp server", "server", c.ServerName, "error", err)
		return false
	}
	if initResp.Error != nil {
		slog.Error("mcp initialize rejected", "server", c.ServerName, "error", initResp.Error.Message)
		return false
	}
	slog.Info("initialized mcp server", "server", c.ServerName)

	listResp, err := c.makeRequest(ctx, rpcRequest{JSONRPC: "2.0", Method: "tools/list", ID: 2}, handshakeTimeout)
	if err != nil {
		slog.Error("failed to list tools", "server", c.ServerName, "error", err)
		return false
	}
	if listResp.Error != nil {
		slog.Error("tools/list rejected", "server", c.ServerName, "error", listResp.Error.Message)
		return false
	}

	var result struct {
		Tools []ToolDef `json:"tools"`
	}
	if err := json.Unmarshal(listResp.Result, &result); err != nil {
		slog.Error("failed to parse tool list", "server", c.ServerName, "error", err)
		return false
	}

	c.tools = result.Tools
	slog.Info("loaded tools", "server", c.ServerName, "count", len(c.tools))
	return true
}

// CallTool executes a named tool on the server. The reply is classified into
// exactly one shape: a parsed JSON result, an error result for RPC-level
// failures, an invalid-JSON result preserving the raw payload, or a content
// passthrough when the payload is not a text block.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) map[string]any {
	if arguments == nil {
		arguments = map[string]any{}
	}

	resp, err := c.makeRequest(ctx, rpcRequest{
		JSONRPC: "2.0",
		Method:  "tools/call",
		Params:  map[string]any{"name": name, "arguments": arguments},
		ID:      1,
	}, callTimeout)
	if err != nil {
		slog.Error("connection error calling tool", "server", c.ServerName, "tool", name, "error", err)
		return map[string]any{"error": fmt.Sprintf("Connection error: %v", err)}
	}

	if resp.Error != nil {
		slog.Error("tool returned error", "server", c.ServerName, "tool", name, "error", resp.Error.Message)
		return map[string]any{"error": resp.Error.Message}
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return map[string]any{"error": fmt.Sprintf("unexpected result shape: %v", err)}
	}

	if len(result.Content) > 0 && result.Content[0].Type == "text" {
		text := result.Content[0].Text
		var parsed map[string]any
		if err := json.Unmarshal([]byte(text), &parsed); err != nil {
			slog.Warn("tool returned non-JSON payload", "server", c.ServerName, "tool", name)
			return map[string]any{
				"error":       "Invalid JSON response",
				"raw_text":    text,
				"parse_error": err.Error(),
			}
		}
		return parsed
	}

	return map[string]any{"content": result.Content}
}

// HealthCheck reports whether the tool server answers its health endpoint.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", c.ServerURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Tools returns the cached tool definitions from the last Initialize.
func (c *Client) Tools() []ToolDef {
	return c.tools
}

// ToolNames returns the cached tool names for routing.
func (c *Client) ToolNames() []string {
	names := make([]string, 0, len(c.tools))
	for _, t := range c.tools {
		names = append(names, t.Name)
	}
	return names
}

// ToolsForLLM maps the cached tool definitions to the engine's
// OpenAI-compatible shape. A missing input schema defaults to an empty
// object schema.
func (c *Client) ToolsForLLM() []llm.OpenAITool {
	result := make([]llm.OpenAITool, 0, len(c.tools))
	for _, t := range c.tools {
		schema := t.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, llm.OpenAITool{
			Type: "function",
			Function: llm.OpenAIFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		})
	}
	return result
}
