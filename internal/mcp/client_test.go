package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newToolServer returns an httptest server speaking the MCP envelope, with
// tools/call handled by the given function.
func newToolServer(t *testing.T, call func(name string, args map[string]any) any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.URL.Path != "/mcp" || r.Method != "POST" {
			http.NotFound(w, r)
			return
		}

		var req struct {
			Method string `json:"method"`
			Params struct {
				Name      string         `json:"name"`
				Arguments map[string]any `json:"arguments"`
			} `json:"params"`
			ID int `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}

		var result any
		switch req.Method {
		case "initialize":
			result = map[string]any{
				"protocolVersion": "2024-11-05",
				"serverInfo":      map[string]any{"name": "test-mcp", "version": "0.1.0"},
				"capabilities":    map[string]any{"tools": map[string]any{}},
			}
		case "tools/list":
			result = map[string]any{
				"tools": []map[string]any{
					{
						"name":        "get_current_weather",
						"description": "Get current weather conditions",
						"inputSchema": map[string]any{"type": "object", "properties": map[string]any{}},
					},
					{
						"name": "get_forecast",
					},
				},
			}
		case "tools/call":
			result = call(req.Params.Name, req.Params.Arguments)
		default:
			json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0",
				"error":   map[string]any{"code": -32601, "message": "Method not found: " + req.Method},
				"id":      req.ID,
			})
			return
		}

		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "result": result, "id": req.ID})
	}))
}

func textResult(payload any) map[string]any {
	text, _ := json.Marshal(payload)
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": string(text)}},
	}
}

func TestInitialize(t *testing.T) {
	server := newToolServer(t, func(string, map[string]any) any { return nil })
	defer server.Close()

	client := NewClient(server.URL, "test-mcp")
	if !client.Initialize(context.Background()) {
		t.Fatal("Initialize() = false, want true")
	}

	tools := client.Tools()
	if len(tools) != 2 {
		t.Fatalf("cached %d tools, want 2", len(tools))
	}
	if tools[0].Name != "get_current_weather" {
		t.Errorf("tools[0].Name = %q", tools[0].Name)
	}
}

func TestInitialize_ServerDown(t *testing.T) {
	server := newToolServer(t, func(string, map[string]any) any { return nil })
	server.Close()

	client := NewClient(server.URL, "test-mcp")
	client.sleep = func(time.Duration) {}

	if client.Initialize(context.Background()) {
		t.Error("Initialize() = true against a closed server, want false")
	}
}

func TestCallTool_JSONResult(t *testing.T) {
	server := newToolServer(t, func(name string, args map[string]any) any {
		return textResult(map[string]any{"temperature_c": 5.0})
	})
	defer server.Close()

	client := NewClient(server.URL, "weather-mcp")
	result := client.CallTool(context.Background(), "get_current_weather", nil)

	if result["temperature_c"] != 5.0 {
		t.Errorf("temperature_c = %v, want 5.0", result["temperature_c"])
	}
	if _, ok := result["error"]; ok {
		t.Errorf("unexpected error in result: %v", result)
	}
}

func TestCallTool_RPCErrorNotRetried(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"error":   map[string]any{"code": -32603, "message": "boiler offline"},
			"id":      1,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "ha-mcp")
	client.sleep = func(time.Duration) { t.Error("slept: RPC errors must not be retried") }

	result := client.CallTool(context.Background(), "set_thermostat_temperature", map[string]any{"temperature": 21})

	if callCount != 1 {
		t.Errorf("server hit %d times, want 1", callCount)
	}
	if result["error"] != "boiler offline" {
		t.Errorf("error = %v, want %q", result["error"], "boiler offline")
	}
}

func TestCallTool_InvalidJSONPayload(t *testing.T) {
	server := newToolServer(t, func(string, map[string]any) any {
		return map[string]any{
			"content": []map[string]any{{"type": "text", "text": "Error: Temperature must be between 17.0°C and 23.0°C"}},
		}
	})
	defer server.Close()

	client := NewClient(server.URL, "ha-mcp")
	result := client.CallTool(context.Background(), "set_thermostat_temperature", map[string]any{"temperature": 30})

	if result["error"] != "Invalid JSON response" {
		t.Fatalf("error = %v, want %q", result["error"], "Invalid JSON response")
	}
	if result["raw_text"] != "Error: Temperature must be between 17.0°C and 23.0°C" {
		t.Errorf("raw_text = %v, original payload not preserved", result["raw_text"])
	}
	if result["parse_error"] == "" {
		t.Error("parse_error is empty")
	}
}

func TestCallTool_ConnectionErrorRetries(t *testing.T) {
	server := newToolServer(t, func(string, map[string]any) any { return nil })
	server.Close()

	client := NewClient(server.URL, "weather-mcp")
	var backoffs []time.Duration
	client.sleep = func(d time.Duration) { backoffs = append(backoffs, d) }

	result := client.CallTool(context.Background(), "get_forecast", map[string]any{"hours": 12})

	// 3 attempts means 2 sleeps between them
	if len(backoffs) != 2 {
		t.Fatalf("slept %d times, want 2", len(backoffs))
	}
	for i := 1; i < len(backoffs); i++ {
		if backoffs[i] < backoffs[i-1] {
			t.Errorf("backoff decreased: %v then %v", backoffs[i-1], backoffs[i])
		}
	}
	for _, d := range backoffs {
		if d > backoffCap {
			t.Errorf("backoff %v exceeds cap %v", d, backoffCap)
		}
	}
	if _, ok := result["error"]; !ok {
		t.Errorf("result = %v, want connection error", result)
	}
}

func TestCallTool_HTTPErrorNotRetried(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "weather-mcp")
	client.sleep = func(time.Duration) { t.Error("slept: received HTTP responses must not be retried") }

	result := client.CallTool(context.Background(), "get_current_weather", nil)

	if callCount != 1 {
		t.Errorf("server hit %d times, want 1", callCount)
	}
	if _, ok := result["error"]; !ok {
		t.Errorf("result = %v, want error result", result)
	}
}

func TestHealthCheck(t *testing.T) {
	server := newToolServer(t, func(string, map[string]any) any { return nil })

	client := NewClient(server.URL, "test-mcp")
	if !client.HealthCheck(context.Background()) {
		t.Error("HealthCheck() = false against healthy server")
	}

	server.Close()
	if client.HealthCheck(context.Background()) {
		t.Error("HealthCheck() = true against closed server")
	}
}

func TestToolsForLLM(t *testing.T) {
	server := newToolServer(t, func(string, map[string]any) any { return nil })
	defer server.Close()

	client := NewClient(server.URL, "test-mcp")
	if !client.Initialize(context.Background()) {
		t.Fatal("Initialize() failed")
	}

	tools := client.ToolsForLLM()
	if len(tools) != 2 {
		t.Fatalf("got %d tools, want 2", len(tools))
	}

	if tools[0].Type != "function" || tools[0].Function.Name != "get_current_weather" {
		t.Errorf("tools[0] = %+v", tools[0])
	}

	// get_forecast had no inputSchema; it must default to an empty object
	params := tools[1].Function.Parameters
	if params["type"] != "object" {
		t.Errorf("default schema type = %v, want object", params["type"])
	}
	if _, ok := params["properties"]; !ok {
		t.Error("default schema missing properties")
	}
}
