package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewOllama_Defaults(t *testing.T) {
	provider := NewOllama("", "", 0)

	if provider.BaseURL != "http://localhost:11434" {
		t.Errorf("BaseURL = %q, want %q", provider.BaseURL, "http://localhost:11434")
	}
	if provider.Model != "llama3.1:8b" {
		t.Errorf("Model = %q, want %q", provider.Model, "llama3.1:8b")
	}
	if provider.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", provider.Timeout, DefaultTimeout)
	}

	trimmed := NewOllama("", "http://host:11434/", 0)
	if trimmed.BaseURL != "http://host:11434" {
		t.Errorf("BaseURL = %q, trailing slash should be trimmed", trimmed.BaseURL)
	}
}

func TestOllama_Chat_WireFormat(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("request path = %q, want /api/chat", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"model":"llama3.1:8b","message":{"role":"assistant","content":"checking","tool_calls":[{"function":{"name":"get_current_weather","arguments":{"units":"metric"}}}]},"done":false}`)
	}))
	defer server.Close()

	provider := NewOllama("llama3.1:8b", server.URL, 0)

	messages := []Message{
		{Role: "user", Content: "weather?"},
		{Role: "assistant", ToolCalls: []OpenAIToolCall{NewToolCall("get_forecast", "get_forecast", `{"hours":6}`)}},
		{Role: "tool", Name: "get_forecast", Content: `{"ok":true}`, ToolCallID: "get_forecast"},
	}

	resp, err := provider.Chat(context.Background(), messages, weatherTools(), "Be concise.")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if captured["model"] != "llama3.1:8b" {
		t.Errorf("wire model = %v", captured["model"])
	}
	if captured["stream"] != false {
		t.Errorf("wire stream = %v, want false", captured["stream"])
	}

	msgs := captured["messages"].([]any)
	first := msgs[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "Be concise." {
		t.Errorf("first wire message = %v, want leading system prompt", first)
	}

	// Tool result messages carry no call id on the Ollama wire
	last := msgs[len(msgs)-1].(map[string]any)
	if last["role"] != "tool" {
		t.Fatalf("last wire message role = %v, want tool", last["role"])
	}
	if _, present := last["tool_call_id"]; present {
		t.Error("ollama tool message should not carry tool_call_id")
	}

	// Assistant tool calls are re-encoded with structured arguments
	assistant := msgs[2].(map[string]any)
	calls := assistant["tool_calls"].([]any)
	fn := calls[0].(map[string]any)["function"].(map[string]any)
	if fn["name"] != "get_forecast" {
		t.Errorf("assistant tool call name = %v", fn["name"])
	}
	if args, ok := fn["arguments"].(map[string]any); !ok || args["hours"] != float64(6) {
		t.Errorf("assistant tool call arguments = %v, want structured object", fn["arguments"])
	}

	tools := captured["tools"].([]any)
	if len(tools) != 2 {
		t.Fatalf("wire tools count = %d, want 2", len(tools))
	}
	if tools[0].(map[string]any)["type"] != "function" {
		t.Errorf("wire tool type = %v, want function", tools[0].(map[string]any)["type"])
	}

	if resp.Content != "checking" {
		t.Errorf("Content = %q, want %q", resp.Content, "checking")
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("parsed %d tool calls, want 1", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "get_current_weather" {
		t.Errorf("synthesized id = %q, want the function name", tc.ID)
	}
	if args := ParseArguments(tc.Function.Arguments); args["units"] != "metric" {
		t.Errorf("parsed arguments = %v, want units metric", args)
	}
	if resp.Done {
		t.Error("Done should be false when tool calls are present")
	}
}

func TestOllama_Chat_FinalAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"model":"llama3.1:8b","message":{"role":"assistant","content":"It is 5C outside."},"done":true}`)
	}))
	defer server.Close()

	provider := NewOllama("", server.URL, 0)
	resp, err := provider.Chat(context.Background(), []Message{{Role: "user", Content: "weather?"}}, nil, "")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if !resp.Done {
		t.Error("Done should be true without tool calls")
	}
	if resp.Content != "It is 5C outside." {
		t.Errorf("Content = %q", resp.Content)
	}
}

func TestOllama_Chat_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	provider := NewOllama("", server.URL, 0)
	_, err := provider.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, "")
	if err == nil {
		t.Fatal("Chat() expected an error")
	}
	perr := Classify("ollama", err)
	if perr.Kind != ErrTransport {
		t.Errorf("error kind = %q, want %q", perr.Kind, ErrTransport)
	}
	if perr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", perr.StatusCode)
	}
}

func TestOllama_Chat_ErrorField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"error":"model \"nope\" not found"}`)
	}))
	defer server.Close()

	provider := NewOllama("nope", server.URL, 0)
	_, err := provider.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, "")
	if err == nil {
		t.Fatal("Chat() expected an error")
	}
	if perr := Classify("ollama", err); perr.Kind != ErrTransport {
		t.Errorf("error kind = %q, want %q", perr.Kind, ErrTransport)
	}
}

func TestOllama_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `{"models":[]}`)
	}))
	defer server.Close()

	provider := NewOllama("", server.URL, 0)
	if !provider.HealthCheck(context.Background()) {
		t.Error("HealthCheck() = false, want true")
	}

	server.Close()
	if provider.HealthCheck(context.Background()) {
		t.Error("HealthCheck() = true after server shutdown, want false")
	}
}
