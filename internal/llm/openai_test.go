package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAI_Chat_NoKey(t *testing.T) {
	provider := NewOpenAI("", "gpt-4o", 0)

	_, err := provider.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, "")
	if err == nil {
		t.Fatal("Chat() without key expected an error")
	}
	if perr := Classify("openai", err); perr.Kind != ErrAuthenticationFailed {
		t.Errorf("error kind = %q, want %q", perr.Kind, ErrAuthenticationFailed)
	}
}

func TestOpenAI_Chat_WireFormat(t *testing.T) {
	var captured map[string]any
	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("request path = %q, want /chat/completions", r.URL.Path)
		}
		authHeader = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"","tool_calls":[{"id":"call_abc","type":"function","function":{"name":"get_current_weather","arguments":"{\"units\":\"metric\"}"}}]},"finish_reason":"tool_calls"}]}`)
	}))
	defer server.Close()

	provider := NewOpenAI("sk-test", "gpt-4o", 0)
	provider.BaseURL = server.URL

	messages := []Message{
		{Role: "user", Content: "weather?"},
		{Role: "assistant", ToolCalls: []OpenAIToolCall{NewToolCall("call_xyz", "get_forecast", `{"hours":6}`)}},
		{Role: "tool", Name: "get_forecast", Content: `{"ok":true}`, ToolCallID: "call_xyz"},
	}

	resp, err := provider.Chat(context.Background(), messages, weatherTools(), "Be concise.")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if authHeader != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want bearer key", authHeader)
	}

	msgs := captured["messages"].([]any)
	first := msgs[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "Be concise." {
		t.Errorf("first wire message = %v, want leading system prompt", first)
	}

	// Assistant messages with tool calls have null content
	assistant := msgs[2].(map[string]any)
	if content, present := assistant["content"]; !present || content != nil {
		t.Errorf("assistant content = %v, want explicit null", content)
	}
	calls := assistant["tool_calls"].([]any)
	fn := calls[0].(map[string]any)["function"].(map[string]any)
	if _, ok := fn["arguments"].(string); !ok {
		t.Errorf("assistant tool call arguments = %T, want JSON string", fn["arguments"])
	}

	// Tool result messages carry the call id
	last := msgs[len(msgs)-1].(map[string]any)
	if last["role"] != "tool" || last["tool_call_id"] != "call_xyz" {
		t.Errorf("tool wire message = %v, want role tool with tool_call_id", last)
	}

	if captured["tool_choice"] != "auto" {
		t.Errorf("tool_choice = %v, want auto", captured["tool_choice"])
	}
	if len(captured["tools"].([]any)) != 2 {
		t.Errorf("wire tools count = %d, want 2", len(captured["tools"].([]any)))
	}

	if len(resp.ToolCalls) != 1 {
		t.Fatalf("parsed %d tool calls, want 1", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].ID != "call_abc" {
		t.Errorf("tool call id = %q, want call_abc", resp.ToolCalls[0].ID)
	}
	if resp.Done {
		t.Error("Done should be false when tool calls are present")
	}
}

func TestOpenAI_Chat_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{status: http.StatusUnauthorized, want: ErrAuthenticationFailed},
		{status: http.StatusForbidden, want: ErrAuthenticationFailed},
		{status: http.StatusTooManyRequests, want: ErrRateLimited},
		{status: http.StatusBadGateway, want: ErrTransport},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":{"message":"nope"}}`, tt.status)
			}))
			defer server.Close()

			provider := NewOpenAI("sk-test", "gpt-4o", 0)
			provider.BaseURL = server.URL

			_, err := provider.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, "")
			if err == nil {
				t.Fatal("Chat() expected an error")
			}
			if perr := Classify("openai", err); perr.Kind != tt.want {
				t.Errorf("error kind = %q, want %q", perr.Kind, tt.want)
			}
		})
	}
}

func TestOpenAI_ChatWithTools_TwoTurns(t *testing.T) {
	turn := 0
	var secondBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		turn++
		w.Header().Set("Content-Type", "application/json")
		if turn == 1 {
			io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"","tool_calls":[{"id":"call_abc","type":"function","function":{"name":"get_current_weather","arguments":"{}"}}]},"finish_reason":"tool_calls"}]}`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &secondBody)
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"It is 5C."},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	provider := NewOpenAI("sk-test", "gpt-4o", 0)
	provider.BaseURL = server.URL

	executor := func(ctx context.Context, name string, args map[string]any) any {
		return map[string]any{"temperature_c": 5.0}
	}

	result := provider.ChatWithTools(context.Background(), "weather?", weatherTools(), executor, "Be concise.", 5)

	if result.Err != nil {
		t.Fatalf("ChatWithTools() error = %v", result.Err)
	}
	if result.FinalResponse != "It is 5C." {
		t.Errorf("FinalResponse = %q", result.FinalResponse)
	}
	if result.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", result.Iterations)
	}
	if len(result.ToolCallsMade) != 1 || result.ToolCallsMade[0].Tool != "get_current_weather" {
		t.Errorf("ToolCallsMade = %+v, want one get_current_weather record", result.ToolCallsMade)
	}

	// The second request must carry the tool result correlated by id
	msgs := secondBody["messages"].([]any)
	last := msgs[len(msgs)-1].(map[string]any)
	if last["role"] != "tool" || last["tool_call_id"] != "call_abc" {
		t.Errorf("second request tool message = %v", last)
	}
}

func TestOpenAI_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{"data":[]}`)
	}))
	defer server.Close()

	provider := NewOpenAI("sk-test", "gpt-4o", 0)
	provider.BaseURL = server.URL
	if !provider.HealthCheck(context.Background()) {
		t.Error("HealthCheck() = false, want true")
	}

	keyless := NewOpenAI("", "gpt-4o", 0)
	keyless.BaseURL = server.URL
	if keyless.HealthCheck(context.Background()) {
		t.Error("HealthCheck() without key = true, want false")
	}
}
