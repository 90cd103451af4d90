package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/humac/mcp-iot-poc/internal/agent"
	"github.com/humac/mcp-iot-poc/internal/llm"
	"github.com/humac/mcp-iot-poc/internal/mcp"
	"github.com/humac/mcp-iot-poc/internal/mcpserver"
	"github.com/humac/mcp-iot-poc/internal/store"
)

type fakeProvider struct {
	healthy  bool
	response string
}

var _ llm.Provider = (*fakeProvider)(nil)

func (p *fakeProvider) Name() string                         { return "scripted" }
func (p *fakeProvider) ModelName() string                    { return "scripted-1" }
func (p *fakeProvider) HealthCheck(ctx context.Context) bool { return p.healthy }

func (p *fakeProvider) Chat(ctx context.Context, messages []llm.Message, tools []llm.OpenAITool, systemPrompt string) (*llm.ToolCallResponse, error) {
	return &llm.ToolCallResponse{Content: p.response, Done: true}, nil
}

func (p *fakeProvider) ChatWithTools(ctx context.Context, userMessage string, tools []llm.OpenAITool, executor llm.ToolExecutor, systemPrompt string, maxIterations int) *llm.RunResult {
	return &llm.RunResult{FinalResponse: p.response, Iterations: 1}
}

type fixture struct {
	api   *httptest.Server
	store *store.Store
}

func newFixture(t *testing.T, provider llm.Provider) *fixture {
	t.Helper()

	weatherSrv := httptest.NewServer(mcpserver.New("weather-mcp", "0.1.0", mcpserver.NewRegistry()).Handler())
	t.Cleanup(weatherSrv.Close)
	haSrv := httptest.NewServer(mcpserver.New("homeassistant-mcp", "0.1.0", mcpserver.NewRegistry()).Handler())
	t.Cleanup(haSrv.Close)

	st, err := store.Open(filepath.Join(t.TempDir(), "decisions.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	a := agent.New(
		mcp.NewClient(weatherSrv.URL, "weather-mcp"),
		mcp.NewClient(haSrv.URL, "homeassistant-mcp"),
		provider, st, nil,
	)

	api := httptest.NewServer(New(a, st).Handler())
	t.Cleanup(api.Close)
	return &fixture{api: api, store: st}
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func postJSON(t *testing.T, url, body string) map[string]any {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, &fakeProvider{healthy: true})

	var payload map[string]any
	getJSON(t, f.api.URL+"/health", &payload)
	if payload["status"] != "healthy" || payload["service"] != "climate-agent" {
		t.Errorf("health = %v", payload)
	}
}

func TestDecisionsAndStats(t *testing.T) {
	f := newFixture(t, &fakeProvider{healthy: true})

	for _, d := range []store.Decision{
		{Timestamp: "2026-08-29T10:00:00Z", Action: "NO_CHANGE", Success: true},
		{Timestamp: "2026-08-29T11:00:00Z", Action: "SET_TEMPERATURE", Success: true},
	} {
		if _, err := f.store.LogDecision(d); err != nil {
			t.Fatalf("seed decision: %v", err)
		}
	}

	var decisions []map[string]any
	getJSON(t, f.api.URL+"/api/decisions?limit=1", &decisions)
	if len(decisions) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(decisions))
	}
	if decisions[0]["action"] != "SET_TEMPERATURE" {
		t.Errorf("newest decision = %v", decisions[0]["action"])
	}

	var stats map[string]any
	getJSON(t, f.api.URL+"/api/stats", &stats)
	if stats["total_decisions"] != float64(2) {
		t.Errorf("total_decisions = %v", stats["total_decisions"])
	}
	if stats["success_rate"] != float64(100) {
		t.Errorf("success_rate = %v", stats["success_rate"])
	}
}

func TestPromptEndpoints(t *testing.T) {
	f := newFixture(t, &fakeProvider{healthy: true})

	t.Run("missing content rejected", func(t *testing.T) {
		reply := postJSON(t, f.api.URL+"/api/prompts/system_prompt", `{}`)
		if reply["error"] != "Content required" {
			t.Errorf("reply = %v", reply)
		}
	})

	t.Run("update and read back", func(t *testing.T) {
		reply := postJSON(t, f.api.URL+"/api/prompts/system_prompt", `{"content":"be frugal"}`)
		if reply["status"] != "success" || reply["key"] != "system_prompt" {
			t.Errorf("reply = %v", reply)
		}

		var prompts []map[string]any
		getJSON(t, f.api.URL+"/api/prompts", &prompts)
		if len(prompts) != 1 || prompts[0]["content"] != "be frugal" {
			t.Errorf("prompts = %v", prompts)
		}
	})
}

func TestSettingEndpoints(t *testing.T) {
	f := newFixture(t, &fakeProvider{healthy: true})

	t.Run("missing value rejected", func(t *testing.T) {
		reply := postJSON(t, f.api.URL+"/api/settings/llm_provider", `{}`)
		if reply["error"] != "Value required" {
			t.Errorf("reply = %v", reply)
		}
	})

	t.Run("update and read back", func(t *testing.T) {
		reply := postJSON(t, f.api.URL+"/api/settings/llm_provider", `{"value":"anthropic"}`)
		if reply["status"] != "success" {
			t.Errorf("reply = %v", reply)
		}

		var settings []map[string]any
		getJSON(t, f.api.URL+"/api/settings", &settings)
		if len(settings) != 1 || settings[0]["value"] != "anthropic" {
			t.Errorf("settings = %v", settings)
		}
	})
}

func TestChatSend(t *testing.T) {
	t.Run("empty message rejected", func(t *testing.T) {
		f := newFixture(t, &fakeProvider{healthy: true})
		reply := postJSON(t, f.api.URL+"/api/chat/send", `{"message":"  "}`)
		if reply["error"] != "Message required" {
			t.Errorf("reply = %v", reply)
		}
	})

	t.Run("unhealthy provider named in error", func(t *testing.T) {
		f := newFixture(t, &fakeProvider{healthy: false})
		reply := postJSON(t, f.api.URL+"/api/chat/send", `{"message":"hello"}`)
		errText, _ := reply["error"].(string)
		if !strings.Contains(errText, "Agent cannot initialize") {
			t.Errorf("error = %q", errText)
		}
		if !strings.Contains(errText, "LLM provider scripted not responding") {
			t.Errorf("error does not name the provider: %q", errText)
		}
	})

	t.Run("initializes on demand and responds", func(t *testing.T) {
		f := newFixture(t, &fakeProvider{healthy: true, response: "All quiet on the thermostat front."})
		reply := postJSON(t, f.api.URL+"/api/chat/send", `{"message":"status?"}`)
		if reply["response"] != "All quiet on the thermostat front." {
			t.Errorf("reply = %v", reply)
		}
	})
}

func TestProviders(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	f := newFixture(t, &fakeProvider{healthy: true})
	if err := f.store.SetSetting("anthropic_api_key", "sk-ant-test"); err != nil {
		t.Fatalf("set setting: %v", err)
	}

	var payload struct {
		Active    string `json:"active"`
		Providers []struct {
			ID         string `json:"id"`
			Configured bool   `json:"configured"`
		} `json:"providers"`
	}
	getJSON(t, f.api.URL+"/api/providers", &payload)

	if payload.Active != "ollama" {
		t.Errorf("active = %q, want ollama", payload.Active)
	}

	configured := map[string]bool{}
	for _, p := range payload.Providers {
		configured[p.ID] = p.Configured
	}
	if !configured["ollama"] {
		t.Error("ollama should always be configured")
	}
	if !configured["anthropic"] {
		t.Error("anthropic key in settings should mark it configured")
	}
}
