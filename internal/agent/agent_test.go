package agent

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/humac/mcp-iot-poc/internal/llm"
	"github.com/humac/mcp-iot-poc/internal/mcp"
	"github.com/humac/mcp-iot-poc/internal/mcpserver"
	"github.com/humac/mcp-iot-poc/internal/prompts"
	"github.com/humac/mcp-iot-poc/internal/store"
)

// stubTool serves canned JSON from a test MCP server.
type stubTool struct {
	name string
	text string
}

func (s stubTool) Definition() mcpserver.Definition {
	return mcpserver.Definition{Name: s.name, Description: s.name}
}

func (s stubTool) Execute(ctx context.Context, args map[string]any) string {
	return s.text
}

// scriptedCall is one tool invocation the fake provider performs.
type scriptedCall struct {
	name string
	args map[string]any
}

// scriptedProvider drives the executor through a fixed tool call sequence.
// capped simulates a run that hit the iteration cap after its calls.
type scriptedProvider struct {
	calls    []scriptedCall
	response string
	err      *llm.Error
	capped   bool
	healthy  bool
}

var _ llm.Provider = (*scriptedProvider)(nil)

func (p *scriptedProvider) Name() string                         { return "scripted" }
func (p *scriptedProvider) ModelName() string                    { return "scripted-1" }
func (p *scriptedProvider) HealthCheck(ctx context.Context) bool { return p.healthy }

func (p *scriptedProvider) Chat(ctx context.Context, messages []llm.Message, tools []llm.OpenAITool, systemPrompt string) (*llm.ToolCallResponse, error) {
	return &llm.ToolCallResponse{Content: p.response, Done: true}, nil
}

func (p *scriptedProvider) ChatWithTools(ctx context.Context, userMessage string, tools []llm.OpenAITool, executor llm.ToolExecutor, systemPrompt string, maxIterations int) *llm.RunResult {
	if p.err != nil {
		return &llm.RunResult{Err: p.err}
	}
	records := make([]llm.ToolCallRecord, 0, len(p.calls))
	for _, call := range p.calls {
		result := executor(ctx, call.name, call.args)
		records = append(records, llm.ToolCallRecord{
			Tool:      call.name,
			Arguments: call.args,
			Result:    result,
		})
	}
	result := &llm.RunResult{
		FinalResponse: p.response,
		ToolCallsMade: records,
		Iterations:    len(p.calls) + 1,
	}
	if p.capped {
		result.FinalResponse = "Max iterations reached"
		result.Iterations = maxIterations
		result.Err = &llm.Error{Kind: llm.ErrMaxIterations, Provider: "scripted", Message: "Max iterations reached"}
	}
	return result
}

func newAgentFixture(t *testing.T, provider llm.Provider) *Agent {
	t.Helper()

	weatherReg := mcpserver.NewRegistry()
	weatherReg.Register(stubTool{name: "get_current_weather",
		text: `{"temperature_c": -5.0, "conditions": "Clear sky"}`})
	weatherReg.Register(stubTool{name: "get_forecast",
		text: `{"forecast": [{"time": "2026-01-15T10:00", "temperature_c": -6.0, "feels_like_c": -10.0, "conditions": "Overcast"}]}`})
	weatherSrv := httptest.NewServer(mcpserver.New("weather-mcp", "0.1.0", weatherReg).Handler())
	t.Cleanup(weatherSrv.Close)

	haReg := mcpserver.NewRegistry()
	haReg.Register(stubTool{name: "get_thermostat_state",
		text: `{"current_temperature": 19.5, "target_temperature": 20.0, "hvac_mode": "heat"}`})
	haReg.Register(stubTool{name: "set_thermostat_temperature",
		text: `{"success": true, "action": "set_temperature", "verified": true}`})
	haReg.Register(stubTool{name: "set_hvac_mode", text: `{"success": true}`})
	haReg.Register(stubTool{name: "set_preset_mode", text: `{"success": true}`})
	haSrv := httptest.NewServer(mcpserver.New("homeassistant-mcp", "0.1.0", haReg).Handler())
	t.Cleanup(haSrv.Close)

	st, err := store.Open(filepath.Join(t.TempDir(), "decisions.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	a := New(
		mcp.NewClient(weatherSrv.URL, "weather-mcp"),
		mcp.NewClient(haSrv.URL, "homeassistant-mcp"),
		provider, st, nil,
	)
	if !a.Initialize(context.Background()) {
		t.Fatal("agent failed to initialize")
	}
	return a
}

func TestExecuteToolRouting(t *testing.T) {
	a := newAgentFixture(t, &scriptedProvider{healthy: true})
	ctx := context.Background()

	t.Run("weather tool", func(t *testing.T) {
		result := a.ExecuteTool(ctx, "get_current_weather", map[string]any{})
		m, ok := result.(map[string]any)
		if !ok {
			t.Fatalf("result = %T", result)
		}
		if m["temperature_c"] != -5.0 {
			t.Errorf("temperature_c = %v", m["temperature_c"])
		}
	})

	t.Run("thermostat tool", func(t *testing.T) {
		result := a.ExecuteTool(ctx, "get_thermostat_state", map[string]any{})
		m, ok := result.(map[string]any)
		if !ok {
			t.Fatalf("result = %T", result)
		}
		if m["hvac_mode"] != "heat" {
			t.Errorf("hvac_mode = %v", m["hvac_mode"])
		}
	})

	t.Run("unknown tool", func(t *testing.T) {
		result := a.ExecuteTool(ctx, "launch_rocket", map[string]any{})
		m, ok := result.(map[string]any)
		if !ok {
			t.Fatalf("result = %T", result)
		}
		if m["error"] != "Unknown tool: launch_rocket" {
			t.Errorf("error = %v", m["error"])
		}
	})
}

func TestInitializeFailsWhenProviderDown(t *testing.T) {
	provider := &scriptedProvider{healthy: false}

	weatherSrv := httptest.NewServer(mcpserver.New("weather-mcp", "0.1.0", mcpserver.NewRegistry()).Handler())
	t.Cleanup(weatherSrv.Close)
	haSrv := httptest.NewServer(mcpserver.New("homeassistant-mcp", "0.1.0", mcpserver.NewRegistry()).Handler())
	t.Cleanup(haSrv.Close)

	a := New(
		mcp.NewClient(weatherSrv.URL, "weather-mcp"),
		mcp.NewClient(haSrv.URL, "homeassistant-mcp"),
		provider, nil, nil,
	)
	if a.Initialize(context.Background()) {
		t.Error("expected initialization to fail with unhealthy provider")
	}
	if a.Initialized() {
		t.Error("agent should not report initialized")
	}
}

func TestRunEvaluation(t *testing.T) {
	provider := &scriptedProvider{
		healthy: true,
		calls: []scriptedCall{
			{name: "get_current_weather", args: map[string]any{}},
			{name: "get_thermostat_state", args: map[string]any{}},
			{name: "set_thermostat_temperature", args: map[string]any{"temperature": 21.0}},
		},
		response: "Cold outside, raising setpoint to 21°C.",
	}
	a := newAgentFixture(t, provider)

	decision, err := a.RunEvaluation(context.Background())
	if err != nil {
		t.Fatalf("RunEvaluation: %v", err)
	}

	if decision.Action != "SET_TEMPERATURE" {
		t.Errorf("action = %q", decision.Action)
	}
	if decision.AITemperature == nil || *decision.AITemperature != 21.0 {
		t.Errorf("ai temperature = %v", decision.AITemperature)
	}
	if decision.WeatherData["temperature_c"] != -5.0 {
		t.Errorf("weather data = %v", decision.WeatherData)
	}
	if decision.ThermostatState["hvac_mode"] != "heat" {
		t.Errorf("thermostat state = %v", decision.ThermostatState)
	}
	if decision.Reasoning != provider.response {
		t.Errorf("reasoning = %q", decision.Reasoning)
	}
	if len(decision.ToolCalls) != 3 {
		t.Errorf("tool calls = %d, want 3", len(decision.ToolCalls))
	}

	// Decision is persisted.
	stored, err := a.Store.RecentDecisions(5)
	if err != nil {
		t.Fatalf("RecentDecisions: %v", err)
	}
	if len(stored) != 1 || stored[0].Action != "SET_TEMPERATURE" {
		t.Errorf("stored decisions = %v", stored)
	}
}

func TestRunEvaluationForecastFallback(t *testing.T) {
	provider := &scriptedProvider{
		healthy: true,
		calls: []scriptedCall{
			{name: "get_forecast", args: map[string]any{"hours": 12.0}},
			{name: "get_thermostat_state", args: map[string]any{}},
		},
		response: "Conditions are stable, no change needed.",
	}
	a := newAgentFixture(t, provider)

	decision, err := a.RunEvaluation(context.Background())
	if err != nil {
		t.Fatalf("RunEvaluation: %v", err)
	}

	if decision.Action != "NO_CHANGE" {
		t.Errorf("action = %q", decision.Action)
	}
	if decision.WeatherData["source"] != "forecast_fallback" {
		t.Errorf("weather data = %v", decision.WeatherData)
	}
	if decision.WeatherData["temperature_c"] != -6.0 {
		t.Errorf("fallback temperature = %v", decision.WeatherData["temperature_c"])
	}
}

func TestRunEvaluationMaxIterationsKeepsDecision(t *testing.T) {
	provider := &scriptedProvider{
		healthy: true,
		capped:  true,
		calls: []scriptedCall{
			{name: "get_current_weather", args: map[string]any{}},
			{name: "get_thermostat_state", args: map[string]any{}},
			{name: "set_thermostat_temperature", args: map[string]any{"temperature": 21.0}},
		},
	}
	a := newAgentFixture(t, provider)

	decision, err := a.RunEvaluation(context.Background())
	if err != nil {
		t.Fatalf("RunEvaluation: %v", err)
	}

	// The thermostat change made before the cap is still the decision.
	if decision.Action != "SET_TEMPERATURE" {
		t.Errorf("action = %q", decision.Action)
	}
	if !decision.Success {
		t.Error("capped run with a completed change should be successful")
	}
	if decision.AITemperature == nil || *decision.AITemperature != 21.0 {
		t.Errorf("ai temperature = %v", decision.AITemperature)
	}
	if decision.Reasoning != "Max iterations reached" {
		t.Errorf("reasoning = %q", decision.Reasoning)
	}
	if len(decision.ToolCalls) != 3 {
		t.Errorf("tool calls = %d, want 3", len(decision.ToolCalls))
	}

	stored, err := a.Store.RecentDecisions(5)
	if err != nil {
		t.Fatalf("RecentDecisions: %v", err)
	}
	if len(stored) != 1 || stored[0].Action != "SET_TEMPERATURE" {
		t.Errorf("stored decisions = %v", stored)
	}
}

func TestRunEvaluationError(t *testing.T) {
	provider := &scriptedProvider{
		healthy: true,
		err:     &llm.Error{Kind: llm.ErrTransport, Message: "connection refused"},
	}
	a := newAgentFixture(t, provider)

	decision, err := a.RunEvaluation(context.Background())
	if err == nil {
		t.Fatal("expected error from failed evaluation")
	}
	if decision.Action != "ERROR" || decision.Success {
		t.Errorf("decision = %+v", decision)
	}

	stored, err := a.Store.RecentDecisions(5)
	if err != nil {
		t.Fatalf("RecentDecisions: %v", err)
	}
	if len(stored) != 1 || stored[0].Success {
		t.Errorf("stored decisions = %v", stored)
	}
}

func TestRunEvaluationNotInitialized(t *testing.T) {
	a := New(nil, nil, &scriptedProvider{}, nil, nil)
	if _, err := a.RunEvaluation(context.Background()); err == nil {
		t.Error("expected error on uninitialized agent")
	}
}

func TestChat(t *testing.T) {
	provider := &scriptedProvider{
		healthy: true,
		calls: []scriptedCall{
			{name: "get_current_weather", args: map[string]any{}},
		},
		response: "It is -5°C and clear right now.",
	}
	a := newAgentFixture(t, provider)

	result, err := a.Chat(context.Background(), "what's the weather like?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if result.Response != provider.response {
		t.Errorf("response = %q", result.Response)
	}
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].Tool != "get_current_weather" {
		t.Errorf("tool calls = %v", result.ToolCalls)
	}

	// The chat prompt default is registered for editing.
	all, err := a.Store.AllPrompts()
	if err != nil {
		t.Fatalf("AllPrompts: %v", err)
	}
	found := false
	for _, p := range all {
		if p.Key == prompts.ChatPromptKey {
			found = true
		}
	}
	if !found {
		t.Error("chat prompt default was not registered")
	}
}
