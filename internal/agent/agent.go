// Package agent wires the LLM provider, the MCP tool servers, the decision
// store, and the event bus into the climate control loop.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/humac/mcp-iot-poc/internal/bus"
	"github.com/humac/mcp-iot-poc/internal/llm"
	"github.com/humac/mcp-iot-poc/internal/mcp"
	"github.com/humac/mcp-iot-poc/internal/prompts"
	"github.com/humac/mcp-iot-poc/internal/store"
)

// Iteration caps for the two entry points. Scheduled evaluations get one
// extra round because the prompt demands three data-gathering calls before
// a decision.
const (
	EvaluationMaxIterations = 6
	ChatMaxIterations       = 5
)

// ChatResult is the outcome of one interactive exchange.
type ChatResult struct {
	Response  string               `json:"response"`
	ToolCalls []llm.ToolCallRecord `json:"tool_calls"`
}

// Agent orchestrates evaluations and chat over both MCP clients.
type Agent struct {
	Weather    *mcp.Client
	Thermostat *mcp.Client
	Provider   llm.Provider
	Store      *store.Store
	Bus        *bus.Bus

	mu              sync.Mutex
	initialized     bool
	weatherTools    map[string]bool
	thermostatTools map[string]bool
}

// New creates an agent. Store and Bus may be nil; evaluations then skip
// persistence and event publishing.
func New(weather, thermostat *mcp.Client, provider llm.Provider, st *store.Store, b *bus.Bus) *Agent {
	return &Agent{
		Weather:    weather,
		Thermostat: thermostat,
		Provider:   provider,
		Store:      st,
		Bus:        b,
	}
}

// Initialized reports whether Initialize has completed.
func (a *Agent) Initialized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initialized
}

// Initialize checks the provider and performs the MCP handshake with both
// servers, caching their tool names for routing.
func (a *Agent) Initialize(ctx context.Context) bool {
	slog.Info("initializing climate agent",
		"provider", a.Provider.Name(), "model", a.Provider.ModelName())

	if !a.Provider.HealthCheck(ctx) {
		slog.Error("llm provider is not available", "provider", a.Provider.Name())
		return false
	}
	if !a.Weather.Initialize(ctx) {
		slog.Error("failed to initialize weather mcp client")
		return false
	}
	if !a.Thermostat.Initialize(ctx) {
		slog.Error("failed to initialize thermostat mcp client")
		return false
	}

	a.mu.Lock()
	a.weatherTools = nameSet(a.Weather.ToolNames())
	a.thermostatTools = nameSet(a.Thermostat.ToolNames())
	a.initialized = true
	a.mu.Unlock()

	slog.Info("climate agent initialized",
		"weather_tools", len(a.weatherTools), "thermostat_tools", len(a.thermostatTools))
	return true
}

// HealthFailures probes each component and returns a message per failure.
// An empty slice means everything answered.
func (a *Agent) HealthFailures(ctx context.Context) []string {
	var failures []string
	if !a.Provider.HealthCheck(ctx) {
		failures = append(failures, fmt.Sprintf("LLM provider %s not responding", a.Provider.Name()))
	}
	if !a.Weather.HealthCheck(ctx) {
		failures = append(failures, "Weather MCP not responding")
	}
	if !a.Thermostat.HealthCheck(ctx) {
		failures = append(failures, "Home Assistant MCP not responding")
	}
	return failures
}

// ExecuteTool routes a tool call to the server that owns it. Unknown names
// come back as an error value for the model to read.
func (a *Agent) ExecuteTool(ctx context.Context, name string, arguments map[string]any) any {
	switch {
	case a.routes(name, a.weatherToolSet(), defaultWeatherTools):
		return a.Weather.CallTool(ctx, name, arguments)
	case a.routes(name, a.thermostatToolSet(), defaultThermostatTools):
		return a.Thermostat.CallTool(ctx, name, arguments)
	default:
		return map[string]any{"error": fmt.Sprintf("Unknown tool: %s", name)}
	}
}

var defaultWeatherTools = map[string]bool{
	"get_current_weather": true,
	"get_forecast":        true,
}

var defaultThermostatTools = map[string]bool{
	"get_thermostat_state":       true,
	"set_thermostat_temperature": true,
	"set_hvac_mode":              true,
	"set_preset_mode":            true,
}

func (a *Agent) weatherToolSet() map[string]bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.weatherTools
}

func (a *Agent) thermostatToolSet() map[string]bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.thermostatTools
}

func (a *Agent) routes(name string, cached, fallback map[string]bool) bool {
	if len(cached) > 0 {
		return cached[name]
	}
	return fallback[name]
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// allTools merges the tool catalogs of both servers.
func (a *Agent) allTools() []llm.OpenAITool {
	tools := a.Weather.ToolsForLLM()
	return append(tools, a.Thermostat.ToolsForLLM()...)
}

// prompt fetches the editable prompt text, falling back to the built-in
// default when there is no store or the read fails.
func (a *Agent) prompt(key, def, description string) string {
	if a.Store == nil {
		return def
	}
	content, err := a.Store.GetPrompt(key, def, description)
	if err != nil {
		slog.Warn("failed to load prompt, using default", "key", key, "error", err)
		return def
	}
	return content
}

// RunEvaluation runs one full evaluation cycle: let the model gather data
// through tools, decide, then persist and publish the outcome. Errors are
// recorded as failed decisions.
func (a *Agent) RunEvaluation(ctx context.Context) (store.Decision, error) {
	if !a.Initialized() {
		return store.Decision{}, fmt.Errorf("agent not initialized")
	}

	slog.Info("starting evaluation cycle", "time", time.Now().Format(time.RFC3339))

	systemPrompt := a.prompt(prompts.SystemPromptKey, prompts.SystemPrompt, prompts.SystemPromptDescription)
	result := a.Provider.ChatWithTools(ctx, prompts.EvaluationMessage, a.allTools(),
		a.ExecuteTool, systemPrompt, EvaluationMaxIterations)

	if result.Err != nil && result.Err.Kind != llm.ErrMaxIterations {
		slog.Error("evaluation failed", "error", result.Err)
		decision := store.Decision{
			Action:    "ERROR",
			Reasoning: result.Err.Error(),
			Success:   false,
		}
		a.record(decision, nil)
		return decision, result.Err
	}

	// A capped run still carries its tool call trail; any thermostat change
	// it made is real and gets extracted like a normal run.
	if result.Err != nil {
		slog.Warn("evaluation hit the iteration cap", "iterations", result.Iterations)
	}

	decision := extractDecision(result)
	a.record(decision, result.ToolCallsMade)

	slog.Info("evaluation cycle complete",
		"action", decision.Action, "iterations", result.Iterations)
	return decision, nil
}

// extractDecision reduces the tool call trail to a decision row. When the
// model skipped get_current_weather but fetched a forecast, the first
// forecast hour stands in for current conditions.
func extractDecision(result *llm.RunResult) store.Decision {
	decision := store.Decision{
		Action:    "NO_CHANGE",
		Reasoning: result.FinalResponse,
		Success:   true,
	}

	for _, tc := range result.ToolCallsMade {
		switch tc.Tool {
		case "get_current_weather":
			if m, ok := tc.Result.(map[string]any); ok {
				decision.WeatherData = m
			}
		case "get_thermostat_state":
			if m, ok := tc.Result.(map[string]any); ok {
				decision.ThermostatState = m
			}
		case "get_forecast":
			if decision.WeatherData != nil {
				break
			}
			if m, ok := tc.Result.(map[string]any); ok {
				if first, ok := firstForecastHour(m); ok {
					decision.WeatherData = map[string]any{
						"temperature_c": first["temperature_c"],
						"feels_like_c":  first["feels_like_c"],
						"conditions":    first["conditions"],
						"source":        "forecast_fallback",
					}
					slog.Warn("using forecast data as fallback for current weather")
				}
			}
		case "set_thermostat_temperature":
			decision.Action = "SET_TEMPERATURE"
			if t, ok := tc.Arguments["temperature"].(float64); ok {
				decision.AITemperature = &t
			}
		}
		decision.ToolCalls = append(decision.ToolCalls, map[string]any{
			"tool":      tc.Tool,
			"arguments": tc.Arguments,
			"result":    tc.Result,
		})
	}
	return decision
}

func firstForecastHour(result map[string]any) (map[string]any, bool) {
	list, ok := result["forecast"].([]any)
	if !ok || len(list) == 0 {
		return nil, false
	}
	first, ok := list[0].(map[string]any)
	return first, ok
}

// record persists the decision and publishes it on the bus. Neither failure
// interrupts the caller.
func (a *Agent) record(decision store.Decision, calls []llm.ToolCallRecord) {
	if a.Store != nil {
		if _, err := a.Store.LogDecision(decision); err != nil {
			slog.Error("failed to persist decision", "error", err)
		}
	}
	if a.Bus != nil {
		names := make([]string, 0, len(calls))
		for _, tc := range calls {
			names = append(names, tc.Tool)
		}
		a.Bus.PublishDecision(bus.DecisionEvent{
			Timestamp:   decision.Timestamp,
			Action:      decision.Action,
			Temperature: decision.AITemperature,
			Reasoning:   decision.Reasoning,
			Success:     decision.Success,
			ToolCalls:   names,
		})
	}
}

// Chat runs one interactive exchange with tool access.
func (a *Agent) Chat(ctx context.Context, message string) (*ChatResult, error) {
	systemPrompt := a.prompt(prompts.ChatPromptKey, prompts.ChatPrompt, prompts.ChatPromptDescription)
	result := a.Provider.ChatWithTools(ctx, message, a.allTools(),
		a.ExecuteTool, systemPrompt, ChatMaxIterations)

	if result.Err != nil {
		return nil, result.Err
	}
	return &ChatResult{
		Response:  result.FinalResponse,
		ToolCalls: result.ToolCallsMade,
	}, nil
}
