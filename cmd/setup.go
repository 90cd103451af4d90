package cmd

import (
	"fmt"
	"log/slog"

	"github.com/humac/mcp-iot-poc/internal/agent"
	"github.com/humac/mcp-iot-poc/internal/bus"
	"github.com/humac/mcp-iot-poc/internal/config"
	"github.com/humac/mcp-iot-poc/internal/llm"
	"github.com/humac/mcp-iot-poc/internal/mcp"
	"github.com/humac/mcp-iot-poc/internal/store"
)

// runtime bundles the pieces every agent-facing subcommand needs.
type runtime struct {
	store    *store.Store
	bus      *bus.Bus
	provider llm.Provider
	agent    *agent.Agent
}

func (r *runtime) Close() {
	r.bus.Close()
	if err := r.store.Close(); err != nil {
		slog.Warn("closing decision store", "error", err)
	}
}

// buildRuntime opens the store, connects the bus, resolves the LLM provider,
// and wires the agent to its two MCP tool servers.
func buildRuntime() (*runtime, error) {
	st, err := store.Open(config.GetDBPath())
	if err != nil {
		return nil, fmt.Errorf("open decision store: %w", err)
	}

	provider, err := llm.New(providerFlag, modelFlag, llmSettings(st))
	if err != nil {
		st.Close()
		return nil, err
	}

	busCfg := bus.DefaultConfig()
	busCfg.URL = config.GetNATSURL()
	b, err := bus.Connect(busCfg)
	if err != nil {
		// The bus is optional: run without events rather than refuse to start.
		slog.Warn("nats unavailable, decision events disabled", "url", busCfg.URL, "error", err)
		b = &bus.Bus{}
	}

	servers, err := mcp.LoadServersOrDefault(serversFlag, config.GetWeatherMCPURL(), config.GetHAMCPURL())
	if err != nil {
		b.Close()
		st.Close()
		return nil, err
	}

	var weather, thermostat *mcp.Client
	for _, def := range servers {
		switch def.Name {
		case "weather-mcp":
			weather = mcp.NewClient(def.URL, def.Name)
		case "homeassistant-mcp":
			thermostat = mcp.NewClient(def.URL, def.Name)
		}
	}
	if weather == nil || thermostat == nil {
		b.Close()
		st.Close()
		return nil, fmt.Errorf("servers file must define weather-mcp and homeassistant-mcp")
	}

	return &runtime{
		store:    st,
		bus:      b,
		provider: provider,
		agent:    agent.New(weather, thermostat, provider, st, b),
	}, nil
}

// llmSettings merges the dashboard-editable settings table with the config
// file. Stored settings win so runtime changes take effect without restarts.
func llmSettings(st *store.Store) llm.Settings {
	settings := llm.Settings{}

	cfg := config.Get()
	if cfg.DefaultProvider != "" {
		settings["llm_provider"] = cfg.DefaultProvider
	}
	if cfg.DefaultModel != "" {
		settings["llm_model"] = cfg.DefaultModel
	}
	if v := config.GetOpenAIKey(); v != "" {
		settings["openai_api_key"] = v
	}
	if v := config.GetAnthropicKey(); v != "" {
		settings["anthropic_api_key"] = v
	}
	if v := config.GetGoogleKey(); v != "" {
		settings["google_api_key"] = v
	}

	for k, v := range st.SettingsMap() {
		settings[k] = v
	}
	return settings
}
