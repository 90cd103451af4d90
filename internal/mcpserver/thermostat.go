package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// ThermostatConfig connects the thermostat server to Home Assistant.
type ThermostatConfig struct {
	BaseURL  string
	Token    string
	EntityID string
	MinTemp  float64
	MaxTemp  float64
}

// ThermostatConfigFromEnv reads HA_URL, HA_TOKEN, HA_ENTITY_ID, MIN_TEMP,
// and MAX_TEMP. A missing token is a startup error.
func ThermostatConfigFromEnv() (ThermostatConfig, error) {
	cfg := ThermostatConfig{
		BaseURL:  "http://10.0.20.5:8123",
		EntityID: "climate.my_ecobee",
		MinTemp:  17,
		MaxTemp:  23,
	}
	if v := os.Getenv("HA_URL"); v != "" {
		cfg.BaseURL = v
	}
	cfg.Token = os.Getenv("HA_TOKEN")
	if cfg.Token == "" {
		return cfg, fmt.Errorf("HA_TOKEN environment variable is required")
	}
	if v := os.Getenv("HA_ENTITY_ID"); v != "" {
		cfg.EntityID = v
	}
	if v := os.Getenv("MIN_TEMP"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MinTemp = f
		}
	}
	if v := os.Getenv("MAX_TEMP"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MaxTemp = f
		}
	}
	return cfg, nil
}

// sanitizeLogData scrubs secrets from values headed for the log: map keys
// that smell like credentials, bearer-prefixed strings, and anything long
// enough to be a token.
func sanitizeLogData(data any) any {
	switch v := data.(type) {
	case map[string]any:
		sanitized := make(map[string]any, len(v))
		for key, value := range v {
			if sensitiveKey(key) {
				sanitized[key] = "[REDACTED]"
			} else {
				sanitized[key] = sanitizeLogData(value)
			}
		}
		return sanitized
	case []any:
		sanitized := make([]any, len(v))
		for i, item := range v {
			sanitized[i] = sanitizeLogData(item)
		}
		return sanitized
	case string:
		if strings.HasPrefix(v, "Bearer ") || len(v) > 100 {
			return "[REDACTED]"
		}
		return v
	}
	return data
}

func sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range []string{"token", "password", "secret", "auth", "key", "bearer"} {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// statusCodeError carries an HTTP error status from Home Assistant.
type statusCodeError struct{ code int }

func (e *statusCodeError) Error() string { return fmt.Sprintf("HTTP %d", e.code) }

type haClient struct {
	cfg    ThermostatConfig
	client *http.Client
	sleep  func(time.Duration)

	// settleDelay is the pause between writing a setpoint and reading it
	// back for verification.
	settleDelay time.Duration
}

func newHAClient(cfg ThermostatConfig) *haClient {
	return &haClient{
		cfg:         cfg,
		client:      &http.Client{Timeout: 10 * time.Second},
		sleep:       time.Sleep,
		settleDelay: time.Second,
	}
}

// do issues a request with the retry policy shared by all Home Assistant
// calls: connection failures retried with backoff, error statuses final.
func (c *haClient) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, err
		}
	}

	backoff := upstreamBackoffBase
	var lastErr error
	for attempt := 1; attempt <= upstreamAttempts; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = &connectionError{err: err}
			if attempt < upstreamAttempts {
				slog.Warn("home assistant request failed, retrying",
					"attempt", attempt, "backoff", backoff, "error", err)
				c.sleep(backoff)
				backoff *= 2
				if backoff > upstreamBackoffCap {
					backoff = upstreamBackoffCap
				}
			}
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &statusCodeError{code: resp.StatusCode}
		}
		return data, nil
	}
	return nil, lastErr
}

func (c *haClient) entityState(ctx context.Context) (map[string]any, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/states/"+c.cfg.EntityID, nil)
	if err != nil {
		return nil, err
	}
	var state map[string]any
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return state, nil
}

func (c *haClient) callService(ctx context.Context, domain, service string, data map[string]any) error {
	_, err := c.do(ctx, http.MethodPost, "/api/services/"+domain+"/"+service, data)
	return err
}

// haErrorText maps a failed Home Assistant call onto the text payload the
// caller sees.
func haErrorText(err error) string {
	if isConnectionError(err) {
		return fmt.Sprintf("Connection error: %v", err)
	}
	if se, ok := err.(*statusCodeError); ok {
		return fmt.Sprintf("Home Assistant API error: %d", se.code)
	}
	return fmt.Sprintf("Error: %v", err)
}

type thermostatStateTool struct {
	client *haClient
}

func (t *thermostatStateTool) Definition() Definition {
	return Definition{
		Name:        "get_thermostat_state",
		Description: fmt.Sprintf("Get current state of thermostat (%s)", t.client.cfg.EntityID),
		InputSchema: objectSchema(nil),
	}
}

func (t *thermostatStateTool) Execute(ctx context.Context, args map[string]any) string {
	state, err := t.client.entityState(ctx)
	if err != nil {
		return haErrorText(err)
	}

	attrs, _ := state["attributes"].(map[string]any)
	result := map[string]any{
		"entity_id":           t.client.cfg.EntityID,
		"state":               state["state"],
		"current_temperature": attrs["current_temperature"],
		"target_temperature":  attrs["temperature"],
		"target_temp_high":    attrs["target_temp_high"],
		"target_temp_low":     attrs["target_temp_low"],
		"hvac_mode":           state["state"],
		"hvac_action":         attrs["hvac_action"],
		"preset_mode":         attrs["preset_mode"],
		"humidity":            attrs["current_humidity"],
		"fan_mode":            attrs["fan_mode"],
		"available_modes":     attrs["hvac_modes"],
		"available_presets":   attrs["preset_modes"],
	}
	return marshalResult(result)
}

type setTemperatureTool struct {
	client *haClient
}

func (t *setTemperatureTool) Definition() Definition {
	return Definition{
		Name:        "set_thermostat_temperature",
		Description: "Set the target temperature of the thermostat",
		InputSchema: objectSchema(map[string]*JSONSchema{
			"temperature": {
				Type:        "number",
				Description: "Target temperature in Celsius",
			},
		}, "temperature"),
	}
}

func (t *setTemperatureTool) Execute(ctx context.Context, args map[string]any) string {
	temperature, ok := args["temperature"].(float64)
	if !ok {
		return "Error: temperature is required"
	}

	cfg := t.client.cfg
	if temperature < cfg.MinTemp || temperature > cfg.MaxTemp {
		return fmt.Sprintf("Error: Temperature must be between %g°C and %g°C", cfg.MinTemp, cfg.MaxTemp)
	}

	err := t.client.callService(ctx, "climate", "set_temperature", map[string]any{
		"entity_id":   cfg.EntityID,
		"temperature": temperature,
	})
	if err != nil {
		return haErrorText(err)
	}

	// Read the setpoint back once the thermostat has had a moment to apply it.
	t.client.sleep(t.client.settleDelay)
	var actual any
	state, err := t.client.entityState(ctx)
	if err == nil {
		if attrs, ok := state["attributes"].(map[string]any); ok {
			actual = attrs["temperature"]
		}
	}
	verified := actual == temperature
	if !verified {
		slog.Warn("temperature verification failed", "requested", temperature, "actual", actual)
	}

	return marshalResult(map[string]any{
		"success":            true,
		"action":             "set_temperature",
		"target_temperature": temperature,
		"actual_temperature": actual,
		"verified":           verified,
		"entity_id":          cfg.EntityID,
	})
}

type setHVACModeTool struct {
	client *haClient
}

func (t *setHVACModeTool) Definition() Definition {
	return Definition{
		Name:        "set_hvac_mode",
		Description: "Set the HVAC mode (heat, cool, auto, off)",
		InputSchema: objectSchema(map[string]*JSONSchema{
			"hvac_mode": {
				Type:        "string",
				Description: "HVAC mode to set",
				Enum:        []string{"heat", "cool", "heat_cool", "auto", "off"},
			},
		}, "hvac_mode"),
	}
}

func (t *setHVACModeTool) Execute(ctx context.Context, args map[string]any) string {
	mode, ok := args["hvac_mode"].(string)
	if !ok || mode == "" {
		return "Error: hvac_mode is required"
	}

	err := t.client.callService(ctx, "climate", "set_hvac_mode", map[string]any{
		"entity_id": t.client.cfg.EntityID,
		"hvac_mode": mode,
	})
	if err != nil {
		return haErrorText(err)
	}

	return marshalResult(map[string]any{
		"success":   true,
		"action":    "set_hvac_mode",
		"hvac_mode": mode,
		"entity_id": t.client.cfg.EntityID,
	})
}

type setPresetModeTool struct {
	client *haClient
}

func (t *setPresetModeTool) Definition() Definition {
	return Definition{
		Name:        "set_preset_mode",
		Description: "Set the preset mode (home, away, sleep)",
		InputSchema: objectSchema(map[string]*JSONSchema{
			"preset_mode": {
				Type:        "string",
				Description: "Preset mode to set",
				Enum:        []string{"home", "away", "sleep"},
			},
		}, "preset_mode"),
	}
}

func (t *setPresetModeTool) Execute(ctx context.Context, args map[string]any) string {
	preset, ok := args["preset_mode"].(string)
	if !ok || preset == "" {
		return "Error: preset_mode is required"
	}

	err := t.client.callService(ctx, "climate", "set_preset_mode", map[string]any{
		"entity_id":   t.client.cfg.EntityID,
		"preset_mode": preset,
	})
	if err != nil {
		return haErrorText(err)
	}

	return marshalResult(map[string]any{
		"success":     true,
		"action":      "set_preset_mode",
		"preset_mode": preset,
		"entity_id":   t.client.cfg.EntityID,
	})
}

// NewThermostatServer builds the Home Assistant tool server.
func NewThermostatServer(cfg ThermostatConfig) *Server {
	client := newHAClient(cfg)
	reg := NewRegistry()
	reg.Register(&thermostatStateTool{client: client})
	reg.Register(&setTemperatureTool{client: client})
	reg.Register(&setHVACModeTool{client: client})
	reg.Register(&setPresetModeTool{client: client})

	srv := New("homeassistant-mcp", "0.1.0", reg)
	srv.sanitize = sanitizeLogData
	srv.healthFields = func(ctx context.Context) map[string]any {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		status := "disconnected"
		req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, cfg.BaseURL+"/api/", nil)
		if err == nil {
			req.Header.Set("Authorization", "Bearer "+cfg.Token)
			if resp, err := client.client.Do(req); err == nil {
				if resp.StatusCode == http.StatusOK {
					status = "connected"
				} else {
					status = "error"
				}
				resp.Body.Close()
			}
		}
		return map[string]any{
			"ha_status": status,
			"entity_id": cfg.EntityID,
		}
	}
	return srv
}
