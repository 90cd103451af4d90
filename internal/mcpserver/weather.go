package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

const openMeteoURL = "https://api.open-meteo.com/v1/forecast"

const (
	upstreamAttempts    = 3
	upstreamBackoffBase = time.Second
	upstreamBackoffCap  = 10 * time.Second
)

// WeatherConfig locates the forecast point.
type WeatherConfig struct {
	Latitude  float64
	Longitude float64
	Timezone  string
	BaseURL   string
}

// WeatherConfigFromEnv reads LATITUDE, LONGITUDE, and TIMEZONE, defaulting
// to the Ottawa area.
func WeatherConfigFromEnv() WeatherConfig {
	cfg := WeatherConfig{
		Latitude:  45.35,
		Longitude: -75.75,
		Timezone:  "America/Toronto",
		BaseURL:   openMeteoURL,
	}
	if v := os.Getenv("LATITUDE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Latitude = f
		}
	}
	if v := os.Getenv("LONGITUDE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Longitude = f
		}
	}
	if v := os.Getenv("TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
	return cfg
}

// connectionError marks transport-level failures, the only kind the fetch
// retry loop retries.
type connectionError struct{ err error }

func (e *connectionError) Error() string { return e.err.Error() }
func (e *connectionError) Unwrap() error { return e.err }

func isConnectionError(err error) bool {
	_, ok := err.(*connectionError)
	return ok
}

type weatherClient struct {
	cfg    WeatherConfig
	client *http.Client
	sleep  func(time.Duration)
}

func newWeatherClient(cfg WeatherConfig) *weatherClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = openMeteoURL
	}
	return &weatherClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		sleep:  time.Sleep,
	}
}

// fetch pulls current plus hourly fields from Open-Meteo. Connection
// failures are retried with exponential backoff; HTTP error statuses are
// returned as-is.
func (c *weatherClient) fetch(ctx context.Context, hours int) (map[string]any, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(c.cfg.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(c.cfg.Longitude, 'f', -1, 64))
	q.Set("timezone", c.cfg.Timezone)
	q.Set("current", "temperature_2m,relative_humidity_2m,apparent_temperature,weather_code,wind_speed_10m")
	q.Set("hourly", "temperature_2m,apparent_temperature,precipitation_probability,weather_code")
	q.Set("forecast_hours", strconv.Itoa(hours))

	reqURL := c.cfg.BaseURL + "?" + q.Encode()

	backoff := upstreamBackoffBase
	var lastErr error
	for attempt := 1; attempt <= upstreamAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = &connectionError{err: err}
			if attempt < upstreamAttempts {
				slog.Warn("weather fetch failed, retrying",
					"attempt", attempt, "backoff", backoff, "error", err)
				c.sleep(backoff)
				backoff *= 2
				if backoff > upstreamBackoffCap {
					backoff = upstreamBackoffCap
				}
			}
			continue
		}

		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("open-meteo returned HTTP %d", resp.StatusCode)
		}

		var data map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
			return nil, fmt.Errorf("decode open-meteo response: %w", err)
		}
		return data, nil
	}
	return nil, lastErr
}

var weatherCodes = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Foggy",
	48: "Depositing rime fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	71: "Slight snow",
	73: "Moderate snow",
	75: "Heavy snow",
	77: "Snow grains",
	80: "Slight rain showers",
	81: "Moderate rain showers",
	82: "Violent rain showers",
	85: "Slight snow showers",
	86: "Heavy snow showers",
	95: "Thunderstorm",
	96: "Thunderstorm with slight hail",
	99: "Thunderstorm with heavy hail",
}

// weatherConditions maps a WMO weather code to a description.
func weatherConditions(code any) string {
	n, ok := code.(float64)
	if !ok {
		return "Unknown"
	}
	if desc, ok := weatherCodes[int(n)]; ok {
		return desc
	}
	return "Unknown"
}

type currentWeatherTool struct {
	client *weatherClient
}

func (t *currentWeatherTool) Definition() Definition {
	return Definition{
		Name:        "get_current_weather",
		Description: "Get current weather conditions for Ottawa area",
		InputSchema: objectSchema(nil),
	}
}

func (t *currentWeatherTool) Execute(ctx context.Context, args map[string]any) string {
	data, err := t.client.fetch(ctx, 1)
	if err != nil {
		return fetchErrorText(err)
	}

	current, _ := data["current"].(map[string]any)
	result := map[string]any{
		"temperature_c":    current["temperature_2m"],
		"feels_like_c":     current["apparent_temperature"],
		"humidity_percent": current["relative_humidity_2m"],
		"wind_speed_kmh":   current["wind_speed_10m"],
		"conditions":       weatherConditions(current["weather_code"]),
		"timestamp":        current["time"],
		"location": map[string]any{
			"latitude":  t.client.cfg.Latitude,
			"longitude": t.client.cfg.Longitude,
		},
	}
	return marshalResult(result)
}

type forecastTool struct {
	client *weatherClient
}

func (t *forecastTool) Definition() Definition {
	return Definition{
		Name:        "get_forecast",
		Description: "Get hourly weather forecast for Ottawa area",
		InputSchema: objectSchema(map[string]*JSONSchema{
			"hours": {
				Type:        "integer",
				Description: "Number of hours to forecast (1-48)",
				Default:     12,
				Minimum:     floatPtr(1),
				Maximum:     floatPtr(48),
			},
		}),
	}
}

func (t *forecastTool) Execute(ctx context.Context, args map[string]any) string {
	hours := coerceHours(args["hours"])

	data, err := t.client.fetch(ctx, hours)
	if err != nil {
		return fetchErrorText(err)
	}

	hourly, _ := data["hourly"].(map[string]any)
	times := anySlice(hourly["time"])
	temps := anySlice(hourly["temperature_2m"])
	feels := anySlice(hourly["apparent_temperature"])
	precip := anySlice(hourly["precipitation_probability"])
	codes := anySlice(hourly["weather_code"])

	n := hours
	if len(times) < n {
		n = len(times)
	}
	forecast := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		entry := map[string]any{
			"time":                      times[i],
			"temperature_c":             indexOrNil(temps, i),
			"feels_like_c":              indexOrNil(feels, i),
			"precipitation_probability": indexOrNil(precip, i),
			"conditions":                "Unknown",
		}
		if i < len(codes) {
			entry["conditions"] = weatherConditions(codes[i])
		}
		forecast = append(forecast, entry)
	}

	return marshalResult(map[string]any{
		"location": map[string]any{
			"latitude":  t.client.cfg.Latitude,
			"longitude": t.client.cfg.Longitude,
		},
		"forecast_hours": hours,
		"forecast":       forecast,
	})
}

// coerceHours normalizes the hours argument. Models pass lists, strings,
// and floats where an integer belongs; anything unusable falls back to 12,
// and the result is clamped to 1-48.
func coerceHours(v any) int {
	hours := 12
	switch h := v.(type) {
	case nil:
	case float64:
		hours = int(h)
	case int:
		hours = h
	case string:
		if n, err := strconv.Atoi(h); err == nil {
			hours = n
		} else {
			slog.Warn("could not parse hours argument, using default", "value", h)
		}
	default:
		slog.Warn("invalid type for hours argument, using default", "value", v)
	}
	if hours < 1 {
		hours = 1
	}
	if hours > 48 {
		hours = 48
	}
	return hours
}

func anySlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func indexOrNil(s []any, i int) any {
	if i < len(s) {
		return s[i]
	}
	return nil
}

func fetchErrorText(err error) string {
	if isConnectionError(err) {
		return fmt.Sprintf("Connection error: %v", err)
	}
	return fmt.Sprintf("Error: %v", err)
}

func marshalResult(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return string(data)
}

// NewWeatherServer builds the weather tool server.
func NewWeatherServer(cfg WeatherConfig) *Server {
	client := newWeatherClient(cfg)
	reg := NewRegistry()
	reg.Register(&currentWeatherTool{client: client})
	reg.Register(&forecastTool{client: client})
	return New("weather-mcp", "0.1.0", reg)
}
