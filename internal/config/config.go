// Package config manages the persisted agent configuration under
// ~/.config/climate-agent/config.json, with environment overrides for
// deployment settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	// API Keys
	OpenAIKey    string `json:"openai_api_key,omitempty"`
	AnthropicKey string `json:"anthropic_api_key,omitempty"`
	GoogleKey    string `json:"google_api_key,omitempty"`

	// LLM defaults
	DefaultProvider string `json:"default_provider,omitempty"`
	DefaultModel    string `json:"default_model,omitempty"`

	// Service endpoints
	WeatherMCPURL string `json:"weather_mcp_url,omitempty"`
	HAMCPURL      string `json:"ha_mcp_url,omitempty"`
	NATSURL       string `json:"nats_url,omitempty"`

	// Daemon settings
	DBPath               string `json:"db_path,omitempty"`
	APIAddr              string `json:"api_addr,omitempty"`
	CheckIntervalMinutes int    `json:"check_interval_minutes,omitempty"`
}

var (
	configDir  string
	configFile string
	current    *Config
)

func init() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	configDir = filepath.Join(home, ".config", "climate-agent")
	configFile = filepath.Join(configDir, "config.json")
}

// Load reads the config from disk
func Load() (*Config, error) {
	if current != nil {
		return current, nil
	}

	current = &Config{}

	data, err := os.ReadFile(configFile)
	if err != nil {
		if os.IsNotExist(err) {
			return current, nil // Return default config
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, current); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return current, nil
}

// Save writes the config to disk
func Save(cfg *Config) error {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	current = cfg
	return nil
}

// Get returns the current config, loading if necessary
func Get() *Config {
	if current == nil {
		_, _ = Load()
	}
	return current
}

// Set updates a config value by key
func Set(key, value string) error {
	cfg, err := Load()
	if err != nil {
		return err
	}

	switch key {
	case "openai_api_key", "openai":
		cfg.OpenAIKey = value
	case "anthropic_api_key", "anthropic":
		cfg.AnthropicKey = value
	case "google_api_key", "google":
		cfg.GoogleKey = value
	case "default_provider", "provider":
		cfg.DefaultProvider = value
	case "default_model", "model":
		cfg.DefaultModel = value
	case "weather_mcp_url":
		cfg.WeatherMCPURL = value
	case "ha_mcp_url":
		cfg.HAMCPURL = value
	case "nats_url":
		cfg.NATSURL = value
	case "db_path":
		cfg.DBPath = value
	case "api_addr":
		cfg.APIAddr = value
	case "check_interval_minutes":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("check_interval_minutes must be an integer: %q", value)
		}
		cfg.CheckIntervalMinutes = n
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}

	return Save(cfg)
}

// Delete removes a config value
func Delete(key string) error {
	cfg, err := Load()
	if err != nil {
		return err
	}

	switch key {
	case "openai_api_key", "openai":
		cfg.OpenAIKey = ""
	case "anthropic_api_key", "anthropic":
		cfg.AnthropicKey = ""
	case "google_api_key", "google":
		cfg.GoogleKey = ""
	case "default_provider", "provider":
		cfg.DefaultProvider = ""
	case "default_model", "model":
		cfg.DefaultModel = ""
	case "weather_mcp_url":
		cfg.WeatherMCPURL = ""
	case "ha_mcp_url":
		cfg.HAMCPURL = ""
	case "nats_url":
		cfg.NATSURL = ""
	case "db_path":
		cfg.DBPath = ""
	case "api_addr":
		cfg.APIAddr = ""
	case "check_interval_minutes":
		cfg.CheckIntervalMinutes = 0
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}

	return Save(cfg)
}

// GetOpenAIKey returns the OpenAI API key (config or env)
func GetOpenAIKey() string {
	cfg := Get()
	if cfg.OpenAIKey != "" {
		return cfg.OpenAIKey
	}
	return os.Getenv("OPENAI_API_KEY")
}

// GetAnthropicKey returns the Anthropic API key (config or env)
func GetAnthropicKey() string {
	cfg := Get()
	if cfg.AnthropicKey != "" {
		return cfg.AnthropicKey
	}
	return os.Getenv("ANTHROPIC_API_KEY")
}

// GetGoogleKey returns the Google API key (config or env). GEMINI_API_KEY
// is accepted as a legacy fallback.
func GetGoogleKey() string {
	cfg := Get()
	if cfg.GoogleKey != "" {
		return cfg.GoogleKey
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		return v
	}
	return os.Getenv("GEMINI_API_KEY")
}

// GetWeatherMCPURL returns the weather server URL (config, env, or default)
func GetWeatherMCPURL() string {
	cfg := Get()
	if cfg.WeatherMCPURL != "" {
		return cfg.WeatherMCPURL
	}
	if v := os.Getenv("WEATHER_MCP_URL"); v != "" {
		return v
	}
	return "http://weather-mcp:8080"
}

// GetHAMCPURL returns the thermostat server URL (config, env, or default)
func GetHAMCPURL() string {
	cfg := Get()
	if cfg.HAMCPURL != "" {
		return cfg.HAMCPURL
	}
	if v := os.Getenv("HA_MCP_URL"); v != "" {
		return v
	}
	return "http://homeassistant-mcp:8080"
}

// GetNATSURL returns the NATS URL (config or env). Empty disables the bus.
func GetNATSURL() string {
	cfg := Get()
	if cfg.NATSURL != "" {
		return cfg.NATSURL
	}
	return os.Getenv("NATS_URL")
}

// GetDBPath returns the decisions database path (config, env, or default)
func GetDBPath() string {
	cfg := Get()
	if cfg.DBPath != "" {
		return cfg.DBPath
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		return v
	}
	return filepath.Join(configDir, "decisions.db")
}

// GetAPIAddr returns the HTTP API listen address (config, env, or default)
func GetAPIAddr() string {
	cfg := Get()
	if cfg.APIAddr != "" {
		return cfg.APIAddr
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		return v
	}
	return ":8080"
}

// GetCheckInterval returns the evaluation interval in minutes (config, env,
// or the 30 minute default)
func GetCheckInterval() int {
	cfg := Get()
	if cfg.CheckIntervalMinutes > 0 {
		return cfg.CheckIntervalMinutes
	}
	if v := os.Getenv("CHECK_INTERVAL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 30
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	return configFile
}

// ListKeys returns configured values, with secrets masked for display
func ListKeys() map[string]string {
	cfg := Get()
	result := make(map[string]string)

	if cfg.OpenAIKey != "" {
		result["openai_api_key"] = maskKey(cfg.OpenAIKey)
	} else if os.Getenv("OPENAI_API_KEY") != "" {
		result["openai_api_key"] = maskKey(os.Getenv("OPENAI_API_KEY")) + " (env)"
	}

	if cfg.AnthropicKey != "" {
		result["anthropic_api_key"] = maskKey(cfg.AnthropicKey)
	} else if os.Getenv("ANTHROPIC_API_KEY") != "" {
		result["anthropic_api_key"] = maskKey(os.Getenv("ANTHROPIC_API_KEY")) + " (env)"
	}

	if cfg.GoogleKey != "" {
		result["google_api_key"] = maskKey(cfg.GoogleKey)
	} else if key := GetGoogleKey(); key != "" {
		result["google_api_key"] = maskKey(key) + " (env)"
	}

	if cfg.DefaultProvider != "" {
		result["default_provider"] = cfg.DefaultProvider
	}
	if cfg.DefaultModel != "" {
		result["default_model"] = cfg.DefaultModel
	}
	if cfg.WeatherMCPURL != "" {
		result["weather_mcp_url"] = cfg.WeatherMCPURL
	}
	if cfg.HAMCPURL != "" {
		result["ha_mcp_url"] = cfg.HAMCPURL
	}
	if cfg.NATSURL != "" {
		result["nats_url"] = cfg.NATSURL
	}
	if cfg.DBPath != "" {
		result["db_path"] = cfg.DBPath
	}
	if cfg.APIAddr != "" {
		result["api_addr"] = cfg.APIAddr
	}
	if cfg.CheckIntervalMinutes > 0 {
		result["check_interval_minutes"] = strconv.Itoa(cfg.CheckIntervalMinutes)
	}

	return result
}

// maskKey shows only first 4 and last 4 characters
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
