package config

import (
	"os"
	"path/filepath"
	"testing"
)

// useTempConfig points the package at a throwaway config file.
func useTempConfig(t *testing.T) {
	t.Helper()
	origDir, origFile, origCurrent := configDir, configFile, current
	configDir = t.TempDir()
	configFile = filepath.Join(configDir, "config.json")
	current = nil
	t.Cleanup(func() {
		configDir, configFile, current = origDir, origFile, origCurrent
	})
}

func TestSetGetDelete(t *testing.T) {
	useTempConfig(t)

	if err := Set("default_provider", "ollama"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := Set("weather_mcp_url", "http://localhost:8081"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := Set("check_interval_minutes", "15"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Reload from disk.
	current = nil
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultProvider != "ollama" {
		t.Errorf("default_provider = %q", cfg.DefaultProvider)
	}
	if cfg.WeatherMCPURL != "http://localhost:8081" {
		t.Errorf("weather_mcp_url = %q", cfg.WeatherMCPURL)
	}
	if cfg.CheckIntervalMinutes != 15 {
		t.Errorf("check_interval_minutes = %d", cfg.CheckIntervalMinutes)
	}

	if err := Delete("default_provider"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if Get().DefaultProvider != "" {
		t.Error("delete did not clear default_provider")
	}
}

func TestSetRejectsUnknownKey(t *testing.T) {
	useTempConfig(t)

	if err := Set("favorite_color", "blue"); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := Set("check_interval_minutes", "soon"); err == nil {
		t.Error("expected error for non-integer interval")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	useTempConfig(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultProvider != "" || cfg.DBPath != "" {
		t.Errorf("expected zero config, got %+v", cfg)
	}
}

func TestEnvFallbacks(t *testing.T) {
	useTempConfig(t)

	t.Setenv("WEATHER_MCP_URL", "http://weather.test:9000")
	t.Setenv("CHECK_INTERVAL_MINUTES", "10")
	t.Setenv("NATS_URL", "nats://broker:4222")

	if got := GetWeatherMCPURL(); got != "http://weather.test:9000" {
		t.Errorf("weather url = %q", got)
	}
	if got := GetCheckInterval(); got != 10 {
		t.Errorf("interval = %d", got)
	}
	if got := GetNATSURL(); got != "nats://broker:4222" {
		t.Errorf("nats url = %q", got)
	}

	// Config beats environment.
	if err := Set("weather_mcp_url", "http://from-config:8080"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := GetWeatherMCPURL(); got != "http://from-config:8080" {
		t.Errorf("weather url = %q", got)
	}
}

func TestDefaults(t *testing.T) {
	useTempConfig(t)
	os.Unsetenv("WEATHER_MCP_URL")
	os.Unsetenv("HA_MCP_URL")
	os.Unsetenv("CHECK_INTERVAL_MINUTES")
	os.Unsetenv("API_ADDR")

	if got := GetWeatherMCPURL(); got != "http://weather-mcp:8080" {
		t.Errorf("weather url = %q", got)
	}
	if got := GetHAMCPURL(); got != "http://homeassistant-mcp:8080" {
		t.Errorf("ha url = %q", got)
	}
	if got := GetCheckInterval(); got != 30 {
		t.Errorf("interval = %d", got)
	}
	if got := GetAPIAddr(); got != ":8080" {
		t.Errorf("api addr = %q", got)
	}
}

func TestMaskKey(t *testing.T) {
	if got := maskKey("sk-abcdefgh1234"); got != "sk-a...1234" {
		t.Errorf("maskKey = %q", got)
	}
	if got := maskKey("short"); got != "****" {
		t.Errorf("maskKey short = %q", got)
	}
}

func TestListKeysMasksSecrets(t *testing.T) {
	useTempConfig(t)

	if err := Set("anthropic_api_key", "sk-ant-12345678901234"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	keys := ListKeys()
	if keys["anthropic_api_key"] != "sk-a...1234" {
		t.Errorf("masked key = %q", keys["anthropic_api_key"])
	}
}

func TestGoogleKeyEnvResolution(t *testing.T) {
	useTempConfig(t)

	t.Run("GOOGLE_API_KEY wins", func(t *testing.T) {
		t.Setenv("GOOGLE_API_KEY", "g-key-primary-1234")
		t.Setenv("GEMINI_API_KEY", "g-key-legacy-5678")
		if got := GetGoogleKey(); got != "g-key-primary-1234" {
			t.Errorf("GetGoogleKey = %q", got)
		}
	})

	t.Run("GEMINI_API_KEY fallback", func(t *testing.T) {
		t.Setenv("GOOGLE_API_KEY", "")
		t.Setenv("GEMINI_API_KEY", "g-key-legacy-5678")
		if got := GetGoogleKey(); got != "g-key-legacy-5678" {
			t.Errorf("GetGoogleKey = %q", got)
		}
	})

	t.Run("ListKeys shows env key", func(t *testing.T) {
		t.Setenv("GOOGLE_API_KEY", "g-key-primary-1234")
		t.Setenv("GEMINI_API_KEY", "")
		keys := ListKeys()
		if keys["google_api_key"] != "g-ke...1234 (env)" {
			t.Errorf("google_api_key = %q", keys["google_api_key"])
		}
	})
}
