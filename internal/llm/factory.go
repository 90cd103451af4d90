package llm

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout is the request timeout for model inference calls.
const DefaultTimeout = 120 * time.Second

// DefaultModels maps each provider id to the model used when none is configured.
var DefaultModels = map[string]string{
	"ollama":    "llama3.1:8b",
	"openai":    "gpt-4o",
	"anthropic": "claude-3-5-sonnet-20241022",
	"google":    "gemini-2.0-flash",
}

// SuggestedModels lists known-good models per provider.
var SuggestedModels = map[string][]string{
	"ollama":    {"llama3.1:8b", "llama3.1:70b", "ministral-3:14b", "qwen2.5:14b", "mistral:7b"},
	"openai":    {"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-3.5-turbo"},
	"anthropic": {"claude-3-5-sonnet-20241022", "claude-3-5-haiku-20241022", "claude-3-opus-20240229"},
	"google":    {"gemini-2.0-flash", "gemini-1.5-pro", "gemini-1.5-flash"},
}

// providerAliases maps marketing names to canonical provider ids.
var providerAliases = map[string]string{
	"chatgpt": "openai",
	"gpt":     "openai",
	"claude":  "anthropic",
	"gemini":  "google",
}

var displayNames = map[string]string{
	"ollama":    "Ollama (Local)",
	"openai":    "OpenAI",
	"anthropic": "Anthropic Claude",
	"google":    "Google Gemini",
}

// Settings supplies stored configuration values during provider resolution.
// Each value falls back to the environment and then to a built-in default.
type Settings map[string]string

// Get returns the stored value for key, or empty string when unset.
func (s Settings) Get(key string) string {
	if s == nil {
		return ""
	}
	return s[key]
}

// Config carries the resolved connection settings for one provider instance.
type Config struct {
	Model   string
	APIKey  string
	BaseURL string // local inference endpoint, unused by hosted APIs
	Timeout time.Duration
}

// Constructor builds a provider from resolved configuration.
type Constructor func(cfg Config) Provider

var (
	registryMu   sync.Mutex
	registry     = map[string]Constructor{}
	builtinsOnce sync.Once
)

// Register adds a provider constructor under name. Later registrations for
// the same name overwrite earlier ones.
func Register(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = ctor
}

// registerBuiltins populates the registry with the built-in backends on
// first use. All four speak plain HTTP, so none are conditional.
func registerBuiltins() {
	builtinsOnce.Do(func() {
		Register("ollama", func(cfg Config) Provider { return NewOllama(cfg.Model, cfg.BaseURL, cfg.Timeout) })
		Register("openai", func(cfg Config) Provider { return NewOpenAI(cfg.APIKey, cfg.Model, cfg.Timeout) })
		Register("anthropic", func(cfg Config) Provider { return NewAnthropic(cfg.APIKey, cfg.Model, cfg.Timeout) })
		Register("google", func(cfg Config) Provider { return NewGoogle(cfg.APIKey, cfg.Model, cfg.Timeout) })
	})
}

func registeredNames() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveProviderType applies the provider resolution chain: explicit
// argument, then settings["llm_provider"], then the LLM_PROVIDER environment
// variable, then "ollama". Aliases are applied before lookup.
func ResolveProviderType(explicit string, settings Settings) string {
	name := explicit
	if name == "" {
		name = settings.Get("llm_provider")
	}
	if name == "" {
		name = os.Getenv("LLM_PROVIDER")
	}
	if name == "" {
		name = "ollama"
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := providerAliases[name]; ok {
		name = canonical
	}
	return name
}

// New resolves and constructs a provider. Model, API key, and timeout each
// follow the same precedence independently: explicit argument, stored
// settings, environment variable, per-provider default.
func New(providerType, model string, settings Settings) (Provider, error) {
	registerBuiltins()

	name := ResolveProviderType(providerType, settings)

	registryMu.Lock()
	ctor, ok := registry[name]
	registryMu.Unlock()
	if !ok {
		return nil, &Error{
			Kind:    ErrUnknownProvider,
			Message: fmt.Sprintf("unknown provider %q (available: %s)", name, strings.Join(registeredNames(), ", ")),
		}
	}

	cfg := Config{
		Model:   resolveModel(name, model, settings),
		APIKey:  resolveAPIKey(name, settings),
		Timeout: resolveTimeout(settings),
	}
	if name == "ollama" {
		cfg.BaseURL = resolveOllamaURL(settings)
	}

	return ctor(cfg), nil
}

func resolveModel(provider, explicit string, settings Settings) string {
	if explicit != "" {
		return explicit
	}
	if v := settings.Get("llm_model"); v != "" {
		return v
	}
	if v := os.Getenv(strings.ToUpper(provider) + "_MODEL"); v != "" {
		return v
	}
	return DefaultModels[provider]
}

func resolveAPIKey(provider string, settings Settings) string {
	if v := settings.Get(provider + "_api_key"); v != "" {
		return v
	}
	return os.Getenv(strings.ToUpper(provider) + "_API_KEY")
}

func resolveTimeout(settings Settings) time.Duration {
	raw := settings.Get("llm_timeout")
	if raw == "" {
		raw = os.Getenv("LLM_TIMEOUT")
	}
	if raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return DefaultTimeout
}

func resolveOllamaURL(settings Settings) string {
	if v := settings.Get("ollama_url"); v != "" {
		return v
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		return v
	}
	return defaultOllamaURL
}

// ProviderInfo describes a registered provider for display.
type ProviderInfo struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	DefaultModel    string   `json:"default_model"`
	SuggestedModels []string `json:"suggested_models"`
}

// AvailableProviders lists the registered providers in id order.
func AvailableProviders() []ProviderInfo {
	registerBuiltins()
	infos := make([]ProviderInfo, 0, 4)
	for _, id := range registeredNames() {
		name := displayNames[id]
		if name == "" {
			name = id
		}
		infos = append(infos, ProviderInfo{
			ID:              id,
			Name:            name,
			DefaultModel:    DefaultModels[id],
			SuggestedModels: SuggestedModels[id],
		})
	}
	return infos
}
