// Package api exposes the agent's JSON API: decision history, stats,
// editable prompts and settings, and the chat endpoint.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/humac/mcp-iot-poc/internal/agent"
	"github.com/humac/mcp-iot-poc/internal/llm"
	"github.com/humac/mcp-iot-poc/internal/store"
)

// Server serves the HTTP API for one agent and its store.
type Server struct {
	agent *agent.Agent
	store *store.Store
}

// New creates the API server.
func New(a *agent.Agent, st *store.Store) *Server {
	return &Server{agent: a, store: st}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/decisions", s.handleDecisions)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/prompts", s.handlePrompts)
	mux.HandleFunc("POST /api/prompts/{key}", s.handleUpdatePrompt)
	mux.HandleFunc("GET /api/settings", s.handleSettings)
	mux.HandleFunc("POST /api/settings/{key}", s.handleUpdateSetting)
	mux.HandleFunc("GET /api/providers", s.handleProviders)
	mux.HandleFunc("POST /api/chat/send", s.handleChatSend)
	return mux
}

// ListenAndServe runs the API until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("api server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"status": "healthy", "service": "climate-agent"})
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	decisions, err := s.store.RecentDecisions(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, decisions)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handlePrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := s.store.AllPrompts()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, prompts)
}

func (s *Server) handleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Content == "" {
		writeJSON(w, map[string]any{"error": "Content required"})
		return
	}
	if err := s.store.SetPrompt(key, body.Content); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("prompt updated", "key", key)
	writeJSON(w, map[string]any{"status": "success", "key": key})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.AllSettings()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, settings)
}

func (s *Server) handleUpdateSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var body struct {
		Value *string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Value == nil {
		writeJSON(w, map[string]any{"error": "Value required"})
		return
	}
	if err := s.store.SetSetting(key, *body.Value); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("setting updated", "key", key)
	writeJSON(w, map[string]any{"status": "success", "key": key})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	settings := s.store.SettingsMap()

	type providerStatus struct {
		llm.ProviderInfo
		Configured bool `json:"configured"`
	}

	providers := make([]providerStatus, 0, 4)
	for _, info := range llm.AvailableProviders() {
		// Local inference needs no key; hosted APIs need one from the
		// settings table or the environment.
		configured := info.ID == "ollama"
		if !configured {
			key := settings[info.ID+"_api_key"]
			if key == "" {
				key = os.Getenv(strings.ToUpper(info.ID) + "_API_KEY")
			}
			configured = key != ""
		}
		providers = append(providers, providerStatus{ProviderInfo: info, Configured: configured})
	}

	writeJSON(w, map[string]any{
		"active":    llm.ResolveProviderType("", llm.Settings(settings)),
		"providers": providers,
	})
}

func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, map[string]any{"error": "Message required"})
		return
	}
	message := strings.TrimSpace(body.Message)
	if message == "" {
		writeJSON(w, map[string]any{"error": "Message required"})
		return
	}

	// Initialize on demand, naming whichever components fail to answer.
	if !s.agent.Initialized() {
		slog.Info("agent not initialized, attempting initialization")
		if failures := s.agent.HealthFailures(r.Context()); len(failures) > 0 {
			writeJSON(w, map[string]any{
				"error": fmt.Sprintf("Agent cannot initialize. Issues: %s", strings.Join(failures, "; ")),
			})
			return
		}
		if !s.agent.Initialize(r.Context()) {
			writeJSON(w, map[string]any{
				"error": "Agent initialization failed despite healthy services. Check agent logs.",
			})
			return
		}
	}

	result, err := s.agent.Chat(r.Context(), message)
	if err != nil {
		slog.Error("chat failed", "error", err)
		writeJSON(w, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, map[string]any{
		"response":   result.Response,
		"tool_calls": result.ToolCalls,
	})
}

func writeError(w http.ResponseWriter, err error) {
	slog.Error("api request failed", "error", err)
	writeJSON(w, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
