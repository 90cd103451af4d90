// Package mcpserver implements the JSON-RPC-over-HTTP tool servers: the
// Open-Meteo weather server and the Home Assistant thermostat server.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

const protocolVersion = "2024-11-05"

// Server exposes a tool registry over HTTP: JSON-RPC on POST /mcp and a
// health probe on GET /health.
type Server struct {
	name     string
	version  string
	registry *Registry

	// healthFields, when set, contributes extra fields to the /health
	// payload (upstream connectivity, entity ids).
	healthFields func(ctx context.Context) map[string]any

	// sanitize scrubs request params before they reach the log.
	sanitize func(any) any
}

// New creates a server over the given registry.
func New(name, version string, registry *Registry) *Server {
	return &Server{
		name:     name,
		version:  version,
		registry: registry,
		sanitize: func(v any) any { return v },
	}
}

// Name returns the advertised server name.
func (s *Server) Name() string { return s.name }

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /mcp", s.handleMCP)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status": "healthy",
		"server": s.name,
	}
	if s.healthFields != nil {
		for k, v := range s.healthFields(r.Context()) {
			payload[k] = v
		}
	}
	writeJSON(w, payload)
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  rpcParams       `json:"params"`
	ID      json.RawMessage `json:"id"`
}

type rpcParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, json.RawMessage("1"), -32603, err.Error())
		return
	}
	id := req.ID
	if id == nil {
		id = json.RawMessage("1")
	}

	slog.Info("mcp request", "server", s.name, "method", req.Method, "tool", req.Params.Name,
		"arguments", s.sanitize(req.Params.Arguments))

	var result any
	switch req.Method {
	case "initialize":
		result = map[string]any{
			"protocolVersion": protocolVersion,
			"serverInfo":      map[string]any{"name": s.name, "version": s.version},
			"capabilities":    map[string]any{"tools": map[string]any{}},
		}

	case "tools/list":
		result = map[string]any{"tools": s.registry.List()}

	case "tools/call":
		result = map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": s.callTool(r.Context(), req.Params)},
			},
		}

	default:
		writeRPCError(w, id, -32601, fmt.Sprintf("Method not found: %s", req.Method))
		return
	}

	writeJSON(w, map[string]any{
		"jsonrpc": "2.0",
		"result":  result,
		"id":      id,
	})
}

// callTool dispatches to the registry. A tool that panics becomes an error
// text payload rather than a dropped connection.
func (s *Server) callTool(ctx context.Context, params rpcParams) (text string) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("tool panicked", "server", s.name, "tool", params.Name, "panic", rec)
			text = fmt.Sprintf("Error: %v", rec)
		}
	}()

	tool, ok := s.registry.Get(params.Name)
	if !ok {
		return fmt.Sprintf("Unknown tool: %s", params.Name)
	}
	args := params.Arguments
	if args == nil {
		args = map[string]any{}
	}
	return tool.Execute(ctx, args)
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	writeJSON(w, map[string]any{
		"jsonrpc": "2.0",
		"error":   rpcError{Code: code, Message: message},
		"id":      id,
	})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
