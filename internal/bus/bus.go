// Package bus publishes decision events over NATS so other systems on the
// network can react to thermostat changes. The bus is optional: with no URL
// configured every publish is a no-op.
package bus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DecisionsSubject carries one event per completed evaluation.
const DecisionsSubject = "climate.decisions"

// Config controls the NATS connection.
type Config struct {
	URL            string
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

// DefaultConfig returns the connection defaults. URL stays empty so the bus
// is off unless configured.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  60,
	}
}

// DecisionEvent is the wire form of one published decision.
type DecisionEvent struct {
	ID          string   `json:"id"`
	Timestamp   string   `json:"timestamp"`
	Action      string   `json:"action"`
	Temperature *float64 `json:"temperature,omitempty"`
	Reasoning   string   `json:"reasoning"`
	Success     bool     `json:"success"`
	ToolCalls   []string `json:"tool_calls,omitempty"`
}

// Bus wraps the NATS connection. A nil-connection Bus drops all publishes.
type Bus struct {
	conn *nats.Conn
}

// Connect connects to NATS. An empty URL returns a disabled bus.
func Connect(cfg Config) (*Bus, error) {
	if cfg.URL == "" {
		return &Bus{}, nil
	}

	opts := []nats.Option{
		nats.Name("climate-agent"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			slog.Info("nats connection closed")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			slog.Error("nats error", "error", err)
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	slog.Info("connected to nats", "url", cfg.URL)
	return &Bus{conn: conn}, nil
}

// Enabled reports whether the bus has a live connection behind it.
func (b *Bus) Enabled() bool {
	return b.conn != nil
}

// PublishDecision publishes one decision event. Disabled buses drop the
// event silently; publish failures are logged but never fail the caller.
func (b *Bus) PublishDecision(event DecisionEvent) {
	if b.conn == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().Format(time.RFC3339)
	}

	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to encode decision event", "error", err)
		return
	}
	if err := b.conn.Publish(DecisionsSubject, data); err != nil {
		slog.Error("failed to publish decision event", "error", err)
		return
	}
	slog.Debug("published decision event", "id", event.ID, "action", event.Action)
}

// Subscribe delivers decision events to handler until the bus closes.
func (b *Bus) Subscribe(handler func(DecisionEvent)) (*nats.Subscription, error) {
	if b.conn == nil {
		return nil, fmt.Errorf("bus is not connected")
	}
	return b.conn.Subscribe(DecisionsSubject, func(msg *nats.Msg) {
		var event DecisionEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			slog.Warn("dropping malformed decision event", "error", err)
			return
		}
		handler(event)
	})
}

// Close drains the connection.
func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}
