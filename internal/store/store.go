// Package store persists agent decisions, runtime settings, and prompt
// texts in a local SQLite database.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the decisions database.
type Store struct {
	db   *sql.DB
	path string
}

// Decision is one evaluation outcome. The snapshot fields hold whatever the
// tools returned and are stored as JSON columns.
type Decision struct {
	ID              int64            `json:"id"`
	Timestamp       string           `json:"timestamp"`
	WeatherData     map[string]any   `json:"weather_data,omitempty"`
	ThermostatState map[string]any   `json:"thermostat_state,omitempty"`
	Action          string           `json:"action"`
	AITemperature   *float64         `json:"ai_temperature,omitempty"`
	Reasoning       string           `json:"reasoning"`
	ToolCalls       []map[string]any `json:"tool_calls,omitempty"`
	Success         bool             `json:"success"`
}

// Stats summarizes the decision history.
type Stats struct {
	TotalDecisions  int            `json:"total_decisions"`
	DecisionsToday  int            `json:"decisions_today"`
	ActionBreakdown map[string]int `json:"action_breakdown"`
	SuccessRate     float64        `json:"success_rate"`
}

// Setting is one runtime-tunable key/value pair.
type Setting struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt string `json:"updated_at"`
}

// Prompt is one editable prompt text.
type Prompt struct {
	Key         string `json:"key"`
	Content     string `json:"content"`
	Description string `json:"description"`
	UpdatedAt   string `json:"updated_at"`
}

// Open opens (creating if necessary) the database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open decisions db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping decisions db: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("database initialized", "path", path)
	return s, nil
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS decisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			weather_data TEXT,
			thermostat_state TEXT,
			action TEXT NOT NULL,
			ai_temperature REAL,
			reasoning TEXT,
			tool_calls TEXT,
			success INTEGER DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS prompts (
			key TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			description TEXT,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// LogDecision appends one decision row and returns its id.
func (s *Store) LogDecision(d Decision) (int64, error) {
	if d.Timestamp == "" {
		d.Timestamp = time.Now().Format(time.RFC3339)
	}

	res, err := s.db.Exec(
		`INSERT INTO decisions
		 (timestamp, weather_data, thermostat_state, action, ai_temperature, reasoning, tool_calls, success)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Timestamp,
		encodeJSON(d.WeatherData),
		encodeJSON(d.ThermostatState),
		d.Action,
		d.AITemperature,
		d.Reasoning,
		encodeJSON(d.ToolCalls),
		boolToInt(d.Success),
	)
	if err != nil {
		return 0, fmt.Errorf("log decision: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("log decision: %w", err)
	}

	slog.Info("logged decision", "id", id, "action", d.Action, "success", d.Success)
	return id, nil
}

// RecentDecisions returns up to limit decisions, newest first.
func (s *Store) RecentDecisions(limit int) ([]Decision, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, timestamp, weather_data, thermostat_state, action, ai_temperature, reasoning, tool_calls, success
		 FROM decisions ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent decisions: %w", err)
	}
	defer rows.Close()

	decisions := []Decision{}
	for rows.Next() {
		var (
			d              Decision
			weather, state sql.NullString
			reasoning      sql.NullString
			toolCalls      sql.NullString
			aiTemp         sql.NullFloat64
			success        int
		)
		if err := rows.Scan(&d.ID, &d.Timestamp, &weather, &state, &d.Action, &aiTemp, &reasoning, &toolCalls, &success); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Reasoning = reasoning.String
		d.Success = success != 0
		if aiTemp.Valid {
			v := aiTemp.Float64
			d.AITemperature = &v
		}
		if weather.Valid && weather.String != "" {
			json.Unmarshal([]byte(weather.String), &d.WeatherData)
		}
		if state.Valid && state.String != "" {
			json.Unmarshal([]byte(state.String), &d.ThermostatState)
		}
		if toolCalls.Valid && toolCalls.String != "" {
			json.Unmarshal([]byte(toolCalls.String), &d.ToolCalls)
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// Stats computes totals, today's count, per-action counts, and success rate.
func (s *Store) Stats() (Stats, error) {
	stats := Stats{ActionBreakdown: map[string]int{}, SuccessRate: 100}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM decisions`).Scan(&stats.TotalDecisions); err != nil {
		return stats, fmt.Errorf("stats: %w", err)
	}

	today := time.Now().Format("2006-01-02")
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM decisions WHERE timestamp LIKE ?`, today+"%").Scan(&stats.DecisionsToday); err != nil {
		return stats, fmt.Errorf("stats: %w", err)
	}

	rows, err := s.db.Query(`SELECT action, COUNT(*) FROM decisions GROUP BY action ORDER BY COUNT(*) DESC`)
	if err != nil {
		return stats, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return stats, fmt.Errorf("stats: %w", err)
		}
		stats.ActionBreakdown[action] = count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	var rate sql.NullFloat64
	if err := s.db.QueryRow(`SELECT AVG(success) * 100 FROM decisions`).Scan(&rate); err != nil {
		return stats, fmt.Errorf("stats: %w", err)
	}
	if rate.Valid {
		stats.SuccessRate = rate.Float64
	}

	return stats, nil
}

// GetSetting returns the stored value for key, or empty string when unset.
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores a value under key, overwriting any previous value.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// AllSettings returns every stored setting ordered by key.
func (s *Store) AllSettings() ([]Setting, error) {
	rows, err := s.db.Query(`SELECT key, value, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("all settings: %w", err)
	}
	defer rows.Close()

	settings := []Setting{}
	for rows.Next() {
		var st Setting
		if err := rows.Scan(&st.Key, &st.Value, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings = append(settings, st)
	}
	return settings, rows.Err()
}

// SettingsMap returns all settings as a plain map, the shape the provider
// registry's resolution chains consume.
func (s *Store) SettingsMap() map[string]string {
	settings, err := s.AllSettings()
	if err != nil {
		slog.Warn("failed to read settings", "error", err)
		return map[string]string{}
	}
	m := make(map[string]string, len(settings))
	for _, st := range settings {
		m[st.Key] = st.Value
	}
	return m
}

// GetPrompt returns the stored prompt for key. When no row exists the
// default content is stored under the key (so it shows up for editing) and
// returned.
func (s *Store) GetPrompt(key, defaultContent, description string) (string, error) {
	var content string
	err := s.db.QueryRow(`SELECT content FROM prompts WHERE key = ?`, key).Scan(&content)
	if err == nil {
		return content, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("get prompt %s: %w", key, err)
	}

	if _, err := s.db.Exec(
		`INSERT INTO prompts (key, content, description, updated_at) VALUES (?, ?, ?, ?)`,
		key, defaultContent, description, time.Now().Format(time.RFC3339)); err != nil {
		return "", fmt.Errorf("register default prompt %s: %w", key, err)
	}
	return defaultContent, nil
}

// SetPrompt overwrites the prompt stored under key.
func (s *Store) SetPrompt(key, content string) error {
	_, err := s.db.Exec(
		`INSERT INTO prompts (key, content, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		key, content, time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set prompt %s: %w", key, err)
	}
	return nil
}

// AllPrompts returns every stored prompt ordered by key.
func (s *Store) AllPrompts() ([]Prompt, error) {
	rows, err := s.db.Query(`SELECT key, content, COALESCE(description, ''), updated_at FROM prompts ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("all prompts: %w", err)
	}
	defer rows.Close()

	prompts := []Prompt{}
	for rows.Next() {
		var p Prompt
		if err := rows.Scan(&p.Key, &p.Content, &p.Description, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

func encodeJSON(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(data)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
