package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/humac/mcp-iot-poc/internal/agent"
	"github.com/humac/mcp-iot-poc/internal/config"
	"github.com/humac/mcp-iot-poc/internal/llm"
	"github.com/humac/mcp-iot-poc/internal/store"
	"github.com/humac/mcp-iot-poc/internal/tui/components"
	"github.com/humac/mcp-iot-poc/internal/tui/layout"
	"github.com/humac/mcp-iot-poc/internal/tui/theme"
)

const version = "0.1.0"

// Message types for Bubble Tea
type responseMsg struct {
	result *agent.ChatResult
	err    error
}

type statusMsg struct {
	failures []string
}

type evaluationMsg struct {
	decision store.Decision
	err      error
}

// Model is the main TUI model
type Model struct {
	agent *agent.Agent

	// Components
	header      *components.Header
	messages    *components.Messages
	editor      *components.Editor
	status      *components.Status
	help        *components.HelpDialog
	suggestions *components.Suggestions
	spinner     spinner.Model

	// Layout
	layout *layout.SplitPane

	// State
	width    int
	height   int
	ready    bool
	thinking bool
	showHelp bool
}

// New creates a new TUI model
func New(ag *agent.Agent, providerName, modelName string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	status := components.NewStatus(80)
	status.SetModel(modelName)

	return Model{
		agent:       ag,
		header:      components.NewHeader(80, version, providerName, modelName),
		status:      status,
		help:        components.NewHelpDialog(),
		suggestions: components.NewSuggestions(),
		spinner:     sp,
	}
}

// welcomeMessage returns the initial welcome content
func welcomeMessage() string {
	return `
    ██████╗██╗     ██╗███╗   ███╗ █████╗ ████████╗███████╗
   ██╔════╝██║     ██║████╗ ████║██╔══██╗╚══██╔══╝██╔════╝
   ██║     ██║     ██║██╔████╔██║███████║   ██║   █████╗
   ██║     ██║     ██║██║╚██╔╝██║██╔══██║   ██║   ██╔══╝
   ╚██████╗███████╗██║██║ ╚═╝ ██║██║  ██║   ██║   ███████╗
    ╚═════╝╚══════╝╚═╝╚═╝     ╚═╝╚═╝  ╚═╝   ╚═╝   ╚══════╝`
}

// Init initializes the TUI
func (m Model) Init() tea.Cmd {
	return tea.EnterAltScreen
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Handle help dialog
		if m.showHelp {
			m.showHelp = false
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "ctrl+?", "ctrl+h":
			m.showHelp = !m.showHelp
			return m, nil

		case "ctrl+l":
			// Clear chat
			m.messages.Clear()
			return m, nil

		case "esc":
			if m.showHelp {
				m.showHelp = false
			}
			if m.suggestions.IsVisible() {
				m.suggestions.Hide()
			}
			return m, nil

		case "tab":
			// Autocomplete command
			if m.suggestions.IsVisible() {
				selected := m.suggestions.GetSelected()
				if selected != "" {
					m.editor.SetValue(selected)
					m.suggestions.Hide()
				}
				return m, nil
			}

		case "up":
			if m.suggestions.IsVisible() {
				m.suggestions.MoveUp()
				return m, nil
			}

		case "down":
			if m.suggestions.IsVisible() {
				m.suggestions.MoveDown()
				return m, nil
			}

		case "enter":
			// If suggestions visible and selected, use that command
			if m.suggestions.IsVisible() {
				selected := m.suggestions.GetSelected()
				if selected != "" {
					m.editor.Reset()
					m.suggestions.Hide()
					return m.handleCommand(selected)
				}
			}

			if !m.thinking && strings.TrimSpace(m.editor.Value()) != "" {
				userMsg := strings.TrimSpace(m.editor.Value())
				m.editor.Reset()
				m.suggestions.Hide()

				// Check for slash commands
				if strings.HasPrefix(userMsg, "/") {
					return m.handleCommand(userMsg)
				}

				m.messages.AddMessage(components.Message{
					Role:    "user",
					Content: userMsg,
				})
				m.thinking = true
				m.status.SetThinking(true)
				return m, tea.Batch(m.spinner.Tick, m.sendMessage(userMsg))
			}

		case "pgup", "pgdown":
			// Pass to messages viewport
			vp := m.messages.GetViewport()
			var cmd tea.Cmd
			*vp, cmd = vp.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		// Layout dimensions
		headerHeight := 2
		statusHeight := 2
		editorHeight := 5
		messagesHeight := msg.Height - headerHeight - statusHeight - editorHeight

		if !m.ready {
			m.layout = layout.NewSplitPane(msg.Width, msg.Height)
			m.messages = components.NewMessages(msg.Width, messagesHeight)
			m.messages.SetWelcome(welcomeMessage())
			m.editor = components.NewEditor(msg.Width, editorHeight)
			// Clear any garbage that may have accumulated before init
			m.editor.Reset()
			m.ready = true
		} else {
			m.layout.SetSize(msg.Width, msg.Height)
			m.messages.SetSize(msg.Width, messagesHeight)
			m.editor.SetSize(msg.Width, editorHeight)
		}

		m.header.SetWidth(msg.Width)
		m.status.SetWidth(msg.Width)

	case spinner.TickMsg:
		if m.thinking {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case responseMsg:
		m.thinking = false
		m.status.SetThinking(false)

		if msg.err != nil {
			m.messages.AddMessage(components.Message{
				Role:    "error",
				Content: msg.err.Error(),
			})
		} else if msg.result != nil {
			// Show tool calls first, then the final response
			for _, call := range msg.result.ToolCalls {
				m.messages.AddMessage(components.Message{
					Role:     "tool",
					ToolName: call.Tool,
					ToolArgs: formatToolArgs(call.Arguments),
					Content:  formatToolResult(call.Result),
				})
			}
			if msg.result.Response != "" {
				m.messages.AddMessage(components.Message{
					Role:    "assistant",
					Content: msg.result.Response,
				})
			}
		}

	case statusMsg:
		m.thinking = false
		m.status.SetThinking(false)

		if len(msg.failures) == 0 {
			m.messages.AddMessage(components.Message{
				Role:    "system",
				Content: "All services healthy: LLM provider, weather MCP, Home Assistant MCP.",
			})
		} else {
			m.messages.AddMessage(components.Message{
				Role:    "error",
				Content: "Service issues:\n  - " + strings.Join(msg.failures, "\n  - "),
			})
		}

	case evaluationMsg:
		m.thinking = false
		m.status.SetThinking(false)

		if msg.err != nil {
			m.messages.AddMessage(components.Message{
				Role:    "error",
				Content: "Evaluation failed: " + msg.err.Error(),
			})
		} else {
			m.messages.AddMessage(components.Message{
				Role:    "system",
				Content: formatDecision(msg.decision),
			})
		}
	}

	// Update editor if not thinking - only pass key messages
	if !m.thinking && m.editor != nil {
		if _, ok := msg.(tea.KeyMsg); ok {
			var cmd tea.Cmd
			m.editor, cmd = m.editor.Update(msg)
			cmds = append(cmds, cmd)

			// Update suggestions based on editor content
			m.suggestions.Filter(m.editor.Value())
		}
	}

	// Update messages viewport for scrolling
	if m.messages != nil {
		vp := m.messages.GetViewport()
		var cmd tea.Cmd
		*vp, cmd = vp.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// ensureInitialized connects the agent on first use.
func (m *Model) ensureInitialized(ctx context.Context) error {
	if m.agent.Initialized() {
		return nil
	}
	if m.agent.Initialize(ctx) {
		return nil
	}
	failures := m.agent.HealthFailures(ctx)
	if len(failures) == 0 {
		return fmt.Errorf("agent initialization failed despite healthy services")
	}
	return fmt.Errorf("agent cannot initialize: %s", strings.Join(failures, "; "))
}

func (m *Model) sendMessage(content string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		if err := m.ensureInitialized(ctx); err != nil {
			return responseMsg{err: err}
		}
		result, err := m.agent.Chat(ctx, content)
		return responseMsg{result: result, err: err}
	}
}

func (m *Model) checkStatus() tea.Cmd {
	return func() tea.Msg {
		return statusMsg{failures: m.agent.HealthFailures(context.Background())}
	}
}

func (m *Model) runEvaluation() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		if err := m.ensureInitialized(ctx); err != nil {
			return evaluationMsg{err: err}
		}
		decision, err := m.agent.RunEvaluation(ctx)
		return evaluationMsg{decision: decision, err: err}
	}
}

// formatToolArgs renders tool arguments compactly for display.
func formatToolArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	data, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	return string(data)
}

// formatToolResult renders a tool result for display. String results pass
// through, everything else is JSON-encoded.
func formatToolResult(result any) string {
	if s, ok := result.(string); ok {
		return s
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(data)
}

// formatDecision summarizes an evaluation outcome.
func formatDecision(d store.Decision) string {
	var sb strings.Builder
	sb.WriteString("Evaluation complete.\n")
	sb.WriteString("  Action: " + d.Action + "\n")
	if d.AITemperature != nil {
		sb.WriteString(fmt.Sprintf("  Target: %.1f°C\n", *d.AITemperature))
	}
	if d.Reasoning != "" {
		sb.WriteString("  Reasoning: " + d.Reasoning)
	}
	return sb.String()
}

// handleCommand processes slash commands
func (m Model) handleCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return m, nil
	}

	cmd := strings.ToLower(parts[0])

	switch cmd {
	case "/help":
		m.showHelp = true
		return m, nil

	case "/clear":
		m.messages.Clear()
		return m, nil

	case "/status":
		m.thinking = true
		m.status.SetThinking(true)
		return m, tea.Batch(m.spinner.Tick, m.checkStatus())

	case "/evaluate":
		m.messages.AddMessage(components.Message{
			Role:    "system",
			Content: "Running climate evaluation...",
		})
		m.thinking = true
		m.status.SetThinking(true)
		return m, tea.Batch(m.spinner.Tick, m.runEvaluation())

	case "/provider":
		if len(parts) == 1 {
			var sb strings.Builder
			sb.WriteString("Available providers (* = active):\n")
			for _, info := range llm.AvailableProviders() {
				marker := " "
				if info.ID == m.header.Provider {
					marker = "*"
				}
				sb.WriteString(fmt.Sprintf("  %s %-10s %s (default: %s)\n", marker, info.ID, info.Name, info.DefaultModel))
			}
			sb.WriteString("\nUse /provider <name> to set the default. Takes effect on restart.")
			m.messages.AddMessage(components.Message{Role: "system", Content: sb.String()})
			return m, nil
		}
		name := strings.ToLower(parts[1])
		if err := config.Set("provider", name); err != nil {
			m.messages.AddMessage(components.Message{
				Role:    "error",
				Content: fmt.Sprintf("Failed to set provider: %v", err),
			})
		} else {
			m.messages.AddMessage(components.Message{
				Role:    "system",
				Content: fmt.Sprintf("Default provider set to %s. Restart to apply.", name),
			})
		}
		return m, nil

	case "/model":
		if len(parts) == 1 {
			var sb strings.Builder
			sb.WriteString(fmt.Sprintf("Current model: %s\n", m.status.Model))
			if suggested := llm.SuggestedModels[m.header.Provider]; len(suggested) > 0 {
				sb.WriteString("Suggested for " + m.header.Provider + ": " + strings.Join(suggested, ", ") + "\n")
			}
			sb.WriteString("\nUse /model <name> to set the default. Takes effect on restart.")
			m.messages.AddMessage(components.Message{Role: "system", Content: sb.String()})
			return m, nil
		}
		model := parts[1]
		if err := config.Set("model", model); err != nil {
			m.messages.AddMessage(components.Message{
				Role:    "error",
				Content: fmt.Sprintf("Failed to set model: %v", err),
			})
		} else {
			m.messages.AddMessage(components.Message{
				Role:    "system",
				Content: fmt.Sprintf("Default model set to %s. Restart to apply.", model),
			})
		}
		return m, nil

	case "/quit", "/exit", "/q":
		return m, tea.Quit

	case "/config":
		// Handle /config command
		if len(parts) == 1 {
			// Show current config
			keys := config.ListKeys()
			var sb strings.Builder
			sb.WriteString("Configuration:\n")
			sb.WriteString(fmt.Sprintf("  Config file: %s\n\n", config.ConfigPath()))

			if len(keys) == 0 {
				sb.WriteString("  No keys configured.\n")
			} else {
				for k, v := range keys {
					sb.WriteString(fmt.Sprintf("  %s: %s\n", k, v))
				}
			}
			sb.WriteString("\nUsage:\n")
			sb.WriteString("  /config set <key> <value>  - Set a config value\n")
			sb.WriteString("  /config delete <key>       - Delete a config value\n")
			sb.WriteString("\nKeys: openai, anthropic, google, provider, model")

			m.messages.AddMessage(components.Message{
				Role:    "system",
				Content: sb.String(),
			})
			return m, nil
		}

		subCmd := strings.ToLower(parts[1])
		switch subCmd {
		case "set":
			if len(parts) < 4 {
				m.messages.AddMessage(components.Message{
					Role:    "error",
					Content: "Usage: /config set <key> <value>",
				})
				return m, nil
			}
			key := parts[2]
			value := strings.Join(parts[3:], " ")
			if err := config.Set(key, value); err != nil {
				m.messages.AddMessage(components.Message{
					Role:    "error",
					Content: fmt.Sprintf("Failed to set config: %v", err),
				})
			} else {
				m.messages.AddMessage(components.Message{
					Role:    "system",
					Content: fmt.Sprintf("Set %s successfully.", key),
				})
			}
			return m, nil

		case "delete", "remove", "unset":
			if len(parts) < 3 {
				m.messages.AddMessage(components.Message{
					Role:    "error",
					Content: "Usage: /config delete <key>",
				})
				return m, nil
			}
			key := parts[2]
			if err := config.Delete(key); err != nil {
				m.messages.AddMessage(components.Message{
					Role:    "error",
					Content: fmt.Sprintf("Failed to delete config: %v", err),
				})
			} else {
				m.messages.AddMessage(components.Message{
					Role:    "system",
					Content: fmt.Sprintf("Deleted %s.", key),
				})
			}
			return m, nil

		default:
			m.messages.AddMessage(components.Message{
				Role:    "error",
				Content: "Unknown config subcommand: " + subCmd + "\nUse: set, delete",
			})
			return m, nil
		}

	default:
		m.messages.AddMessage(components.Message{
			Role:    "error",
			Content: "Unknown command: " + cmd + "\nType /help for available commands.",
		})
		return m, nil
	}
}

// View renders the TUI
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	t := theme.Current

	// Calculate heights
	headerHeight := 2
	statusHeight := 2
	editorHeight := 5
	messagesHeight := m.height - headerHeight - statusHeight - editorHeight

	// Header (fixed at top)
	header := m.header.View()

	// Messages area (fills middle)
	messagesView := m.messages.View()
	if m.thinking {
		// Add thinking indicator at bottom of messages
		thinkingStyle := lipgloss.NewStyle().Foreground(t.Primary)
		messagesView = lipgloss.NewStyle().
			Height(messagesHeight).
			Render(messagesView + "\n" + thinkingStyle.Render(m.spinner.View()+" Thinking..."))
	} else {
		messagesView = lipgloss.NewStyle().
			Height(messagesHeight).
			Render(messagesView)
	}

	// Suggestions (shown above editor when typing /)
	suggestions := ""
	if m.suggestions.IsVisible() {
		m.suggestions.SetWidth(m.width)
		suggestions = m.suggestions.View()
	}

	// Editor (fixed height)
	editor := m.editor.View()

	// Status bar (fixed at bottom)
	status := m.status.View()

	// Stack all sections vertically
	var view string
	if suggestions != "" {
		view = lipgloss.JoinVertical(
			lipgloss.Left,
			header,
			messagesView,
			suggestions,
			editor,
			status,
		)
	} else {
		view = lipgloss.JoinVertical(
			lipgloss.Left,
			header,
			messagesView,
			editor,
			status,
		)
	}

	// Overlay help dialog if shown
	if m.showHelp {
		overlay := m.help.View()
		view = components.PlaceOverlay(overlay, view, m.width, m.height)
	}

	// Apply background and ensure full height
	return lipgloss.NewStyle().
		Background(t.Background).
		Width(m.width).
		Height(m.height).
		Render(view)
}
