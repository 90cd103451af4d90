package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/humac/mcp-iot-poc/internal/tui/theme"
)

// Header renders the application header
type Header struct {
	Width    int
	Version  string
	Provider string
	Model    string
}

// NewHeader creates a new header component
func NewHeader(width int, version, provider, model string) *Header {
	return &Header{
		Width:    width,
		Version:  version,
		Provider: provider,
		Model:    model,
	}
}

// SetWidth updates the header width
func (h *Header) SetWidth(width int) {
	h.Width = width
}

// View renders the header
func (h *Header) View() string {
	t := theme.Current

	logoStyle := lipgloss.NewStyle().
		Foreground(t.Primary).
		Bold(true)

	logo := logoStyle.Render("🌡 Climate Agent")

	// Version badge - subtle pill style
	versionStyle := lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Background(t.BackgroundSecondary).
		Padding(0, 1).
		Render(fmt.Sprintf("v%s", h.Version))

	// Active provider and model
	providerStyle := lipgloss.NewStyle().
		Foreground(t.Text).
		Bold(true)
	modelStyle := lipgloss.NewStyle().
		Foreground(t.TextMuted)

	connStyle := lipgloss.NewStyle().
		Foreground(t.Success)
	connIndicator := connStyle.Render("●")

	providerDisplay := providerStyle.Render(h.Provider)
	if h.Model != "" {
		providerDisplay += modelStyle.Render("/" + h.Model)
	}

	// Build left section
	leftPart := lipgloss.JoinHorizontal(
		lipgloss.Center,
		logo,
		"  ",
		versionStyle,
	)

	// Build right section
	rightPart := lipgloss.JoinHorizontal(
		lipgloss.Center,
		connIndicator,
		" ",
		providerDisplay,
	)

	// Calculate spacing
	spacing := h.Width - lipgloss.Width(leftPart) - lipgloss.Width(rightPart) - 2
	if spacing < 1 {
		spacing = 1
	}

	header := lipgloss.JoinHorizontal(
		lipgloss.Center,
		leftPart,
		lipgloss.NewStyle().Width(spacing).Render(""),
		rightPart,
	)

	// Add a subtle separator line
	separator := lipgloss.NewStyle().
		Foreground(t.Border).
		Width(h.Width).
		Render(strings.Repeat("─", h.Width))

	return header + "\n" + separator
}
