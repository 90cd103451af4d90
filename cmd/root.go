package cmd

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/humac/mcp-iot-poc/internal/tui"
)

var (
	providerFlag string
	modelFlag    string
	serversFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "climate-agent",
	Short: "LLM-driven thermostat control over MCP",
	Long: `climate-agent watches the weather and adjusts a Home Assistant
thermostat through MCP tool servers, letting an LLM reason about when
heating or cooling is worth it.

Running without a subcommand opens the interactive chat TUI.

Supported providers:
  ollama     - Local inference (default, no API key)
  openai     - OpenAI API (requires OPENAI_API_KEY)
  anthropic  - Anthropic API (requires ANTHROPIC_API_KEY)
  google     - Google Gemini API (requires GOOGLE_API_KEY)`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	// Start TUI with options to prevent terminal query responses from
	// appearing in the input
	p := tea.NewProgram(
		tui.New(rt.agent, rt.provider.Name(), rt.provider.ModelName()),
		tea.WithAltScreen(),
		tea.WithoutBracketedPaste(),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive chat TUI",
	RunE:  runChat,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "LLM provider (ollama, openai, anthropic, google)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "Model to use (provider-specific)")
	rootCmd.PersistentFlags().StringVar(&serversFlag, "servers", "servers.yaml", "Path to MCP servers file")
	rootCmd.AddCommand(chatCmd)
}
