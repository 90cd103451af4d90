package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/humac/mcp-iot-poc/internal/config"
	"github.com/humac/mcp-iot-poc/internal/llm"
	"github.com/humac/mcp-iot-poc/internal/store"
)

var providersCheck bool

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List available LLM providers",
	RunE:  runProviders,
}

func runProviders(cmd *cobra.Command, args []string) error {
	var settings llm.Settings
	if providersCheck {
		st, err := store.Open(config.GetDBPath())
		if err != nil {
			return fmt.Errorf("open decision store: %w", err)
		}
		defer st.Close()
		settings = llmSettings(st)
	}

	active := llm.ResolveProviderType(providerFlag, settings)

	for _, info := range llm.AvailableProviders() {
		marker := " "
		if info.ID == active {
			marker = "*"
		}

		status := ""
		if providersCheck {
			provider, err := llm.New(info.ID, "", settings)
			if err != nil {
				status = "  [unavailable]"
			} else {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if provider.HealthCheck(ctx) {
					status = "  [ok]"
				} else {
					status = "  [unreachable]"
				}
				cancel()
			}
		}

		fmt.Printf("%s %-10s %-20s default: %s%s\n", marker, info.ID, info.Name, info.DefaultModel, status)
		fmt.Printf("             models: %s\n", strings.Join(info.SuggestedModels, ", "))
	}
	return nil
}

func init() {
	providersCmd.Flags().BoolVar(&providersCheck, "check", false, "Probe each provider's health endpoint")
	rootCmd.AddCommand(providersCmd)
}
