package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run a single evaluation cycle and exit",
	Long: `Run one evaluation: gather weather and thermostat state through the
MCP servers, let the model decide, apply any change, and record the decision.`,
	RunE: runEvaluate,
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !rt.agent.Initialize(ctx) {
		failures := rt.agent.HealthFailures(ctx)
		if len(failures) == 0 {
			return fmt.Errorf("agent initialization failed despite healthy services")
		}
		return fmt.Errorf("agent cannot initialize: %s", strings.Join(failures, "; "))
	}

	decision, err := rt.agent.RunEvaluation(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Action:    %s\n", decision.Action)
	if decision.AITemperature != nil {
		fmt.Printf("Target:    %.1f°C\n", *decision.AITemperature)
	}
	if decision.Reasoning != "" {
		fmt.Printf("Reasoning: %s\n", decision.Reasoning)
	}
	if len(decision.ToolCalls) > 0 {
		fmt.Println("Tools:")
		for _, call := range decision.ToolCalls {
			name, _ := call["tool"].(string)
			fmt.Printf("  - %s\n", name)
		}
	}
	if !decision.Success {
		os.Exit(1)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
}
