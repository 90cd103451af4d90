package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/humac/mcp-iot-poc/internal/api"
	"github.com/humac/mcp-iot-poc/internal/config"
	"github.com/humac/mcp-iot-poc/internal/store"
)

// startupDelay gives the MCP tool servers time to come up before the first
// health probe. They usually start from the same compose file.
const startupDelay = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the autonomous control loop and JSON API",
	Long: `Run the agent as a daemon: evaluate the home climate on a fixed
interval, persist every decision, publish decision events, and serve the
JSON API for dashboards and chat.`,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interval := time.Duration(config.GetCheckInterval()) * time.Minute
	slog.Info("climate agent starting",
		"provider", rt.provider.Name(),
		"model", rt.provider.ModelName(),
		"interval", interval,
		"api_addr", config.GetAPIAddr(),
		"bus_enabled", rt.bus.Enabled(),
	)

	// The API serves history and chat even while the tool servers are down.
	apiSrv := api.New(rt.agent, rt.store)
	apiErr := make(chan error, 1)
	go func() {
		apiErr <- apiSrv.ListenAndServe(ctx, config.GetAPIAddr())
	}()

	select {
	case <-time.After(startupDelay):
	case <-ctx.Done():
		return nil
	case err := <-apiErr:
		return err
	}

	if !rt.agent.Initialize(ctx) {
		for _, issue := range rt.agent.HealthFailures(ctx) {
			slog.Error("startup check failed", "issue", issue)
		}
		slog.Warn("agent not ready, will retry before each evaluation")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runOnce(ctx, rt)
	for {
		select {
		case <-ctx.Done():
			slog.Info("shutting down")
			return nil
		case err := <-apiErr:
			return err
		case <-ticker.C:
			runOnce(ctx, rt)
		}
	}
}

// runOnce performs a single evaluation cycle, reconnecting first if a
// previous cycle found the services down.
func runOnce(ctx context.Context, rt *runtime) {
	if !rt.agent.Initialized() && !rt.agent.Initialize(ctx) {
		slog.Error("skipping evaluation, services unavailable")
		return
	}

	decision, err := rt.agent.RunEvaluation(ctx)
	if err != nil {
		slog.Error("evaluation failed", "error", err)
		return
	}
	logDecision(decision)
}

func logDecision(d store.Decision) {
	attrs := []any{"action", d.Action, "success", d.Success}
	if d.AITemperature != nil {
		attrs = append(attrs, "temperature", *d.AITemperature)
	}
	if d.Reasoning != "" {
		attrs = append(attrs, "reasoning", d.Reasoning)
	}
	slog.Info("evaluation complete", attrs...)
}

func init() {
	rootCmd.AddCommand(runCmd)
}
