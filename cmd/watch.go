package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/humac/mcp-iot-poc/internal/bus"
	"github.com/humac/mcp-iot-poc/internal/config"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream decision events from NATS",
	Long:  `Subscribe to the decision event subject and print each event as it arrives.`,
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	url := config.GetNATSURL()
	if url == "" {
		return fmt.Errorf("no NATS URL configured (set nats_url or NATS_URL)")
	}

	busCfg := bus.DefaultConfig()
	busCfg.URL = url
	b, err := bus.Connect(busCfg)
	if err != nil {
		return err
	}
	defer b.Close()

	sub, err := b.Subscribe(func(event bus.DecisionEvent) {
		line := fmt.Sprintf("%s  %-16s", event.Timestamp, event.Action)
		if event.Temperature != nil {
			line += fmt.Sprintf("  %.1f°C", *event.Temperature)
		}
		if event.Reasoning != "" {
			line += "  " + event.Reasoning
		}
		fmt.Println(line)
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	fmt.Printf("Watching %s on %s (Ctrl+C to stop)\n", bus.DecisionsSubject, url)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
