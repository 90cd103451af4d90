package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/humac/mcp-iot-poc/internal/mcpserver"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve <weather|thermostat>",
	Short: "Run one of the MCP tool servers",
	Long: `Run an MCP tool server over HTTP.

  weather     - Open-Meteo backed forecast and current conditions
  thermostat  - Home Assistant climate entity control (needs HA_TOKEN)`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	var srv *mcpserver.Server
	switch args[0] {
	case "weather":
		srv = mcpserver.NewWeatherServer(mcpserver.WeatherConfigFromEnv())
	case "thermostat":
		cfg, err := mcpserver.ThermostatConfigFromEnv()
		if err != nil {
			return err
		}
		srv = mcpserver.NewThermostatServer(cfg)
	default:
		return fmt.Errorf("unknown server %q (expected weather or thermostat)", args[0])
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpSrv := &http.Server{
		Addr:    serveAddr,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("mcp server listening", "server", args[0], "addr", serveAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	rootCmd.AddCommand(serveCmd)
}
