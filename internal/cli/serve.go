package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/fleetclient/internal/diagserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the diagnostics server",
	Long:  `Serve polls backend health and exposes /health, /diagnostics/correlations and /metrics.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor := diagserver.NewMonitor(a.client, a.cfg.Diagnostics.PollInterval, slog.Default())
	server := diagserver.NewServer(monitor, a.recorder, a.cfg.Diagnostics.Port, slog.Default())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go monitor.Start(ctx)

	slog.Info("Diagnostics server started",
		"port", a.cfg.Diagnostics.Port, "backend", a.cfg.API.BaseURL, "config", cfgPath)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
	case err := <-errCh:
		slog.Error("Diagnostics server failed", "error", err)
		return err
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		return err
	}
	slog.Info("Diagnostics server stopped gracefully")
	return nil
}
