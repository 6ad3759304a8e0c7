package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/fleetclient/internal/core/config"
	"github.com/vietddude/fleetclient/internal/fleet"
	redisclient "github.com/vietddude/fleetclient/internal/infra/redis"
	"github.com/vietddude/fleetclient/internal/pipeline/diag"
	"github.com/vietddude/fleetclient/internal/pipeline/executor"
	"github.com/vietddude/fleetclient/internal/pipeline/taxonomy"
	"github.com/vietddude/stylelog"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:           "fleetctl",
	Short:         "Fleet backend client",
	Long:          `fleetctl talks to the device-fleet backend through the resilient request pipeline, falling back to legacy routes where the versioned API is not deployed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// app is the wiring shared by every command.
type app struct {
	cfg      *config.AppConfig
	recorder *diag.Recorder
	client   *fleet.Client
	redis    *redisclient.Client
}

func setup() (*app, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		return nil, fmt.Errorf("load config: %w", err)
	}
	initLogging(cfg.Logging, os.Stderr)

	a := &app{cfg: cfg}

	var opts []diag.Option
	if cfg.Diagnostics.Redis.Enabled() {
		rc, err := redisclient.NewClient(cfg.Diagnostics.Redis)
		if err != nil {
			// The mirror is optional; run with the local register only.
			slog.Warn("Redis mirror disabled", "error", err)
		} else {
			a.redis = rc
			opts = append(opts, diag.WithMirror(
				diag.NewRedisMirror(rc, cfg.Diagnostics.History, cfg.Diagnostics.Redis.TTL)))
		}
	}
	a.recorder = diag.NewRecorder(cfg.Diagnostics.History, opts...)
	a.client = fleet.New(clientOptions(cfg, a.recorder))
	return a, nil
}

func clientOptions(cfg *config.AppConfig, sink *diag.Recorder) fleet.Options {
	return fleet.Options{
		BaseURL:        cfg.API.BaseURL,
		Keys:           fleet.StaticKey(cfg.API.APIKey),
		Timeout:        cfg.API.Timeout,
		CaptureTimeout: cfg.API.CaptureTimeout,
		Retry: executor.RetryConfig{
			MaxAttempts:     cfg.API.Retry.MaxAttempts,
			InitialDelay:    cfg.API.Retry.BaseDelay,
			MaxDelay:        cfg.API.Retry.MaxDelay,
			BackoffMultiple: 2.0,
		},
		Sink:   sink,
		Logger: slog.Default(),
	}
}

func (a *app) Close() {
	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func initLogging(cfg config.LoggingConfig, w io.Writer) {
	level := slog.LevelInfo
	switch {
	case isDebug || cfg.Level == "debug":
		level = slog.LevelDebug
	case cfg.Level == "warn":
		level = slog.LevelWarn
	case cfg.Level == "error":
		level = slog.LevelError
	}

	if cfg.Format == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
		return
	}
	stylelog.InitDefault(&tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// failure renders a classified error for the terminal and returns it.
func failure(w io.Writer, ce *taxonomy.ClassifiedError) error {
	_, _ = fmt.Fprintf(w, "%s (%s): %s\n", ce.Code, ce.Category(), ce.UserMessage())
	if ce.CorrelationID != "" {
		_, _ = fmt.Fprintf(w, "correlation id: %s\n", ce.CorrelationID)
	}
	if ce.Retryable {
		_, _ = fmt.Fprintln(w, "the request may be retried")
	}
	return ce
}
