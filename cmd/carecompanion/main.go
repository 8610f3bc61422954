package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ent0n29/carecompanion/internal/config"
	"github.com/ent0n29/carecompanion/internal/observability"
)

func newRootCmd() *cobra.Command {
	return newRootCmdWith(config.New())
}

// newRootCmdWith binds the global flags onto v.
func newRootCmdWith(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:   "carecompanion",
		Short: "Post-discharge care assistant",
		Long: `CareCompanion talks to a post-discharge care backend. A receptionist agent
identifies the patient from their discharge report and hands medical questions
to a clinical agent that answers from nephrology reference material or recent
research, with sources.

Run without arguments to start the interactive chat.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, v)
		},
	}

	flags := root.PersistentFlags()
	flags.String("backend", "", "backend mode: auto, http, ws or local")
	flags.String("url", "", "HTTP chat endpoint")
	flags.String("ws-url", "", "websocket chat endpoint")
	flags.Duration("timeout", 0, "per-message timeout (0 waits for the backend)")
	flags.BoolP("verbose", "v", false, "debug logging")
	flags.String("log-file", "", "write logs to this file")

	for key, name := range map[string]string{
		config.KeyBackendMode:    "backend",
		config.KeyBackendURL:     "url",
		config.KeyBackendWSURL:   "ws-url",
		config.KeyRequestTimeout: "timeout",
		config.KeyLogFile:        "log-file",
	} {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}

	root.AddCommand(newChatCmd(v), newAskCmd(v), newServeCmd(v))
	return root
}

// loadConfig resolves flags, environment and the optional config file.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (config.Config, error) {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		v.Set(config.KeyLogLevel, "debug")
	}
	return config.FromViper(v)
}

// newLogger writes to stderr unless a log file is configured. quietByDefault
// discards logs when no file is set; the TUI owns the terminal.
func newLogger(cfg config.Config, quietByDefault bool) (*zap.Logger, error) {
	if cfg.LogFile == "" && quietByDefault {
		return zap.NewNop(), nil
	}
	return observability.NewLogger(observability.LogConfig{
		Level:       cfg.LogLevel,
		Development: cfg.LogDev,
		OutputPath:  cfg.LogFile,
	})
}

// clientMetrics are kept on a private registry; only `serve` exposes /metrics.
func clientMetrics(cfg config.Config) *observability.Metrics {
	reg := prometheus.NewRegistry()
	return observability.NewMetricsWith(reg, reg, cfg.MetricsNamespace)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
