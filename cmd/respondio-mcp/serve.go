package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ggoodman/respondio-mcp/config"
	"github.com/ggoodman/respondio-mcp/internal/logctx"
	"github.com/ggoodman/respondio-mcp/internal/metrics"
	"github.com/ggoodman/respondio-mcp/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	flags := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags)
		},
	}
	bindServeFlags(cmd, flags)
	return cmd
}

// loadConfig reads the environment and applies the flags the user set.
func loadConfig(cmd *cobra.Command, flags *serveFlags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("mode") {
		cfg.Mode = flags.mode
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = flags.port
	}
	if cmd.Flags().Changed("debug") {
		cfg.Debug = flags.debug
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return logctx.Wrap(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}

func runServe(cmd *cobra.Command, flags *serveFlags) error {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}

	// Logs go to stderr so stdout stays a clean protocol stream in stdio mode.
	log := newLogger(os.Stderr, cfg.Debug)
	slog.SetDefault(log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mx := metrics.New(reg)
	manager := server.NewManager(cfg, log, mx)
	defer manager.Stop()

	opts := []server.Option{
		server.WithLogger(log),
		server.WithRegistry(reg),
		server.WithMetrics(mx),
		server.WithManager(manager),
	}

	ctx := cmd.Context()
	log.Info("respondio_mcp.start", slog.String("mode", cfg.Mode), slog.String("version", server.Version))

	switch cfg.Mode {
	case config.ModeStdio:
		return server.RunStdio(ctx, cfg, opts...)
	case config.ModeHTTP:
		if err := server.New(cfg, opts...).Run(ctx); err != nil {
			return err
		}
		log.Info("respondio_mcp.stop")
		return nil
	default:
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}
