package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ggoodman/respondio-mcp/config"
	"github.com/ggoodman/respondio-mcp/internal/engine"
	"github.com/ggoodman/respondio-mcp/respondio"
	"github.com/ggoodman/respondio-mcp/stdio"
)

// ErrMissingAPIKey is returned by RunStdio when no API key is configured.
var ErrMissingAPIKey = errors.New("RESPONDIO_API_KEY is required in stdio mode")

// RunStdio serves one session over standard input and output until EOF or
// until ctx is cancelled. Upstream calls use cfg.APIKey.
func RunStdio(ctx context.Context, cfg *config.Config, opts ...Option) error {
	if cfg.APIKey == "" {
		return ErrMissingAPIKey
	}
	o := resolveOptions(cfg, opts)
	defer o.manager.Stop()

	// Fail fast on a bad endpoint. Tool calls resolve the client through the
	// manager on every call so failing clients get recreated.
	if _, err := o.manager.GetClient(cfg.BaseURL, cfg.APIKey); err != nil {
		return fmt.Errorf("upstream client: %w", err)
	}
	resolver := &respondio.ClientResolver{Manager: o.manager, BaseURL: cfg.BaseURL, APIKey: cfg.APIKey}
	eng := engine.New(newToolServer(cfg, resolver, o), engine.WithLogger(o.log))

	o.log.Info("stdio.start", slog.String("base_url", cfg.BaseURL))
	err := stdio.NewHandler(eng, stdio.WithLogger(o.log), stdio.WithIO(o.stdin, o.stdout)).Serve(ctx)
	o.log.Info("stdio.stop")
	return err
}
