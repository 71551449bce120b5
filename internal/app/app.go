// Package app wires the store, its mirror and the operation surfaces into a
// runnable MCP server.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jacentio/tablekv/dispatch"
	"github.com/jacentio/tablekv/internal/config"
	"github.com/jacentio/tablekv/internal/mcpserver"
	"github.com/jacentio/tablekv/mirror"
	"github.com/jacentio/tablekv/score"
	"github.com/jacentio/tablekv/store"
)

// App holds the wired components.
type App struct {
	Store      *store.Store
	Mirror     *mirror.Mirror // nil when no DynamoDB table is configured
	Dispatcher *dispatch.Dispatcher
	Scorer     *score.Scorer
	Server     *mcpserver.Server
}

// Build creates the components described by cfg. When cfg enables the
// mirror, client must be non-nil; the store is loaded from DynamoDB before
// the mirror is registered as its commit hook.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, client mirror.API) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	storeConfig, err := cfg.Store()
	if err != nil {
		return nil, err
	}
	a := &App{Store: store.New(storeConfig)}

	if cfg.MirrorEnabled() {
		if client == nil {
			return nil, fmt.Errorf("mirror table %q configured without a DynamoDB client", cfg.DynamoTable)
		}
		a.Mirror = mirror.New(client, cfg.Mirror(), logger.With("component", "mirror"))
		if err := a.Mirror.LoadInto(ctx, a.Store); err != nil {
			return nil, fmt.Errorf("load mirror: %w", err)
		}
		registry := store.NewRegistry()
		registry.Register("dynamodb", a.Mirror)
		a.Store.SetRegistry(registry)
	}

	a.Dispatcher = dispatch.New(a.Store, dispatch.WithLogger(logger.With("component", "dispatch")))
	a.Scorer = score.New(score.CashFlowPolicy{}, logger.With("component", "score"))

	a.Server, err = mcpserver.New(logger.With("component", "mcp"), a.Dispatcher, a.Scorer)
	if err != nil {
		return nil, err
	}
	return a, nil
}
