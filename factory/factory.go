// Package factory assembles the document handler surface from
// configuration. This is the primary way for external projects and the
// bundled commands to construct a working handler set.
package factory

import (
	"context"
	"fmt"

	"github.com/stashbase/stashbase"
	"github.com/stashbase/stashbase/internal"
)

// NewHandlers connects to the database through a fresh connection manager,
// ensures the metadata table exists, and returns the handler surface plus
// the manager for lifecycle control (callers own Close).
//
// Usage:
//
//	cfg, err := stashbase.LoadConfig("config.yaml")
//	if err != nil {
//	    // handle error
//	}
//	handlers, conns, err := factory.NewHandlers(context.Background(), cfg)
//	if err != nil {
//	    // handle error
//	}
//	defer conns.Close()
func NewHandlers(ctx context.Context, cfg *stashbase.Config) (stashbase.Handlers, *internal.ConnManager, error) {
	if cfg == nil {
		cfg = stashbase.DefaultConfig()
	}

	conns := internal.NewConnManager(cfg.Database)
	pool, err := conns.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire database connection: %w", err)
	}

	handlers, err := NewHandlersWithPool(ctx, cfg, pool)
	if err != nil {
		conns.Close()
		return nil, nil, err
	}
	return handlers, conns, nil
}

// NewHandlersWithPool builds the handler surface over an existing pool.
// Tests use this with a mock pool; servers that manage their own pool use
// it directly.
func NewHandlersWithPool(ctx context.Context, cfg *stashbase.Config, pool internal.PgxPool) (stashbase.Handlers, error) {
	if cfg == nil {
		cfg = stashbase.DefaultConfig()
	}

	meta := internal.NewMetaStore(pool, cfg.Database.MetaTable)
	if err := meta.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure metadata table: %w", err)
	}

	limits := internal.QueryLimits{
		Default: cfg.Query.DefaultLimit,
		Max:     cfg.Query.MaxLimit,
	}
	engine := internal.NewEngine(pool, cfg.Database.MetaTable, limits)
	return internal.NewToolHandlers(engine), nil
}
