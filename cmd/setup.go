package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/adstack/leadsync/internal/store"
	"github.com/adstack/leadsync/pkg/graph"
)

// openStore opens the configured store backend.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// newGraphClient builds the Graph API client from config.
func newGraphClient() graph.Client {
	opts := []graph.Option{
		graph.WithRateLimit(cfg.Graph.RateLimit),
	}
	if cfg.Graph.BaseURL != "" {
		opts = append(opts, graph.WithBaseURL(cfg.Graph.BaseURL))
	}
	if cfg.Graph.TimeoutSecs > 0 {
		opts = append(opts, graph.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Graph.TimeoutSecs) * time.Second,
		}))
	}
	return graph.NewClient(cfg.Graph.AppID, cfg.Graph.AppSecret, opts...)
}
