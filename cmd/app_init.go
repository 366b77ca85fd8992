package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/trialscope/screener-cli/internal/batch"
	"github.com/trialscope/screener-cli/internal/extract"
	"github.com/trialscope/screener-cli/internal/mining"
	"github.com/trialscope/screener-cli/internal/screening"
	"github.com/trialscope/screener-cli/internal/store"
	anthropicpkg "github.com/trialscope/screener-cli/pkg/anthropic"
)

// appEnv holds the wired components shared by all commands.
type appEnv struct {
	Store        store.Store
	Client       anthropicpkg.Client
	Screener     *screening.Screener
	Miner        *mining.Miner
	Orchestrator *batch.Orchestrator
	Extractor    extract.Extractor
}

// Close releases the store connection.
func (e *appEnv) Close() {
	_ = e.Store.Close()
}

// initApp sets up the store, the backend client and the screening
// components. Callers should defer env.Close().
func initApp(ctx context.Context) (*appEnv, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("SCREENER_ANTHROPIC_KEY is not set")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	client := anthropicpkg.NewClient(cfg.Anthropic.Key)
	screener := screening.NewScreener(client, cfg.Anthropic, cfg.Screening)

	return &appEnv{
		Store:        st,
		Client:       client,
		Screener:     screener,
		Miner:        mining.NewMiner(client, cfg.Anthropic, cfg.Mining),
		Orchestrator: batch.NewOrchestrator(screener, client, st, cfg.Anthropic, cfg.Batch),
		Extractor:    extract.NewExtractor(cfg.Extract),
	}, nil
}

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for the postgres driver")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
