// Package app wires the storage, generation, and orchestration layers into
// one runnable application.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"pressline/internal/config"
	"pressline/internal/db"
	"pressline/internal/deck"
	"pressline/internal/events"
	"pressline/internal/generate"
	"pressline/internal/migrate"
	"pressline/internal/orchestrator"
	"pressline/internal/repo"
)

// App holds the assembled application.
type App struct {
	DB          *sql.DB
	Repo        repo.Repo
	Events      events.Writer
	Store       Store
	Cfg         *config.Config
	Log         *zap.Logger
	Coordinator *orchestrator.Coordinator
}

// Assemble opens the workspace database, runs migrations, resolves config,
// and builds the orchestrator with its collaborators. The returned cleanup
// shuts down in-flight runs and closes the database.
func Assemble(ctx context.Context, workspace string, log *zap.Logger) (*App, func(), error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, nil, err
	}
	if cfg == nil {
		cfg = config.Default("default-org")
	}

	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	r := repo.Repo{DB: conn}
	ev := events.Writer{DB: conn, Now: time.Now}
	now := time.Now().UTC().Format(time.RFC3339)
	if err := r.EnsureOrg(ctx, nil, cfg.Org.ID, cfg.Org.Name, now); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("ensure org: %w", err)
	}
	if n, err := r.ResetExecuting(ctx, now); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("reset stale runs: %w", err)
	} else if n > 0 {
		log.Warn("restored opportunities left executing by an interrupted run", zap.Int64("count", n))
	}

	store := Store{DB: conn, Repo: r, Events: ev, Now: time.Now}

	var gen orchestrator.ContentGenerator
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		g, err := generate.NewGemini(ctx, apiKey, cfg, r, log)
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		gen = g
	} else {
		gen = unavailableGenerator{}
	}

	deps := orchestrator.Deps{
		Cfg:    cfg,
		Opps:   store,
		Assets: store,
		Gen:    gen,
		Audit:  ev,
		Log:    log,
	}
	if cfg.Deck.BaseURL != "" {
		dc := deck.New(cfg.Deck.BaseURL)
		dc.APIKey = os.Getenv("PRESSLINE_DECK_API_KEY")
		deps.Deck = dc
	}
	coord := orchestrator.New(deps)

	a := &App{DB: conn, Repo: r, Events: ev, Store: store, Cfg: cfg, Log: log, Coordinator: coord}
	cleanup := func() {
		coord.Shutdown()
		conn.Close()
	}
	return a, cleanup, nil
}

// unavailableGenerator fails dispatch when no generation credentials are
// configured. Dispatch failures are retryable, so the opportunity stays
// executable once a key is provided.
type unavailableGenerator struct{}

func (unavailableGenerator) Dispatch(ctx context.Context, req orchestrator.DispatchRequest) (orchestrator.DispatchResult, error) {
	return orchestrator.DispatchResult{}, fmt.Errorf("content generation is not configured; set GEMINI_API_KEY")
}
