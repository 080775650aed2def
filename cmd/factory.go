// File: cmd/factory.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ramonfullstack/automation-scripts/internal/browser"
	"github.com/ramonfullstack/automation-scripts/internal/capture"
	"github.com/ramonfullstack/automation-scripts/internal/config"
	"github.com/ramonfullstack/automation-scripts/internal/engine"
	"github.com/ramonfullstack/automation-scripts/internal/store"
)

const shutdownTimeout = 15 * time.Second

// Components holds every service an audit run needs, so their lifecycle is
// managed in one place.
type Components struct {
	BrowserManager *browser.Manager
	Sink           *capture.FileSink
	Store          *store.Store
	DBPool         *pgxpool.Pool

	logger *zap.Logger
}

// Sessions adapts the browser manager to the engine's session factory.
func (c *Components) Sessions() engine.SessionFactory {
	return func(ctx context.Context) (engine.Session, error) {
		s, err := c.BrowserManager.NewSession(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// EngineStore returns the store as the engine sees it, or a nil interface
// when the database is disabled.
func (c *Components) EngineStore() engine.Store {
	if c.Store == nil {
		return nil
	}
	return c.Store
}

// Shutdown releases resources in reverse order of creation.
func (c *Components) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if c.BrowserManager != nil {
		if err := c.BrowserManager.Shutdown(ctx); err != nil {
			c.logger.Warn("Browser shutdown reported errors", zap.Error(err))
		}
	}
	if c.DBPool != nil {
		c.DBPool.Close()
	}
	c.logger.Debug("Components shut down")
}

// initializeComponents builds the capture sink, the optional hit-log store
// and the browser manager.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{logger: logger}

	sink, err := capture.NewFileSink(cfg.Capture.OutputFile, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare capture file: %w", err)
	}
	c.Sink = sink

	if cfg.Postgres.URL != "" {
		if err := c.connectStore(ctx, cfg.Postgres.URL); err != nil {
			// The database only mirrors the console report.
			logger.Error("Hit-log database disabled", zap.Error(err))
		}
	}

	mgr, err := browser.NewManager(ctx, logger, cfg.Browser)
	if err != nil {
		c.Shutdown()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	c.BrowserManager = mgr
	return c, nil
}

func (c *Components) connectStore(ctx context.Context, url string) error {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to create database pool: %w", err)
	}
	st, err := store.New(ctx, pool, c.logger)
	if err != nil {
		pool.Close()
		return err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		pool.Close()
		return err
	}
	c.DBPool = pool
	c.Store = st
	return nil
}
