// Package app initializes and holds long-lived services for one crawldir
// invocation, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawldir/internal/aleph"
	"github.com/JakeFAU/crawldir/internal/config"
	"github.com/JakeFAU/crawldir/internal/crawler"
	"github.com/JakeFAU/crawldir/internal/logging"
	"github.com/JakeFAU/crawldir/internal/storage/memory"
	"github.com/JakeFAU/crawldir/internal/storage/postgres"
)

// App holds the services shared by the CLI commands.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	client   *aleph.Client
	outcomes *memory.OutcomeStore
	ledger   *postgres.OutcomeStore
}

// newLedger is swapped in tests.
var newLedger = func(ctx context.Context, cfg postgres.OutcomeStoreConfig) (*postgres.OutcomeStore, error) {
	return postgres.NewOutcomeStore(ctx, cfg)
}

// NewApp builds the Aleph client and outcome recorders from cfg. It fails
// fast when a configured service cannot be reached.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	logger = logging.OrNop(logger)
	client, err := aleph.NewClient(aleph.Config{
		Host:      cfg.Aleph.Host,
		APIKey:    cfg.Aleph.APIKey,
		SessionID: cfg.Aleph.SessionID,
		Timeout:   cfg.Timeout(),
	}, logger.Named("aleph"))
	if err != nil {
		return nil, fmt.Errorf("init aleph client: %w", err)
	}
	a := &App{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		outcomes: memory.NewOutcomeStore(),
	}
	if cfg.Ledger.DSN != "" {
		ledger, err := newLedger(ctx, postgres.OutcomeStoreConfig{
			DSN:      cfg.Ledger.DSN,
			Table:    cfg.Ledger.Table,
			MaxConns: cfg.Ledger.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init outcome ledger: %w", err)
		}
		logger.Info("recording outcomes to postgres", zap.String("table", cfg.Ledger.Table))
		a.ledger = ledger
	}
	logger.Debug("application services initialized", zap.String("session_id", client.SessionID()))
	return a, nil
}

// GetLogger returns the shared logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetConfig returns the loaded configuration.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetClient returns the Aleph client.
func (a *App) GetClient() *aleph.Client {
	return a.client
}

// GetIngester returns the client as the crawler sees it.
func (a *App) GetIngester() crawler.Ingester {
	return a.client
}

// GetOutcomes returns the in-memory outcome store fed by GetRecorder.
func (a *App) GetOutcomes() *memory.OutcomeStore {
	return a.outcomes
}

// GetRecorder returns a recorder writing to every configured outcome sink.
func (a *App) GetRecorder() crawler.MultiRecorder {
	recorders := crawler.MultiRecorder{a.outcomes}
	if a.ledger != nil {
		recorders = append(recorders, a.ledger)
	}
	return recorders
}

// Close releases the services. It is safe to call on a partially built App.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.ledger != nil {
		a.ledger.Close()
	}
	if a.logger != nil {
		// Sync fails on terminals; nothing useful can be done about it.
		_ = a.logger.Sync()
	}
}
