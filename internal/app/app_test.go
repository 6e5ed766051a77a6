package app

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawldir/internal/config"
	"github.com/JakeFAU/crawldir/internal/crawler"
	"github.com/JakeFAU/crawldir/internal/storage/postgres"
)

func testConfig() config.Config {
	return config.Config{
		Aleph: config.AlephConfig{Host: "http://aleph.local", APIKey: "k", Retries: 5, TimeoutSeconds: 10, SessionID: "s-1"},
		Crawl: config.CrawlConfig{Parallelism: 1, BackoffInitialMs: 1, BackoffMaxMs: 1},
	}
}

func TestNewAppWithoutLedger(t *testing.T) {
	a, err := NewApp(context.Background(), testConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.GetLogger())
	require.Equal(t, "s-1", a.GetClient().SessionID())
	require.Equal(t, "http://aleph.local", a.GetConfig().Aleph.Host)

	rec := a.GetRecorder()
	require.Len(t, rec, 1)
	require.NoError(t, rec.Record(context.Background(), crawler.Outcome{
		CollectionID: "1",
		ForeignID:    "a",
		Status:       crawler.StatusUploaded,
	}))
	require.Len(t, a.GetOutcomes().Outcomes(), 1)
}

func TestNewAppRejectsBadHost(t *testing.T) {
	cfg := testConfig()
	cfg.Aleph.Host = "not a url"
	_, err := NewApp(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "init aleph client")
}

func TestNewAppWithLedger(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	orig := newLedger
	t.Cleanup(func() { newLedger = orig })
	var gotCfg postgres.OutcomeStoreConfig
	newLedger = func(_ context.Context, cfg postgres.OutcomeStoreConfig) (*postgres.OutcomeStore, error) {
		gotCfg = cfg
		return postgres.NewOutcomeStoreWithPool(mock, cfg.Table)
	}

	cfg := testConfig()
	cfg.Ledger = config.LedgerConfig{DSN: "postgres://db/crawl", Table: "outcomes", MaxConns: 2}
	a, err := NewApp(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, "postgres://db/crawl", gotCfg.DSN)
	require.Equal(t, int32(2), gotCfg.MaxConns)

	mock.ExpectExec("INSERT INTO outcomes").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	rec := a.GetRecorder()
	require.Len(t, rec, 2)
	require.NoError(t, rec.Record(context.Background(), crawler.Outcome{
		CollectionID: "1",
		ForeignID:    "a",
		Status:       crawler.StatusUploaded,
		RemoteID:     "doc-1",
	}))
	require.NoError(t, mock.ExpectationsWereMet())
	a.Close()
}

func TestNewAppLedgerFailure(t *testing.T) {
	orig := newLedger
	t.Cleanup(func() { newLedger = orig })
	newLedger = func(context.Context, postgres.OutcomeStoreConfig) (*postgres.OutcomeStore, error) {
		return nil, errors.New("connection refused")
	}

	cfg := testConfig()
	cfg.Ledger.DSN = "postgres://db/crawl"
	_, err := NewApp(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "init outcome ledger: connection refused")
}

func TestCloseNilSafe(t *testing.T) {
	var a *App
	a.Close()
}
