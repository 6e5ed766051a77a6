package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawldir/internal/crawler"
)

func TestRecordUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewOutcomeStoreWithPool(mock, "")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	outcome := crawler.Outcome{
		CollectionID: "42",
		ForeignID:    "jan/week1/1.txt",
		Path:         "/data/jan/week1/1.txt",
		RemoteID:     "doc-9",
		Status:       crawler.StatusUploaded,
		Attempts:     2,
		At:           now,
	}
	remoteID := "doc-9"

	mock.ExpectExec("INSERT INTO crawl_outcomes").
		WithArgs(
			outcome.CollectionID,
			outcome.ForeignID,
			outcome.Path,
			false,
			&remoteID,
			"uploaded",
			2,
			(*string)(nil),
			now,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Record(context.Background(), outcome))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordWrapsExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewOutcomeStoreWithPool(mock, "outcomes")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO outcomes").WillReturnError(errors.New("boom"))

	err = store.Record(context.Background(), crawler.Outcome{
		CollectionID: "1",
		ForeignID:    "a",
		Status:       crawler.StatusFailed,
		Error:        "denied",
	})
	require.ErrorContains(t, err, "upsert outcome: boom")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRequiresKeys(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewOutcomeStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Error(t, store.Record(context.Background(), crawler.Outcome{ForeignID: "a"}))

	var nilStore *OutcomeStore
	require.ErrorContains(t, nilStore.Record(context.Background(), crawler.Outcome{}), "not configured")
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewOutcomeStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS crawl_outcomes").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreConstructionValidation(t *testing.T) {
	t.Parallel()

	_, err := NewOutcomeStoreWithPool(nil, "")
	require.ErrorContains(t, err, "pool is required")

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewOutcomeStoreWithPool(mock, "bad-name;drop")
	require.ErrorContains(t, err, "invalid table name")

	_, err = NewOutcomeStore(context.Background(), OutcomeStoreConfig{})
	require.ErrorContains(t, err, "ledger.dsn is required")

	_, err = NewOutcomeStore(context.Background(), OutcomeStoreConfig{DSN: "postgres://x", Table: "1bad"})
	require.ErrorContains(t, err, "invalid table name")
}

func TestCloseNilSafe(t *testing.T) {
	t.Parallel()

	var s *OutcomeStore
	s.Close()
}
