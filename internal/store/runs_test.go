package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/procurio/ted-harvester/internal/ted"
)

func TestRecordRunInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewRunStoreWithPool(mock, "harvest_runs")
	require.NoError(t, err)

	started := time.Unix(1700000000, 0).UTC()
	summary := ted.RunSummary{
		RunID:      "run-1",
		Query:      "(publication-date >=20240501<=20240531)",
		Matched:    12,
		Rows:       10,
		Skips:      []ted.Skip{{PublicationNumber: "00123-2024", Reason: "document not found"}},
		OutputPath: "out.xlsx",
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
	}

	mock.ExpectExec("INSERT INTO harvest_runs").
		WithArgs(
			summary.RunID,
			summary.Query,
			summary.Matched,
			summary.Rows,
			[]byte(`[{"publication_number":"00123-2024","reason":"document not found"}]`),
			summary.OutputPath,
			summary.StartedAt,
			summary.FinishedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.RecordRun(context.Background(), summary))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRunRequiresRunID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewRunStoreWithPool(mock, "harvest_runs")
	require.NoError(t, err)

	require.Error(t, s.RecordRun(context.Background(), ted.RunSummary{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRunStoreWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewRunStoreWithPool(mock, "harvest_runs; DROP TABLE x")
	require.Error(t, err)

	s, err := NewRunStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, "harvest_runs", s.table)
}
