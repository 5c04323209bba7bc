package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var traceColumns = []string{"run_id", "trace_id", "start_time", "samples"}

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "run_traces", traceColumns, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"run_traces"}, traceColumns).WillReturnResult(2)

	start := time.Date(2016, 11, 13, 11, 2, 56, 0, time.UTC)
	rows := [][]any{
		{"run-1", "NZ.KIKS..HN1", start, 4000},
		{"run-1", "NZ.KIKS..HN2", start, 4000},
	}
	n, err := CopyFrom(context.Background(), mock, "run_traces", traceColumns, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"run_traces"}, traceColumns).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{"run-1", "NZ.KIKS..HN1", time.Now(), 10}}
	_, err = CopyFrom(context.Background(), mock, "run_traces", traceColumns, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO run_traces")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_RowWidthMismatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = CopyFrom(context.Background(), mock, "run_traces", traceColumns, [][]any{{"run-1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 0 has 1 values, want 4")
	assert.NoError(t, mock.ExpectationsWereMet())
}
