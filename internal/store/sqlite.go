package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/gmprocess-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db    *sql.DB
	clock clockwork.Clock
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	o := applyOptions(opts)
	return &SQLiteStore{db: db, clock: o.clock}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	agency      TEXT NOT NULL,
	origin      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'queued',
	event       TEXT,
	event_count INTEGER NOT NULL DEFAULT 0,
	file_count  INTEGER NOT NULL DEFAULT 0,
	trace_count INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS run_traces (
	run_id        TEXT NOT NULL REFERENCES runs(id),
	trace_id      TEXT NOT NULL,
	station       TEXT NOT NULL,
	channel       TEXT NOT NULL,
	start_time    DATETIME NOT NULL,
	sampling_rate REAL NOT NULL,
	samples       INTEGER NOT NULL,
	source        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_agency ON runs(agency);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_run_traces_run_id ON run_traces(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, agency string, origin model.Origin) (*model.Run, error) {
	id := uuid.New().String()
	now := s.clock.Now().UTC()

	originJSON, err := json.Marshal(origin)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal origin")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, agency, origin, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, agency, string(originJSON), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Agency:    agency,
		Origin:    origin,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), s.clock.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	if result == nil {
		result = &model.RunResult{}
	}
	eventJSON, err := marshalEvent(result.Event)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal event")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, event = ?, event_count = ?, file_count = ?, trace_count = ?, error = '', updated_at = ? WHERE id = ?`,
		string(model.RunStatusComplete), eventJSON, result.EventCount, result.FileCount, result.TraceCount, s.clock.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, cause error) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), errorText(cause), s.clock.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

const sqliteRunColumns = `id, agency, origin, status, event, event_count, file_count, trace_count, error, created_at, updated_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Agency != "" {
		query += ` AND agency = ?`
		args = append(args, filter.Agency)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) CountRuns(ctx context.Context) (map[model.RunStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count runs")
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[model.RunStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run count")
		}
		counts[model.RunStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count runs iterate")
}

func (s *SQLiteStore) RecordTraces(ctx context.Context, runID string, traces []model.TraceRecord) (int64, error) {
	if len(traces) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin record traces")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_traces (run_id, trace_id, station, channel, start_time, sampling_rate, samples, source) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare record traces")
	}
	defer stmt.Close() //nolint:errcheck

	for _, tr := range traces {
		if _, err := stmt.ExecContext(ctx,
			runID, tr.TraceID, tr.Station, tr.Channel, tr.StartTime.UTC(), tr.SamplingRate, tr.Samples, tr.Source,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert trace %s", tr.TraceID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit record traces")
	}
	return int64(len(traces)), nil
}

func (s *SQLiteStore) ListTraces(ctx context.Context, runID string) ([]model.TraceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, trace_id, station, channel, start_time, sampling_rate, samples, source
		 FROM run_traces WHERE run_id = ? ORDER BY rowid`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list traces %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.TraceRecord
	for rows.Next() {
		var tr model.TraceRecord
		if err := rows.Scan(&tr.RunID, &tr.TraceID, &tr.Station, &tr.Channel, &tr.StartTime, &tr.SamplingRate, &tr.Samples, &tr.Source); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan trace")
		}
		out = append(out, tr)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list traces iterate")
}

// helpers

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func marshalEvent(ev *model.CandidateEvent) (*string, error) {
	if ev == nil {
		return nil, nil
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var originJSON string
	var eventJSON sql.NullString
	var status string

	err := row.Scan(&r.ID, &r.Agency, &originJSON, &status, &eventJSON,
		&r.EventCount, &r.FileCount, &r.TraceCount, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.Status = model.RunStatus(status)

	if err := json.Unmarshal([]byte(originJSON), &r.Origin); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal origin")
	}
	if eventJSON.Valid {
		r.Event = &model.CandidateEvent{}
		if err := json.Unmarshal([]byte(eventJSON.String), r.Event); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal event")
		}
	}
	return &r, nil
}
