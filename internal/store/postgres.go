package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"

	"github.com/sells-group/gmprocess-cli/internal/db"
	"github.com/sells-group/gmprocess-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	clock   clockwork.Clock
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig, opts ...Option) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresWithPool(pool, pool.Close, opts...), nil
}

func newPostgresWithPool(pool db.Pool, closeFn func(), opts ...Option) *PostgresStore {
	o := applyOptions(opts)
	return &PostgresStore{pool: pool, clock: o.clock, closeFn: closeFn}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	agency      TEXT NOT NULL,
	origin      JSONB NOT NULL,
	status      TEXT NOT NULL DEFAULT 'queued',
	event       JSONB,
	event_count INTEGER NOT NULL DEFAULT 0,
	file_count  INTEGER NOT NULL DEFAULT 0,
	trace_count INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_traces (
	run_id        TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	trace_id      TEXT NOT NULL,
	station       TEXT NOT NULL,
	channel       TEXT NOT NULL,
	start_time    TIMESTAMPTZ NOT NULL,
	sampling_rate DOUBLE PRECISION NOT NULL,
	samples       INTEGER NOT NULL,
	source        TEXT NOT NULL DEFAULT '',
	seq           BIGSERIAL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_agency ON runs(agency);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_run_traces_run_id ON run_traces(run_id);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, agency string, origin model.Origin) (*model.Run, error) {
	id := uuid.New().String()
	now := s.clock.Now().UTC()

	originJSON, err := json.Marshal(origin)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal origin")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, agency, origin, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, agency, originJSON, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
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

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), s.clock.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	if result == nil {
		result = &model.RunResult{}
	}
	var eventJSON []byte
	if result.Event != nil {
		b, err := json.Marshal(result.Event)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal event")
		}
		eventJSON = b
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, event = $2, event_count = $3, file_count = $4, trace_count = $5, error = '', updated_at = $6 WHERE id = $7`,
		string(model.RunStatusComplete), eventJSON, result.EventCount, result.FileCount, result.TraceCount, s.clock.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, cause error) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), errorText(cause), s.clock.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

const postgresRunColumns = `id, agency, origin, status, event, event_count, file_count, trace_count, error, created_at, updated_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+postgresRunColumns+` FROM runs WHERE id = $1`, runID)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Agency != "" {
		query += fmt.Sprintf(` AND agency = $%d`, argIdx)
		args = append(args, filter.Agency)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) CountRuns(ctx context.Context) (map[model.RunStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count runs")
	}
	defer rows.Close()

	counts := make(map[model.RunStatus]int)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run count")
		}
		counts[model.RunStatus(status)] = int(n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count runs iterate")
}

var traceColumns = []string{"run_id", "trace_id", "station", "channel", "start_time", "sampling_rate", "samples", "source"}

func (s *PostgresStore) RecordTraces(ctx context.Context, runID string, traces []model.TraceRecord) (int64, error) {
	rows := make([][]any, 0, len(traces))
	for _, tr := range traces {
		rows = append(rows, []any{runID, tr.TraceID, tr.Station, tr.Channel, tr.StartTime.UTC(), tr.SamplingRate, tr.Samples, tr.Source})
	}
	n, err := db.CopyFrom(ctx, s.pool, "run_traces", traceColumns, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: record traces for run %s", runID)
	}
	return n, nil
}

func (s *PostgresStore) ListTraces(ctx context.Context, runID string) ([]model.TraceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, trace_id, station, channel, start_time, sampling_rate, samples, source
		 FROM run_traces WHERE run_id = $1 ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list traces %s", runID)
	}
	defer rows.Close()

	var out []model.TraceRecord
	for rows.Next() {
		var tr model.TraceRecord
		if err := rows.Scan(&tr.RunID, &tr.TraceID, &tr.Station, &tr.Channel, &tr.StartTime, &tr.SamplingRate, &tr.Samples, &tr.Source); err != nil {
			return nil, eris.Wrap(err, "postgres: scan trace")
		}
		out = append(out, tr)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list traces iterate")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var originJSON []byte
	var eventJSON []byte
	var status string

	if err := row.Scan(&r.ID, &r.Agency, &originJSON, &status, &eventJSON,
		&r.EventCount, &r.FileCount, &r.TraceCount, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)

	if err := json.Unmarshal(originJSON, &r.Origin); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal origin")
	}
	if len(eventJSON) > 0 {
		r.Event = &model.CandidateEvent{}
		if err := json.Unmarshal(eventJSON, r.Event); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal event")
		}
	}
	return &r, nil
}
