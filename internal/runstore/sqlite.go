package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
	"git.home.luguber.info/inful/pagerefresh/internal/pipeline"
)

// ListOptions filters List results.
type ListOptions struct {
	// Limit caps the number of runs returned; zero means 50.
	Limit int
	// Status keeps only runs with this status when set.
	Status pipeline.RunStatus
	// Trigger keeps only runs started by this trigger kind when set.
	Trigger pipeline.TriggerKind
}

// Stats summarises the stored history.
type Stats struct {
	Total      int        `json:"total"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Commits    int        `json:"commits"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
}

// SQLiteStore persists runs using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens or creates the store at dbPath. Use ":memory:" for
// an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, errors.WrapError(err, errors.CategoryStore, "cannot create run store directory").
				WithContext("path", dbPath).
				Build()
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryStore, ErrDatabaseOpenFailed.Message()).
			WithContext("path", dbPath).
			Build()
	}
	// A single connection keeps :memory: databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, errors.WrapError(err, errors.CategoryStore, ErrInitializeSchemaFailed.Message()).Build()
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		trigger_kind TEXT NOT NULL,
		trigger_source TEXT,
		revision TEXT,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		status TEXT NOT NULL,
		committed INTEGER NOT NULL DEFAULT 0,
		commit_hash TEXT,
		published INTEGER NOT NULL DEFAULT 0,
		publish_location TEXT,
		failed_step TEXT,
		error TEXT,
		error_category TEXT,
		steps TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save inserts or replaces run.
func (s *SQLiteStore) Save(ctx context.Context, run *pipeline.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps, err := json.Marshal(run.Steps)
	if err != nil {
		return errors.WrapError(err, errors.CategoryStore, "failed to marshal run steps").Build()
	}
	var finished sql.NullInt64
	if !run.FinishedAt.IsZero() {
		finished = sql.NullInt64{Int64: run.FinishedAt.UnixMilli(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (
			id, trigger_kind, trigger_source, revision, started_at, finished_at, status,
			committed, commit_hash, published, publish_location, failed_step, error, error_category, steps
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Trigger.Kind), run.Trigger.Source, run.Trigger.Revision,
		run.StartedAt.UnixMilli(), finished, string(run.Status),
		run.Committed, run.CommitHash, run.Published, run.PublishLocation,
		string(run.FailedStep), run.Error, run.ErrorCategory, string(steps),
	)
	if err != nil {
		return errors.WrapError(err, errors.CategoryStore, "failed to save run").
			WithContext("run_id", run.ID).
			Build()
	}
	return nil
}

const selectRuns = `SELECT id, trigger_kind, trigger_source, revision, started_at, finished_at, status,
	committed, commit_hash, published, publish_location, failed_step, error, error_category, steps FROM runs`

// Get returns the run with id, or ErrRunNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*pipeline.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectRuns+" WHERE id = ?", id)
	run, err := scanRun(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound.WithContext("run_id", id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns runs newest first.
func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]*pipeline.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	var where []string
	var args []any
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(opts.Status))
	}
	if opts.Trigger != "" {
		where = append(where, "trigger_kind = ?")
		args = append(args, string(opts.Trigger))
	}
	query := selectRuns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryStore, "failed to query runs").Build()
	}
	defer func() { _ = rows.Close() }()

	var runs []*pipeline.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, errors.CategoryStore, "failed to iterate runs").Build()
	}
	return runs, nil
}

// Stats aggregates the whole history.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &Stats{}
	err := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'succeeded' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(committed), 0)
		FROM runs`).Scan(&st.Total, &st.Succeeded, &st.Failed, &st.Commits)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryStore, "failed to aggregate runs").Build()
	}

	var startedAt int64
	var status string
	err = s.db.QueryRowContext(ctx, "SELECT started_at, status FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1").Scan(&startedAt, &status)
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, errors.WrapError(err, errors.CategoryStore, "failed to read last run").Build()
	default:
		t := time.UnixMilli(startedAt).UTC()
		st.LastRunAt = &t
		st.LastStatus = status
	}
	return st, nil
}

// Prune deletes runs started before cutoff and returns how many were removed.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, errors.WrapError(err, errors.CategoryStore, "failed to prune runs").Build()
	}
	return res.RowsAffected()
}

// Handler returns a bus handler saving every finished run.
func (s *SQLiteStore) Handler() pipeline.Handler {
	return func(e pipeline.Event) error {
		rf, ok := e.(pipeline.RunFinished)
		if !ok {
			return nil
		}
		return s.Save(context.Background(), rf.Run)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*pipeline.Run, error) {
	var (
		run                                    pipeline.Run
		kind, status, failedStep, steps        string
		source, revision, commitHash, location sql.NullString
		errMsg, errCategory                    sql.NullString
		startedAt                              int64
		finishedAt                             sql.NullInt64
	)
	err := row.Scan(&run.ID, &kind, &source, &revision, &startedAt, &finishedAt, &status,
		&run.Committed, &commitHash, &run.Published, &location, &failedStep, &errMsg, &errCategory, &steps)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.WrapError(err, errors.CategoryStore, "failed to scan run").Build()
	}

	run.Trigger = pipeline.Trigger{Kind: pipeline.TriggerKind(kind), Source: source.String, Revision: revision.String}
	run.StartedAt = time.UnixMilli(startedAt).UTC()
	if finishedAt.Valid {
		run.FinishedAt = time.UnixMilli(finishedAt.Int64).UTC()
	}
	run.Status = pipeline.RunStatus(status)
	run.CommitHash = commitHash.String
	run.PublishLocation = location.String
	run.FailedStep = pipeline.StepName(failedStep)
	run.Error = errMsg.String
	run.ErrorCategory = errCategory.String
	if err := json.Unmarshal([]byte(steps), &run.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps of run %s: %w", run.ID, err)
	}
	return &run, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
