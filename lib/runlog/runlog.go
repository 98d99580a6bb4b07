package runlog

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	_ "embed"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Store is a local ledger of per-record outcomes across runs. it is
// best-effort: a failed ledger write logs a warning and never fails the
// record that produced it.
type Store struct {
	db *sql.DB
}

func Open(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return Store{}, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return Store{}, err
	}
	return Store{db: db}, nil
}

func (s Store) Close() error {
	return s.db.Close()
}

func (s Store) Begin(ctx context.Context, stage string) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs (stage, started_at) VALUES (?, ?)`,
		stage, time.Now().Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s Store) Note(ctx context.Context, runId int64, key, outcome, reason string, elapsed time.Duration) {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO records (run_id, key, outcome, reason, elapsed_ms) VALUES (?, ?, ?, ?, ?)`,
		runId, key, outcome, reason, elapsed.Milliseconds(),
	)
	if err != nil {
		slog.WarnContext(ctx, "failed to note record outcome", "key", key, "err", err)
	}
}

type Summary struct {
	Processed int
	Skipped   int
	Failed    int
}

func (s Store) Finish(ctx context.Context, runId int64, sum Summary) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET finished_at = ?, processed = ?, skipped = ?, failed = ? WHERE id = ?`,
		time.Now().Unix(), sum.Processed, sum.Skipped, sum.Failed, runId,
	)
	return err
}

type Run struct {
	Id         int64
	Stage      string
	StartedAt  time.Time
	FinishedAt *time.Time
	Summary    Summary
}

// LastRun returns the most recent finished run for a stage, or nil when
// the ledger has none.
func (s Store) LastRun(ctx context.Context, stage string) (*Run, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, stage, started_at, finished_at, processed, skipped, failed
		 FROM runs WHERE stage = ? AND finished_at IS NOT NULL
		 ORDER BY id DESC LIMIT 1`,
		stage,
	)

	var out Run
	var started int64
	var finished sql.NullInt64
	err := row.Scan(
		&out.Id, &out.Stage, &started, &finished,
		&out.Summary.Processed, &out.Summary.Skipped, &out.Summary.Failed,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out.StartedAt = time.Unix(started, 0)
	if finished.Valid {
		at := time.Unix(finished.Int64, 0)
		out.FinishedAt = &at
	}
	return &out, nil
}

// Failures lists the failed record keys and reasons for a run.
func (s Store) Failures(ctx context.Context, runId int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT key, reason FROM records WHERE run_id = ? AND outcome = ?`,
		runId, OutcomeFailed,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var key, reason string
		if err := rows.Scan(&key, &reason); err != nil {
			return nil, err
		}
		out[key] = reason
	}
	return out, rows.Err()
}
