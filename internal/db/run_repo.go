package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type RunRepo struct {
	db *sql.DB
}

func NewRunRepo(db *sql.DB) *RunRepo {
	return &RunRepo{db: db}
}

func (r *RunRepo) Create(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = nowUTC()
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO runs (id, program, cols, rows, started_at)
VALUES (?, ?, ?, ?, ?)
`, run.ID, run.Program, run.Cols, run.Rows, formatTimestamp(run.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (r *RunRepo) Finish(ctx context.Context, id string, exitCode int, endedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE runs SET ended_at = ?, exit_code = ? WHERE id = ?
`, formatTimestamp(endedAt), exitCode, id)
	if err != nil {
		return fmt.Errorf("failed to finish run %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check finish for run %q: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("run %q not found", id)
	}
	return nil
}

func (r *RunRepo) Get(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, program, cols, rows, started_at, ended_at, exit_code
FROM runs
WHERE id = ?
`, id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run %q: %w", id, err)
	}
	return run, nil
}

func (r *RunRepo) ListRecent(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, program, cols, rows, started_at, ended_at, exit_code
FROM runs
ORDER BY started_at DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var startedAtRaw string
	var endedAtRaw sql.NullString
	var exitCode sql.NullInt64

	if err := row.Scan(&run.ID, &run.Program, &run.Cols, &run.Rows, &startedAtRaw, &endedAtRaw, &exitCode); err != nil {
		return nil, err
	}

	startedAt, err := parseTimestamp(startedAtRaw)
	if err != nil {
		return nil, err
	}
	run.StartedAt = startedAt

	if endedAtRaw.Valid {
		endedAt, err := parseTimestamp(endedAtRaw.String)
		if err != nil {
			return nil, err
		}
		run.EndedAt = &endedAt
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		run.ExitCode = &code
	}
	return &run, nil
}
