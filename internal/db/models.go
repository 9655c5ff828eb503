package db

import (
	"fmt"
	"time"
)

// Run records the lifecycle of one bridged session: when it started, its
// terminal dimensions, and how the child eventually exited. Terminal output
// itself is never persisted.
type Run struct {
	ID        string     `json:"id"`
	Program   string     `json:"program"`
	Cols      int        `json:"cols"`
	Rows      int        `json:"rows"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	ExitCode  *int       `json:"exit_code,omitempty"`
}

// Finished reports whether the run's child process has exited.
func (r *Run) Finished() bool {
	return r.EndedAt != nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		ts = nowUTC()
	}
	return ts.UTC().Format(time.RFC3339)
}

func parseTimestamp(v string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", v, err)
	}
	return ts, nil
}
