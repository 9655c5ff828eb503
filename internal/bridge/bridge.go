// Package bridge owns the single live PTY session and exposes the three
// operations callers get: start, write, resize.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/termbridge/internal/db"
	"github.com/user/termbridge/internal/pty"
)

// Notifier receives session events for delivery to connected callers.
// *hub.Hub satisfies it.
type Notifier interface {
	BroadcastOutput(data []byte)
	BroadcastClosed(exitCode int)
}

// Status is a snapshot of the current session for the API layer.
type Status struct {
	Active    bool       `json:"active"`
	Program   string     `json:"program"`
	Cols      uint16     `json:"cols,omitempty"`
	Rows      uint16     `json:"rows,omitempty"`
	RunID     string     `json:"run_id,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// Bridge holds at most one live session. Start replaces any previous
// session explicitly: the old master is closed and its relay drained before
// the new session is installed, so stale output can never interleave with a
// fresh session's stream.
type Bridge struct {
	log  *slog.Logger
	spec pty.LaunchSpec

	notifier Notifier
	runs     *db.RunRepo // nil disables run recording

	// startMu serializes Start/Shutdown; mu guards the session slot and
	// serializes writes so no two byte sequences interleave.
	startMu sync.Mutex
	mu      sync.Mutex
	current *pty.Session
	runID   string
	done    chan struct{}
}

func New(spec pty.LaunchSpec, notifier Notifier, runs *db.RunRepo, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		log:      log,
		spec:     spec,
		notifier: notifier,
		runs:     runs,
	}
}

// Start opens a PTY sized cols x rows, spawns the configured program inside
// its launch shell, and begins relaying output to the notifier.
func (b *Bridge) Start(ctx context.Context, cols, rows uint16) error {
	if cols == 0 || rows == 0 {
		return fmt.Errorf("bridge: invalid size %dx%d: cols and rows must be greater than zero", cols, rows)
	}

	b.startMu.Lock()
	defer b.startMu.Unlock()

	b.mu.Lock()
	prev, prevDone := b.current, b.done
	b.current, b.done, b.runID = nil, nil, ""
	b.mu.Unlock()

	if prev != nil {
		// Closing the master unblocks the old relay; waiting for its
		// forwarder guarantees the old stream is silent before the new
		// session emits anything.
		_ = prev.Close()
		if prevDone != nil {
			<-prevDone
		}
		b.log.Info("previous session replaced")
	}

	sess, err := pty.Start(b.spec, pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	run := &db.Run{Program: b.spec.Program, Cols: int(cols), Rows: int(rows)}
	if b.runs != nil {
		if err := b.runs.Create(ctx, run); err != nil {
			b.log.Warn("failed to record run", "error", err)
		}
	}

	done := make(chan struct{})
	b.mu.Lock()
	b.current, b.done, b.runID = sess, done, run.ID
	b.mu.Unlock()

	go b.forward(sess, run.ID, done)

	b.log.Info("session started",
		"program", b.spec.Program, "cols", cols, "rows", rows, "run_id", run.ID)
	return nil
}

// forward drains one session's events into the notifier. It runs until the
// session's event channel closes, then clears the slot if this session is
// still the current one.
func (b *Bridge) forward(sess *pty.Session, runID string, done chan struct{}) {
	defer close(done)

	for ev := range sess.Events() {
		switch ev.Type {
		case pty.EventOutput:
			b.notifier.BroadcastOutput(ev.Data)
		case pty.EventClosed:
			b.log.Info("session ended", "exit_code", ev.ExitCode, "run_id", runID)
			if b.runs != nil && runID != "" {
				if err := b.runs.Finish(context.Background(), runID, ev.ExitCode, time.Now()); err != nil {
					b.log.Warn("failed to finish run record", "error", err)
				}
			}
			b.notifier.BroadcastClosed(ev.ExitCode)
		}
	}

	b.mu.Lock()
	if b.current == sess {
		b.current, b.done, b.runID = nil, nil, ""
	}
	b.mu.Unlock()
}

// Write sends data to the active session's input. With no active session it
// is a silent no-op success; keystrokes arriving between sessions are
// swallowed rather than failed.
func (b *Bridge) Write(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return nil
	}
	if _, err := b.current.Write(data); err != nil {
		return fmt.Errorf("write to session: %w", err)
	}
	return nil
}

// Resize propagates new dimensions to the live PTY. Like Write, it no-ops
// without an active session.
func (b *Bridge) Resize(cols, rows uint16) error {
	if cols == 0 || rows == 0 {
		return fmt.Errorf("bridge: invalid size %dx%d: cols and rows must be greater than zero", cols, rows)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		b.log.Debug("resize ignored: no active session", "cols", cols, "rows", rows)
		return nil
	}
	if err := b.current.Resize(pty.Winsize{Cols: cols, Rows: rows}); err != nil {
		return fmt.Errorf("resize session: %w", err)
	}
	return nil
}

// Status reports the current session snapshot.
func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := Status{Program: b.spec.Program}
	if b.current == nil {
		return st
	}
	size := b.current.Size()
	started := b.current.StartedAt()
	st.Active = true
	st.Cols = size.Cols
	st.Rows = size.Rows
	st.RunID = b.runID
	st.StartedAt = &started
	return st
}

// Shutdown closes the live session, if any, and waits for its relay to
// drain. Called on process exit.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.startMu.Lock()
	defer b.startMu.Unlock()

	b.mu.Lock()
	sess, done := b.current, b.done
	b.current, b.done, b.runID = nil, nil, ""
	b.mu.Unlock()

	if sess == nil {
		return nil
	}
	err := sess.Close()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
