package pty

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// testSpec launches /bin/true inside /bin/sh so the session lands in an
// interactive shell immediately.
func testSpec() LaunchSpec {
	return LaunchSpec{Program: "/bin/true", Shell: "/bin/sh"}
}

// collectUntil drains session events, accumulating output bytes, until the
// predicate matches, the session closes, or the timeout fires. It returns
// the accumulated output and the exit code (valid only when closed is true).
func collectUntil(t *testing.T, s *Session, timeout time.Duration, match func([]byte) bool) (out []byte, closed bool, exitCode int) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return out, true, exitCode
			}
			switch ev.Type {
			case EventOutput:
				out = append(out, ev.Data...)
				if match != nil && match(out) {
					return out, false, 0
				}
			case EventClosed:
				exitCode = ev.ExitCode
			}
		case <-deadline:
			t.Fatalf("timed out waiting for session events; output so far: %q", out)
		}
	}
}

func TestStartRejectsZeroSize(t *testing.T) {
	if _, err := Start(testSpec(), Winsize{Cols: 0, Rows: 24}); err == nil {
		t.Fatal("expected error for zero cols, got nil")
	}
	if _, err := Start(testSpec(), Winsize{Cols: 80, Rows: 0}); err == nil {
		t.Fatal("expected error for zero rows, got nil")
	}
}

// TestSessionEchoRoundTrip starts a session, types an echo command into the
// shell that follows the program, and verifies the output comes back.
func TestSessionEchoRoundTrip(t *testing.T) {
	s, err := Start(testSpec(), Winsize{Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	if _, err := s.Write([]byte("echo termbridge-ok\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	out, _, _ := collectUntil(t, s, 5*time.Second, func(b []byte) bool {
		return bytes.Contains(b, []byte("termbridge-ok"))
	})
	if !bytes.Contains(out, []byte("termbridge-ok")) {
		t.Errorf("output does not contain echo result: %q", out)
	}
}

// TestSessionSurvivesProgramFailure runs /bin/false as the program and
// verifies the user still lands in a live shell (|| true semantics).
func TestSessionSurvivesProgramFailure(t *testing.T) {
	spec := LaunchSpec{Program: "/bin/false", Shell: "/bin/sh"}
	s, err := Start(spec, Winsize{Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	if _, err := s.Write([]byte("echo still-alive\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	out, _, _ := collectUntil(t, s, 5*time.Second, func(b []byte) bool {
		return bytes.Contains(b, []byte("still-alive"))
	})
	if !bytes.Contains(out, []byte("still-alive")) {
		t.Errorf("shell did not survive program failure; output: %q", out)
	}
}

// TestSessionEscapeSequencePassthrough verifies ANSI escape bytes reach the
// caller untransformed.
func TestSessionEscapeSequencePassthrough(t *testing.T) {
	s, err := Start(testSpec(), Winsize{Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	if _, err := s.Write([]byte("printf 'X\\033[31mY\\033[0mZ\\n'\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := []byte("X\x1b[31mY\x1b[0mZ")
	out, _, _ := collectUntil(t, s, 5*time.Second, func(b []byte) bool {
		return bytes.Contains(b, want)
	})
	if !bytes.Contains(out, want) {
		t.Errorf("escape sequence was transformed; output: %q", out)
	}
}

// TestSessionExitClosesEvents types "exit" and verifies the relay emits a
// Closed event with the shell's exit code, then closes the channel.
func TestSessionExitClosesEvents(t *testing.T) {
	s, err := Start(testSpec(), Winsize{Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := s.Write([]byte("exit 3\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	_, closed, exitCode := collectUntil(t, s, 5*time.Second, nil)
	if !closed {
		t.Fatal("events channel did not close after exit")
	}
	if exitCode != 3 {
		t.Errorf("exit code = %d, want 3", exitCode)
	}
	if !s.IsClosed() {
		t.Error("IsClosed() = false after exit")
	}
}

// TestSessionCloseStopsRelay closes the session from the parent side and
// verifies the relay loop terminates (events channel closes).
func TestSessionCloseStopsRelay(t *testing.T) {
	s, err := Start(testSpec(), Winsize{Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Second close must not panic.
	_ = s.Close()

	_, closed, _ := collectUntil(t, s, 5*time.Second, nil)
	if !closed {
		t.Fatal("events channel did not close after Close")
	}

	if _, err := s.Write([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Write after Close: err = %v, want ErrClosed", err)
	}
	if err := s.Resize(Winsize{Cols: 100, Rows: 30}); !errors.Is(err, ErrClosed) {
		t.Errorf("Resize after Close: err = %v, want ErrClosed", err)
	}
}

// TestSessionResize changes the live PTY dimensions.
func TestSessionResize(t *testing.T) {
	s, err := Start(testSpec(), Winsize{Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	if err := s.Resize(Winsize{Cols: 200, Rows: 50}); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if got := s.Size(); got.Cols != 200 || got.Rows != 50 {
		t.Errorf("Size() = %dx%d, want 200x50", got.Cols, got.Rows)
	}
}
