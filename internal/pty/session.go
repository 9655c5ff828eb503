package pty

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	creackpty "github.com/creack/pty"
)

// relayBufSize is the read buffer for the output relay loop. Each non-empty
// read becomes one output event; chunk boundaries carry no meaning.
const relayBufSize = 4096

// ErrClosed is returned by Write and Resize after the session has ended.
var ErrClosed = errors.New("pty: session is closed")

// Open allocates a master/slave pseudo-terminal pair sized to size.
// Failures are surfaced immediately; there are no retries.
func Open(size Winsize) (master, slave *os.File, err error) {
	master, slave, err = creackpty.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open pty: %w", err)
	}
	if err := creackpty.Setsize(master, &creackpty.Winsize{Cols: size.Cols, Rows: size.Rows}); err != nil {
		_ = master.Close()
		_ = slave.Close()
		return nil, nil, fmt.Errorf("size pty: %w", err)
	}
	return master, slave, nil
}

// Session is one PTY plus the child process bound to its slave end. The
// relay goroutine drains the master and emits events until the child exits.
type Session struct {
	spec      LaunchSpec
	startedAt time.Time

	cmd    *exec.Cmd
	master *os.File

	events chan Event

	mu        sync.Mutex
	size      Winsize
	closed    bool
	closeOnce sync.Once
}

// Start opens a PTY of the given size, spawns the launch shell bound to the
// slave end, and starts the output relay. The slave is closed in the parent
// once the child holds it; the child exiting then drives the master to EOF.
func Start(spec LaunchSpec, size Winsize) (*Session, error) {
	if size.Cols == 0 || size.Rows == 0 {
		return nil, fmt.Errorf("pty: invalid size %dx%d: cols and rows must be greater than zero", size.Cols, size.Rows)
	}

	master, slave, err := Open(size)
	if err != nil {
		return nil, err
	}

	cmd := spec.command(slave)
	if err := cmd.Start(); err != nil {
		_ = master.Close()
		_ = slave.Close()
		return nil, fmt.Errorf("spawn %s: %w", spec.shell(), err)
	}
	_ = slave.Close()

	s := &Session{
		spec:      spec,
		startedAt: time.Now(),
		cmd:       cmd,
		master:    master,
		events:    make(chan Event, 1024),
		size:      size,
	}

	go s.relay()

	return s, nil
}

// relay reads the master in fixed-size chunks and emits each non-empty read
// as one output event, byte-exact and in order. EOF and read errors end the
// loop alike: both mean the session is over. The child is then reaped and a
// final Closed event carries its exit code before the channel closes.
func (s *Session) relay() {
	buf := make([]byte, relayBufSize)
	for {
		n, err := s.master.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			s.events <- Event{Type: EventOutput, Data: data}
		}
		if err != nil {
			break
		}
	}

	code := 0
	if err := s.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.events <- Event{Type: EventClosed, ExitCode: code}
	close(s.events)
}

// Events returns the session's event stream. It is closed after the final
// Closed event.
func (s *Session) Events() <-chan Event { return s.events }

// Write sends the full byte sequence to the PTY master. os.File writes are
// unbuffered, so interactive input reaches the child without added latency.
func (s *Session) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	return s.master.Write(p)
}

// Resize propagates new dimensions to the live PTY.
func (s *Session) Resize(size Winsize) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := creackpty.Setsize(s.master, &creackpty.Winsize{Cols: size.Cols, Rows: size.Rows}); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}
	s.size = size
	return nil
}

// Size returns the current PTY dimensions.
func (s *Session) Size() Winsize {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// StartedAt returns when the session was spawned.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// IsClosed reports whether the child has exited.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close terminates the child (SIGTERM) and closes the master. The relay's
// blocked read then fails, so the loop stops without extra signalling. Safe
// to call multiple times.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		if s.cmd.Process != nil {
			_ = s.cmd.Process.Signal(syscall.SIGTERM)
		}
		err = s.master.Close()
	})
	return err
}
