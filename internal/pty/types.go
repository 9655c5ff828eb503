package pty

// EventType distinguishes the kind of event produced by a Session.
type EventType int

const (
	// EventOutput indicates that new data was read from the PTY master.
	EventOutput EventType = iota
	// EventClosed indicates that the child process has exited and the
	// relay loop has stopped.
	EventClosed
)

// Event is a single notification emitted by a Session. Output events carry
// the raw bytes exactly as read from the master, in read order. The final
// Closed event carries the child's exit code.
type Event struct {
	Type     EventType
	Data     []byte
	ExitCode int
}

// Winsize holds the terminal dimensions requested for a session.
type Winsize struct {
	Cols uint16
	Rows uint16
}
