package hub

// Messages are JSON text frames. Terminal bytes travel base64-encoded in
// the data field so arbitrary binary (ANSI sequences, non-UTF-8) survives
// the text frame intact.

// ClientMessage is anything a connected UI sends us.
type ClientMessage struct {
	Type string `json:"type"`
	Cols uint16 `json:"cols,omitempty"`
	Rows uint16 `json:"rows,omitempty"`
	// Data is base64-encoded input bytes for "input" messages.
	Data string `json:"data,omitempty"`
}

// OutputMessage carries one chunk of PTY output to the UI.
type OutputMessage struct {
	Type string `json:"type"`
	// Data is base64-encoded output bytes.
	Data string `json:"data"`
}

// ClosedMessage tells the UI the session ended and how.
type ClosedMessage struct {
	Type     string `json:"type"`
	ExitCode int    `json:"exit_code"`
}

// ErrorMessage reports a per-operation failure back to the UI.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
