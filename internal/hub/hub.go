// Package hub fans PTY output out to connected websocket clients and feeds
// their start/input/resize requests into the bridge.
package hub

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
)

const defaultCoalesceInterval = 25 * time.Millisecond

// Ops is the caller-facing operation surface the hub drives. *bridge.Bridge
// satisfies it.
type Ops interface {
	Start(ctx context.Context, cols, rows uint16) error
	Write(data []byte) error
	Resize(cols, rows uint16) error
}

type Hub struct {
	token string
	ops   Ops

	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	coalescer *Coalescer // nil when coalescing is disabled

	mu      sync.RWMutex
	ctxWrap atomic.Pointer[context.Context]
	running atomic.Bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithCoalescing batches output chunks arriving within interval into one
// message. Order and byte content are preserved; only chunk boundaries
// change, which the protocol leaves opaque.
func WithCoalescing(interval time.Duration) Option {
	return func(h *Hub) {
		if interval <= 0 {
			interval = defaultCoalesceInterval
		}
		h.coalescer = NewCoalescer(interval, h.sendOutput)
	}
}

func New(token string, ops Ops, opts ...Option) *Hub {
	h := &Hub{
		token:      token,
		ops:        ops,
		clients:    make(map[string]*Client),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan []byte, 256),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetOps installs the operation surface after construction; main wires the
// bridge in once both sides exist.
func (h *Hub) SetOps(ops Ops) {
	h.ops = ops
}

func (h *Hub) getContext() context.Context {
	if ctx := h.ctxWrap.Load(); ctx != nil {
		return *ctx
	}
	return context.Background()
}

// Run owns the client registry until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.ctxWrap.Store(&ctx)
	h.running.Store(true)
	defer h.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			if h.coalescer != nil {
				h.coalescer.Flush()
			}
			h.mu.Lock()
			for _, c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[string]*Client)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			go client.writePump(h.getContext())
			go client.readPump(h.getContext())
			slog.Info("client connected", "client", client.id, "total", h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			slog.Info("client disconnected", "client", client.id, "total", h.ClientCount())

		case data := <-h.broadcast:
			h.mu.RLock()
			for _, c := range h.clients {
				select {
				case c.send <- data:
				default:
					slog.Warn("client send buffer full, dropping message", "client", c.id)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// HandleWebSocket upgrades /ws requests. The token travels in the query
// string; a mismatch is rejected before the upgrade.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" || token != h.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("websocket accept error", "error", err)
		return
	}

	client := newClient(conn, h)
	select {
	case h.register <- client:
	default:
		slog.Warn("hub not accepting connections")
		conn.Close(websocket.StatusTryAgainLater, "server busy")
	}
}

// BroadcastOutput delivers one chunk of PTY output to every client, in the
// order received. Satisfies bridge.Notifier.
func (h *Hub) BroadcastOutput(data []byte) {
	if h.coalescer != nil {
		h.coalescer.Add(data)
		return
	}
	h.sendOutput(data)
}

func (h *Hub) sendOutput(data []byte) {
	h.send(OutputMessage{
		Type: "output",
		Data: base64.StdEncoding.EncodeToString(data),
	})
}

// BroadcastClosed tells every client the session ended. Satisfies
// bridge.Notifier. Any coalesced output is flushed first so the closed
// notice never overtakes trailing output.
func (h *Hub) BroadcastClosed(exitCode int) {
	if h.coalescer != nil {
		h.coalescer.Flush()
	}
	h.send(ClosedMessage{Type: "closed", ExitCode: exitCode})
}

func (h *Hub) send(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("error marshaling message", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		slog.Warn("broadcast channel full, dropping message")
	}
}

// SendError reports a failure to a single client.
func (h *Hub) SendError(client *Client, message string) {
	data, err := json.Marshal(ErrorMessage{Type: "error", Message: message})
	if err != nil {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) isRunning() bool {
	return h.running.Load()
}

func (h *Hub) unregisterClient(c *Client) {
	if !h.isRunning() {
		c.conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	select {
	case h.unregister <- c:
	default:
		slog.Warn("unregister channel full, forcing close", "client", c.id)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}
}
