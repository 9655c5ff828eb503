package hub

import (
	"sync"
	"time"
)

// Coalescer concatenates output chunks that arrive within one flush
// interval. Bytes are emitted exactly once, in arrival order; only the
// chunk boundaries move. It trades a little interactive latency for far
// fewer frames when the child floods the terminal.
type Coalescer struct {
	mu       sync.Mutex
	pending  []byte
	interval time.Duration
	onFlush  func(data []byte)
	timer    *time.Timer
}

func NewCoalescer(interval time.Duration, onFlush func([]byte)) *Coalescer {
	return &Coalescer{
		interval: interval,
		onFlush:  onFlush,
	}
}

// Add buffers one chunk and arms the flush timer if it isn't already.
func (c *Coalescer) Add(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending = append(c.pending, data...)
	if c.timer == nil {
		c.timer = time.AfterFunc(c.interval, c.Flush)
	}
}

// Flush emits everything buffered so far as a single chunk.
func (c *Coalescer) Flush() {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	if c.onFlush != nil && len(pending) > 0 {
		c.onFlush(pending)
	}
}
