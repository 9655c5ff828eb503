package hub

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"time"

	"nhooyr.io/websocket"
)

type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

func newClient(conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		id:   generateID(),
		conn: conn,
		send: make(chan []byte, 256),
		hub:  hub,
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregisterClient(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(32768)

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				slog.Debug("client read error", "client", c.id, "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("client sent invalid message", "client", c.id, "error", err)
			c.hub.SendError(c, "invalid message format")
			continue
		}

		c.dispatch(ctx, msg)
	}
}

func (c *Client) dispatch(ctx context.Context, msg ClientMessage) {
	if c.hub.ops == nil {
		c.hub.SendError(c, "server not ready")
		return
	}

	switch msg.Type {
	case "start":
		if err := c.hub.ops.Start(ctx, msg.Cols, msg.Rows); err != nil {
			c.hub.SendError(c, err.Error())
		}
	case "input":
		raw, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			c.hub.SendError(c, "input data is not valid base64")
			return
		}
		if err := c.hub.ops.Write(raw); err != nil {
			c.hub.SendError(c, err.Error())
		}
	case "resize":
		if err := c.hub.ops.Resize(msg.Cols, msg.Rows); err != nil {
			c.hub.SendError(c, err.Error())
		}
	default:
		c.hub.SendError(c, "unknown message type: "+msg.Type)
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}
}

func generateID() string {
	return time.Now().Format("20060102150405") + "-" + randomString(6)
}

func randomString(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	rand.Read(b)
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b)
}
