// ABOUTME: Websocket-backed implementation of the agent connection handle.
// ABOUTME: Serializes writes and tracks liveness so stale connections are detectable.

package control

import (
	"sync"

	"github.com/gorilla/websocket"
)

// wsConn adapts a gorilla websocket connection to agent.Conn. Writes are
// serialized through a mutex: the control handler's replies and the
// distribution service's pushes share one connection.
type wsConn struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

// WriteJSON marshals v and sends it as one text message. A write failure
// marks the connection closed so the registry can evict it.
func (c *wsConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return websocket.ErrCloseSent
	}
	if err := c.conn.WriteJSON(v); err != nil {
		c.closed = true
		return err
	}
	return nil
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *wsConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
