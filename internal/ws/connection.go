package ws

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Connection wraps a single WebSocket connection with a write mutex for
// serializing outbound frames and a per-send deadline so that a slow
// receiver can never block a writer indefinitely.
type Connection struct {
	conn         net.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex // serializes writes to this connection
}

// NewConnection wraps an upgraded network connection. A zero writeTimeout
// disables the per-send deadline.
func NewConnection(conn net.Conn, writeTimeout time.Duration) *Connection {
	return &Connection{conn: conn, writeTimeout: writeTimeout}
}

// WriteMessage sends a WebSocket text frame on this connection. The write
// mutex ensures that concurrent goroutines do not interleave frame bytes;
// the write deadline bounds how long any single send may take.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return wsutil.WriteServerMessage(c.conn, ws.OpText, data)
}

// WriteClose sends a close frame with the given status code and reason.
// Used to refuse admission with a cause the client can distinguish.
func (c *Connection) WriteClose(code uint16, reason string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	frame := ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusCode(code), reason))
	return ws.WriteFrame(c.conn, frame)
}

// ReadMessage blocks until the next client data frame arrives and returns
// its payload. Transport-level control frames other than close are skipped:
// the wire protocol runs its keepalive as JSON events, so there is nothing
// to answer here. A close frame surfaces as io.EOF.
func (c *Connection) ReadMessage() ([]byte, error) {
	for {
		header, reader, err := wsutil.NextReader(c.conn, ws.StateServerSide)
		if err != nil {
			return nil, err
		}

		if header.OpCode.IsControl() {
			if header.OpCode == ws.OpClose {
				return nil, io.EOF
			}
			// Ping/pong control frames prove liveness, nothing else to do.
			if _, err := io.Copy(io.Discard, reader); err != nil {
				return nil, err
			}
			continue
		}

		data := make([]byte, header.Length)
		if header.Length > 0 {
			if _, err := io.ReadFull(reader, data); err != nil {
				return nil, err
			}
		}
		return data, nil
	}
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.conn.Close()
}
