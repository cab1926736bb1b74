package devserver

import (
	"io"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// wsConn is the server side of one websocket. Writes, including the
// control replies issued while reading, are serialized.
type wsConn struct {
	conn net.Conn
	mu   sync.Mutex
}

func newWSConn(conn net.Conn) *wsConn {
	return &wsConn{conn: conn}
}

type lockedWriter struct {
	w  io.Writer
	mu *sync.Mutex
}

func (lw lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}

// read returns the payload of the next data frame.
func (c *wsConn) read() ([]byte, error) {
	rw := struct {
		io.Reader
		io.Writer
	}{c.conn, lockedWriter{w: c.conn, mu: &c.mu}}
	data, _, err := wsutil.ReadClientData(rw)
	return data, err
}

// write sends data as a text frame.
func (c *wsConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wsutil.WriteServerText(c.conn, data)
}

// closeWith sends a close frame carrying code and reason, then closes
// the connection.
func (c *wsConn) closeWith(code ws.StatusCode, reason string) error {
	c.mu.Lock()
	_ = wsutil.WriteServerMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(code, reason))
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *wsConn) close() error {
	return c.closeWith(ws.StatusNormalClosure, "")
}

func (c *wsConn) remoteAddr() string {
	return c.conn.RemoteAddr().String()
}
