// Package chattest provides in-memory implementations of chat.Conn and of a
// dialer for tests that drive the session core without sockets.
package chattest

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/omochice/polyglot-chat/internal/chat"
)

// Conn is an in-memory chat.Conn. Frames queued with Deliver are returned
// by Read in order; frames passed to Write are recorded.
type Conn struct {
	Room     string
	Username string

	reads   chan []byte
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	written [][]byte
	peerErr error
	closed  bool
}

// NewConn creates an open Conn.
func NewConn() *Conn {
	return &Conn{
		reads: make(chan []byte, 64),
		done:  make(chan struct{}),
	}
}

// Deliver queues an inbound frame.
func (c *Conn) Deliver(data []byte) {
	c.reads <- data
}

// DeliverJSON queues v encoded as an inbound frame.
func (c *Conn) DeliverJSON(t testing.TB, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to encode frame: %v", err)
	}
	c.Deliver(data)
}

// Fail simulates the peer closing the connection with code and reason.
func (c *Conn) Fail(code int, reason string) {
	c.mu.Lock()
	c.peerErr = &chat.CloseError{Code: code, Reason: reason}
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
}

// Read implements chat.Conn.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.reads:
		return data, nil
	default:
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data := <-c.reads:
		return data, nil
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.peerErr != nil {
			return nil, c.peerErr
		}
		return nil, net.ErrClosed
	}
}

// Write implements chat.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.peerErr != nil {
		return net.ErrClosed
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	c.written = append(c.written, copied)
	return nil
}

// Close implements chat.Conn.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
	return nil
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return "memory"
}

// Written returns a copy of every frame written so far.
func (c *Conn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

// WrittenStrings returns Written as strings.
func (c *Conn) WrittenStrings() []string {
	var out []string
	for _, w := range c.Written() {
		out = append(out, string(w))
	}
	return out
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Compile-time check that Conn implements chat.Conn
var _ chat.Conn = (*Conn)(nil)

// Timeout bounds every wait performed by this package.
const Timeout = time.Second
