package chattest

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/omochice/polyglot-chat/internal/chat"
)

type dialRequest struct {
	room     string
	username string
	reply    chan dialReply
}

type dialReply struct {
	conn chat.Conn
	err  error
}

// Dialer hands out in-memory connections. Every Dial blocks until the test
// completes it with Accept or Reject, so tests control when a channel opens.
type Dialer struct {
	requests chan dialRequest
	count    atomic.Int32
}

// NewDialer creates a Dialer.
func NewDialer() *Dialer {
	return &Dialer{requests: make(chan dialRequest, 16)}
}

// Dial implements the channel dialer contract.
func (d *Dialer) Dial(ctx context.Context, room, username string) (chat.Conn, error) {
	d.count.Add(1)
	req := dialRequest{room: room, username: username, reply: make(chan dialReply, 1)}
	select {
	case d.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.conn, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Accept completes the next pending dial with a fresh Conn.
func (d *Dialer) Accept(t testing.TB) *Conn {
	t.Helper()
	req := d.next(t)
	conn := NewConn()
	conn.Room = req.room
	conn.Username = req.username
	req.reply <- dialReply{conn: conn}
	return conn
}

// AcceptConn completes the next pending dial with conn.
func (d *Dialer) AcceptConn(t testing.TB, conn chat.Conn) {
	t.Helper()
	req := d.next(t)
	req.reply <- dialReply{conn: conn}
}

// Reject fails the next pending dial with err.
func (d *Dialer) Reject(t testing.TB, err error) {
	t.Helper()
	req := d.next(t)
	req.reply <- dialReply{err: err}
}

// Dials returns how many times Dial was called.
func (d *Dialer) Dials() int {
	return int(d.count.Load())
}

func (d *Dialer) next(t testing.TB) dialRequest {
	t.Helper()
	select {
	case req := <-d.requests:
		return req
	case <-time.After(Timeout):
		t.Fatal("timeout waiting for dial")
		return dialRequest{}
	}
}
