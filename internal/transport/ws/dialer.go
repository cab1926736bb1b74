package ws

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/omochice/polyglot-chat/internal/chat"
)

// Dialer opens channels addressed by (room, username) below a base URL
// such as ws://localhost:8000/ws.
type Dialer struct {
	baseURL string
	dialer  *websocket.Dialer
	header  http.Header
}

// Option configures a Dialer.
type Option func(*Dialer)

// WithHandshakeTimeout bounds the opening handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(dl *Dialer) {
		dl.dialer.HandshakeTimeout = d
	}
}

// WithHeader adds headers to the opening request.
func WithHeader(h http.Header) Option {
	return func(dl *Dialer) {
		dl.header = h.Clone()
	}
}

// NewDialer creates a Dialer for baseURL.
func NewDialer(baseURL string, opts ...Option) *Dialer {
	d := &Dialer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// URL returns the channel address of (room, username).
func (d *Dialer) URL(room, username string) (string, error) {
	u, err := url.Parse(d.baseURL)
	if err != nil {
		return "", errors.Wrapf(err, "invalid channel base url %q", d.baseURL)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", errors.Errorf("unsupported channel scheme %q", u.Scheme)
	}
	return d.baseURL + "/" + url.PathEscape(room) + "/" + url.PathEscape(username), nil
}

// Dial opens the channel of (room, username).
func (d *Dialer) Dial(ctx context.Context, room, username string) (chat.Conn, error) {
	u, err := d.URL(room, username)
	if err != nil {
		return nil, err
	}
	conn, resp, err := d.dialer.DialContext(ctx, u, d.header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "failed to connect to %s (status %d)", u, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "failed to connect to %s", u)
	}
	return NewConn(conn), nil
}
