// Package history loads the past messages of a room.
package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/omochice/polyglot-chat/internal/backend"
	"github.com/omochice/polyglot-chat/pkg/protocol"
)

// Loader fetches the ordered history of a room.
type Loader interface {
	Load(ctx context.Context, room string) ([]protocol.Message, error)
}

// FetchError reports that the history of Room could not be loaded.
type FetchError struct {
	Room string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch chat history of %s: %v", e.Room, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// HTTPLoader loads history from GET /history/{room}.
type HTTPLoader struct {
	client *backend.Client
	logger zerolog.Logger
}

// Option configures an HTTPLoader.
type Option func(*HTTPLoader)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *HTTPLoader) {
		l.logger = logger
	}
}

// NewHTTPLoader creates an HTTPLoader.
func NewHTTPLoader(client *backend.Client, opts ...Option) *HTTPLoader {
	l := &HTTPLoader{
		client: client,
		logger: log.Logger.With().Str("component", "history").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load implements Loader. Entries keep the order the backend returned.
// Entries that are not JSON objects are skipped.
func (l *HTTPLoader) Load(ctx context.Context, room string) ([]protocol.Message, error) {
	var frames []json.RawMessage
	if err := l.client.GetJSON(ctx, l.client.URL("history", room), &frames); err != nil {
		return nil, &FetchError{Room: room, Err: err}
	}

	msgs := make([]protocol.Message, 0, len(frames))
	for i, frame := range frames {
		msg, err := protocol.Classify(frame)
		if err != nil {
			l.logger.Warn().Err(errors.Wrapf(err, "entry %d", i)).Str("room", room).Msg("dropping undecodable history entry")
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, room string) ([]protocol.Message, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context, room string) ([]protocol.Message, error) {
	return f(ctx, room)
}
