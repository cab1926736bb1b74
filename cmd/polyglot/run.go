package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/omochice/polyglot-chat/internal/attachment"
	"github.com/omochice/polyglot-chat/internal/backend"
	"github.com/omochice/polyglot-chat/internal/config"
	"github.com/omochice/polyglot-chat/internal/history"
	"github.com/omochice/polyglot-chat/internal/session"
	"github.com/omochice/polyglot-chat/internal/transport/ws"
)

var errQuit = errors.New("quit")

func setupLogging(level string, w io.Writer) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	return nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.LogLevel, os.Stderr); err != nil {
		return err
	}
	if cfg.Room == "" || cfg.Username == "" {
		return errors.New("room and username are required (--room, --username)")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := backend.New(cfg.APIURL, backend.WithTimeout(cfg.HTTPTimeout))
	submitter := attachment.NewHTTPSubmitter(api)
	coordinator := session.NewCoordinator(ws.NewDialer(cfg.WSURL), history.NewHTTPLoader(api), submitter)
	defer coordinator.Close()

	out := newRenderer(os.Stdout, cfg.Username)
	s, err := coordinator.Join(ctx, cfg.Room, cfg.Username, cfg.Language, out.Handle)
	if err != nil {
		return errors.Wrapf(err, "failed to join %s", cfg.Room)
	}
	out.Banner(cfg.Room, cfg.Username, cfg.Language)

	r := &repl{session: s, coordinator: coordinator, submitter: submitter, out: out}
	lines := readLines(os.Stdin)

	err = loop(ctx, r, lines)
	r.session.Leave()
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}

// loop dispatches input lines until ctx is cancelled or input ends.
func loop(ctx context.Context, r *repl, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return errQuit
			}
			if err := r.handle(ctx, line); err != nil {
				return err
			}
		}
	}
}

// readLines feeds stdin lines into a channel closed on EOF.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			log.Warn().Err(err).Msg("error reading input")
		}
	}()
	return lines
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 2*time.Minute)
}
