// Command devserver runs the in-memory chat backend for local use.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/omochice/polyglot-chat/internal/devserver"
)

var (
	addr         string
	glossaryPath string
	defaultLang  string
	logLevel     string
	maxUpload    int64
)

var rootCmd = &cobra.Command{
	Use:          "devserver",
	Short:        "Run an in-memory chat backend",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&addr, "addr", ":8000", "Address to listen on")
	f.StringVar(&glossaryPath, "glossary", "", "YAML glossary of phrases to translate")
	f.StringVar(&defaultLang, "default-language", "en", "Language assumed for text the glossary does not know")
	f.StringVar(&logLevel, "log-level", "info", "Log level")
	f.Int64Var(&maxUpload, "max-upload", 32<<20, "Largest accepted upload in bytes")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	lvl, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", logLevel)
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	var translator devserver.Translator = devserver.Identity{Lang: defaultLang}
	if glossaryPath != "" {
		g, err := devserver.LoadGlossary(glossaryPath)
		if err != nil {
			return err
		}
		if g.Default == "" {
			g.Default = defaultLang
		}
		translator = g
		log.Info().Str("path", glossaryPath).Int("phrases", len(g.Phrases)).Msg("glossary loaded")
	}

	srv := devserver.New(
		devserver.WithTranslator(translator),
		devserver.WithMaxUpload(maxUpload),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return srv.Start(addr)
	})
	eg.Go(func() error {
		<-egCtx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})
	return eg.Wait()
}
