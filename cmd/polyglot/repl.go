package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/omochice/polyglot-chat/internal/attachment"
	"github.com/omochice/polyglot-chat/internal/channel"
	"github.com/omochice/polyglot-chat/internal/language"
	"github.com/omochice/polyglot-chat/internal/session"
)

type command struct {
	name string
	args []string
}

// parseCommand splits a "/name arg..." line. Lines that do not start
// with a slash are chat text.
func parseCommand(line string) (command, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") || strings.HasPrefix(trimmed, "//") {
		return command{}, false
	}
	fields := strings.Fields(trimmed[1:])
	if len(fields) == 0 {
		return command{}, false
	}
	return command{name: strings.ToLower(fields[0]), args: fields[1:]}, true
}

type joiner interface {
	Join(ctx context.Context, room, username, lang string, listener session.Listener) (*session.Session, error)
}

type repl struct {
	session     *session.Session
	coordinator joiner
	submitter   *attachment.HTTPSubmitter
	out         *renderer
}

func (r *repl) handle(ctx context.Context, line string) error {
	cmd, ok := parseCommand(line)
	if !ok {
		text := line
		if strings.HasPrefix(strings.TrimSpace(line), "//") {
			text = strings.Replace(line, "/", "", 1)
		}
		if strings.TrimSpace(text) == "" {
			return nil
		}
		if !r.session.Send(text) {
			r.out.Notice("not connected (" + r.session.State().String() + "), message not sent")
		}
		return nil
	}

	switch cmd.name {
	case "quit", "exit":
		return errQuit
	case "help":
		r.out.Help()
	case "lang":
		r.changeLanguage(cmd.args)
	case "langs":
		r.out.Languages(language.All())
	case "file":
		r.upload(ctx, attachment.KindFile, cmd.args)
	case "voice":
		r.upload(ctx, attachment.KindVoice, cmd.args)
	case "download":
		r.download(ctx, cmd.args)
	case "translate":
		r.translate(ctx, cmd.args)
	case "rejoin":
		r.rejoin(ctx)
	default:
		r.out.Notice("unknown command /" + cmd.name + ", try /help")
	}
	return nil
}

func (r *repl) changeLanguage(args []string) {
	if len(args) != 1 {
		r.out.Notice("usage: /lang <code>")
		return
	}
	code := strings.ToLower(args[0])
	if _, ok := language.Lookup(code); !ok {
		r.out.Notice("unknown language " + code + ", see /langs")
		return
	}
	r.session.ChangeLanguage(code)
}

func (r *repl) upload(ctx context.Context, kind attachment.Kind, args []string) {
	if len(args) != 1 {
		r.out.Notice("usage: /" + kind.String() + " <path>")
		return
	}
	f, err := os.Open(args[0])
	if err != nil {
		r.out.Error(errors.Wrap(err, "failed to open attachment"))
		return
	}
	defer f.Close()

	ctx, cancel := withTimeout(ctx)
	defer cancel()
	if _, err := r.session.Submit(ctx, kind, filepath.Base(args[0]), f); err != nil {
		r.out.Error(err)
		return
	}
	r.out.Notice(kind.String() + " sent")
}

func (r *repl) download(ctx context.Context, args []string) {
	if len(args) < 1 || len(args) > 2 {
		r.out.Notice("usage: /download <file-id> [dir]")
		return
	}
	dir := "."
	if len(args) == 2 {
		dir = args[1]
	}

	tmp, err := os.CreateTemp(dir, ".polyglot-download-*")
	if err != nil {
		r.out.Error(errors.Wrap(err, "failed to create file"))
		return
	}
	defer os.Remove(tmp.Name())

	ctx, cancel := withTimeout(ctx)
	defer cancel()
	name, err := r.submitter.Download(ctx, args[0], tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		r.out.Error(err)
		return
	}

	dest := filepath.Join(dir, filepath.Base(name))
	if err := os.Rename(tmp.Name(), dest); err != nil {
		r.out.Error(errors.Wrap(err, "failed to save download"))
		return
	}
	r.out.Notice("saved " + dest)
}

func (r *repl) translate(ctx context.Context, args []string) {
	if len(args) != 3 {
		r.out.Notice("usage: /translate <source-lang> <target-lang> <recording>")
		return
	}
	f, err := os.Open(args[2])
	if err != nil {
		r.out.Error(errors.Wrap(err, "failed to open recording"))
		return
	}
	defer f.Close()

	ctx, cancel := withTimeout(ctx)
	defer cancel()
	res, err := r.submitter.TranslateVoice(ctx, attachment.VoiceTranslation{
		SourceLang: args[0],
		TargetLang: args[1],
		Filename:   filepath.Base(args[2]),
		Audio:      f,
	})
	if err != nil {
		r.out.Error(err)
		return
	}
	r.out.Notice(language.Flag(args[1]) + " " + res.Text)
	if len(res.Audio) > 0 {
		out := strings.TrimSuffix(args[2], filepath.Ext(args[2])) + "." + args[1] + ".mp3"
		if err := os.WriteFile(out, res.Audio, 0o600); err != nil {
			r.out.Error(errors.Wrap(err, "failed to save translated audio"))
			return
		}
		r.out.Notice("audio saved to " + out)
	}
}

func (r *repl) rejoin(ctx context.Context) {
	old := r.session
	if old.State() == channel.StateOpen {
		r.out.Notice("already connected")
		return
	}
	old.Leave()
	s, err := r.coordinator.Join(ctx, old.Room(), old.Username(), old.Language(), r.out.Handle)
	if err != nil {
		r.out.Error(err)
		return
	}
	r.session = s
	r.out.Notice("rejoining " + s.Room())
}
