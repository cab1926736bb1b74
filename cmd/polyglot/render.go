package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/omochice/polyglot-chat/internal/language"
	"github.com/omochice/polyglot-chat/internal/session"
	"github.com/omochice/polyglot-chat/pkg/protocol"
)

var (
	systemStyle   = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#8A8A8A"))
	selfStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5FAFFF"))
	authorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFAF5F"))
	avatarStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("#5F5FAF")).Padding(0, 1)
	originalStyle = lipgloss.NewStyle().Faint(true).MarginLeft(4)
	timeStyle     = lipgloss.NewStyle().Faint(true)
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F5F"))
	bannerStyle   = lipgloss.NewStyle().Bold(true).Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// renderer prints the timeline and notices. Session updates arrive on
// the session's loop while notices come from the input loop.
type renderer struct {
	mu   sync.Mutex
	w    io.Writer
	self string
}

func newRenderer(w io.Writer, self string) *renderer {
	return &renderer{w: w, self: self}
}

func (r *renderer) println(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, s)
}

// Handle implements session.Listener.
func (r *renderer) Handle(u session.Update) {
	switch u.Kind {
	case session.UpdateMessages:
		for _, m := range u.Messages {
			r.println(r.formatMessage(m))
		}
	case session.UpdateState:
		r.println(systemStyle.Render("* channel " + u.State.String()))
	case session.UpdateError:
		r.Error(u.Err)
	}
}

func (r *renderer) formatMessage(m protocol.Message) string {
	if m.Kind == protocol.KindSystem {
		return systemStyle.Render("* " + m.Content)
	}

	var b strings.Builder
	if !m.Timestamp.IsZero() {
		b.WriteString(timeStyle.Render(m.Timestamp.Local().Format("15:04")))
		b.WriteString(" ")
	}
	b.WriteString(avatarStyle.Render(language.Initials(m.Username)))
	b.WriteString(" ")
	name := authorStyle
	if m.Username == r.self {
		name = selfStyle
	}
	b.WriteString(name.Render(m.Username))
	if m.DetectedLanguage != "" {
		b.WriteString(" " + language.Flag(m.DetectedLanguage))
	}
	b.WriteString(": ")

	switch m.Kind {
	case protocol.KindFile:
		b.WriteString("📎 " + m.Filename + " (/download " + m.FileID + ")")
	case protocol.KindVoice:
		b.WriteString("🎤 " + m.Content)
		if audio, err := m.Audio(); err == nil {
			b.WriteString(fmt.Sprintf(" [%d bytes of audio]", len(audio)))
		}
	default:
		if m.Content == "" {
			b.WriteString(originalStyle.Render(m.Leftover()))
		} else {
			b.WriteString(m.Content)
		}
	}

	if m.HasOriginal() {
		b.WriteString("\n")
		b.WriteString(originalStyle.Render("↳ " + language.Flag(m.OriginalLanguage) + " " + m.OriginalContent))
	}
	return b.String()
}

func (r *renderer) Notice(s string) {
	r.println(systemStyle.Render(s))
}

func (r *renderer) Error(err error) {
	r.println(errorStyle.Render("error: " + err.Error()))
}

func (r *renderer) Banner(room, username, lang string) {
	r.println(bannerStyle.Render(fmt.Sprintf("%s as %s %s", room, username, language.Flag(lang))))
}

func (r *renderer) Languages(langs []language.Language) {
	var b strings.Builder
	for _, l := range langs {
		fmt.Fprintf(&b, "%-6s %s\n", l.Code, l)
	}
	r.println(strings.TrimRight(b.String(), "\n"))
}

func (r *renderer) Help() {
	r.println(strings.Join([]string{
		"/lang <code>                        change your reading language",
		"/langs                              list language codes",
		"/file <path>                        share a file",
		"/voice <path>                       send a voice recording",
		"/download <file-id> [dir]           save a shared file",
		"/translate <src> <dst> <recording>  translate a recording",
		"/rejoin                             reconnect after an error",
		"/quit                               leave the room",
	}, "\n"))
}
