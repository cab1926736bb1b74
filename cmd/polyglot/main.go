// Command polyglot is a terminal client for multilingual chat rooms.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "polyglot",
	Short: "Chat in a room where everyone reads in their own language",
	Long: `polyglot joins a chat room on the translation backend. Messages from
other participants are shown translated into your preferred language,
with the original text alongside. Type /help once joined for commands.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runChat,
}

func init() {
	f := rootCmd.Flags()
	f.StringP("room", "r", "", "Room to join")
	f.StringP("username", "u", "", "Name shown to other participants")
	f.StringP("language", "l", "", `Preferred language code (default "en")`)
	f.String("api-url", "", `Backend HTTP address (default "http://127.0.0.1:8000")`)
	f.String("ws-url", "", `Backend channel address (default "ws://localhost:8000/ws")`)
	f.String("log-level", "", `Log level: trace, debug, info, warn, error (default "info")`)
	f.Duration("http-timeout", 0, "Timeout of history and upload requests (default 30s)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
