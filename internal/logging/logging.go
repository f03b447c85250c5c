package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
	"golang.org/x/term"
)

// Log formats.
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// Options configures the global logger.
type Options struct {
	Verbose bool
	// Format is auto, text or json. Auto picks text on a terminal and JSON otherwise.
	Format string
}

// Setup initializes the global slog logger using charmbracelet/log as the backend.
func Setup(opts Options) {
	slog.SetDefault(slog.New(newHandler(os.Stderr, opts, isTerminal())))
}

func newHandler(w io.Writer, opts Options, tty bool) *charmlog.Logger {
	handler := charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
	})

	if opts.Verbose {
		handler.SetLevel(charmlog.DebugLevel)
	} else {
		handler.SetLevel(charmlog.InfoLevel)
	}

	switch strings.ToLower(opts.Format) {
	case FormatJSON:
		handler.SetFormatter(charmlog.JSONFormatter)
	case FormatText:
	default:
		// Use plain format for non-TTY output
		if !tty {
			handler.SetFormatter(charmlog.JSONFormatter)
		}
	}
	return handler
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
