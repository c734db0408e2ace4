// Package logging configures the process-wide structured logger and redacts
// sensitive fields before they reach any sink.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Options controls logger construction.
type Options struct {
	// Verbose enables debug-level records.
	Verbose bool
	// Writer overrides the destination; defaults to stderr.
	Writer io.Writer
}

// New builds the logger used by every component. Color is enabled only when
// writing to a terminal. All attributes pass through the redaction filter.
func New(opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose || os.Getenv("TODOSAFE_DEBUG") != "" {
		level = slog.LevelDebug
	}

	w := opts.Writer
	noColor := true
	if w == nil {
		w = colorable.NewColorable(os.Stderr)
		noColor = !isatty.IsTerminal(os.Stderr.Fd())
	}

	handler := tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			return redactAttr(a)
		},
	})
	return slog.New(handler)
}

// Discard returns a logger that drops everything. Used as the default when a
// component is constructed without one.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
