// Package logging builds the leveled logger shared by the CLI and the
// reconstruction pipeline.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// New returns a stderr logger at the named level. verbose forces debug.
// Unknown level names fall back to info.
func New(level string, verbose bool) *log.Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          "aist",
		ReportTimestamp: verbose,
	})

	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = log.InfoLevel
	}
	if verbose {
		lvl = log.DebugLevel
	}
	l.SetLevel(lvl)
	return l
}

// OrDiscard returns l, or a logger that drops everything when l is nil.
func OrDiscard(l *log.Logger) *log.Logger {
	if l != nil {
		return l
	}
	return log.New(io.Discard)
}
