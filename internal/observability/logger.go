// Package observability sets up the file-backed logger. The TUI owns the
// terminal, so nothing may write to stdout or stderr while the program runs;
// all diagnostics go to a log file instead.
package observability

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// NewLogger opens (or creates) the log file and returns a JSON logger plus
// a close func for shutdown.
func NewLogger(path string) (zerolog.Logger, func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return zerolog.Nop(), func() {}, fmt.Errorf("open log file: %w", err)
	}
	logger := zerolog.New(f).With().Timestamp().Logger()
	return logger, func() { _ = f.Close() }, nil
}
