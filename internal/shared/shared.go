// package shared defines helpers used across the web app and CLI
package shared

import (
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel parses a level name (debug, info, warn, error) and applies it to the [log.Logger].
//
// Unknown names leave the logger at info.
func SetLogLevel(l *log.Logger, name string) {
	level, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		level = log.InfoLevel
	}
	l.SetLevel(level)
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeFilename replaces anything outside [A-Za-z0-9._-] with an underscore and strips leading dots,
// so upstream-controlled strings (display names) can be used as a single path element.
func SafeFilename(s string) string {
	s = unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.TrimLeft(s, ".")
	if s == "" {
		return "unknown"
	}
	return s
}
