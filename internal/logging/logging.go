// Package logging builds the process logger and provides request logging
// helpers that keep credentials out of log output.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
)

// New returns a text slog.Logger for the given level ("debug", "info",
// "warn", "error"). A sink of "file:<path>" appends to that file; anything
// else writes to stdout.
func New(level, sink string) *slog.Logger {
	var out io.Writer = os.Stdout
	if strings.HasPrefix(sink, "file:") {
		path := strings.TrimPrefix(sink, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err == nil {
			out = f
		} else {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
		}
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// ParseLevel maps a level name to a slog.Level, defaulting to Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops every record. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var sensitive = map[string]struct{}{
	"authorization":   {},
	"cookie":          {},
	"x-session-id":    {},
	"x-file-metadata": {},
}

func redactHeaderValue(k, v string) string {
	if v == "" {
		return ""
	}
	if _, ok := sensitive[strings.ToLower(k)]; ok {
		return "<redacted>"
	}
	return v
}

// SafeHeaders returns the first value of each request header with sensitive
// values redacted.
func SafeHeaders(r *http.Request) map[string]string {
	out := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		if len(v) == 0 {
			continue
		}
		out[k] = redactHeaderValue(k, v[0])
	}
	return out
}

// Middleware logs a concise summary of every request at debug level.
func Middleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Debug("incoming_request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"headers", SafeHeaders(r))
			next.ServeHTTP(w, r)
		})
	}
}
