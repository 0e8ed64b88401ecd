package evnet

import (
	"log/slog"
	"sync/atomic"
)

// Logger is the collaborator interface described in spec.md §6: a sink
// invoked from non-critical paths only (accept failures, keepalive timeouts,
// protocol violations before close). It is never required to do anything —
// a nil *slog.Logger is replaced with slog.Default() at first use.
type Logger = *slog.Logger

var defaultLogger atomic.Pointer[slog.Logger]

// SetDefaultLogger overrides the package-wide fallback logger used by
// components whose logger was never set with their SetLogger method.
func SetDefaultLogger(l Logger) {
	defaultLogger.Store(l)
}

func loggerOrDefault(l Logger) Logger {
	if l != nil {
		return l
	}
	if d := defaultLogger.Load(); d != nil {
		return d
	}
	return slog.Default()
}

// LoggerOrDefault resolves l against the package-wide default logger
// (slog.Default() unless overridden with SetDefaultLogger), for use by the
// evnet/http and evnet/ws subpackages which have no access to the
// unexported fallback.
func LoggerOrDefault(l Logger) Logger { return loggerOrDefault(l) }
