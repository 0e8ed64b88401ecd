package evnet

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// NewDevLogger builds a colorized, human-friendly *slog.Logger suitable for
// local development, the same way malbeclabs-doublezero wires tint for its
// services. The core library never calls this itself — it is offered for
// callers that want a nicer default than slog.Default() without pulling in a
// full logging framework.
func NewDevLogger(w io.Writer, level slog.Level) Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}
