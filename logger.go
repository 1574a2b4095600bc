package reader

import (
	"io"
	"log/slog"
)

// discardLogger is the default logger: it drops everything.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
