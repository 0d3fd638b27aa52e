package utils

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Request describes a served HTTP request.
type Request struct {
	Method  string
	Path    string
	Status  int
	Elapsed time.Duration
	Session *string
	User    *string
}

// RequestToSlog logs a served request at debug level. Optional fields are
// only attached when set.
func RequestToSlog(logger *slog.Logger, req Request) {
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	attrs := []any{
		"method", req.Method,
		"path", req.Path,
		"status", req.Status,
		"elapsed", req.Elapsed,
	}

	attrs = addIf(attrs, "session", req.Session)
	attrs = addIf(attrs, "user", req.User)

	logger.Debug("Request served", attrs...)
}

// StatusLevel returns the log level matching an HTTP status.
func StatusLevel(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	}
	return slog.LevelDebug
}

func addIf[T any](attrs []any, name string, v *T) []any {
	if v != nil {
		attrs = append(attrs, name)
		attrs = append(attrs, *v)
	}

	return attrs
}
