package blobstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/microsoft/evallabel/internal/metrics"
)

// Instrument wraps s so every call is timed, counted and logged at debug
// level. Failures other than ErrNotFound are logged as warnings.
func Instrument(s Store, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &instrumented{next: s, logger: logger}
}

type instrumented struct {
	next   Store
	logger *slog.Logger
}

func (i *instrumented) observe(op, path string, start time.Time, err error) {
	elapsed := time.Since(start)
	metrics.StorageOp(op, elapsed, err)
	switch {
	case err == nil:
		i.logger.Debug("storage op", "op", op, "path", path, "elapsed", elapsed)
	case errors.Is(err, ErrNotFound):
		i.logger.Debug("storage object missing", "op", op, "path", path)
	default:
		i.logger.Warn("storage op failed", "op", op, "path", path, "error", err)
	}
}

func (i *instrumented) List(ctx context.Context, prefix, suffix string) ([]string, error) {
	start := time.Now()
	names, err := i.next.List(ctx, prefix, suffix)
	i.observe("list", prefix, start, err)
	return names, err
}

func (i *instrumented) Versions(ctx context.Context, prefix, suffix string) (map[string]string, error) {
	start := time.Now()
	tags, err := Versions(ctx, i.next, prefix, suffix)
	i.observe("versions", prefix, start, err)
	return tags, err
}

func (i *instrumented) Get(ctx context.Context, path string) ([]byte, error) {
	start := time.Now()
	data, err := i.next.Get(ctx, path)
	i.observe("get", path, start, err)
	return data, err
}

func (i *instrumented) Put(ctx context.Context, path string, data []byte, overwrite bool) error {
	start := time.Now()
	err := i.next.Put(ctx, path, data, overwrite)
	i.observe("put", path, start, err)
	return err
}

func (i *instrumented) Delete(ctx context.Context, path string) error {
	start := time.Now()
	err := i.next.Delete(ctx, path)
	i.observe("delete", path, start, err)
	return err
}
