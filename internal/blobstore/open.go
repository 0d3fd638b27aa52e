package blobstore

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Backend is a Store that owns resources.
type Backend interface {
	Store
	io.Closer
}

// Open selects a backend from a URL:
//
//	azure://            Azure container from cfg (also the default for "")
//	gcs://<bucket>      Google Cloud Storage bucket
//	sqlite://<path>     local SQLite database file
//	memory://           in-process, lost on exit
func Open(ctx context.Context, url string, cfg AzureConfig) (Backend, error) {
	scheme, rest, _ := strings.Cut(url, "://")
	switch scheme {
	case "", "azure":
		return NewAzureStore(ctx, cfg)
	case "gcs":
		return NewGCSStore(ctx, strings.TrimSuffix(rest, "/"))
	case "sqlite":
		if rest == "" {
			return nil, fmt.Errorf("sqlite backend %q: missing database path", url)
		}
		return OpenSQLite(ctx, sqlitePath(url))
	case "memory":
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", url)
}
