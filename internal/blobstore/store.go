// Package blobstore is a key/value view over object storage. Paths are
// slash separated; a "folder" is just a path prefix.
package blobstore

//go:generate go tool mockgen -destination=mocks/mock_store.go -package=mocks . Store

import (
	"context"
	"errors"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned by Get and Delete for a missing object.
	ErrNotFound = errors.New("blobstore: object not found")

	// ErrExists is returned by Put when overwrite is false and the object is
	// already present.
	ErrExists = errors.New("blobstore: object already exists")
)

// Store is the contract every backend implements.
type Store interface {
	// List returns the paths that start with prefix and end with suffix,
	// sorted. With an empty prefix only top-level objects are returned.
	List(ctx context.Context, prefix, suffix string) ([]string, error)
	// Get returns the object content.
	Get(ctx context.Context, path string) ([]byte, error)
	// Put writes data at path. Without overwrite an existing object is left
	// untouched and ErrExists is returned.
	Put(ctx context.Context, path string, data []byte, overwrite bool) error
	// Delete removes the object at path.
	Delete(ctx context.Context, path string) error
}

// Versioner is implemented by stores that can tag each listed object with a
// value that changes whenever the object is rewritten.
type Versioner interface {
	Versions(ctx context.Context, prefix, suffix string) (map[string]string, error)
}

// Versions lists the objects under prefix ending in suffix, each mapped to
// its version tag. Stores that are not a Versioner map every name to "".
func Versions(ctx context.Context, s Store, prefix, suffix string) (map[string]string, error) {
	if v, ok := s.(Versioner); ok {
		return v.Versions(ctx, prefix, suffix)
	}
	names, err := s.List(ctx, prefix, suffix)
	if err != nil {
		return nil, err
	}
	tags := make(map[string]string, len(names))
	for _, n := range names {
		tags[n] = ""
	}
	return tags, nil
}

// filterTags applies filterNames to the keys of tags.
func filterTags(tags map[string]string, prefix, suffix string) map[string]string {
	names := make([]string, 0, len(tags))
	for n := range tags {
		names = append(names, n)
	}
	out := make(map[string]string, len(names))
	for _, n := range filterNames(names, prefix, suffix) {
		out[n] = tags[n]
	}
	return out
}

// filterNames keeps names matching suffix, dropping nested ones when prefix
// is empty, and sorts the result.
func filterNames(names []string, prefix, suffix string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !strings.HasPrefix(n, prefix) || !strings.HasSuffix(n, suffix) {
			continue
		}
		if prefix == "" && strings.Contains(n, "/") {
			continue
		}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
