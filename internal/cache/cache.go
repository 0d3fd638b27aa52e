// Package cache memoises analysis results so the analytics page does not
// download every snapshot on each request.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/microsoft/evallabel/internal/analysis"
)

// Cache holds analysis results keyed by the listing they were built from.
// Entries expire after ttl; a zero ttl never expires.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

type entry struct {
	results *analysis.Results
	stored  time.Time
}

// New creates a cache whose entries live for ttl.
func New(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, now: time.Now, entries: map[string]entry{}}
}

// Key identifies an analysis input.
// The key is based on:
// - the snapshot names and their version tags, in any order
// - whether the variance check runs, and its threshold
//
// A new, deleted or rewritten snapshot changes the key.
func Key(versions map[string]string, varianceCheck bool, threshold float64) (string, error) {
	h := sha256.New()

	for _, n := range sortedNames(versions) {
		if err := writeString(h, n); err != nil {
			return "", err
		}
		if err := writeString(h, versions[n]); err != nil {
			return "", err
		}
	}
	if err := writeString(h, fmt.Sprintf("%t", varianceCheck)); err != nil {
		return "", err
	}
	if err := writeString(h, fmt.Sprintf("%g", threshold)); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get retrieves live results for key.
func (c *Cache) Get(key string) (*analysis.Results, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.expired(e) {
		delete(c.entries, key)
		return nil, false
	}
	return e.results, true
}

// Put stores results under key.
func (c *Cache) Put(key string, results *analysis.Results) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{results: results, stored: c.now()}
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]entry{}
}

func (c *Cache) expired(e entry) bool {
	return c.ttl > 0 && c.now().Sub(e.stored) >= c.ttl
}

// Loader is the part of analysis.Loader the cache drives.
type Loader interface {
	Versions(ctx context.Context) (map[string]string, error)
	LoadFiles(ctx context.Context, names []string) (*analysis.Results, error)
}

// Load lists the snapshots behind l and returns cached results when no
// snapshot was added, removed or rewritten, loading and storing them
// otherwise.
func (c *Cache) Load(ctx context.Context, l Loader, varianceCheck bool, threshold float64) (*analysis.Results, error) {
	versions, err := l.Versions(ctx)
	if err != nil {
		return nil, err
	}
	key, err := Key(versions, varianceCheck, threshold)
	if err != nil {
		return nil, fmt.Errorf("hashing listing: %w", err)
	}
	if res, ok := c.Get(key); ok {
		return res, nil
	}
	res, err := l.LoadFiles(ctx, sortedNames(versions))
	if err != nil {
		return nil, err
	}
	c.Put(key, res)
	return res, nil
}

func sortedNames(versions map[string]string) []string {
	names := make([]string, 0, len(versions))
	for n := range versions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func writeString(w io.Writer, s string) error {
	// Null byte delimiter keeps "ab","c" and "a","bc" apart.
	_, err := w.Write([]byte(s + "\x00"))
	return err
}
