package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/evallabel/internal/analysis"
	"github.com/microsoft/evallabel/internal/blobstore"
)

func TestKey(t *testing.T) {
	key1, err := Key(map[string]string{"a.json": "1", "b.json": "2"}, true, 0.1)
	require.NoError(t, err)
	assert.Len(t, key1, 64) // SHA256 hex is 64 chars

	key2, err := Key(map[string]string{"b.json": "2", "a.json": "1"}, true, 0.1)
	require.NoError(t, err)
	assert.Equal(t, key1, key2)
}

func TestKey_InputsChangeKey(t *testing.T) {
	base, err := Key(map[string]string{"a.json": "1"}, true, 0.1)
	require.NoError(t, err)

	for name, args := range map[string]struct {
		versions  map[string]string
		check     bool
		threshold float64
	}{
		"new file":       {map[string]string{"a.json": "1", "b.json": "1"}, true, 0.1},
		"rewritten file": {map[string]string{"a.json": "2"}, true, 0.1},
		"no check":       {map[string]string{"a.json": "1"}, false, 0.1},
		"threshold":      {map[string]string{"a.json": "1"}, true, 0.2},
		"split boundary": {map[string]string{"a.js": "on1"}, true, 0.1},
	} {
		t.Run(name, func(t *testing.T) {
			k, err := Key(args.versions, args.check, args.threshold)
			require.NoError(t, err)
			assert.NotEqual(t, base, k)
		})
	}
}

func TestGetPut(t *testing.T) {
	c := New(0)
	_, ok := c.Get("k")
	assert.False(t, ok)

	res := &analysis.Results{Runs: map[string]*analysis.Run{}}
	c.Put("k", res)
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Same(t, res, got)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestExpiry(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	c := New(time.Minute)
	c.now = func() time.Time { return now }

	c.Put("k", &analysis.Results{})
	now = now.Add(59 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

type fakeLoader struct {
	mu       sync.Mutex
	versions map[string]string
	loads    int
	names    []string
	err      error
}

func (f *fakeLoader) Versions(context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.versions, nil
}

func (f *fakeLoader) LoadFiles(_ context.Context, names []string) (*analysis.Results, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	f.names = names
	if f.err != nil {
		return nil, f.err
	}
	return &analysis.Results{Runs: map[string]*analysis.Run{}}, nil
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	l := &fakeLoader{versions: map[string]string{"a.json": "1"}}
	c := New(time.Hour)

	first, err := c.Load(ctx, l, true, 0.1)
	require.NoError(t, err)
	second, err := c.Load(ctx, l, true, 0.1)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, l.loads)

	l.versions = map[string]string{"b.json": "1", "a.json": "1"}
	_, err = c.Load(ctx, l, true, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 2, l.loads)
	assert.Equal(t, []string{"a.json", "b.json"}, l.names)
}

func TestLoad_OverwriteInvalidates(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "labelling_results/a.json", []byte(`{"x": 1}`), true))
	l := &storeLoader{store: store}
	c := New(time.Hour)

	_, err := c.Load(ctx, l, true, 0.1)
	require.NoError(t, err)
	_, err = c.Load(ctx, l, true, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 1, l.loads)

	// Same name, same size, new content.
	require.NoError(t, store.Put(ctx, "labelling_results/a.json", []byte(`{"x": 2}`), true))
	_, err = c.Load(ctx, l, true, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 2, l.loads)
}

// storeLoader tags snapshots the way analysis.Loader does.
type storeLoader struct {
	store blobstore.Store
	loads int
}

func (s *storeLoader) Versions(ctx context.Context) (map[string]string, error) {
	return blobstore.Versions(ctx, s.store, "labelling_results/", ".json")
}

func (s *storeLoader) LoadFiles(context.Context, []string) (*analysis.Results, error) {
	s.loads++
	return &analysis.Results{Runs: map[string]*analysis.Run{}}, nil
}

func TestLoad_ErrorNotCached(t *testing.T) {
	boom := errors.New("boom")
	l := &fakeLoader{versions: map[string]string{"a.json": "1"}, err: boom}
	c := New(time.Hour)

	_, err := c.Load(context.Background(), l, false, 0)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestConcurrentAccess(t *testing.T) {
	c := New(time.Hour)
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key, _ := Key(map[string]string{string(rune('a' + i)): ""}, true, 0.1)
			c.Put(key, &analysis.Results{})
			_, ok := c.Get(key)
			assert.True(t, ok)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, c.Len())
}
