package results

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"github.com/microsoft/evallabel/internal/blobstore"
	"github.com/microsoft/evallabel/internal/blobstore/mocks"
	"github.com/microsoft/evallabel/internal/dataset"
	"github.com/microsoft/evallabel/internal/naming"
	"github.com/microsoft/evallabel/internal/session"
)

const folder = "labelling_results/"

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)

func put(t *testing.T, s blobstore.Store, p, data string) {
	t.Helper()
	require.NoError(t, s.Put(context.Background(), p, []byte(data), true))
}

func TestListAndLoadSources(t *testing.T) {
	store := blobstore.NewMemoryStore()
	put(t, store, "run1.json", `{"question":{"0":"q"},"predictions":{"0":"p"},"ground_truth":{"0":null}}`)
	put(t, store, "run2.csv", "question,predictions,ground_truth\nq,p,\n")
	put(t, store, "notes.txt", "x")
	put(t, store, folder+"20240101000000___run1___alice.json", "{}")

	svc := New(Config{Store: store, ResultsFolder: "labelling_results"})
	assert.Equal(t, folder, svc.Folder())

	names, err := svc.ListSources(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"run1.json", "run2.csv"}, names)

	f, err := svc.LoadSource(context.Background(), "run1.json")
	require.NoError(t, err)
	assert.Equal(t, 1, f.Len())
	assert.Equal(t, "q", f.Get(0, "question"))

	f, err = svc.LoadSource(context.Background(), "run2.csv")
	require.NoError(t, err)
	assert.Equal(t, "p", f.Get(0, "predictions"))
	assert.Nil(t, f.Get(0, "ground_truth"))
}

func TestLoadSourceErrors(t *testing.T) {
	store := blobstore.NewMemoryStore()
	put(t, store, "bad.json", `{"question": [1, 2`)
	svc := New(Config{Store: store, ResultsFolder: folder})

	_, err := svc.LoadSource(context.Background(), "missing.json")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	_, err = svc.LoadSource(context.Background(), "bad.json")
	assert.ErrorIs(t, err, dataset.ErrMalformed)
}

func TestFindSavedPicksLatest(t *testing.T) {
	store := blobstore.NewMemoryStore()
	put(t, store, folder+naming.Encode(t0, "run1", "alice"), "{}")
	put(t, store, folder+naming.Encode(t0.Add(time.Hour), "run1", "alice"), "{}")
	put(t, store, folder+naming.Encode(t0.Add(2*time.Hour), "run1", "bob"), "{}")
	put(t, store, folder+naming.Encode(t0.Add(3*time.Hour), "run2", "alice"), "{}")
	put(t, store, folder+naming.EncodeLegacy(t0.Add(30*time.Minute), "run1", "alice"), "{}")
	svc := New(Config{Store: store, ResultsFolder: folder})

	got, ok, err := svc.FindSaved(context.Background(), "alice", "run1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, folder+"20240601130000___run1___alice.json", got)

	_, ok, err = svc.FindSaved(context.Background(), "carol", "run1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = svc.FindSaved(context.Background(), "", "run1")
	require.NoError(t, err)
	assert.False(t, ok, "anonymous users have no saved results")
}

func TestSaveAndPrune(t *testing.T) {
	store := blobstore.NewMemoryStore()
	old1 := folder + naming.Encode(t0.Add(-2*time.Hour), "run1", "alice")
	old2 := folder + naming.Encode(t0.Add(-time.Hour), "run1", "alice")
	otherUser := folder + naming.Encode(t0.Add(-time.Hour), "run1", "bob")
	put(t, store, old1, "{}")
	put(t, store, old2, "{}")
	put(t, store, otherUser, "{}")
	svc := New(Config{Store: store, ResultsFolder: folder})

	out, err := svc.SaveAndPrune(context.Background(), session.Snapshot{
		RunID: "run1", UserName: "alice", Taken: t0, Data: []byte(`{"question":{"0":"q"}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, folder+"20240601120000___run1___alice.json", out.Path)
	assert.Equal(t, 2, out.Pruned)

	names, err := svc.ListSaved(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{out.Path, otherUser}, names)

	data, err := store.Get(context.Background(), out.Path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"question":{"0":"q"}}`, string(data))
}

func TestPruneKeepsNewerVersions(t *testing.T) {
	store := blobstore.NewMemoryStore()
	newer := folder + naming.Encode(t0.Add(time.Hour), "run1", "alice")
	put(t, store, newer, "{}")
	saved := folder + naming.Encode(t0, "run1", "alice")
	put(t, store, saved, "{}")
	svc := New(Config{Store: store, ResultsFolder: folder})

	n, err := svc.PruneStale(context.Background(), saved)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = svc.PruneStale(context.Background(), folder+"nostamp.json")
	assert.Error(t, err)
}

func TestSaveFailureSkipsPrune(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	boom := errors.New("network down")
	store.EXPECT().Put(gomock.Any(), folder+"20240601120000___run1___alice.json", gomock.Any(), true).Return(boom)

	svc := New(Config{Store: store, ResultsFolder: folder})
	_, err := svc.SaveAndPrune(context.Background(), session.Snapshot{RunID: "run1", UserName: "alice", Taken: t0})
	assert.ErrorIs(t, err, boom)
}

func TestPruneFailureKeepsSavedPath(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	saved := folder + naming.Encode(t0, "run1", "alice")
	stale := folder + naming.Encode(t0.Add(-time.Hour), "run1", "alice")
	boom := errors.New("forbidden")

	gomock.InOrder(
		store.EXPECT().Put(gomock.Any(), saved, gomock.Any(), true).Return(nil),
		store.EXPECT().List(gomock.Any(), folder, ".json").Return([]string{stale, saved}, nil),
		store.EXPECT().Delete(gomock.Any(), stale).Return(boom),
	)

	svc := New(Config{Store: store, ResultsFolder: folder})
	out, err := svc.SaveAndPrune(context.Background(), session.Snapshot{RunID: "run1", UserName: "alice", Taken: t0})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, saved, out.Path)
	assert.Equal(t, 0, out.Pruned)
}

func TestSaveInBackground(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := blobstore.NewMemoryStore()
	d := blobstore.NewDispatcher(4, nil)
	svc := New(Config{Store: store, Dispatcher: d, ResultsFolder: folder})

	var got Outcome
	err := <-svc.SaveInBackground(session.Snapshot{RunID: "run1", UserName: "alice", Taken: t0, Data: []byte("{}")},
		func(o Outcome, _ error) { got = o })
	require.NoError(t, err)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, folder+"20240601120000___run1___alice.json", got.Path)

	inline := New(Config{Store: store, ResultsFolder: folder})
	require.NoError(t, <-inline.SaveInBackground(session.Snapshot{RunID: "run2", UserName: "bob", Taken: t0}, nil))
}
