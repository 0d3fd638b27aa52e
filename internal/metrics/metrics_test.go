package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFormSubmitted(t *testing.T) {
	before := testutil.ToFloat64(formSubmissions.WithLabelValues("quality"))
	FormSubmitted("quality")
	FormSubmitted("quality")
	if got := testutil.ToFloat64(formSubmissions.WithLabelValues("quality")) - before; got != 2 {
		t.Errorf("expected 2 quality submissions, got %v", got)
	}
}

func TestSnapshotSaved(t *testing.T) {
	ok := testutil.ToFloat64(snapshotSaves.WithLabelValues("success"))
	failed := testutil.ToFloat64(snapshotSaves.WithLabelValues("failure"))
	SnapshotSaved(true)
	SnapshotSaved(false)
	SnapshotSaved(false)
	if got := testutil.ToFloat64(snapshotSaves.WithLabelValues("success")) - ok; got != 1 {
		t.Errorf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(snapshotSaves.WithLabelValues("failure")) - failed; got != 2 {
		t.Errorf("expected 2 failures, got %v", got)
	}
}

func TestStorageOp(t *testing.T) {
	before := testutil.ToFloat64(storageErrors.WithLabelValues("get"))
	StorageOp("get", time.Millisecond, nil)
	StorageOp("get", time.Millisecond, errors.New("boom"))
	if got := testutil.ToFloat64(storageErrors.WithLabelValues("get")) - before; got != 1 {
		t.Errorf("expected 1 storage error, got %v", got)
	}

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	found := false
	for _, family := range families {
		if family.GetName() == "evallabel_storage_latency_seconds" {
			found = true
		}
	}
	if !found {
		t.Error("expected latency histogram to be registered")
	}
}

func TestStaleDeletedAndRunExcluded(t *testing.T) {
	stale := testutil.ToFloat64(staleDeletions)
	excluded := testutil.ToFloat64(excludedRuns)
	StaleDeleted(3)
	RunExcluded()
	if got := testutil.ToFloat64(staleDeletions) - stale; got != 3 {
		t.Errorf("expected 3 deletions, got %v", got)
	}
	if got := testutil.ToFloat64(excludedRuns) - excluded; got != 1 {
		t.Errorf("expected 1 exclusion, got %v", got)
	}
}
