// Package results reads source datasets and reads and writes labelling
// snapshots in blob storage.
package results

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/microsoft/evallabel/internal/blobstore"
	"github.com/microsoft/evallabel/internal/dataset"
	"github.com/microsoft/evallabel/internal/metrics"
	"github.com/microsoft/evallabel/internal/naming"
	"github.com/microsoft/evallabel/internal/session"
)

// Source file suffixes offered on the labelling page.
var SourceSuffixes = []string{".json", ".csv"}

// Config configures a Service.
type Config struct {
	Store blobstore.Store
	// Dispatcher runs background saves. When nil, SaveInBackground runs the
	// save on the calling goroutine.
	Dispatcher    *blobstore.Dispatcher
	ResultsFolder string
	Logger        *slog.Logger
}

// Service persists labelling state.
type Service struct {
	store      blobstore.Store
	dispatcher *blobstore.Dispatcher
	folder     string
	logger     *slog.Logger
}

// New builds a Service.
func New(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	folder := cfg.ResultsFolder
	if folder != "" && !strings.HasSuffix(folder, "/") {
		folder += "/"
	}
	return &Service{
		store:      cfg.Store,
		dispatcher: cfg.Dispatcher,
		folder:     folder,
		logger:     cfg.Logger,
	}
}

// Folder returns the snapshot folder, with a trailing slash.
func (s *Service) Folder() string { return s.folder }

// ListSources returns the top-level source files.
func (s *Service) ListSources(ctx context.Context) ([]string, error) {
	var out []string
	for _, suffix := range SourceSuffixes {
		names, err := s.store.List(ctx, "", suffix)
		if err != nil {
			return nil, fmt.Errorf("listing source files: %w", err)
		}
		out = append(out, names...)
	}
	return out, nil
}

// LoadSource downloads and decodes a source file. CSV files go through the
// CSV codec; everything else is read as JSON.
func (s *Service) LoadSource(ctx context.Context, name string) (*dataset.Frame, error) {
	return s.load(ctx, name)
}

// ListSaved returns every snapshot in the results folder.
func (s *Service) ListSaved(ctx context.Context) ([]string, error) {
	names, err := s.store.List(ctx, s.folder, naming.Extension)
	if err != nil {
		return nil, fmt.Errorf("listing saved results: %w", err)
	}
	return names, nil
}

// FindSaved returns the newest snapshot saved by user for runID.
func (s *Service) FindSaved(ctx context.Context, user, runID string) (string, bool, error) {
	if user == "" || runID == "" {
		return "", false, nil
	}
	names, err := s.ListSaved(ctx)
	if err != nil {
		return "", false, err
	}
	var mine []string
	for _, n := range names {
		if naming.MatchesUserRun(n, user, runID) {
			mine = append(mine, n)
		}
	}
	latest, ok := naming.Latest(mine)
	return latest, ok, nil
}

// LoadSaved downloads and decodes a snapshot.
func (s *Service) LoadSaved(ctx context.Context, p string) (*dataset.Frame, error) {
	return s.load(ctx, p)
}

func (s *Service) load(ctx context.Context, name string) (*dataset.Frame, error) {
	data, err := s.store.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", name, err)
	}
	var f *dataset.Frame
	if strings.EqualFold(path.Ext(name), ".csv") {
		f, err = dataset.DecodeCSV(data)
	} else {
		f, err = dataset.DecodeJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	return f, nil
}

// Save writes sn to the results folder, replacing any object of the same
// name, and returns its path. Stale versions are left in place; see
// PruneStale.
func (s *Service) Save(ctx context.Context, sn session.Snapshot) (string, error) {
	p := s.folder + sn.FileName()
	if err := s.store.Put(ctx, p, sn.Data, true); err != nil {
		metrics.SnapshotSaved(false)
		return "", fmt.Errorf("uploading %s: %w", p, err)
	}
	metrics.SnapshotSaved(true)
	return p, nil
}

// PruneStale deletes the versions of saved that are older than it. Failures
// are collected; a failed deletion leaves an extra version that Latest skips
// over on the next load.
func (s *Service) PruneStale(ctx context.Context, saved string) (int, error) {
	group, ok := naming.GroupKey(saved)
	if !ok {
		return 0, fmt.Errorf("no timestamp in %s", saved)
	}
	savedAt, _ := naming.Timestamp(saved)

	names, err := s.ListSaved(ctx)
	if err != nil {
		return 0, err
	}
	var errs []error
	deleted := 0
	for _, n := range names {
		if n == saved {
			continue
		}
		if g, ok := naming.GroupKey(n); !ok || g != group {
			continue
		}
		if ts, ok := naming.Timestamp(n); !ok || !ts.Before(savedAt) {
			continue
		}
		if err := s.store.Delete(ctx, n); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			errs = append(errs, fmt.Errorf("deleting %s: %w", n, err))
			continue
		}
		deleted++
	}
	metrics.StaleDeleted(deleted)
	return deleted, errors.Join(errs...)
}

// Outcome reports a finished save.
type Outcome struct {
	Path   string
	Pruned int
}

// SaveAndPrune runs Save followed by PruneStale. When pruning fails the
// outcome still carries the saved path.
func (s *Service) SaveAndPrune(ctx context.Context, sn session.Snapshot) (Outcome, error) {
	p, err := s.Save(ctx, sn)
	if err != nil {
		return Outcome{}, err
	}
	n, err := s.PruneStale(ctx, p)
	out := Outcome{Path: p, Pruned: n}
	if err != nil {
		return out, fmt.Errorf("pruning stale versions of %s: %w", p, err)
	}
	return out, nil
}

// SaveInBackground queues SaveAndPrune on the dispatcher. The returned
// channel yields the job's error once it has run; callers may ignore it.
// done, when non-nil, is called with the outcome from the worker.
func (s *Service) SaveInBackground(sn session.Snapshot, done func(Outcome, error)) <-chan error {
	job := func(ctx context.Context) error {
		out, err := s.SaveAndPrune(ctx, sn)
		if err != nil {
			s.logger.Warn("saving results", "run_id", sn.RunID, "user", sn.UserName, "path", out.Path, "error", err)
		} else {
			s.logger.Debug("results saved", "path", out.Path, "pruned", out.Pruned)
		}
		if done != nil {
			done(out, err)
		}
		return err
	}
	if s.dispatcher == nil {
		ch := make(chan error, 1)
		ch <- job(context.Background())
		return ch
	}
	return s.dispatcher.Submit("save "+sn.FileName(), job)
}
