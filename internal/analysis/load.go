// Package analysis merges the snapshots of every annotator and computes the
// statistics shown on the analytics page.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/microsoft/evallabel/internal/blobstore"
	"github.com/microsoft/evallabel/internal/dataset"
	"github.com/microsoft/evallabel/internal/labels"
	"github.com/microsoft/evallabel/internal/metrics"
	"github.com/microsoft/evallabel/internal/naming"
	"github.com/microsoft/evallabel/internal/statistics"
)

// ScorePrefix starts the per-user score column names of a merged frame.
const ScorePrefix = labels.ColScore + "_"

// DefaultDownloads bounds concurrent snapshot downloads.
const DefaultDownloads = 8

// Run is every annotator's work on one run.
type Run struct {
	ID string
	// Users lists the contributing annotators in listing order.
	Users []string
	// Files maps each user to their snapshots, newest first.
	Files map[string][]string
	// Raw holds one frame per user, each carrying a score column.
	Raw []*dataset.Frame
	// Merged has one score_<user> column per user.
	Merged *dataset.Frame
}

// Warning is a problem found while loading that did not stop the load.
type Warning struct {
	RunID   string `json:"runId,omitempty"`
	User    string `json:"user,omitempty"`
	File    string `json:"file,omitempty"`
	Message string `json:"message"`
}

// Results is the loaded analysis input.
type Results struct {
	Runs     map[string]*Run
	Warnings []Warning
}

// RunIDs returns the run ids in sorted order.
func (r *Results) RunIDs() []string {
	ids := make([]string, 0, len(r.Runs))
	for id := range r.Runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Empty reports whether no run survived loading.
func (r *Results) Empty() bool { return len(r.Runs) == 0 }

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	Store         blobstore.Store
	Folder        string
	VarianceCheck bool
	Threshold     float64
	Downloads     int
	Logger        *slog.Logger
}

// Loader reads every snapshot in a folder.
type Loader struct {
	cfg LoaderConfig
}

// NewLoader builds a Loader.
func NewLoader(cfg LoaderConfig) *Loader {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Downloads <= 0 {
		cfg.Downloads = DefaultDownloads
	}
	return &Loader{cfg: cfg}
}

// WithVarianceCheck returns a copy of l with the low-variance filter turned
// on or off.
func (l *Loader) WithVarianceCheck(on bool) *Loader {
	cfg := l.cfg
	cfg.VarianceCheck = on
	return &Loader{cfg: cfg}
}

// VarianceCheck reports whether the low-variance filter is on.
func (l *Loader) VarianceCheck() bool { return l.cfg.VarianceCheck }

// Threshold returns the low-variance threshold.
func (l *Loader) Threshold() float64 { return l.cfg.Threshold }

// Listing returns the snapshot names Load would read.
func (l *Loader) Listing(ctx context.Context) ([]string, error) {
	names, err := l.cfg.Store.List(ctx, l.cfg.Folder, naming.Extension)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	return names, nil
}

// Versions returns the snapshot names Load would read, each mapped to its
// storage version tag.
func (l *Loader) Versions(ctx context.Context) (map[string]string, error) {
	tags, err := blobstore.Versions(ctx, l.cfg.Store, l.cfg.Folder, naming.Extension)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	return tags, nil
}

type loaded struct {
	name  string
	frame *dataset.Frame
	meta  naming.Name
}

// Load downloads every snapshot, scores it and merges the users of each
// run. Files that cannot be read are skipped with a warning. When the
// variance check is on, users whose score std is below the threshold are
// dropped from their run.
func (l *Loader) Load(ctx context.Context) (*Results, error) {
	names, err := l.Listing(ctx)
	if err != nil {
		return nil, err
	}
	return l.LoadFiles(ctx, names)
}

// LoadFiles is Load over a known listing.
func (l *Loader) LoadFiles(ctx context.Context, names []string) (*Results, error) {
	files := make([]*loaded, len(names))
	warnings := make([]*Warning, len(names))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(l.cfg.Downloads)
	for i, name := range names {
		eg.Go(func() error {
			f, w := l.readFile(egCtx, name)
			files[i], warnings[i] = f, w
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Results{Runs: map[string]*Run{}}
	for _, w := range warnings {
		if w != nil {
			res.Warnings = append(res.Warnings, *w)
		}
	}

	// Group by run, then by user. Listing order decides user order.
	type userFiles struct {
		user  string
		files []*loaded
	}
	byRun := map[string][]*userFiles{}
	for _, f := range files {
		if f == nil {
			continue
		}
		groups := byRun[f.meta.RunID]
		idx := slices.IndexFunc(groups, func(g *userFiles) bool { return g.user == f.meta.UserName })
		if idx < 0 {
			groups = append(groups, &userFiles{user: f.meta.UserName})
			idx = len(groups) - 1
		}
		groups[idx].files = append(groups[idx].files, f)
		byRun[f.meta.RunID] = groups
	}

	for runID, groups := range byRun {
		run := &Run{ID: runID, Files: map[string][]string{}}
		for _, g := range groups {
			// Newest snapshot first so its values win; older ones only
			// fill rows the newer one lacks.
			sort.SliceStable(g.files, func(i, j int) bool {
				return g.files[i].meta.Timestamp.After(g.files[j].meta.Timestamp)
			})
			frames := make([]*dataset.Frame, len(g.files))
			paths := make([]string, len(g.files))
			for i, f := range g.files {
				frames[i], paths[i] = f.frame, f.name
			}
			frame := dataset.Concat(frames...)

			if w, low := l.lowVariance(runID, g.user, frame); low {
				res.Warnings = append(res.Warnings, w)
				continue
			}
			run.Users = append(run.Users, g.user)
			run.Files[g.user] = paths
			run.Raw = append(run.Raw, frame)
		}
		if len(run.Raw) == 0 {
			continue
		}
		run.Merged = Merge(run.Raw)
		res.Runs[runID] = run
	}
	return res, nil
}

func (l *Loader) readFile(ctx context.Context, name string) (*loaded, *Warning) {
	meta := naming.Parse(name)
	if !meta.Valid() {
		l.cfg.Logger.Warn("skipping result file with undecodable name", "path", name)
		return nil, &Warning{File: name, Message: fmt.Sprintf("Could not decode run and user from %s", name)}
	}
	data, err := l.cfg.Store.Get(ctx, name)
	if err != nil {
		l.cfg.Logger.Warn("could not download result file", "path", name, "error", err)
		return nil, &Warning{RunID: meta.RunID, User: meta.UserName, File: name, Message: fmt.Sprintf("Could not download file: %s", name)}
	}
	f, err := dataset.DecodeJSON(data)
	if err != nil {
		l.cfg.Logger.Error("failed to read result file", "path", name, "error", err)
		return nil, &Warning{RunID: meta.RunID, User: meta.UserName, File: name, Message: fmt.Sprintf("Failed to read data from %s", name)}
	}
	Score(f, meta.RunID, meta.UserName)
	return &loaded{name: name, frame: f, meta: meta}, nil
}

// Score stamps f with its run and user and derives the score column from the
// quality labels. Unlabelled rows get a null score.
func Score(f *dataset.Frame, runID, user string) {
	f.DropColumn(labels.ColRunID)
	f.DropColumn(labels.ColUserName)
	f.AddColumn(labels.ColRunID, runID)
	f.AddColumn(labels.ColUserName, user)
	f.AddColumn(labels.ColLabelQuality, nil)
	f.AddColumn(labels.ColScore, nil)
	for i := range f.Len() {
		v := f.Get(i, labels.ColLabelQuality)
		if dataset.IsNull(v) {
			f.Set(i, labels.ColScore, nil)
			continue
		}
		s, _ := v.(string)
		f.Set(i, labels.ColScore, labels.Score(s))
	}
}

func (l *Loader) lowVariance(runID, user string, f *dataset.Frame) (Warning, bool) {
	if !l.cfg.VarianceCheck {
		return Warning{}, false
	}
	_, scores := f.Floats(labels.ColScore)
	std := statistics.StdDev(scores)
	// A NaN std (fewer than two scores) never compares below the threshold.
	if !(std < l.cfg.Threshold) {
		return Warning{}, false
	}
	metrics.RunExcluded()
	msg := fmt.Sprintf("Low variance in Run: %s; Score Mean: %.2f; User: %s. Removing this run from analysis.",
		runID, statistics.Mean(scores), user)
	l.cfg.Logger.Warn("excluding low variance run", "run_id", runID, "user", user, "std", std)
	return Warning{RunID: runID, User: user, Message: msg}, true
}

// Merge outer-joins the per-user frames of one run on their row labels.
// Each frame's score column is renamed score_<user>; other columns shared by
// several frames keep the first non-null value. Empty frames are skipped.
func Merge(raw []*dataset.Frame) *dataset.Frame {
	var merged *dataset.Frame
	for _, f := range raw {
		if f == nil || f.Empty() {
			continue
		}
		user := firstString(f, labels.ColUserName)
		c := f.Clone()
		c.RenameColumn(labels.ColScore, ScorePrefix+user)
		if merged == nil {
			merged = c
			continue
		}
		merged = dataset.OuterJoin(merged, c)
	}
	if merged == nil {
		return dataset.New()
	}
	return merged
}

// ScoreColumns returns the per-user score columns of f.
func ScoreColumns(f *dataset.Frame) []string {
	var out []string
	for _, c := range f.Columns() {
		if strings.HasPrefix(c, ScorePrefix) {
			out = append(out, c)
		}
	}
	return out
}

// UserOf returns the user behind a score column.
func UserOf(scoreColumn string) string {
	return strings.TrimPrefix(scoreColumn, ScorePrefix)
}

func firstString(f *dataset.Frame, col string) string {
	for _, v := range f.Column(col) {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}
