// Package session holds the per-browser labelling state: the loaded dataset,
// the live results table, the row pointer and the user behind it.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/microsoft/evallabel/internal/dataset"
	"github.com/microsoft/evallabel/internal/labels"
	"github.com/microsoft/evallabel/internal/naming"
)

var (
	// ErrNoFileLoaded is returned by operations that need a loaded dataset.
	ErrNoFileLoaded = errors.New("no file loaded")
	// ErrEmptyDataset is returned when a source file has no samples.
	ErrEmptyDataset = errors.New("source file has no samples")
)

// MissingColumnsError reports required input columns absent from a source
// file.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return "missing required columns: " + strings.Join(e.Columns, ", ")
}

// Phase is the position of a session in its lifecycle.
type Phase int

const (
	PhaseNoFileLoaded Phase = iota
	PhaseFileLoaded
	PhaseRowSelected
)

func (p Phase) String() string {
	switch p {
	case PhaseNoFileLoaded:
		return "no_file_loaded"
	case PhaseFileLoaded:
		return "file_loaded"
	case PhaseRowSelected:
		return "row_selected"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Level grades a Notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a transient message shown to the user on the next render.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Navigation warnings.
const (
	MsgNoMoreSamples  = "No more samples to label."
	MsgFirstSample    = "Already at the first sample."
	MsgInvalidIndexFn = "Invalid sample index. Setting to %d."
)

// State is one browser session. All methods are safe for concurrent use;
// two requests from the same browser are serialised on the state's mutex.
type State struct {
	ID string

	mu         sync.Mutex
	user       string
	analyst    bool
	sourceFile string
	runID      string
	seed       string
	pointer    int
	entered    bool
	table      *labels.ResultsTable
	forms      map[string]any
	savedOffer string
	notices    []Notice
	lastSeen   time.Time

	now     func() time.Time
	newSeed func() string
}

// Option configures a State.
type Option func(*State)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// WithSeeds replaces the file seed generator.
func WithSeeds(gen func() string) Option {
	return func(s *State) { s.newSeed = gen }
}

// New returns an empty session with the given id.
func New(id string, opts ...Option) *State {
	s := &State{
		ID:      id,
		forms:   map[string]any{},
		now:     time.Now,
		newSeed: uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	s.lastSeen = s.now()
	return s
}

// Phase reports where the session is in its lifecycle.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase()
}

func (s *State) phase() Phase {
	switch {
	case s.table == nil:
		return PhaseNoFileLoaded
	case s.entered:
		return PhaseRowSelected
	default:
		return PhaseFileLoaded
	}
}

// SetUser records the logged-in user. An empty name logs out. Switching to a
// different user drops any pending saved-results offer.
func (s *State) SetUser(name string, analyst bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name != s.user {
		s.savedOffer = ""
	}
	s.user = name
	s.analyst = name != "" && analyst
}

// User returns the logged-in user name, or "" for anonymous sessions.
func (s *State) User() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Analyst reports whether the user may open the analytics page.
func (s *State) Analyst() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analyst
}

// Load replaces the loaded dataset with source. The file seed is
// regenerated, the pointer reset to 0 and form state discarded. When a
// required column is missing nothing is changed and a *MissingColumnsError
// is returned.
func (s *State) Load(sourceFile string, source *dataset.Frame) error {
	var missing []string
	for _, c := range labels.RequiredColumns {
		if !source.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Columns: missing}
	}
	if source.Empty() {
		return ErrEmptyDataset
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seed = s.newSeed()
	s.sourceFile = sourceFile
	s.runID = naming.RunID(sourceFile)
	s.table = labels.NewResultsTable(s.seed, source)
	s.pointer = 0
	s.entered = false
	s.forms = map[string]any{}
	s.savedOffer = ""
	return nil
}

// LoadSaved replaces the live results table with a saved snapshot of the
// same dataset. The pointer is kept inside the new bounds.
func (s *State) LoadSaved(saved *dataset.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil {
		return ErrNoFileLoaded
	}
	if saved.Empty() {
		return ErrEmptyDataset
	}
	s.table = labels.RestoreResultsTable(s.seed, saved)
	s.forms = map[string]any{}
	s.savedOffer = ""
	s.pointer = clamp(s.pointer, s.table.Len())
	s.entered = false
	return nil
}

// SourceFile returns the loaded file name.
func (s *State) SourceFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourceFile
}

// RunID returns the run id of the loaded file.
func (s *State) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// Seed returns the current file seed.
func (s *State) Seed() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seed
}

// Pointer returns the selected row.
func (s *State) Pointer() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pointer
}

// Len returns the number of samples in the loaded dataset.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil {
		return 0
	}
	return s.table.Len()
}

// Next advances the pointer.
func (s *State) Next() (*Notice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil {
		return nil, ErrNoFileLoaded
	}
	if s.pointer+1 >= s.table.Len() {
		s.pointer = s.table.Len() - 1
		return warning(MsgNoMoreSamples), nil
	}
	s.pointer++
	s.entered = false
	return nil, nil
}

// Prev moves the pointer back.
func (s *State) Prev() (*Notice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil {
		return nil, ErrNoFileLoaded
	}
	if s.pointer <= 0 {
		s.pointer = 0
		return warning(MsgFirstSample), nil
	}
	s.pointer--
	s.entered = false
	return nil, nil
}

// Goto selects row i, clamping out-of-range values.
func (s *State) Goto(i int) (*Notice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil {
		return nil, ErrNoFileLoaded
	}
	c := clamp(i, s.table.Len())
	if c != s.pointer {
		s.entered = false
	}
	s.pointer = c
	if c != i {
		return warning(fmt.Sprintf(MsgInvalidIndexFn, c)), nil
	}
	return nil, nil
}

// Enter marks the current row as viewed, stamping its start time the first
// time it is seen, and returns its record.
func (s *State) Enter() (labels.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil {
		return labels.Record{}, ErrNoFileLoaded
	}
	s.table.StampStart(s.pointer, s.now())
	s.entered = true
	s.lastSeen = s.now()
	return s.table.Record(s.pointer)
}

// Update runs fn against the live table at the current row under the
// session lock and stamps the row's end time when fn succeeds.
func (s *State) Update(fn func(t *labels.ResultsTable, row int) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil {
		return ErrNoFileLoaded
	}
	if err := fn(s.table, s.pointer); err != nil {
		return err
	}
	s.table.StampEnd(s.pointer, s.now())
	s.lastSeen = s.now()
	return nil
}

// View runs fn against the live table without modifying it.
func (s *State) View(fn func(t *labels.ResultsTable, row int)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil {
		return ErrNoFileLoaded
	}
	fn(s.table, s.pointer)
	return nil
}

// CacheForm stores submitted form values under key.
func (s *State) CacheForm(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forms[key] = v
}

// CachedForm returns the values last submitted under key.
func (s *State) CachedForm(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.forms[key]
	return v, ok
}

// OfferSaved records that a saved snapshot exists for the loaded dataset.
func (s *State) OfferSaved(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savedOffer = path
}

// SavedOffer returns the pending saved snapshot, if any.
func (s *State) SavedOffer() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.savedOffer, s.savedOffer != ""
}

// DismissSaved clears the pending offer.
func (s *State) DismissSaved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savedOffer = ""
}

// Snapshot is an encoded copy of the live table ready to be persisted.
type Snapshot struct {
	RunID    string
	UserName string
	Taken    time.Time
	Data     []byte
}

// FileName returns the storage name of the snapshot.
func (sn Snapshot) FileName() string {
	user := sn.UserName
	if user == "" {
		user = "anonymous"
	}
	return naming.Encode(sn.Taken, sn.RunID, user)
}

// Snapshot encodes the live table.
func (s *State) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil {
		return Snapshot{}, ErrNoFileLoaded
	}
	data, err := s.table.Encode()
	if err != nil {
		return Snapshot{}, fmt.Errorf("encoding results: %w", err)
	}
	return Snapshot{
		RunID:    s.runID,
		UserName: s.user,
		Taken:    s.now(),
		Data:     data,
	}, nil
}

// Notify queues a notice for the next render.
func (s *State) Notify(level Level, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, Notice{Level: level, Message: msg})
}

// DrainNotices returns and clears the queued notices.
func (s *State) DrainNotices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.notices
	s.notices = nil
	return n
}

// LastSeen returns the time of the last interaction.
func (s *State) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *State) touch() {
	s.mu.Lock()
	s.lastSeen = s.now()
	s.mu.Unlock()
}

func warning(msg string) *Notice {
	return &Notice{Level: LevelWarning, Message: msg}
}

func clamp(i, n int) int {
	if i < 0 || n == 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
