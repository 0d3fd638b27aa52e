package session

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrJournalClosed is returned when recording to a closed journal.
var ErrJournalClosed = errors.New("journal closed")

// JournalSuffix ends every journal file name.
const JournalSuffix = "-labelling.jsonl"

// Journal records labelling activity.
type Journal interface {
	Record(event Event) error
	Close() error
}

type discard struct{}

func (discard) Record(Event) error { return nil }
func (discard) Close() error       { return nil }

// Discard is a Journal that drops every event.
var Discard Journal = discard{}

// FileJournal appends events to a file, one JSON document per line. Every
// event is flushed before Record returns so a crash loses nothing that was
// acknowledged.
type FileJournal struct {
	path string

	mu     sync.Mutex
	file   *os.File
	w      *bufio.Writer
	events int
}

// OpenJournal opens or creates the journal at path, creating parent
// directories as needed.
func OpenJournal(path string) (*FileJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return &FileJournal{path: path, file: f, w: bufio.NewWriter(f)}, nil
}

// Record appends event. A zero timestamp is set to the current time.
func (j *FileJournal) Record(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", event.Type, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return ErrJournalClosed
	}
	j.w.Write(line)     //nolint:errcheck // surfaced by Flush
	j.w.WriteByte('\n') //nolint:errcheck // surfaced by Flush
	if err := j.w.Flush(); err != nil {
		return fmt.Errorf("writing journal: %w", err)
	}
	j.events++
	return nil
}

// Events returns how many events were recorded since the journal was opened.
func (j *FileJournal) Events() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.events
}

// Close flushes and closes the file. Closing twice is a no-op.
func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := errors.Join(j.w.Flush(), j.file.Close())
	j.file = nil
	return err
}

// Path returns the file path of the journal.
func (j *FileJournal) Path() string {
	return j.path
}

// DefaultJournalPath returns a timestamped journal path inside dir.
func DefaultJournalPath(dir string) string {
	ts := time.Now().UTC().Format("20060102T150405Z")
	return filepath.Join(dir, ts+JournalSuffix)
}
