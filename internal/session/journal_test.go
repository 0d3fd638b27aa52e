package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewEvent(t *testing.T) {
	s := New("sess-1")
	s.SetUser("alice", false)
	ev := NewEvent(EventFileLoaded, s, FileLoadedData("run1.json", "run1", 3))

	if ev.Type != EventFileLoaded {
		t.Errorf("Type = %q, want %q", ev.Type, EventFileLoaded)
	}
	if ev.Session != "sess-1" || ev.User != "alice" {
		t.Errorf("Session/User = %q/%q, want sess-1/alice", ev.Session, ev.User)
	}
	if ev.Data["run_id"] != "run1" {
		t.Errorf("Data[run_id] = %v, want %q", ev.Data["run_id"], "run1")
	}
	if ev.Timestamp.IsZero() {
		t.Error("Timestamp should not be zero")
	}

	anon := NewEvent(EventError, nil, ErrorData("boom", nil))
	if anon.Session != "" || anon.User != "" {
		t.Errorf("nil state should leave Session/User empty, got %q/%q", anon.Session, anon.User)
	}
}

func TestErrorData(t *testing.T) {
	d := ErrorData("timeout", map[string]any{"path": "a.json"})
	if d["message"] != "timeout" {
		t.Errorf("message = %v", d["message"])
	}
	if d["path"] != "a.json" {
		t.Errorf("path = %v", d["path"])
	}
}

func TestFileJournal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test"+JournalSuffix)

	journal, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}

	events := []Event{
		NewEvent(EventFileLoaded, nil, FileLoadedData("run1.json", "run1", 2)),
		NewEvent(EventFormSubmitted, nil, FormSubmittedData("quality", "k", 0)),
		{Type: EventSnapshotSaved, Data: SnapshotSavedData("labelling_results/x.json", 1)},
	}
	for _, ev := range events {
		if err := journal.Record(ev); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if journal.Events() != 3 {
		t.Errorf("Events() = %d, want 3", journal.Events())
	}

	// Records are flushed immediately.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}

	var first, last Event
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("Unmarshal line 0: %v", err)
	}
	if first.Type != EventFileLoaded {
		t.Errorf("first event type = %q, want %q", first.Type, EventFileLoaded)
	}
	if err := json.Unmarshal(lines[2], &last); err != nil {
		t.Fatalf("Unmarshal line 2: %v", err)
	}
	if last.Timestamp.IsZero() {
		t.Error("zero timestamp should be filled in")
	}

	if err := journal.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := journal.Close(); err != nil {
		t.Errorf("second Close should be a no-op: %v", err)
	}
	if err := journal.Record(events[0]); !errors.Is(err, ErrJournalClosed) {
		t.Errorf("Record after Close = %v, want ErrJournalClosed", err)
	}
}

func TestFileJournalAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "test"+JournalSuffix)

	for range 2 {
		journal, err := OpenJournal(path)
		if err != nil {
			t.Fatalf("OpenJournal with subdirectory: %v", err)
		}
		if journal.Path() != path {
			t.Errorf("Path() = %q, want %q", journal.Path(), path)
		}
		if err := journal.Record(NewEvent(EventLogin, nil, nil)); err != nil {
			t.Fatalf("Record: %v", err)
		}
		journal.Close() //nolint:errcheck
	}

	events, err := ReadEvents(path)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("got %d events, want 2 (reopening appends)", len(events))
	}
}

func TestDiscard(t *testing.T) {
	if err := Discard.Record(NewEvent(EventLogin, nil, nil)); err != nil {
		t.Errorf("Discard.Record should not error: %v", err)
	}
	if err := Discard.Close(); err != nil {
		t.Errorf("Discard.Close should not error: %v", err)
	}
}

func TestDefaultJournalPath(t *testing.T) {
	p := DefaultJournalPath("/tmp/journal")
	if filepath.Dir(p) != "/tmp/journal" {
		t.Errorf("dir = %q, want /tmp/journal", filepath.Dir(p))
	}
	if !strings.HasSuffix(p, JournalSuffix) {
		t.Errorf("path %q should end with %q", p, JournalSuffix)
	}
}

func TestListJournals(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"20250115T100000Z" + JournalSuffix,
		"20250116T100000Z" + JournalSuffix,
		"not-a-journal.txt",
	} {
		os.WriteFile(filepath.Join(dir, name), []byte("{}\n"), 0o644) //nolint:errcheck
	}

	files, err := ListJournals(dir)
	if err != nil {
		t.Fatalf("ListJournals: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
	if files[0].NumEvents != 1 {
		t.Errorf("NumEvents = %d, want 1", files[0].NumEvents)
	}
}

func TestListJournalsNoDir(t *testing.T) {
	if _, err := ListJournals("/nonexistent/dir"); err == nil {
		t.Error("expected error for nonexistent directory")
	}
}

func TestReadEventsSkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test"+JournalSuffix)

	content := `{"timestamp":"2025-01-15T10:00:00Z","type":"file_loaded","user":"alice","data":{}}
not valid json
{"timestamp":"2025-01-15T10:00:01Z","type":"form_submitted","user":"alice","data":{"form":"quality"}}
`
	os.WriteFile(path, []byte(content), 0o644) //nolint:errcheck

	events, err := ReadEvents(path)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (malformed line skipped)", len(events))
	}
}

func TestSummarize(t *testing.T) {
	events := []Event{
		{Type: EventFileLoaded, User: "bob"},
		{Type: EventFormSubmitted, User: "bob", Data: FormSubmittedData("quality", "k", 0)},
		{Type: EventFormSubmitted, User: "bob", Data: map[string]any{"form": "quality"}},
		{Type: EventFormSubmitted, User: "alice", Data: map[string]any{"form": "error"}},
		{Type: EventSnapshotSaved, User: "alice"},
		{Type: EventError, User: ""},
	}

	got := Summarize(events)
	if len(got) != 3 {
		t.Fatalf("got %d users, want 3", len(got))
	}
	if got[0].User != "" || got[0].Errors != 1 {
		t.Errorf("anonymous = %+v", got[0])
	}
	if got[1].User != "alice" || got[1].Saves != 1 || got[1].Submissions["error"] != 1 {
		t.Errorf("alice = %+v", got[1])
	}
	if got[2].User != "bob" || got[2].Files != 1 || got[2].Submissions["quality"] != 2 {
		t.Errorf("bob = %+v", got[2])
	}
}

func TestRenderTimeline(t *testing.T) {
	base := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: base, Type: EventFileLoaded, User: "alice", Data: FileLoadedData("run1.json", "run1", 4)},
		{Timestamp: base.Add(100 * time.Millisecond), Type: EventFormSubmitted, User: "alice", Data: FormSubmittedData("quality", "k", 2)},
		{Timestamp: base.Add(2 * time.Second), Type: EventSnapshotSaved, Data: SnapshotSavedData("labelling_results/a.json", 1)},
		{Timestamp: base.Add(3 * time.Second), Type: EventError, Data: ErrorData("something broke", nil)},
	}

	var buf bytes.Buffer
	RenderTimeline(&buf, events)

	output := buf.String()
	for _, want := range []string{"LABELLING ACTIVITY", "alice loaded run1.json (4 samples)", "submitted quality for sample 2", "(1 stale removed)", "something broke"} {
		if !strings.Contains(output, want) {
			t.Errorf("output should contain %q\n%s", want, output)
		}
	}
}

func TestRenderTimelineEmpty(t *testing.T) {
	var buf bytes.Buffer
	RenderTimeline(&buf, nil)
	if !bytes.Contains(buf.Bytes(), []byte("No events found.")) {
		t.Error("empty events should print 'No events found.'")
	}
}
