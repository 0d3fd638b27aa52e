package session

import "time"

// EventType identifies the kind of journal event.
type EventType string

const (
	EventFileLoaded    EventType = "file_loaded"
	EventSavedRestored EventType = "saved_restored"
	EventFormSubmitted EventType = "form_submitted"
	EventSnapshotSaved EventType = "snapshot_saved"
	EventLogin         EventType = "login"
	EventError         EventType = "error"
)

// Event is a single timestamped entry in the activity journal.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Session   string         `json:"session,omitempty"`
	User      string         `json:"user,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event for s with the current timestamp. s may be nil.
func NewEvent(t EventType, s *State, data map[string]any) Event {
	ev := Event{
		Timestamp: time.Now().UTC(),
		Type:      t,
		Data:      data,
	}
	if s != nil {
		ev.Session = s.ID
		ev.User = s.User()
	}
	return ev
}

// FileLoadedData returns event data for a dataset load.
func FileLoadedData(file, runID string, rows int) map[string]any {
	return map[string]any{
		"file":   file,
		"run_id": runID,
		"rows":   rows,
	}
}

// FormSubmittedData returns event data for a form submission.
func FormSubmittedData(form, key string, row int) map[string]any {
	return map[string]any{
		"form": form,
		"key":  key,
		"row":  row,
	}
}

// SnapshotSavedData returns event data for a persisted snapshot.
func SnapshotSavedData(path string, pruned int) map[string]any {
	return map[string]any{
		"path":   path,
		"pruned": pruned,
	}
}

// ErrorData returns event data for an error.
func ErrorData(message string, details map[string]any) map[string]any {
	d := map[string]any{
		"message": message,
	}
	for k, v := range details {
		d[k] = v
	}
	return d
}
