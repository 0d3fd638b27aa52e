package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// JournalFile represents an activity journal on disk.
type JournalFile struct {
	Path      string
	Name      string
	Size      int64
	ModTime   time.Time
	NumEvents int
}

// ListJournals finds journal files in dir, newest first.
func ListJournals(dir string) ([]JournalFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading journal directory: %w", err)
	}

	var files []JournalFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), JournalSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		path := filepath.Join(dir, e.Name())
		n, _ := countLines(path) //nolint:errcheck
		files = append(files, JournalFile{
			Path:      path,
			Name:      e.Name(),
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			NumEvents: n,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})

	return files, nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close() //nolint:errcheck
	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	return n, scanner.Err()
}

// ReadEvents parses all events from a journal file. Malformed lines are
// skipped.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	return events, nil
}

// Activity summarises one user's labelling in a journal.
type Activity struct {
	User        string
	Files       int
	Submissions map[string]int
	Saves       int
	Errors      int
}

// Summarize groups events by user. Anonymous events are grouped under "".
func Summarize(events []Event) []Activity {
	byUser := map[string]*Activity{}
	for _, ev := range events {
		a, ok := byUser[ev.User]
		if !ok {
			a = &Activity{User: ev.User, Submissions: map[string]int{}}
			byUser[ev.User] = a
		}
		switch ev.Type {
		case EventFileLoaded:
			a.Files++
		case EventFormSubmitted:
			form, _ := ev.Data["form"].(string) //nolint:errcheck
			a.Submissions[form]++
		case EventSnapshotSaved:
			a.Saves++
		case EventError:
			a.Errors++
		}
	}
	out := make([]Activity, 0, len(byUser))
	for _, a := range byUser {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out
}

// RenderTimeline writes a human-readable journal timeline to w.
//
//nolint:errcheck // display-only writes; errors are not actionable
func RenderTimeline(w io.Writer, events []Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return
	}

	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w, " LABELLING ACTIVITY")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w)

	start := events[0].Timestamp
	for _, ev := range events {
		ts := formatDuration(ev.Timestamp.Sub(start))
		who := ev.User
		if who == "" {
			who = "anonymous"
		}

		switch ev.Type {
		case EventFileLoaded:
			file, _ := ev.Data["file"].(string) //nolint:errcheck
			rows := jsonNumber(ev.Data["rows"])
			fmt.Fprintf(w, "[%s] 📂 %s loaded %s (%d samples)\n", ts, who, file, rows)

		case EventSavedRestored:
			path, _ := ev.Data["path"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s] ↺  %s restored %s\n", ts, who, path)

		case EventFormSubmitted:
			form, _ := ev.Data["form"].(string) //nolint:errcheck
			row := jsonNumber(ev.Data["row"])
			fmt.Fprintf(w, "[%s] ✓  %s submitted %s for sample %d\n", ts, who, form, row)

		case EventSnapshotSaved:
			path, _ := ev.Data["path"].(string) //nolint:errcheck
			pruned := jsonNumber(ev.Data["pruned"])
			fmt.Fprintf(w, "[%s] 💾 saved %s (%d stale removed)\n", ts, path, pruned)

		case EventLogin:
			fmt.Fprintf(w, "[%s] 🔑 %s logged in\n", ts, who)

		case EventError:
			msg, _ := ev.Data["message"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s] ❌ Error: %s\n", ts, msg)

		default:
			fmt.Fprintf(w, "[%s] %s %v\n", ts, ev.Type, ev.Data)
		}
	}
	fmt.Fprintln(w)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%6dms", d.Milliseconds())
	}
	return fmt.Sprintf("%6.1fs", d.Seconds())
}

// jsonNumber extracts a number from a JSON-decoded value.
func jsonNumber(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64() //nolint:errcheck
		return int(i)
	}
	return 0
}
