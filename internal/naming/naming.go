// Package naming encodes and decodes the names of persisted labelling
// result files.
//
// Two formats exist. The current one joins the components with a triple
// underscore:
//
//	20240131154501___my-run___alice.json
//
// Older files use single underscores, which cannot be split reliably when the
// run id or the user name itself contains an underscore:
//
//	20240131154501_my-run_alice.json
//
// Both decode paths are kept side by side because a legacy name cannot be
// told apart from an ambiguous current name with certainty.
package naming

import (
	"path"
	"sort"
	"strings"
	"time"
)

const (
	// Separator joins the components of a current-format file name.
	Separator = "___"

	// LegacySeparator joins the components of a legacy file name.
	LegacySeparator = "_"

	// TimestampLayout is the layout of the timestamp embedded in file names
	// and used for the start/end columns of a results table.
	TimestampLayout = "20060102150405"

	// Extension is the suffix of every result file.
	Extension = ".json"
)

// Name is the decoded form of a result file name.
type Name struct {
	Timestamp time.Time
	RunID     string
	UserName  string
	Legacy    bool
}

// Valid reports whether both the run id and the user name are non-empty.
// Decode is best-effort, so callers check this before using a Name.
func (n Name) Valid() bool {
	return n.RunID != "" && n.UserName != ""
}

// Encode builds a current-format file name (without folder).
func Encode(ts time.Time, runID, userName string) string {
	return ts.Format(TimestampLayout) + Separator + runID + Separator + userName + Extension
}

// EncodeLegacy builds a legacy file name. Only used to produce fixtures and
// to exercise backward compatibility.
func EncodeLegacy(ts time.Time, runID, userName string) string {
	return ts.Format(TimestampLayout) + LegacySeparator + runID + LegacySeparator + userName + Extension
}

// Decode extracts the run id and user name from p. Any folder prefix is
// ignored. Malformed names yield a best-effort result; see Name.Valid.
func Decode(p string) (runID, userName string) {
	n := Parse(p)
	return n.RunID, n.UserName
}

// Parse decodes p into a Name. The timestamp is left zero when it does not
// match TimestampLayout.
func Parse(p string) Name {
	base := path.Base(p)

	if strings.Contains(base, Separator) {
		parts := strings.SplitN(base, Separator, 3)
		if len(parts) == 3 {
			return Name{
				Timestamp: parseTimestamp(parts[0]),
				RunID:     parts[1],
				UserName:  strings.TrimSuffix(parts[2], Extension),
			}
		}
	}

	parts := strings.Split(base, LegacySeparator)
	n := Name{Legacy: true, Timestamp: parseTimestamp(parts[0])}
	switch len(parts) {
	case 1:
		n.UserName = strings.TrimSuffix(parts[0], Extension)
		n.Timestamp = time.Time{}
	default:
		n.RunID = parts[len(parts)-2]
		n.UserName = strings.TrimSuffix(parts[len(parts)-1], Extension)
	}
	return n
}

// Timestamp returns the timestamp embedded in p.
func Timestamp(p string) (time.Time, bool) {
	ts := Parse(p).Timestamp
	return ts, !ts.IsZero()
}

// GroupKey returns p with its timestamp prefix removed. All versions of the
// same (run, user) snapshot share a group key.
func GroupKey(p string) (string, bool) {
	dir, base := path.Split(p)
	sep := LegacySeparator
	if strings.Contains(base, Separator) {
		sep = Separator
	}
	_, rest, ok := strings.Cut(base, sep)
	if !ok || rest == "" {
		return "", false
	}
	return dir + rest, true
}

// MatchesUserRun reports whether p is a snapshot saved by userName for runID.
func MatchesUserRun(p, userName, runID string) bool {
	base := path.Base(p)
	if strings.Contains(base, Separator) {
		parts := strings.Split(base, Separator)
		return len(parts) >= 3 && parts[1] == runID && strings.HasSuffix(parts[2], userName+Extension)
	}
	return strings.HasSuffix(base, runID+LegacySeparator+userName+Extension)
}

// Latest returns the file with the newest embedded timestamp. Names without
// a parseable timestamp are ignored.
func Latest(files []string) (string, bool) {
	type stamped struct {
		name string
		ts   time.Time
	}
	var candidates []stamped
	for _, f := range files {
		if ts, ok := Timestamp(f); ok {
			candidates = append(candidates, stamped{name: f, ts: ts})
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ts.After(candidates[j].ts)
	})
	return candidates[0].name, true
}

// RunID returns the run id of a source file: its base name without the
// final extension.
func RunID(sourceFile string) string {
	base := path.Base(sourceFile)
	if ext := path.Ext(base); ext != "" {
		return strings.TrimSuffix(base, ext)
	}
	return base
}

func parseTimestamp(s string) time.Time {
	ts, err := time.ParseInLocation(TimestampLayout, s, time.Local)
	if err != nil {
		return time.Time{}
	}
	return ts
}
