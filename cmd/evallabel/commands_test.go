package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/microsoft/evallabel/internal/analysis"
	"github.com/microsoft/evallabel/internal/auth"
	"github.com/microsoft/evallabel/internal/blobstore"
	"github.com/microsoft/evallabel/internal/naming"
	"github.com/microsoft/evallabel/internal/projectconfig"
	"github.com/microsoft/evallabel/internal/session"
)

const resultsFolder = "labelling_results/"

var labelledAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)

const (
	aliceRun1 = `{
		"question": {"0": "q0", "1": "q1", "2": "q2"},
		"latency": {"0": 1.0, "1": 3.0, "2": 2.0},
		"label_quality": {"0": "Good", "1": "Poor", "2": "Average"}
	}`
	carolFlat = `{
		"question": {"0": "q0", "1": "q1", "2": "q2"},
		"label_quality": {"0": "Good", "1": "Good", "2": "Good"}
	}`
	sourceFile = `{
		"question": {"0": "What is Go?"},
		"predictions": {"0": "A language"},
		"ground_truth": {"0": null}
	}`
)

func TestMain(m *testing.M) {
	auth.HashCost = bcrypt.MinCost
	os.Exit(m.Run())
}

// newProjectDir writes a .evallabel.yaml pointing at a fresh SQLite store in a
// temp dir and seeds the store with files.
func newProjectDir(t *testing.T, files map[string][]byte) string {
	t.Helper()
	t.Setenv("EVALLABEL_STORAGE", "")
	t.Setenv("AZURE_KEY_VAULT_ENDPOINT", "")

	dir := t.TempDir()
	db := filepath.Join(dir, "store.db")
	cfg := fmt.Sprintf("storage:\n  backend: sqlite://%s\n", db)
	require.NoError(t, os.WriteFile(filepath.Join(dir, projectconfig.FileName), []byte(cfg), 0o644))

	store, err := blobstore.OpenSQLite(context.Background(), db)
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck
	for name, body := range files {
		require.NoError(t, store.Put(context.Background(), name, body, true))
	}
	return dir
}

func snapshot(run, user string) string {
	return resultsFolder + naming.Encode(labelledAt, run, user)
}

func usersConfig(t *testing.T) []byte {
	t.Helper()
	cfg := auth.NewConfig()
	require.NoError(t, cfg.Register(auth.Registration{
		Username: "alice", Name: "Alice", Email: "alice@example.com",
		Password: "Secret1!", RepeatPassword: "Secret1!", DataScientist: true,
	}))
	require.NoError(t, cfg.Register(auth.Registration{
		Username: "bob", Name: "Bob", Email: "bob@example.com",
		Password: "Hunter2$x", RepeatPassword: "Hunter2$x",
	}))
	data, err := cfg.Marshal()
	require.NoError(t, err)
	return data
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "analyze", "files", "users", "journal", "check"})
	assert.NotNil(t, cmd.PersistentFlags().Lookup("debug"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("dir"))
}

func TestAnalyzeMarkdown(t *testing.T) {
	dir := newProjectDir(t, map[string][]byte{
		snapshot("run1", "alice"): []byte(aliceRun1),
	})

	out, err := run(t, "analyze", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "## Progress per file")
	assert.Contains(t, out, "## Results Summary")
	assert.Contains(t, out, "run1")
	assert.Contains(t, out, "Worst Scored Examples")
}

func TestAnalyzeVarianceCheck(t *testing.T) {
	dir := newProjectDir(t, map[string][]byte{
		snapshot("run1", "alice"): []byte(aliceRun1),
		snapshot("flat", "carol"): []byte(carolFlat),
	})

	decode := func(out string) analysis.Report {
		var rep analysis.Report
		require.NoError(t, json.Unmarshal([]byte(out), &rep))
		return rep
	}

	out, err := run(t, "analyze", "--dir", dir, "--format", "json")
	require.NoError(t, err)
	rep := decode(out)
	assert.Equal(t, []string{"run1"}, rep.Runs)
	require.NotEmpty(t, rep.Warnings, "the constant labeller is reported")

	out, err = run(t, "analyze", "--dir", dir, "--format", "json", "--no-variance-check")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"flat", "run1"}, decode(out).Runs)
}

func TestAnalyzeErrors(t *testing.T) {
	dir := newProjectDir(t, map[string][]byte{
		snapshot("run1", "alice"): []byte(aliceRun1),
	})

	_, err := run(t, "analyze", "--dir", dir, "--runs", "missing")
	assert.ErrorIs(t, err, analysis.ErrNoRunsSelected)

	_, err = run(t, "analyze", "--dir", dir, "--confidence", "1.5")
	assert.ErrorContains(t, err, "--confidence")

	_, err = run(t, "analyze", "--dir", dir, "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")

	empty := newProjectDir(t, nil)
	_, err = run(t, "analyze", "--dir", empty)
	assert.ErrorContains(t, err, analysis.MsgNoResultFiles)
}

func TestFiles(t *testing.T) {
	dir := newProjectDir(t, map[string][]byte{
		"run-a.json":               []byte(sourceFile),
		snapshot("run-a", "alice"): []byte(aliceRun1),
		snapshot("run-a", "bob"):   []byte(aliceRun1),
	})

	out, err := run(t, "files", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Source files (1)")
	assert.Contains(t, out, "run-a.json")
	assert.Contains(t, out, "Saved snapshots (2)")
	assert.Contains(t, out, labelledAt.Format("2006-01-02 15:04:05"))

	out, err = run(t, "files", "--dir", dir, "--user", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved snapshots (1)")
}

func TestColumn(t *testing.T) {
	assert.Equal(t, "abc   ", column("abc", 6))
	assert.Equal(t, "abcd…", column("abcdefgh", 5))
	assert.Equal(t, "日本…", column("日本語です", 5), "wide runes count two cells")
}

func TestUsersList(t *testing.T) {
	dir := newProjectDir(t, map[string][]byte{
		projectconfig.DefaultUsersConfig: usersConfig(t),
	})

	out, err := run(t, "users", "list", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "alice@example.com")
	assert.Contains(t, out, "data_scientist")
	assert.Contains(t, out, "labeller")
	assert.Less(t, strings.Index(out, "alice"), strings.Index(out, "bob"))
}

func TestUsersListWithoutConfig(t *testing.T) {
	dir := newProjectDir(t, nil)

	out, err := run(t, "users", "list", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No users config found")
}

func TestCheck(t *testing.T) {
	dir := newProjectDir(t, map[string][]byte{
		projectconfig.DefaultUsersConfig: usersConfig(t),
	})

	out, err := run(t, "check", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+filepath.Join(dir, projectconfig.FileName)+" is valid")
	assert.Contains(t, out, "✓ "+projectconfig.DefaultUsersConfig+" is valid")
}

func TestCheckInvalidUsersConfig(t *testing.T) {
	dir := newProjectDir(t, map[string][]byte{
		projectconfig.DefaultUsersConfig: []byte("credentials:\n  usernames:\n    bob: {}\n"),
	})

	out, err := run(t, "check", "--dir", dir)
	var checkErr *CheckFailedError
	require.ErrorAs(t, err, &checkErr)
	assert.Contains(t, out, "✗ "+projectconfig.DefaultUsersConfig)
	assert.Contains(t, out, "cookie")
}

func TestCheckInvalidProjectFile(t *testing.T) {
	dir := t.TempDir()
	bad := "storage:\n  backend: ftp://nowhere\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, projectconfig.FileName), []byte(bad), 0o644))

	out, err := run(t, "check", "--dir", dir)
	var checkErr *CheckFailedError
	require.ErrorAs(t, err, &checkErr)
	assert.Contains(t, out, "backend")
}

func TestCheckMissingUsersConfig(t *testing.T) {
	dir := newProjectDir(t, nil)

	out, err := run(t, "check", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "login disabled")
}

func TestJournalCommands(t *testing.T) {
	dir := t.TempDir()
	journal, err := session.OpenJournal(session.DefaultJournalPath(dir))
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, journal.Record(session.Event{Type: session.EventFileLoaded, Timestamp: now, User: "alice",
		Data: map[string]any{"file": "run-a.json", "rows": 2}}))
	require.NoError(t, journal.Record(session.Event{Type: session.EventFormSubmitted, Timestamp: now, User: "alice",
		Data: map[string]any{"form": "quality"}}))
	require.NoError(t, journal.Close())

	out, err := run(t, "journal", "list", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Base(journal.Path()))

	out, err = run(t, "journal", "view", journal.Path())
	require.NoError(t, err)
	assert.Contains(t, out, "LABELLING ACTIVITY")
	assert.Contains(t, out, "run-a.json")

	out, err = run(t, "journal", "summary", journal.Path())
	require.NoError(t, err)
	assert.Contains(t, out, "quality=1")

	out, err = run(t, "journal", "list", "--dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No journals found.")
}

func memoryProject(t *testing.T, files map[string][]byte) *project {
	t.Helper()
	backend := blobstore.NewMemoryStore()
	for name, body := range files {
		require.NoError(t, backend.Put(context.Background(), name, body, true))
	}
	return &project{cfg: projectconfig.New(), backend: backend, store: backend, logger: slog.Default()}
}

func TestNewServerWithoutUsersConfig(t *testing.T) {
	p := memoryProject(t, map[string][]byte{"run-a.json": []byte(sourceFile)})
	journalDir := t.TempDir()

	srv, shutdown, err := newServer(context.Background(), p, serveOptions{journalDir: journalDir})
	require.NoError(t, err)

	h := srv.Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"a","password":"b"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/files/load", strings.NewReader(`{"file":"run-a.json"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	shutdown()

	files, err := session.ListJournals(journalDir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	events, err := session.ReadEvents(files[0].Path)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, session.EventFileLoaded, events[0].Type)
}

func TestNewServerWithUsersConfig(t *testing.T) {
	p := memoryProject(t, map[string][]byte{
		projectconfig.DefaultUsersConfig: usersConfig(t),
	})

	srv, shutdown, err := newServer(context.Background(), p, serveOptions{})
	require.NoError(t, err)
	defer shutdown()

	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"alice","password":"Secret1!"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
