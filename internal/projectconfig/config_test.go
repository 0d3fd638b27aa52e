package projectconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestNew_ReturnsAllDefaults(t *testing.T) {
	cfg := New()

	// Storage
	assertEqual(t, "Storage.Backend", "azure://", cfg.Storage.Backend)
	assertEqual(t, "Storage.ResultsFolder", "labelling_results/", cfg.Storage.ResultsFolder)
	assertEqual(t, "Storage.UsersConfig", "config.yaml", cfg.Storage.UsersConfig)

	// Labelling
	assertBoolPtr(t, "Labelling.Autosave", true, cfg.Labelling.Autosave)
	assertEqual(t, "Labelling.Instructions", "", cfg.Labelling.Instructions)
	assertEqualInt(t, "Labelling.DispatchQueue", 64, cfg.Labelling.DispatchQueue)

	// Analysis
	assertBoolPtr(t, "Analysis.VarianceCheck", true, cfg.Analysis.VarianceCheck)
	if cfg.Analysis.LowVarianceThreshold != 0.1 {
		t.Errorf("Analysis.LowVarianceThreshold = %v, want 0.1", cfg.Analysis.LowVarianceThreshold)
	}
	if cfg.Analysis.Confidence != 0.95 {
		t.Errorf("Analysis.Confidence = %v, want 0.95", cfg.Analysis.Confidence)
	}
	if len(cfg.Analysis.CoverageThresholds) != 2 || cfg.Analysis.CoverageThresholds[0] != 1 || cfg.Analysis.CoverageThresholds[1] != 2 {
		t.Errorf("Analysis.CoverageThresholds = %v, want [1 2]", cfg.Analysis.CoverageThresholds)
	}
	if cfg.Analysis.CacheTTL != 5*time.Minute {
		t.Errorf("Analysis.CacheTTL = %v, want 5m", cfg.Analysis.CacheTTL)
	}
	assertEqualInt(t, "Analysis.HistogramBins", 20, cfg.Analysis.HistogramBins)
	assertEqualInt(t, "Analysis.WorstExamples", 10, cfg.Analysis.WorstExamples)

	// Server
	assertEqualInt(t, "Server.Port", 8501, cfg.Server.Port)
}

func TestNew_CoverageThresholdsAreCopied(t *testing.T) {
	cfg := New()
	cfg.Analysis.CoverageThresholds[0] = 99
	if DefaultCoverageThresholds[0] != 1 {
		t.Error("mutating a config must not change DefaultCoverageThresholds")
	}
}

func TestLoad_FullConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".evallabel.yaml", `
storage:
  backend: "sqlite:///tmp/blobs.db"
  results_folder: "results/"
  users_config: "users.yaml"
labelling:
  autosave: false
  instructions: "docs/guide.md"
  dispatch_queue: 8
analysis:
  variance_check: false
  low_variance_threshold: 0.25
  confidence: 0.9
  coverage_thresholds: [1, 3]
  cache_ttl: 30s
  histogram_bins: 10
  worst_examples: 5
server:
  port: 9000
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	assertEqual(t, "Storage.Backend", "sqlite:///tmp/blobs.db", cfg.Storage.Backend)
	assertEqual(t, "Storage.ResultsFolder", "results/", cfg.Storage.ResultsFolder)
	assertEqual(t, "Storage.UsersConfig", "users.yaml", cfg.Storage.UsersConfig)
	assertBoolPtr(t, "Labelling.Autosave", false, cfg.Labelling.Autosave)
	assertEqual(t, "Labelling.Instructions", "docs/guide.md", cfg.Labelling.Instructions)
	assertEqualInt(t, "Labelling.DispatchQueue", 8, cfg.Labelling.DispatchQueue)
	assertBoolPtr(t, "Analysis.VarianceCheck", false, cfg.Analysis.VarianceCheck)
	if cfg.Analysis.LowVarianceThreshold != 0.25 {
		t.Errorf("Analysis.LowVarianceThreshold = %v, want 0.25", cfg.Analysis.LowVarianceThreshold)
	}
	if cfg.Analysis.Confidence != 0.9 {
		t.Errorf("Analysis.Confidence = %v, want 0.9", cfg.Analysis.Confidence)
	}
	if len(cfg.Analysis.CoverageThresholds) != 2 || cfg.Analysis.CoverageThresholds[1] != 3 {
		t.Errorf("Analysis.CoverageThresholds = %v, want [1 3]", cfg.Analysis.CoverageThresholds)
	}
	if cfg.Analysis.CacheTTL != 30*time.Second {
		t.Errorf("Analysis.CacheTTL = %v, want 30s", cfg.Analysis.CacheTTL)
	}
	assertEqualInt(t, "Analysis.HistogramBins", 10, cfg.Analysis.HistogramBins)
	assertEqualInt(t, "Analysis.WorstExamples", 5, cfg.Analysis.WorstExamples)
	assertEqualInt(t, "Server.Port", 9000, cfg.Server.Port)

	if cfg.AutosaveEnabled() {
		t.Error("AutosaveEnabled() = true, want false")
	}
	if cfg.VarianceCheckEnabled() {
		t.Error("VarianceCheckEnabled() = true, want false")
	}
}

func TestLoad_PartialConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".evallabel.yaml", `
server:
  port: 8080
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	assertEqualInt(t, "Server.Port", 8080, cfg.Server.Port)
	assertEqual(t, "Storage.ResultsFolder", "labelling_results/", cfg.Storage.ResultsFolder)
	assertBoolPtr(t, "Labelling.Autosave", true, cfg.Labelling.Autosave)
	if !cfg.VarianceCheckEnabled() {
		t.Error("VarianceCheckEnabled() = false, want true")
	}
}

func TestLoad_MissingFile_ReturnsDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Should be identical to New()
	defaults := New()
	assertEqual(t, "Storage.Backend", defaults.Storage.Backend, cfg.Storage.Backend)
	assertEqual(t, "Storage.ResultsFolder", defaults.Storage.ResultsFolder, cfg.Storage.ResultsFolder)
	assertEqualInt(t, "Server.Port", defaults.Server.Port, cfg.Server.Port)
}

func TestLoad_InvalidYAML_ReturnsError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".evallabel.yaml", `
storage:
  backend: [not valid yaml
    this is broken
`)

	_, err := Load(dir)
	if err == nil {
		t.Fatal("Load() should return error for invalid YAML")
	}
}

func TestLoad_InvalidValues_ReturnsError(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"confidence too high", "analysis:\n  confidence: 1.5\n"},
		{"non-positive threshold", "analysis:\n  coverage_thresholds: [0]\n"},
		{"port out of range", "server:\n  port: 70000\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, ".evallabel.yaml", tt.yaml)
			if _, err := Load(dir); err == nil {
				t.Fatal("Load() should reject the value")
			}
		})
	}
}

func TestLoad_WalksUpDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".evallabel.yaml", `
storage:
  backend: "memory://"
`)

	child := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(child, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(child)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	assertEqual(t, "Storage.Backend", "memory://", cfg.Storage.Backend)
	// Other defaults still populated
	assertEqualInt(t, "Server.Port", 8501, cfg.Server.Port)
}

func TestLoadEnv(t *testing.T) {
	lookuper := envconfig.MapLookuper(map[string]string{
		"AZURE_STORAGE_CONTAINER_NAME":    "evals",
		"AZURE_STORAGE_CONNECTION_STRING": "AccountName=acct;AccountKey=k",
		"EVALLABEL_STORAGE":               "memory://",
		"EVALLABEL_PORT":                  "9100",
	})

	env, err := LoadEnv(context.Background(), lookuper)
	if err != nil {
		t.Fatalf("LoadEnv() error: %v", err)
	}
	assertEqual(t, "ContainerName", "evals", env.ContainerName)
	assertEqual(t, "ConnectionString", "AccountName=acct;AccountKey=k", env.ConnectionString)
	assertEqual(t, "VaultEndpoint", "", env.VaultEndpoint)

	cfg := New()
	cfg.ApplyEnv(env)
	assertEqual(t, "Storage.Backend", "memory://", cfg.Storage.Backend)
	assertEqualInt(t, "Server.Port", 9100, cfg.Server.Port)
}

func TestLoadEnv_BadPort(t *testing.T) {
	lookuper := envconfig.MapLookuper(map[string]string{"EVALLABEL_PORT": "eighty"})
	if _, err := LoadEnv(context.Background(), lookuper); err == nil {
		t.Fatal("LoadEnv() should fail on a non-numeric port")
	}
}

func TestApplyEnv_EmptyKeepsFile(t *testing.T) {
	cfg := New()
	cfg.Server.Port = 8080
	cfg.ApplyEnv(&Env{})
	cfg.ApplyEnv(nil)
	assertEqualInt(t, "Server.Port", 8080, cfg.Server.Port)
	assertEqual(t, "Storage.Backend", "azure://", cfg.Storage.Backend)
}

// --- test helpers ---

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func assertEqual(t *testing.T, field, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %q, want %q", field, got, want)
	}
}

func assertEqualInt(t *testing.T, field string, want, got int) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %d, want %d", field, got, want)
	}
}

func assertBoolPtr(t *testing.T, field string, want bool, got *bool) {
	t.Helper()
	if got == nil {
		t.Errorf("%s is nil, want *%v", field, want)
		return
	}
	if *got != want {
		t.Errorf("%s = %v, want %v", field, *got, want)
	}
}
