// Package projectconfig provides the ProjectConfig struct and loader for
// .evallabel.yaml configuration files, plus the environment overlay.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up by Load.
const FileName = ".evallabel.yaml"

// Default values for project configuration. New() references them and no
// other code should duplicate them.
const (
	DefaultStorageBackend = "azure://"
	DefaultResultsFolder  = "labelling_results/"
	DefaultUsersConfig    = "config.yaml"

	DefaultAutosave      = true
	DefaultDispatchQueue = 64

	DefaultLowVarianceThreshold = 0.1
	DefaultConfidence           = 0.95
	DefaultAnalysisCacheTTL     = 5 * time.Minute
	DefaultHistogramBins        = 20
	DefaultWorstExamples        = 10

	DefaultServerPort = 8501
)

// DefaultCoverageThresholds are the n values of the labelled-by-at-least-n
// view.
var DefaultCoverageThresholds = []int{1, 2}

// StorageConfig selects the blob backend and the paths inside it.
type StorageConfig struct {
	Backend       string `yaml:"backend,omitempty"`
	ResultsFolder string `yaml:"results_folder,omitempty"`
	UsersConfig   string `yaml:"users_config,omitempty"`
}

// LabellingConfig holds labelling page settings.
type LabellingConfig struct {
	Autosave      *bool  `yaml:"autosave,omitempty"`
	Instructions  string `yaml:"instructions,omitempty"`
	DispatchQueue int    `yaml:"dispatch_queue,omitempty"`
}

// AnalysisConfig holds analytics settings.
type AnalysisConfig struct {
	VarianceCheck        *bool         `yaml:"variance_check,omitempty"`
	LowVarianceThreshold float64       `yaml:"low_variance_threshold,omitempty"`
	Confidence           float64       `yaml:"confidence,omitempty"`
	CoverageThresholds   []int         `yaml:"coverage_thresholds,omitempty"`
	CacheTTL             time.Duration `yaml:"cache_ttl,omitempty"`
	HistogramBins        int           `yaml:"histogram_bins,omitempty"`
	WorstExamples        int           `yaml:"worst_examples,omitempty"`
}

// ServerConfig holds web server settings.
type ServerConfig struct {
	Port int `yaml:"port,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .evallabel.yaml.
type ProjectConfig struct {
	Storage   StorageConfig   `yaml:"storage,omitempty"`
	Labelling LabellingConfig `yaml:"labelling,omitempty"`
	Analysis  AnalysisConfig  `yaml:"analysis,omitempty"`
	Server    ServerConfig    `yaml:"server,omitempty"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Storage: StorageConfig{
			Backend:       DefaultStorageBackend,
			ResultsFolder: DefaultResultsFolder,
			UsersConfig:   DefaultUsersConfig,
		},
		Labelling: LabellingConfig{
			Autosave:      boolPtr(DefaultAutosave),
			DispatchQueue: DefaultDispatchQueue,
		},
		Analysis: AnalysisConfig{
			VarianceCheck:        boolPtr(true),
			LowVarianceThreshold: DefaultLowVarianceThreshold,
			Confidence:           DefaultConfidence,
			CoverageThresholds:   slices.Clone(DefaultCoverageThresholds),
			CacheTTL:             DefaultAnalysisCacheTTL,
			HistogramBins:        DefaultHistogramBins,
			WorstExamples:        DefaultWorstExamples,
		},
		Server: ServerConfig{
			Port: DefaultServerPort,
		},
	}
}

// Load finds .evallabel.yaml by walking up from startDir (max 10 levels),
// unmarshals it, and fills in missing fields with defaults.
// If no config file is found, returns defaults with a nil error.
// Real I/O errors (e.g. permission denied) are returned to the caller.
func Load(startDir string) (*ProjectConfig, error) {
	cfg := New()

	data, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	}

	var fileCfg ProjectConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}

	mergeConfig(cfg, &fileCfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", FileName, err)
	}
	return cfg, nil
}

// Validate rejects values no component can work with.
func (c *ProjectConfig) Validate() error {
	if c.Analysis.Confidence <= 0 || c.Analysis.Confidence >= 1 {
		return fmt.Errorf("analysis.confidence must be in (0, 1), got %v", c.Analysis.Confidence)
	}
	for _, n := range c.Analysis.CoverageThresholds {
		if n < 1 {
			return fmt.Errorf("analysis.coverage_thresholds must be positive, got %d", n)
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// VarianceCheckEnabled reports whether low variance runs are excluded.
func (c *ProjectConfig) VarianceCheckEnabled() bool {
	return c.Analysis.VarianceCheck == nil || *c.Analysis.VarianceCheck
}

// AutosaveEnabled reports whether snapshots are saved after each submission.
func (c *ProjectConfig) AutosaveEnabled() bool {
	return c.Labelling.Autosave == nil || *c.Labelling.Autosave
}

// findConfigFile walks up from dir looking for .evallabel.yaml (max 10
// levels). Returns os.ErrNotExist if no config file is found.
func findConfigFile(dir string) ([]byte, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, FileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return nil, os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	// Storage
	if src.Storage.Backend != "" {
		dst.Storage.Backend = src.Storage.Backend
	}
	if src.Storage.ResultsFolder != "" {
		dst.Storage.ResultsFolder = src.Storage.ResultsFolder
	}
	if src.Storage.UsersConfig != "" {
		dst.Storage.UsersConfig = src.Storage.UsersConfig
	}

	// Labelling
	if src.Labelling.Autosave != nil {
		dst.Labelling.Autosave = src.Labelling.Autosave
	}
	if src.Labelling.Instructions != "" {
		dst.Labelling.Instructions = src.Labelling.Instructions
	}
	if src.Labelling.DispatchQueue != 0 {
		dst.Labelling.DispatchQueue = src.Labelling.DispatchQueue
	}

	// Analysis
	if src.Analysis.VarianceCheck != nil {
		dst.Analysis.VarianceCheck = src.Analysis.VarianceCheck
	}
	if src.Analysis.LowVarianceThreshold != 0 {
		dst.Analysis.LowVarianceThreshold = src.Analysis.LowVarianceThreshold
	}
	if src.Analysis.Confidence != 0 {
		dst.Analysis.Confidence = src.Analysis.Confidence
	}
	if len(src.Analysis.CoverageThresholds) > 0 {
		dst.Analysis.CoverageThresholds = src.Analysis.CoverageThresholds
	}
	if src.Analysis.CacheTTL != 0 {
		dst.Analysis.CacheTTL = src.Analysis.CacheTTL
	}
	if src.Analysis.HistogramBins != 0 {
		dst.Analysis.HistogramBins = src.Analysis.HistogramBins
	}
	if src.Analysis.WorstExamples != 0 {
		dst.Analysis.WorstExamples = src.Analysis.WorstExamples
	}

	// Server
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
}

func boolPtr(b bool) *bool {
	return &b
}
