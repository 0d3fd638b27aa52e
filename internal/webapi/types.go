package webapi

import (
	"github.com/microsoft/evallabel/internal/analysis"
	"github.com/microsoft/evallabel/internal/forms"
	"github.com/microsoft/evallabel/internal/session"
	"github.com/microsoft/evallabel/internal/statistics"
)

// HealthResponse is the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is returned for errors.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    int      `json:"code"`
	Columns []string `json:"columns,omitempty"`
	Help    string   `json:"help,omitempty"`
}

// Identity is who the request belongs to.
type Identity struct {
	User          string `json:"user,omitempty"`
	Name          string `json:"name,omitempty"`
	DataScientist bool   `json:"dataScientist"`
	AuthEnabled   bool   `json:"authEnabled"`
}

// LoggedIn reports whether a user is logged in.
func (i Identity) LoggedIn() bool { return i.User != "" }

// Progress is the completion indicator of the labelling page.
type Progress struct {
	Completed  int     `json:"completed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
	Text       string  `json:"text"`
}

// ErrorReport is a stored error entry as shown on the page.
type ErrorReport struct {
	Snippet     string   `json:"snippet"`
	Categories  []string `json:"categories"`
	Description string   `json:"description"`
}

// Sample is the current row with the values its forms start from.
type Sample struct {
	Row         int     `json:"row"`
	Question    string  `json:"question"`
	Prediction  *string `json:"prediction"`
	GroundTruth *string `json:"groundTruth"`
	Context     *string `json:"context,omitempty"`

	QualityKey     string `json:"qualityKey"`
	ErrorKey       string `json:"errorKey"`
	GroundTruthKey string `json:"groundTruthKey"`

	Quality         forms.QualityInput     `json:"quality"`
	GroundTruthForm forms.GroundTruthInput `json:"groundTruthForm"`
	ShowGroundTruth bool                   `json:"showGroundTruth"`
	Errors          []ErrorReport          `json:"errors"`
	Metrics         map[string]any         `json:"metrics,omitempty"`
}

// LabellingView is everything the labelling page renders.
type LabellingView struct {
	Identity   Identity         `json:"identity"`
	Phase      string           `json:"phase"`
	Files      []string         `json:"files,omitempty"`
	SourceFile string           `json:"sourceFile,omitempty"`
	RunID      string           `json:"runId,omitempty"`
	SavedOffer string           `json:"savedOffer,omitempty"`
	Progress   *Progress        `json:"progress,omitempty"`
	Sample     *Sample          `json:"sample,omitempty"`
	Notices    []session.Notice `json:"notices"`

	QualityLabels   []string `json:"qualityLabels"`
	ErrorCategories []string `json:"errorCategories"`
}

// ResultsView is the overview table of the live results.
type ResultsView struct {
	FileName string           `json:"fileName"`
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
}

// SubmitResponse acknowledges an accepted form.
type SubmitResponse struct {
	Kind     forms.Kind     `json:"kind"`
	Key      string         `json:"key"`
	Row      int            `json:"row"`
	Notice   session.Notice `json:"notice"`
	Progress *Progress      `json:"progress,omitempty"`
}

// HistogramView is the score distribution of one run.
type HistogramView struct {
	RunID string           `json:"runId"`
	User  string           `json:"user,omitempty"`
	Bins  []statistics.Bin `json:"bins"`
}

// AnalyticsView is everything the analytics page renders.
type AnalyticsView struct {
	AllRuns          []string         `json:"allRuns"`
	SelectedRuns     []string         `json:"selectedRuns"`
	MetricCandidates []string         `json:"metricCandidates"`
	Report           *analysis.Report `json:"report,omitempty"`
	Histograms       []HistogramView  `json:"histograms,omitempty"`
	Notices          []session.Notice `json:"notices"`
}
