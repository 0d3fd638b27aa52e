package webapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/microsoft/evallabel/internal/analysis"
	"github.com/microsoft/evallabel/internal/session"
)

// Analytics page messages.
const (
	MsgAnalystOnly = "The analytics page is only available to data scientists."
	MsgLoadResults = "Could not load labelling results from storage."
)

// AnalyticsQuery selects what the analytics page shows.
type AnalyticsQuery struct {
	// Runs restricts the report; nil selects every run and an empty
	// selection shows nothing.
	Runs []string
	// Metrics are the extra columns summarised per run; nil selects every
	// candidate.
	Metrics []string
	// Correlate are the extra columns correlated with the scores; nil
	// selects every candidate.
	Correlate []string
	// VarianceCheck overrides the configured low-variance filter.
	VarianceCheck *bool
}

// ParseAnalyticsQuery reads an AnalyticsQuery from URL parameters. List
// parameters may repeat or hold comma separated values.
func ParseAnalyticsQuery(q url.Values) AnalyticsQuery {
	aq := AnalyticsQuery{
		Runs:      listParam(q, "runs"),
		Metrics:   listParam(q, "metrics"),
		Correlate: listParam(q, "correlate"),
	}
	if v := q.Get("variance_check"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			aq.VarianceCheck = &b
		}
	}
	return aq
}

func listParam(q url.Values, name string) []string {
	vals, ok := q[name]
	if !ok {
		return nil
	}
	out := []string{}
	for _, v := range vals {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// HandleAnalysis returns the analytics report for the selected runs.
func (h *Handlers) HandleAnalysis(w http.ResponseWriter, r *http.Request) {
	_, ident := h.Session(w, r)
	if !ident.DataScientist {
		writeError(w, http.StatusForbidden, MsgAnalystOnly)
		return
	}
	writeJSON(w, http.StatusOK, h.AnalyticsView(r.Context(), ParseAnalyticsQuery(r.URL.Query())))
}

// HandleHistogram returns the score distribution of one run, optionally for
// a single user.
func (h *Handlers) HandleHistogram(w http.ResponseWriter, r *http.Request) {
	_, ident := h.Session(w, r)
	if !ident.DataScientist {
		writeError(w, http.StatusForbidden, MsgAnalystOnly)
		return
	}
	q := ParseAnalyticsQuery(r.URL.Query())
	res, err := h.loadResults(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusBadGateway, MsgLoadResults)
		return
	}
	id := r.PathValue("id")
	run, ok := res.Runs[id]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown run "+strconv.Quote(id))
		return
	}
	user := r.URL.Query().Get("user")
	if user != "" && !slices.Contains(run.Users, user) {
		writeError(w, http.StatusNotFound, "unknown user "+strconv.Quote(user))
		return
	}
	writeJSON(w, http.StatusOK, HistogramView{
		RunID: id,
		User:  user,
		Bins:  analysis.Distribution(run, user, h.project.Analysis.HistogramBins),
	})
}

func (h *Handlers) loadResults(ctx context.Context, q AnalyticsQuery) (*analysis.Results, error) {
	l := h.loader
	if q.VarianceCheck != nil && *q.VarianceCheck != l.VarianceCheck() {
		l = l.WithVarianceCheck(*q.VarianceCheck)
	}
	res, err := h.cache.Load(ctx, l, l.VarianceCheck(), l.Threshold())
	if err != nil {
		h.logger.Error("loading analysis results", "error", err)
		return nil, err
	}
	return res, nil
}

// AnalyticsView assembles the analytics page. Problems that leave nothing to
// show are reported as notices on an otherwise empty view.
func (h *Handlers) AnalyticsView(ctx context.Context, q AnalyticsQuery) AnalyticsView {
	view := AnalyticsView{Notices: []session.Notice{}}
	notify := func(level session.Level, msg string) {
		view.Notices = append(view.Notices, session.Notice{Level: level, Message: msg})
	}

	res, err := h.loadResults(ctx, q)
	if err != nil {
		notify(session.LevelError, MsgLoadResults)
		return view
	}
	for _, warn := range res.Warnings {
		notify(session.LevelWarning, warn.Message)
	}
	if res.Empty() {
		notify(session.LevelWarning, analysis.MsgNoResultFiles)
		return view
	}
	view.AllRuns = res.RunIDs()

	ids := q.Runs
	if ids == nil {
		ids = view.AllRuns
	}
	selected, err := analysis.FilterRuns(res, ids)
	if err != nil {
		if errors.Is(err, analysis.ErrNoRunsSelected) {
			notify(session.LevelInfo, analysis.MsgSelectRun)
		} else {
			notify(session.LevelError, err.Error())
		}
		return view
	}
	view.SelectedRuns = selected.RunIDs()
	view.MetricCandidates = analysis.MetricCandidates(selected)

	opts := analysis.ReportOptions{
		Confidence:    h.project.Analysis.Confidence,
		Thresholds:    h.project.Analysis.CoverageThresholds,
		SummaryCols:   pick(q.Metrics, view.MetricCandidates),
		CorrelateCols: pick(q.Correlate, view.MetricCandidates),
		Worst:         h.project.Analysis.WorstExamples,
	}
	rep := analysis.BuildReport(selected, opts)
	// Load warnings are already notices.
	rep.Warnings = nil
	view.Report = &rep

	switch {
	case len(view.MetricCandidates) == 0:
		notify(session.LevelInfo, analysis.MsgNoMetrics)
	case len(opts.CorrelateCols) > 0 && len(rep.Correlation.Headers) == 0:
		notify(session.LevelWarning, analysis.MsgNoCorrelation)
	}
	if len(rep.Worst) == 0 {
		notify(session.LevelInfo, analysis.MsgNoLabellingData)
	}

	for _, id := range view.SelectedRuns {
		view.Histograms = append(view.Histograms, HistogramView{
			RunID: id,
			Bins:  analysis.Distribution(selected.Runs[id], "", h.project.Analysis.HistogramBins),
		})
	}
	return view
}

// pick keeps the requested columns that are candidates, in request order.
// A nil request selects every candidate.
func pick(requested, candidates []string) []string {
	if requested == nil {
		return candidates
	}
	var out []string
	for _, c := range requested {
		if slices.Contains(candidates, c) {
			out = append(out, c)
		}
	}
	return out
}
