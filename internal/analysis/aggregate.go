package analysis

import (
	"errors"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/microsoft/evallabel/internal/dataset"
	"github.com/microsoft/evallabel/internal/labels"
	"github.com/microsoft/evallabel/internal/statistics"
)

// ErrNoRunsSelected is returned by FilterRuns when nothing is left to
// analyse.
var ErrNoRunsSelected = errors.New("no runs selected")

// Messages of the analytics page.
const (
	MsgSelectRun       = "Please select at least one experiment."
	MsgNoResultFiles   = "No result files found in storage."
	MsgNoCorrelation   = "Not enough data to compute correlations."
	MsgNoMetrics       = "No additional metrics available for correlation analysis."
	MsgNoLabellingData = "No labelling data available."
)

// FilterRuns keeps the runs named in ids. Unknown ids are ignored.
func FilterRuns(r *Results, ids []string) (*Results, error) {
	if len(ids) == 0 {
		return nil, ErrNoRunsSelected
	}
	out := &Results{Runs: map[string]*Run{}, Warnings: r.Warnings}
	for _, id := range ids {
		if run, ok := r.Runs[id]; ok {
			out.Runs[id] = run
		}
	}
	if out.Empty() {
		return nil, ErrNoRunsSelected
	}
	return out, nil
}

// ProgressRow is one user's progress on one run.
type ProgressRow struct {
	RunID      string
	User       string
	Count      int
	Total      int
	Percentage float64
}

// Progress counts the scored rows of every user of every run.
func Progress(r *Results) []ProgressRow {
	var out []ProgressRow
	for _, id := range r.RunIDs() {
		m := r.Runs[id].Merged
		for _, c := range ScoreColumns(m) {
			n := m.NonNull(c)
			out = append(out, ProgressRow{
				RunID:      id,
				User:       UserOf(c),
				Count:      n,
				Total:      m.Len(),
				Percentage: percent(n, m.Len()),
			})
		}
	}
	return out
}

// CoverageCell is the number of rows labelled by at least N users.
type CoverageCell struct {
	N          int
	Count      int
	Percentage float64
}

// CoverageRow holds the coverage of one run for every threshold.
type CoverageRow struct {
	RunID string
	Total int
	Cells []CoverageCell
}

// Coverage counts, for each run and each n in thresholds, the rows carrying
// at least n non-null scores.
func Coverage(r *Results, thresholds []int) []CoverageRow {
	var out []CoverageRow
	for _, id := range r.RunIDs() {
		m := r.Runs[id].Merged
		counts := labelCounts(m)
		row := CoverageRow{RunID: id, Total: m.Len()}
		for _, n := range thresholds {
			c := 0
			for _, k := range counts {
				if k >= n {
					c++
				}
			}
			row.Cells = append(row.Cells, CoverageCell{N: n, Count: c, Percentage: percent(c, m.Len())})
		}
		out = append(out, row)
	}
	return out
}

func labelCounts(m *dataset.Frame) []int {
	counts := make([]int, m.Len())
	for _, c := range ScoreColumns(m) {
		for i, v := range m.Column(c) {
			if !dataset.IsNull(v) {
				counts[i]++
			}
		}
	}
	return counts
}

// RowMeans averages the score columns of every row that has at least one
// score. The positions of those rows are returned alongside.
func RowMeans(m *dataset.Frame) (positions []int, means []float64) {
	cols := ScoreColumns(m)
	for i := range m.Len() {
		sum, n := 0.0, 0
		for _, c := range cols {
			if x, ok := dataset.Float(m.Get(i, c)); ok {
				sum += x
				n++
			}
		}
		if n > 0 {
			positions = append(positions, i)
			means = append(means, sum/float64(n))
		}
	}
	return positions, means
}

// MetricSummary is the mean and interval of one extra metric.
type MetricSummary struct {
	Name string
	statistics.MeanCI
}

// SummaryRow holds the headline numbers of one run.
type SummaryRow struct {
	RunID   string
	Score   statistics.MeanCI
	Samples int
	Metrics []MetricSummary
}

// Summary computes the mean score of every run with its confidence interval,
// plus the mean of each named metric over the same scored rows. A metric
// missing from a run reports NaN.
func Summary(r *Results, metricCols []string, confidence float64) []SummaryRow {
	var out []SummaryRow
	for _, id := range r.RunIDs() {
		m := r.Runs[id].Merged
		positions, means := RowMeans(m)
		row := SummaryRow{
			RunID:   id,
			Score:   statistics.MeanConfidenceInterval(means, confidence),
			Samples: len(means),
		}
		for _, col := range metricCols {
			ms := MetricSummary{Name: col, MeanCI: statistics.MeanCI{Mean: math.NaN(), HalfWidth: math.NaN()}}
			if m.HasColumn(col) {
				var vals []float64
				for _, p := range positions {
					if x, ok := dataset.Float(m.Get(p, col)); ok {
						vals = append(vals, x)
					}
				}
				ms.MeanCI = statistics.MeanConfidenceInterval(vals, confidence)
			}
			row.Metrics = append(row.Metrics, ms)
		}
		out = append(out, row)
	}
	return out
}

// Stacked concatenates the merged frames of all runs, relabelling rows.
func Stacked(r *Results) *dataset.Frame {
	frames := make([]*dataset.Frame, 0, len(r.Runs))
	for _, id := range r.RunIDs() {
		frames = append(frames, r.Runs[id].Merged)
	}
	return dataset.Stack(frames...)
}

// MetricCandidates lists the numeric columns of the stacked results whose
// name does not mention a score. Labelling bookkeeping columns are never
// candidates.
func MetricCandidates(r *Results) []string {
	var out []string
	for _, c := range Stacked(r).NumericColumns() {
		if strings.Contains(c, labels.ColScore) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// CorrelationMatrix holds pairwise correlations over a set of columns.
type CorrelationMatrix struct {
	Columns []string
	Cells   [][]statistics.Correlation
}

// Empty reports whether no column had enough data.
func (c CorrelationMatrix) Empty() bool { return len(c.Columns) == 0 }

// Correlations computes the Pearson correlation of every pair among the
// numeric score columns and the requested metrics, over the stacked results.
// Columns whose correlations are all undefined are dropped.
func Correlations(r *Results, metricCols []string) CorrelationMatrix {
	stacked := Stacked(r)
	numeric := stacked.NumericColumns()
	set := map[string]bool{}
	for _, c := range numeric {
		if strings.Contains(c, labels.ColScore) {
			set[c] = true
		}
	}
	for _, c := range metricCols {
		if slices.Contains(numeric, c) {
			set[c] = true
		}
	}
	cols := make([]string, 0, len(set))
	for c := range set {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	series := make([][]float64, len(cols))
	for i, c := range cols {
		series[i] = floatsWithNaN(stacked, c)
	}
	cells := make([][]statistics.Correlation, len(cols))
	for i := range cols {
		cells[i] = make([]statistics.Correlation, len(cols))
		for j := range cols {
			cells[i][j] = statistics.Pearson(series[i], series[j])
		}
	}

	var keep []int
	for i := range cols {
		if slices.ContainsFunc(cells[i], func(c statistics.Correlation) bool { return !math.IsNaN(c.R) }) {
			keep = append(keep, i)
		}
	}
	out := CorrelationMatrix{}
	for _, i := range keep {
		out.Columns = append(out.Columns, cols[i])
		row := make([]statistics.Correlation, 0, len(keep))
		for _, j := range keep {
			row = append(row, cells[i][j])
		}
		out.Cells = append(out.Cells, row)
	}
	return out
}

func floatsWithNaN(f *dataset.Frame, col string) []float64 {
	out := make([]float64, f.Len())
	for i := range out {
		x, ok := dataset.Float(f.Get(i, col))
		if !ok {
			x = math.NaN()
		}
		out[i] = x
	}
	return out
}

// Distribution bins the row-mean score of a run. When user is set only that
// user's scores are binned.
func Distribution(run *Run, user string, bins int) []statistics.Bin {
	if user != "" {
		_, vals := run.Merged.Floats(ScorePrefix + user)
		return statistics.Histogram(vals, bins)
	}
	_, means := RowMeans(run.Merged)
	return statistics.Histogram(means, bins)
}

// Example is one scored sample.
type Example struct {
	RunID string         `json:"runId"`
	Score float64        `json:"score"`
	Row   map[string]any `json:"row"`
}

// WorstExamples returns the n samples with the lowest row-mean score across
// all runs, lowest first. Ties keep run then row order.
func WorstExamples(r *Results, n int) []Example {
	var all []Example
	for _, id := range r.RunIDs() {
		m := r.Runs[id].Merged
		positions, means := RowMeans(m)
		for k, p := range positions {
			all = append(all, Example{RunID: id, Score: means[k], Row: m.Row(p)})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Score < all[j].Score })
	if len(all) > n {
		all = all[:n]
	}
	return all
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
