package analysis

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/microsoft/evallabel/internal/labels"
	"github.com/microsoft/evallabel/internal/statistics"
)

// Table is a renderer-agnostic grid: the HTML page and the markdown report
// share it.
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

var titleCaser = cases.Title(language.English)

// MetricHeader returns the column header of a metric in the summary table.
func MetricHeader(col string) string {
	return "Mean " + titleCaser.String(strings.ReplaceAll(col, "_", " "))
}

// FormatFloat renders x with two decimals, "nan" when undefined.
func FormatFloat(x float64) string {
	if math.IsNaN(x) {
		return "nan"
	}
	return strconv.FormatFloat(x, 'f', 2, 64)
}

// FormatCI renders a mean and its interval as "m ± h".
func FormatCI(m statistics.MeanCI) string {
	return FormatFloat(m.Mean) + " ± " + FormatFloat(m.HalfWidth)
}

// FormatCorrelation renders "r (p)", or "" when either is undefined.
func FormatCorrelation(c statistics.Correlation) string {
	if math.IsNaN(c.R) || math.IsNaN(c.P) {
		return ""
	}
	return fmt.Sprintf("%.2f (%.2f)", c.R, c.P)
}

// ProgressTable tabulates Progress.
func ProgressTable(rows []ProgressRow) Table {
	t := Table{Headers: []string{labels.ColRunID, labels.ColUserName, "labelled_samples_count", "labelled_percentage"}}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{r.RunID, r.User, strconv.Itoa(r.Count), FormatFloat(r.Percentage)})
	}
	return t
}

// CoverageTable tabulates Coverage.
func CoverageTable(rows []CoverageRow, thresholds []int) Table {
	t := Table{Headers: []string{labels.ColRunID}}
	for _, n := range thresholds {
		t.Headers = append(t.Headers,
			fmt.Sprintf("labelled_by_at_least_%d", n),
			fmt.Sprintf("labelled_percentage_at_least_%d", n))
	}
	for _, r := range rows {
		line := []string{r.RunID}
		for _, c := range r.Cells {
			line = append(line, strconv.Itoa(c.Count), FormatFloat(c.Percentage))
		}
		t.Rows = append(t.Rows, line)
	}
	return t
}

// SummaryTable tabulates Summary. metricCols must be the columns Summary was
// called with.
func SummaryTable(rows []SummaryRow, metricCols []string) Table {
	t := Table{Headers: []string{"Run ID", "Mean Score", "Num Samples"}}
	for _, c := range metricCols {
		t.Headers = append(t.Headers, MetricHeader(c))
	}
	for _, r := range rows {
		line := []string{r.RunID, FormatCI(r.Score), strconv.Itoa(r.Samples)}
		for _, m := range r.Metrics {
			line = append(line, FormatCI(m.MeanCI))
		}
		t.Rows = append(t.Rows, line)
	}
	return t
}

// CorrelationTable tabulates a correlation matrix.
func CorrelationTable(m CorrelationMatrix) Table {
	t := Table{Headers: append([]string{""}, m.Columns...)}
	for i, c := range m.Columns {
		line := []string{c}
		for _, cell := range m.Cells[i] {
			line = append(line, FormatCorrelation(cell))
		}
		t.Rows = append(t.Rows, line)
	}
	return t
}

// WriteMarkdown renders t as a markdown table.
func WriteMarkdown(w io.Writer, t Table) error {
	table := markdownTable(t.Headers, w)
	for _, r := range t.Rows {
		if err := table.Append(r); err != nil {
			return fmt.Errorf("appending row: %w", err)
		}
	}
	return table.Render()
}

func markdownTable(headers []string, w io.Writer) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{
				Left:   tw.On,
				Top:    tw.Off,
				Right:  tw.On,
				Bottom: tw.Off,
			},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

// Report is the full analytics output for a selection of runs.
type Report struct {
	Runs        []string  `json:"runs"`
	Warnings    []Warning `json:"warnings,omitempty"`
	Progress    Table     `json:"progress"`
	Coverage    Table     `json:"coverage"`
	Summary     Table     `json:"summary"`
	Correlation Table     `json:"correlation"`
	Worst       []Example `json:"worst"`
}

// ReportOptions selects what goes in a Report.
type ReportOptions struct {
	Confidence    float64
	Thresholds    []int
	SummaryCols   []string
	CorrelateCols []string
	Worst         int
}

// BuildReport computes every table for r. The correlation table is left
// empty when no metric is requested or no pair has enough data.
func BuildReport(r *Results, opts ReportOptions) Report {
	if opts.Confidence == 0 {
		opts.Confidence = statistics.DefaultConfidence
	}
	rep := Report{
		Runs:     r.RunIDs(),
		Warnings: r.Warnings,
		Progress: ProgressTable(Progress(r)),
		Coverage: CoverageTable(Coverage(r, opts.Thresholds), opts.Thresholds),
		Summary:  SummaryTable(Summary(r, opts.SummaryCols, opts.Confidence), opts.SummaryCols),
		Worst:    WorstExamples(r, opts.Worst),
	}
	if len(opts.CorrelateCols) > 0 {
		if m := Correlations(r, opts.CorrelateCols); !m.Empty() {
			rep.Correlation = CorrelationTable(m)
		}
	}
	return rep
}

// WriteMarkdownReport renders rep as a markdown document.
func WriteMarkdownReport(w io.Writer, rep Report) error {
	for _, warn := range rep.Warnings {
		if _, err := fmt.Fprintf(w, "> **Warning:** %s\n\n", warn.Message); err != nil {
			return err
		}
	}
	sections := []struct {
		title string
		table Table
	}{
		{"Progress per file", rep.Progress},
		{"Progress per file labelled by at least n users", rep.Coverage},
		{"Results Summary", rep.Summary},
		{"Correlation", rep.Correlation},
	}
	for _, s := range sections {
		if len(s.table.Headers) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "## %s\n\n", s.title); err != nil {
			return err
		}
		if err := WriteMarkdown(w, s.table); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	if len(rep.Worst) > 0 {
		if _, err := fmt.Fprintf(w, "## Top-%d Worst Scored Examples\n\n", len(rep.Worst)); err != nil {
			return err
		}
		t := Table{Headers: []string{labels.ColRunID, labels.ColQuestion, labels.ColScore}}
		for _, e := range rep.Worst {
			q, _ := e.Row[labels.ColQuestion].(string)
			t.Rows = append(t.Rows, []string{e.RunID, q, FormatFloat(e.Score)})
		}
		if err := WriteMarkdown(w, t); err != nil {
			return err
		}
	}
	return nil
}
