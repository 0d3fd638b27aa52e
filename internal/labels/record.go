package labels

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/microsoft/evallabel/internal/dataset"
)

// ErrorEntry is one error report attached to a sample. A sample accumulates
// entries; they are never replaced.
type ErrorEntry struct {
	Snippet     string   `mapstructure:"snippet" json:"snippet"`
	Errors      []string `mapstructure:"error" json:"error"`
	Description string   `mapstructure:"description" json:"description"`
	FormKey     string   `mapstructure:"question_hash" json:"question_hash"`
}

// Map converts e to the cell representation stored in a frame.
func (e ErrorEntry) Map() map[string]any {
	errs := make([]any, len(e.Errors))
	for i, s := range e.Errors {
		errs[i] = s
	}
	return map[string]any{
		"snippet":       e.Snippet,
		"error":         errs,
		"description":   e.Description,
		"question_hash": e.FormKey,
	}
}

// Record is the typed view of one results-table row. Nullable cells are
// pointers; columns outside the known set land in Extra.
type Record struct {
	Question    string  `mapstructure:"question"`
	Predictions *string `mapstructure:"predictions"`
	GroundTruth *string `mapstructure:"ground_truth"`
	Context     *string `mapstructure:"context"`

	LabelQuality   *string      `mapstructure:"label_quality"`
	Feedback       *string      `mapstructure:"feedback"`
	AnswerIsBetter *bool        `mapstructure:"answer_is_better"`
	ErrorAnalysis  []ErrorEntry `mapstructure:"error_analysis"`

	SynQARelevance       *bool   `mapstructure:"syn_qa_relevance"`
	SynCorrectedQuestion *string `mapstructure:"syn_corrected_question"`
	SynGTAnswer          *string `mapstructure:"syn_gt_answer"`

	StartTime *string `mapstructure:"start_time_ms"`
	EndTime   *string `mapstructure:"end_time_ms"`

	Extra map[string]any `mapstructure:",remain"`
}

// HasGroundTruth reports whether the sample ships with a non-empty ground
// truth.
func (r Record) HasGroundTruth() bool {
	return r.GroundTruth != nil && *r.GroundTruth != ""
}

// DecodeRecord decodes row i of f.
func DecodeRecord(f *dataset.Frame, i int) (Record, error) {
	row := f.Row(i)
	for k, v := range row {
		if dataset.IsNull(v) {
			row[k] = nil
		}
	}
	// Error lists saved by older clients may hold bare strings.
	if list, ok := row[ColErrorAnalysis].([]any); ok {
		kept := list[:0:0]
		for _, e := range list {
			if _, isMap := e.(map[string]any); isMap {
				kept = append(kept, e)
			}
		}
		row[ColErrorAnalysis] = kept
	}

	var r Record
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &r,
	})
	if err != nil {
		return Record{}, err
	}
	if err := dec.Decode(row); err != nil {
		return Record{}, fmt.Errorf("decoding row %s: %w", f.Label(i), err)
	}
	return r, nil
}
