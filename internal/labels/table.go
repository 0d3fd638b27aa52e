package labels

import (
	"time"

	"github.com/microsoft/evallabel/internal/dataset"
	"github.com/microsoft/evallabel/internal/naming"
)

// ResultsTable is the live copy of a loaded dataset that annotations are
// written into. ID identifies the dataset instance; it changes every time a
// file is loaded.
type ResultsTable struct {
	ID    string
	Frame *dataset.Frame
}

// NewResultsTable copies source and appends null start and end time columns.
func NewResultsTable(id string, source *dataset.Frame) *ResultsTable {
	f := source.Clone()
	f.DropColumn(ColStartTime)
	f.DropColumn(ColEndTime)
	f.AddColumn(ColStartTime, nil)
	f.AddColumn(ColEndTime, nil)
	return &ResultsTable{ID: id, Frame: f}
}

// RestoreResultsTable wraps a previously saved snapshot. Existing start and
// end times are kept; the columns are added when missing.
func RestoreResultsTable(id string, saved *dataset.Frame) *ResultsTable {
	f := saved.Clone()
	f.AddColumn(ColStartTime, nil)
	f.AddColumn(ColEndTime, nil)
	return &ResultsTable{ID: id, Frame: f}
}

// Len returns the number of samples.
func (t *ResultsTable) Len() int { return t.Frame.Len() }

// Record decodes the sample at row i.
func (t *ResultsTable) Record(i int) (Record, error) {
	return DecodeRecord(t.Frame, i)
}

// StampStart records now as the start time of row i unless one is set.
func (t *ResultsTable) StampStart(i int, now time.Time) bool {
	if !dataset.IsNull(t.Frame.Get(i, ColStartTime)) {
		return false
	}
	t.Frame.Set(i, ColStartTime, now.Format(naming.TimestampLayout))
	return true
}

// StampEnd records now as the end time of row i.
func (t *ResultsTable) StampEnd(i int, now time.Time) {
	t.Frame.Set(i, ColEndTime, now.Format(naming.TimestampLayout))
}

// SetQuality writes the quality form fields into row i.
func (t *ResultsTable) SetQuality(i int, q Quality, feedback string, answerIsBetter bool) {
	t.Frame.Set(i, ColLabelQuality, string(q))
	t.Frame.Set(i, ColFeedback, feedback)
	t.Frame.Set(i, ColAnswerIsBetter, answerIsBetter)
}

// AppendError adds e to the error list of row i.
func (t *ResultsTable) AppendError(i int, e ErrorEntry) {
	var list []any
	if existing, ok := t.Frame.Get(i, ColErrorAnalysis).([]any); ok {
		list = existing
	}
	t.Frame.Set(i, ColErrorAnalysis, append(list, e.Map()))
}

// SetGroundTruth writes the authored ground truth fields into row i.
func (t *ResultsTable) SetGroundTruth(i int, relevant bool, correctedQuestion, answer string) {
	t.Frame.Set(i, ColSynQARelevance, relevant)
	t.Frame.Set(i, ColSynCorrectedQuestion, correctedQuestion)
	t.Frame.Set(i, ColSynGTAnswer, answer)
}

// CompletedCount counts the samples with a quality label.
func (t *ResultsTable) CompletedCount() int {
	return t.Frame.NonNull(ColLabelQuality)
}

// Encode serialises the table for storage or download.
func (t *ResultsTable) Encode() ([]byte, error) {
	return dataset.EncodeJSON(t.Frame)
}

// ViewColumns lists the columns shown in the results overview. The ground
// truth authoring columns are included only once some row carries them.
func (t *ResultsTable) ViewColumns() []string {
	cols := []string{
		ColQuestion,
		ColLabelQuality,
		ColFeedback,
		ColErrorAnalysis,
		ColAnswerIsBetter,
		ColStartTime,
		ColEndTime,
	}
	for _, c := range []string{ColSynQARelevance, ColSynCorrectedQuestion, ColSynGTAnswer} {
		if t.Frame.HasColumn(c) {
			cols = append(cols, c)
		}
	}
	return cols
}
