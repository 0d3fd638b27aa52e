// Package labels defines the annotation vocabulary and the records stored
// in a results table.
package labels

import (
	"strings"
)

// Input columns.
const (
	ColGroundTruth = "ground_truth"
	ColQuestion    = "question"
	ColPredictions = "predictions"
	ColContext     = "context"
)

// Annotation columns written into a results table.
const (
	ColStartTime            = "start_time_ms"
	ColEndTime              = "end_time_ms"
	ColLabelQuality         = "label_quality"
	ColAnswerIsBetter       = "answer_is_better"
	ColFeedback             = "feedback"
	ColSynQARelevance       = "syn_qa_relevance"
	ColSynCorrectedQuestion = "syn_corrected_question"
	ColSynGTAnswer          = "syn_gt_answer"
	ColErrorAnalysis        = "error_analysis"
)

// Columns added when results are loaded for analysis.
const (
	ColUserName = "user_name"
	ColRunID    = "run_id"
	ColScore    = "score"
)

// RequiredColumns must be present in every source file.
var RequiredColumns = []string{ColGroundTruth, ColQuestion, ColPredictions}

// RoleDataScientist is the user-config key granting access to the analytics
// page.
const RoleDataScientist = "data_scientist"

// Quality is an ordinal answer-quality label.
type Quality string

const (
	QualityUnusable Quality = "Unusable"
	QualityPoor     Quality = "Poor"
	QualityAverage  Quality = "Average"
	QualityGood     Quality = "Good"
	QualityVeryGood Quality = "Very Good"
)

// QualityLabels lists the quality labels in ordinal order.
var QualityLabels = []Quality{
	QualityUnusable,
	QualityPoor,
	QualityAverage,
	QualityGood,
	QualityVeryGood,
}

// ParseQuality returns the label matching s.
func ParseQuality(s string) (Quality, bool) {
	for _, q := range QualityLabels {
		if string(q) == s {
			return q, true
		}
	}
	return "", false
}

// Ordinal returns the position of q in QualityLabels, or -1.
func (q Quality) Ordinal() int {
	for i, l := range QualityLabels {
		if l == q {
			return i
		}
	}
	return -1
}

// Score normalises a quality label to [0,1) by dividing its ordinal by the
// number of levels. Unknown labels score 0.
func Score(label string) float64 {
	o := Quality(label).Ordinal()
	if o < 0 {
		o = 0
	}
	return float64(o) / float64(len(QualityLabels))
}

// ErrorCategory is one of the fixed error classes an annotator can assign.
type ErrorCategory struct {
	Label       string
	Description string
}

// ErrorCategories lists the selectable error classes in display order.
var ErrorCategories = []ErrorCategory{
	{
		Label:       "Syntax error",
		Description: "The code snippet contains a syntax error. This means there is a mistake in the structure or format of the code, making it impossible to execute.",
	},
	{
		Label:       "Logic error",
		Description: "The code snippet contains a logic error. This means the code runs, but it doesn't do what it's supposed to do because of incorrect logic.",
	},
	{
		Label:       "Performance issue",
		Description: "The code snippet has a performance issue. This means the code works, but it is not efficient and could be optimized to run faster or use fewer resources.",
	},
	{
		Label:       "Hallucination",
		Description: "The code snippet contains a hallucination. This means the code includes elements or concepts that don't exist or are completely irrelevant to the task.",
	},
	{
		Label:       "Other",
		Description: "The code snippet has an issue that doesn't fit into the other categories. This could be anything from missing functionality to incorrect usage of a function.",
	},
}

// ErrorCategoryLabels returns the labels of ErrorCategories.
func ErrorCategoryLabels() []string {
	out := make([]string, len(ErrorCategories))
	for i, c := range ErrorCategories {
		out[i] = c.Label
	}
	return out
}

// IsErrorCategory reports whether label names a known category.
func IsErrorCategory(label string) bool {
	for _, c := range ErrorCategories {
		if c.Label == label {
			return true
		}
	}
	return false
}

// ErrorCategoriesMarkdown renders the categories as a markdown bullet list.
func ErrorCategoriesMarkdown() string {
	var b strings.Builder
	for i, c := range ErrorCategories {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- **")
		b.WriteString(c.Label)
		b.WriteString("**: ")
		b.WriteString(c.Description)
	}
	return b.String()
}
