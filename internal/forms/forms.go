// Package forms implements the three annotation forms of the labelling page.
// Each submission is written into the session's form cache and into the live
// results table at the current row.
package forms

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/microsoft/evallabel/internal/labels"
	"github.com/microsoft/evallabel/internal/metrics"
	"github.com/microsoft/evallabel/internal/session"
)

// Kind names a form.
type Kind string

const (
	KindQuality     Kind = "quality"
	KindError       Kind = "error"
	KindGroundTruth Kind = "ground_truth"
)

// Confirmation messages.
const (
	MsgQualitySaved     = "Quality information saved!"
	MsgErrorSaved       = "Error information saved!"
	MsgGroundTruthSaved = "Ground truth saved!"
)

// ErrInvalidInput is returned for submissions that cannot be stored.
var ErrInvalidInput = errors.New("invalid form input")

// Key derives the identity of a form instance. It changes with the row, the
// question text and the dataset instance so that form state never carries
// over between samples.
func Key(kind Kind, question string, row int, tableID string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%s", kind, question, row, tableID)
	return string(kind) + "_" + hex.EncodeToString(h.Sum(nil))[:16]
}

// QualityInput is the quality feedback form.
type QualityInput struct {
	Quality        string `json:"quality"`
	Feedback       string `json:"feedback"`
	AnswerIsBetter bool   `json:"answer_is_better"`
}

// ErrorInput is the error feedback form.
type ErrorInput struct {
	Snippet     string   `json:"snippet"`
	Categories  []string `json:"categories"`
	Description string   `json:"description"`
}

// GroundTruthInput is the ground truth authoring form.
type GroundTruthInput struct {
	Relevant          bool   `json:"relevant"`
	CorrectedQuestion string `json:"corrected_question"`
	Answer            string `json:"answer"`
}

// Validate checks q against the quality label set.
func (q QualityInput) Validate() error {
	if _, ok := labels.ParseQuality(q.Quality); !ok {
		return fmt.Errorf("%w: unknown quality label %q", ErrInvalidInput, q.Quality)
	}
	return nil
}

// Validate rejects unknown categories. An empty report is still a submission.
func (e ErrorInput) Validate() error {
	for _, c := range e.Categories {
		if !labels.IsErrorCategory(c) {
			return fmt.Errorf("%w: unknown error category %q", ErrInvalidInput, c)
		}
	}
	return nil
}

// Prefill is what the labelling page needs to render the current sample.
type Prefill struct {
	Row    int
	Total  int
	Record labels.Record

	QualityKey     string
	ErrorKey       string
	GroundTruthKey string

	Quality         QualityInput
	GroundTruth     GroundTruthInput
	ShowGroundTruth bool
}

// Prepare enters the current row of s and computes the form identities and
// default values. Values cached by an earlier submission of the same form
// win over the row contents.
func Prepare(s *session.State) (Prefill, error) {
	rec, err := s.Enter()
	if err != nil {
		return Prefill{}, err
	}
	var p Prefill
	if err := s.View(func(t *labels.ResultsTable, row int) {
		p.Row = row
		p.Total = t.Len()
		p.QualityKey = Key(KindQuality, rec.Question, row, t.ID)
		p.ErrorKey = Key(KindError, rec.Question, row, t.ID)
		p.GroundTruthKey = Key(KindGroundTruth, rec.Question, row, t.ID)
	}); err != nil {
		return Prefill{}, err
	}
	p.Record = rec
	p.ShowGroundTruth = !rec.HasGroundTruth()

	p.Quality = qualityDefaults(rec)
	if v, ok := s.CachedForm(p.QualityKey); ok {
		if q, ok := v.(QualityInput); ok {
			p.Quality = q
		}
	}
	p.GroundTruth = groundTruthDefaults(rec)
	if v, ok := s.CachedForm(p.GroundTruthKey); ok {
		if g, ok := v.(GroundTruthInput); ok {
			p.GroundTruth = g
		}
	}
	return p, nil
}

func qualityDefaults(rec labels.Record) QualityInput {
	in := QualityInput{Quality: string(labels.QualityLabels[0])}
	if rec.LabelQuality != nil {
		if q, ok := labels.ParseQuality(*rec.LabelQuality); ok {
			in.Quality = string(q)
		}
	}
	if rec.Feedback != nil {
		in.Feedback = *rec.Feedback
	}
	if rec.AnswerIsBetter != nil {
		in.AnswerIsBetter = *rec.AnswerIsBetter
	}
	return in
}

func groundTruthDefaults(rec labels.Record) GroundTruthInput {
	in := GroundTruthInput{Relevant: true, CorrectedQuestion: rec.Question}
	if rec.Predictions != nil {
		in.Answer = *rec.Predictions
	}
	if rec.SynQARelevance != nil {
		in.Relevant = *rec.SynQARelevance
	}
	if rec.SynCorrectedQuestion != nil {
		in.CorrectedQuestion = *rec.SynCorrectedQuestion
	}
	if rec.SynGTAnswer != nil {
		in.Answer = *rec.SynGTAnswer
	}
	return in
}

// Result describes an accepted submission.
type Result struct {
	Kind   Kind
	Key    string
	Row    int
	Notice session.Notice
}

// SubmitQuality stores the quality feedback for the current row.
func SubmitQuality(s *session.State, in QualityInput) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}
	res := Result{Kind: KindQuality}
	err := s.Update(func(t *labels.ResultsTable, row int) error {
		q, err := t.Record(row)
		if err != nil {
			return err
		}
		quality, _ := labels.ParseQuality(in.Quality)
		t.SetQuality(row, quality, in.Feedback, in.AnswerIsBetter)
		res.Key, res.Row = Key(KindQuality, q.Question, row, t.ID), row
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return accept(s, res, in, MsgQualitySaved), nil
}

// SubmitError appends an error report to the current row.
func SubmitError(s *session.State, in ErrorInput) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}
	res := Result{Kind: KindError}
	err := s.Update(func(t *labels.ResultsTable, row int) error {
		q, err := t.Record(row)
		if err != nil {
			return err
		}
		res.Key, res.Row = Key(KindError, q.Question, row, t.ID), row
		t.AppendError(row, labels.ErrorEntry{
			Snippet:     in.Snippet,
			Errors:      in.Categories,
			Description: in.Description,
			FormKey:     res.Key,
		})
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return accept(s, res, in, MsgErrorSaved), nil
}

// SubmitGroundTruth stores authored ground truth for the current row. Empty
// fields fall back to the original question and prediction.
func SubmitGroundTruth(s *session.State, in GroundTruthInput) (Result, error) {
	res := Result{Kind: KindGroundTruth}
	err := s.Update(func(t *labels.ResultsTable, row int) error {
		q, err := t.Record(row)
		if err != nil {
			return err
		}
		if q.HasGroundTruth() {
			return fmt.Errorf("%w: sample already has a ground truth", ErrInvalidInput)
		}
		if strings.TrimSpace(in.CorrectedQuestion) == "" {
			in.CorrectedQuestion = q.Question
		}
		if strings.TrimSpace(in.Answer) == "" && q.Predictions != nil {
			in.Answer = *q.Predictions
		}
		t.SetGroundTruth(row, in.Relevant, in.CorrectedQuestion, in.Answer)
		res.Key, res.Row = Key(KindGroundTruth, q.Question, row, t.ID), row
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return accept(s, res, in, MsgGroundTruthSaved), nil
}

func accept(s *session.State, res Result, in any, msg string) Result {
	s.CacheForm(res.Key, in)
	metrics.FormSubmitted(string(res.Kind))
	res.Notice = session.Notice{Level: session.LevelSuccess, Message: msg}
	return res
}
