package forms

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/evallabel/internal/dataset"
	"github.com/microsoft/evallabel/internal/labels"
	"github.com/microsoft/evallabel/internal/session"
)

func loadedState(t *testing.T) *session.State {
	t.Helper()
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)
	seeds := 0
	s := session.New("sess",
		session.WithClock(func() time.Time { return clock }),
		session.WithSeeds(func() string { seeds++; return fmt.Sprintf("seed-%d", seeds) }),
	)
	f := dataset.New(labels.ColQuestion, labels.ColPredictions, labels.ColGroundTruth)
	require.NoError(t, f.AppendRow("0", map[string]any{labels.ColQuestion: "q0", labels.ColPredictions: "p0", labels.ColGroundTruth: "g0"}))
	require.NoError(t, f.AppendRow("1", map[string]any{labels.ColQuestion: "q1", labels.ColPredictions: "p1"}))
	require.NoError(t, s.Load("run1.json", f))
	return s
}

func TestKeyChangesWithIdentity(t *testing.T) {
	base := Key(KindQuality, "q", 0, "seed")
	assert.True(t, strings.HasPrefix(base, "quality_"))
	assert.Equal(t, base, Key(KindQuality, "q", 0, "seed"))
	assert.NotEqual(t, base, Key(KindError, "q", 0, "seed"))
	assert.NotEqual(t, base, Key(KindQuality, "q2", 0, "seed"))
	assert.NotEqual(t, base, Key(KindQuality, "q", 1, "seed"))
	assert.NotEqual(t, base, Key(KindQuality, "q", 0, "seed2"))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, QualityInput{Quality: "Good"}.Validate())
	assert.ErrorIs(t, QualityInput{Quality: "Great"}.Validate(), ErrInvalidInput)

	assert.NoError(t, ErrorInput{Categories: []string{"Logic error"}}.Validate())
	assert.NoError(t, ErrorInput{Snippet: "x = 1"}.Validate())
	assert.NoError(t, ErrorInput{}.Validate())
	assert.ErrorIs(t, ErrorInput{Categories: []string{"Typo"}}.Validate(), ErrInvalidInput)
}

func TestPrepareDefaults(t *testing.T) {
	s := loadedState(t)

	p, err := Prepare(s)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Row)
	assert.Equal(t, 2, p.Total)
	assert.False(t, p.ShowGroundTruth, "row 0 ships with a ground truth")
	assert.Equal(t, "Unusable", p.Quality.Quality)
	require.NotNil(t, p.Record.StartTime)

	_, err = s.Next()
	require.NoError(t, err)
	p, err = Prepare(s)
	require.NoError(t, err)
	assert.True(t, p.ShowGroundTruth)
	assert.Equal(t, GroundTruthInput{Relevant: true, CorrectedQuestion: "q1", Answer: "p1"}, p.GroundTruth)
}

func TestSubmitQualityPrefillsNextRender(t *testing.T) {
	s := loadedState(t)
	before, err := Prepare(s)
	require.NoError(t, err)

	res, err := SubmitQuality(s, QualityInput{Quality: "Good", Feedback: "fine", AnswerIsBetter: true})
	require.NoError(t, err)
	assert.Equal(t, before.QualityKey, res.Key)
	assert.Equal(t, MsgQualitySaved, res.Notice.Message)
	assert.Equal(t, session.LevelSuccess, res.Notice.Level)

	after, err := Prepare(s)
	require.NoError(t, err)
	assert.Equal(t, QualityInput{Quality: "Good", Feedback: "fine", AnswerIsBetter: true}, after.Quality)
	require.NotNil(t, after.Record.LabelQuality)
	assert.Equal(t, "Good", *after.Record.LabelQuality)
	require.NotNil(t, after.Record.EndTime)
	assert.Equal(t, "20240601120000", *after.Record.EndTime)
}

func TestQualityPrefillFromSavedRow(t *testing.T) {
	s := loadedState(t)
	saved := dataset.New(labels.ColQuestion, labels.ColPredictions, labels.ColGroundTruth, labels.ColLabelQuality, labels.ColFeedback)
	require.NoError(t, saved.AppendRow("0", map[string]any{
		labels.ColQuestion: "q0", labels.ColPredictions: "p0", labels.ColGroundTruth: "g0",
		labels.ColLabelQuality: "Poor", labels.ColFeedback: "meh",
	}))
	require.NoError(t, s.LoadSaved(saved))

	p, err := Prepare(s)
	require.NoError(t, err)
	assert.Equal(t, "Poor", p.Quality.Quality)
	assert.Equal(t, "meh", p.Quality.Feedback)
}

func TestSubmitErrorAppends(t *testing.T) {
	s := loadedState(t)
	_, err := SubmitError(s, ErrorInput{Snippet: "a", Categories: []string{"Syntax error"}})
	require.NoError(t, err)
	res, err := SubmitError(s, ErrorInput{Snippet: "b", Categories: []string{"Other"}, Description: "why"})
	require.NoError(t, err)
	assert.Equal(t, MsgErrorSaved, res.Notice.Message)

	p, err := Prepare(s)
	require.NoError(t, err)
	require.Len(t, p.Record.ErrorAnalysis, 2)
	assert.Equal(t, "a", p.Record.ErrorAnalysis[0].Snippet)
	assert.Equal(t, "b", p.Record.ErrorAnalysis[1].Snippet)
	assert.Equal(t, []string{"Other"}, p.Record.ErrorAnalysis[1].Errors)
	assert.Equal(t, p.ErrorKey, p.Record.ErrorAnalysis[1].FormKey)

	// A blank submission is recorded like any other.
	_, err = SubmitError(s, ErrorInput{})
	require.NoError(t, err)
	p, err = Prepare(s)
	require.NoError(t, err)
	require.Len(t, p.Record.ErrorAnalysis, 3)
	assert.Empty(t, p.Record.ErrorAnalysis[2].Snippet)
	assert.Empty(t, p.Record.ErrorAnalysis[2].Errors)
}

func TestSubmitGroundTruth(t *testing.T) {
	s := loadedState(t)

	_, err := SubmitGroundTruth(s, GroundTruthInput{Relevant: true})
	assert.ErrorIs(t, err, ErrInvalidInput, "row 0 already has a ground truth")

	_, err = s.Next()
	require.NoError(t, err)
	res, err := SubmitGroundTruth(s, GroundTruthInput{Relevant: false, Answer: "better"})
	require.NoError(t, err)
	assert.Equal(t, MsgGroundTruthSaved, res.Notice.Message)
	assert.Equal(t, 1, res.Row)

	p, err := Prepare(s)
	require.NoError(t, err)
	assert.Equal(t, GroundTruthInput{Relevant: false, CorrectedQuestion: "q1", Answer: "better"}, p.GroundTruth)
	require.NotNil(t, p.Record.SynCorrectedQuestion)
	assert.Equal(t, "q1", *p.Record.SynCorrectedQuestion)
	require.NotNil(t, p.Record.EndTime)
}

func TestSubmitWithoutFile(t *testing.T) {
	s := session.New("empty")
	_, err := SubmitQuality(s, QualityInput{Quality: "Good"})
	assert.ErrorIs(t, err, session.ErrNoFileLoaded)
	_, err = Prepare(s)
	assert.ErrorIs(t, err, session.ErrNoFileLoaded)
}
