package webapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/microsoft/evallabel/internal/auth"
	"github.com/microsoft/evallabel/internal/dataset"
	"github.com/microsoft/evallabel/internal/forms"
	"github.com/microsoft/evallabel/internal/labels"
	"github.com/microsoft/evallabel/internal/results"
	"github.com/microsoft/evallabel/internal/session"
)

// Labelling page messages.
const (
	MsgSelectFile     = "Please select a JSON file to start labelling."
	MsgLoadError      = "Error loading data from file."
	MsgMissingColumn  = "Column %s is missing from the file."
	MsgEmptyFile      = "The file contains no samples."
	MsgDownloadFailed = "Could not download file from storage."
	MsgListFailed     = "Could not list files in storage."
	MsgSaveFailed     = "Could not save results to storage."
	MsgNoResults      = "No results to download."
	MsgNoFile         = "No file loaded."
	MsgNoSavedOffer   = "No saved files found"
)

type loadRequest struct {
	File string `json:"file"`
}

type navigateRequest struct {
	Action string `json:"action"`
	Index  int    `json:"index"`
}

// HandleFiles lists the source files offered for labelling.
func (h *Handlers) HandleFiles(w http.ResponseWriter, r *http.Request) {
	s, _ := h.Session(w, r)
	files, err := h.results.ListSources(r.Context())
	if err != nil {
		h.logger.Error("listing source files", "error", err)
		h.fail(w, r, s, http.StatusBadGateway, ErrorResponse{Error: MsgListFailed})
		return
	}
	if files == nil {
		files = []string{}
	}
	writeJSON(w, http.StatusOK, files)
}

// HandleLoad loads a source file into the session. A logged-in user who has
// saved results for the same run is offered to restore them.
func (h *Handlers) HandleLoad(w http.ResponseWriter, r *http.Request) {
	s, ident := h.Session(w, r)
	var req loadRequest
	if isFormPost(r) {
		req.File = r.FormValue("file")
	} else if err := decode(r, &req); err != nil {
		h.fail(w, r, s, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if req.File == "" {
		h.fail(w, r, s, http.StatusBadRequest, ErrorResponse{Error: MsgSelectFile})
		return
	}

	ctx := r.Context()
	frame, err := h.results.LoadSource(ctx, req.File)
	if err != nil {
		h.logger.Warn("loading source file", "file", req.File, "error", err)
		h.recordError(s, MsgLoadError, err)
		h.fail(w, r, s, http.StatusUnprocessableEntity, ErrorResponse{Error: MsgLoadError})
		return
	}
	if err := s.Load(req.File, frame); err != nil {
		h.failLoad(w, r, s, err)
		return
	}
	h.sessions.Record(session.NewEvent(session.EventFileLoaded, s, session.FileLoadedData(req.File, s.RunID(), s.Len())))

	if ident.LoggedIn() {
		h.offerSaved(ctx, s, ident.User)
	}
	h.finish(w, r, s, http.StatusOK, h.LabellingView(ctx, s, ident), nil)
}

func (h *Handlers) failLoad(w http.ResponseWriter, r *http.Request, s *session.State, err error) {
	if cols := missingColumns(err); len(cols) > 0 {
		msgs := make([]string, len(cols))
		for i, c := range cols {
			msgs[i] = fmt.Sprintf(MsgMissingColumn, c)
		}
		h.fail(w, r, s, http.StatusUnprocessableEntity, ErrorResponse{Error: strings.Join(msgs, " "), Columns: cols})
		return
	}
	if errors.Is(err, session.ErrEmptyDataset) {
		h.fail(w, r, s, http.StatusUnprocessableEntity, ErrorResponse{Error: MsgEmptyFile})
		return
	}
	h.logger.Warn("loading dataset", "error", err)
	h.fail(w, r, s, http.StatusUnprocessableEntity, ErrorResponse{Error: MsgLoadError})
}

func (h *Handlers) offerSaved(ctx context.Context, s *session.State, user string) {
	p, ok, err := h.results.FindSaved(ctx, user, s.RunID())
	if err != nil {
		h.logger.Warn("looking up saved results", "user", user, "run_id", s.RunID(), "error", err)
		return
	}
	if ok {
		s.OfferSaved(p)
	}
}

// HandleAcceptSaved restores the offered snapshot into the session.
func (h *Handlers) HandleAcceptSaved(w http.ResponseWriter, r *http.Request) {
	s, ident := h.Session(w, r)
	p, ok := s.SavedOffer()
	if !ok {
		h.fail(w, r, s, http.StatusConflict, ErrorResponse{Error: MsgNoSavedOffer})
		return
	}
	ctx := r.Context()
	frame, err := h.results.LoadSaved(ctx, p)
	if err != nil {
		h.logger.Warn("downloading saved results", "path", p, "error", err)
		h.recordError(s, MsgDownloadFailed, err)
		h.fail(w, r, s, http.StatusBadGateway, ErrorResponse{Error: MsgDownloadFailed})
		return
	}
	if err := s.LoadSaved(frame); err != nil {
		h.failLoad(w, r, s, err)
		return
	}
	h.sessions.Record(session.NewEvent(session.EventSavedRestored, s, map[string]any{"path": p}))
	h.finish(w, r, s, http.StatusOK, h.LabellingView(ctx, s, ident), nil)
}

// HandleDismissSaved declines the offered snapshot and keeps the fresh table.
func (h *Handlers) HandleDismissSaved(w http.ResponseWriter, r *http.Request) {
	s, ident := h.Session(w, r)
	s.DismissSaved()
	h.finish(w, r, s, http.StatusOK, h.LabellingView(r.Context(), s, ident), nil)
}

// HandleSample returns the labelling view for the current row.
func (h *Handlers) HandleSample(w http.ResponseWriter, r *http.Request) {
	s, ident := h.Session(w, r)
	writeJSON(w, http.StatusOK, h.LabellingView(r.Context(), s, ident))
}

// HandleNavigate moves the row pointer. Action is one of next, prev or goto.
func (h *Handlers) HandleNavigate(w http.ResponseWriter, r *http.Request) {
	s, ident := h.Session(w, r)
	var req navigateRequest
	if isFormPost(r) {
		req.Action = r.FormValue("action")
		if v := r.FormValue("index"); v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				h.fail(w, r, s, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid index %q", v)})
				return
			}
			req.Index = i
		}
	} else if err := decode(r, &req); err != nil {
		h.fail(w, r, s, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	var (
		notice *session.Notice
		err    error
	)
	switch req.Action {
	case "next":
		notice, err = s.Next()
	case "prev":
		notice, err = s.Prev()
	case "goto":
		notice, err = s.Goto(req.Index)
	default:
		h.fail(w, r, s, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("unknown action %q", req.Action)})
		return
	}
	if err != nil {
		h.failSession(w, r, s, err)
		return
	}
	if notice != nil {
		s.Notify(notice.Level, notice.Message)
	}
	h.finish(w, r, s, http.StatusOK, h.LabellingView(r.Context(), s, ident), nil)
}

// HandleQuality stores the quality form of the current row.
func (h *Handlers) HandleQuality(w http.ResponseWriter, r *http.Request) {
	s, ident := h.Session(w, r)
	var in forms.QualityInput
	if isFormPost(r) {
		in = forms.QualityInput{
			Quality:        r.FormValue("quality"),
			Feedback:       r.FormValue("feedback"),
			AnswerIsBetter: formBool(r.FormValue("answer_is_better")),
		}
	} else if err := decode(r, &in); err != nil {
		h.fail(w, r, s, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	res, err := forms.SubmitQuality(s, in)
	h.submitted(w, r, s, ident, res, err)
}

// HandleError appends an error report to the current row.
func (h *Handlers) HandleError(w http.ResponseWriter, r *http.Request) {
	s, ident := h.Session(w, r)
	var in forms.ErrorInput
	if isFormPost(r) {
		if err := r.ParseForm(); err != nil {
			h.fail(w, r, s, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		in = forms.ErrorInput{
			Snippet:     r.PostForm.Get("snippet"),
			Categories:  r.PostForm["categories"],
			Description: r.PostForm.Get("description"),
		}
	} else if err := decode(r, &in); err != nil {
		h.fail(w, r, s, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	res, err := forms.SubmitError(s, in)
	h.submitted(w, r, s, ident, res, err)
}

// HandleGroundTruth stores authored ground truth for the current row.
func (h *Handlers) HandleGroundTruth(w http.ResponseWriter, r *http.Request) {
	s, ident := h.Session(w, r)
	var in forms.GroundTruthInput
	if isFormPost(r) {
		in = forms.GroundTruthInput{
			Relevant:          formBool(r.FormValue("relevant")),
			CorrectedQuestion: r.FormValue("corrected_question"),
			Answer:            r.FormValue("answer"),
		}
	} else if err := decode(r, &in); err != nil {
		h.fail(w, r, s, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	res, err := forms.SubmitGroundTruth(s, in)
	h.submitted(w, r, s, ident, res, err)
}

func (h *Handlers) submitted(w http.ResponseWriter, r *http.Request, s *session.State, ident Identity, res forms.Result, err error) {
	if err != nil {
		h.failSession(w, r, s, err)
		return
	}
	h.sessions.Record(session.NewEvent(session.EventFormSubmitted, s, session.FormSubmittedData(string(res.Kind), res.Key, res.Row)))
	h.autosave(s, ident)
	h.finish(w, r, s, http.StatusOK, SubmitResponse{
		Kind:     res.Kind,
		Key:      res.Key,
		Row:      res.Row,
		Notice:   res.Notice,
		Progress: progressOf(s),
	}, &res.Notice)
}

// autosave persists the live table after a submission. Anonymous users are
// reminded to log in instead.
func (h *Handlers) autosave(s *session.State, ident Identity) {
	if !h.project.AutosaveEnabled() {
		return
	}
	if !ident.LoggedIn() {
		if ident.AuthEnabled {
			s.Notify(session.LevelWarning, auth.MsgLoginToSave)
		}
		return
	}
	sn, err := s.Snapshot()
	if err != nil {
		h.logger.Error("encoding snapshot", "error", err)
		return
	}
	h.results.SaveInBackground(sn, func(out results.Outcome, err error) {
		if err != nil {
			h.recordError(s, MsgSaveFailed, err)
			if out.Path == "" {
				s.Notify(session.LevelError, MsgSaveFailed)
			}
			return
		}
		h.sessions.Record(session.NewEvent(session.EventSnapshotSaved, s, session.SnapshotSavedData(out.Path, out.Pruned)))
	})
}

func (h *Handlers) failSession(w http.ResponseWriter, r *http.Request, s *session.State, err error) {
	switch {
	case errors.Is(err, session.ErrNoFileLoaded):
		h.fail(w, r, s, http.StatusConflict, ErrorResponse{Error: MsgNoFile})
	case errors.Is(err, forms.ErrInvalidInput):
		h.fail(w, r, s, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		h.logger.Error("updating session", "session", s.ID, "error", err)
		h.fail(w, r, s, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

func (h *Handlers) recordError(s *session.State, msg string, err error) {
	h.sessions.Record(session.NewEvent(session.EventError, s, session.ErrorData(msg, map[string]any{"error": err.Error()})))
}

// HandleResults returns the overview table of the live results.
func (h *Handlers) HandleResults(w http.ResponseWriter, r *http.Request) {
	s, _ := h.Session(w, r)
	view, err := ResultsOf(s)
	if err != nil {
		h.failSession(w, r, s, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleDownload serves the live results as a JSON attachment named like a
// saved snapshot.
func (h *Handlers) HandleDownload(w http.ResponseWriter, r *http.Request) {
	s, _ := h.Session(w, r)
	sn, err := s.Snapshot()
	if err != nil {
		if errors.Is(err, session.ErrNoFileLoaded) {
			writeError(w, http.StatusNotFound, MsgNoResults)
			return
		}
		h.logger.Error("encoding download", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sn.FileName()))
	w.WriteHeader(http.StatusOK)
	w.Write(sn.Data) //nolint:errcheck
}

// LabellingView assembles the labelling page for s. It enters the current
// row, so the row's start time is stamped on first view. Queued notices are
// drained into the view.
func (h *Handlers) LabellingView(ctx context.Context, s *session.State, ident Identity) LabellingView {
	view := LabellingView{
		Identity:        ident,
		Phase:           s.Phase().String(),
		SourceFile:      s.SourceFile(),
		RunID:           s.RunID(),
		QualityLabels:   qualityLabels(),
		ErrorCategories: labels.ErrorCategoryLabels(),
	}
	files, err := h.results.ListSources(ctx)
	if err != nil {
		h.logger.Error("listing source files", "error", err)
		s.Notify(session.LevelError, MsgListFailed)
	}
	view.Files = files

	if s.Phase() == session.PhaseNoFileLoaded {
		s.Notify(session.LevelInfo, MsgSelectFile)
		view.Notices = s.DrainNotices()
		return view
	}
	view.Progress = progressOf(s)
	if p, ok := s.SavedOffer(); ok {
		view.SavedOffer = p
	} else if pre, err := forms.Prepare(s); err == nil {
		view.Sample = sampleOf(pre)
	} else {
		h.logger.Error("preparing sample", "session", s.ID, "error", err)
		s.Notify(session.LevelError, err.Error())
	}
	view.Notices = s.DrainNotices()
	if view.Notices == nil {
		view.Notices = []session.Notice{}
	}
	return view
}

// ResultsOf projects the live table of s onto its overview columns.
func ResultsOf(s *session.State) (ResultsView, error) {
	var view ResultsView
	err := s.View(func(t *labels.ResultsTable, _ int) {
		view.Columns = t.ViewColumns()
		view.Rows = make([]map[string]any, t.Len())
		for i := range t.Len() {
			row := make(map[string]any, len(view.Columns))
			for _, c := range view.Columns {
				row[c] = t.Frame.Get(i, c)
			}
			view.Rows[i] = row
		}
	})
	if err != nil {
		return ResultsView{}, err
	}
	sn, err := s.Snapshot()
	if err != nil {
		return ResultsView{}, err
	}
	view.FileName = sn.FileName()
	return view, nil
}

func progressOf(s *session.State) *Progress {
	var p *Progress
	s.View(func(t *labels.ResultsTable, _ int) { //nolint:errcheck
		done, total := t.CompletedCount(), t.Len()
		pct := 0.0
		if total > 0 {
			pct = 100 * float64(done) / float64(total)
		}
		p = &Progress{
			Completed:  done,
			Total:      total,
			Percentage: pct,
			Text:       fmt.Sprintf("Completed: %.0f%% (%d/%d)", pct, done, total),
		}
	})
	return p
}

func sampleOf(p forms.Prefill) *Sample {
	rec := p.Record
	sm := &Sample{
		Row:             p.Row,
		Question:        rec.Question,
		Prediction:      rec.Predictions,
		GroundTruth:     rec.GroundTruth,
		Context:         rec.Context,
		QualityKey:      p.QualityKey,
		ErrorKey:        p.ErrorKey,
		GroundTruthKey:  p.GroundTruthKey,
		Quality:         p.Quality,
		GroundTruthForm: p.GroundTruth,
		ShowGroundTruth: p.ShowGroundTruth,
		Errors:          make([]ErrorReport, len(rec.ErrorAnalysis)),
	}
	for i, e := range rec.ErrorAnalysis {
		sm.Errors[i] = ErrorReport{Snippet: e.Snippet, Categories: e.Errors, Description: e.Description}
	}
	for k, v := range rec.Extra {
		if k == labels.ColUserName || k == labels.ColRunID || dataset.IsNull(v) {
			continue
		}
		if sm.Metrics == nil {
			sm.Metrics = make(map[string]any)
		}
		sm.Metrics[k] = v
	}
	return sm
}

func qualityLabels() []string {
	out := make([]string, len(labels.QualityLabels))
	for i, q := range labels.QualityLabels {
		out[i] = string(q)
	}
	return out
}

func formBool(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return v == "on"
	}
	return b
}
