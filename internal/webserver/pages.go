package webserver

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/microsoft/evallabel/internal/auth"
	"github.com/microsoft/evallabel/internal/labels"
	"github.com/microsoft/evallabel/internal/webapi"
)

// AppTitle heads every page.
const AppTitle = "Labelling App"

// DefaultInstructions is shown above the labelling forms when the project
// config carries none.
const DefaultInstructions = `Read the question, the model answer and the ground truth, then:

1. Rate the **quality** of the model answer and leave feedback.
2. Report any **errors** you find, quoting the offending snippet.
3. When the sample has no ground truth, write one.

Your work is saved after every form when you are logged in.`

// Placeholders for missing sample fields.
const (
	MsgNoGroundTruth = "No ground truth provided."
	MsgNoPrediction  = "No model answer provided."
	MsgNoContext     = "No context data available."
)

//go:embed templates/*.html static/*
var assets embed.FS

type pages struct {
	handlers  *webapi.Handlers
	labelling *template.Template
	analytics *template.Template
	md        goldmark.Markdown
	logger    *slog.Logger

	instructions template.HTML
	errorHelp    template.HTML
	passwordHelp template.HTML
}

func newPages(h *webapi.Handlers, instructions string, logger *slog.Logger) (*pages, error) {
	p := &pages{
		handlers: h,
		md:       goldmark.New(goldmark.WithExtensions(extension.Table)),
		logger:   logger,
	}
	funcs := template.FuncMap{
		"markdown": p.markdown,
		"deref":    deref,
		"join":     strings.Join,
		"cell":     cell,
	}
	var err error
	if p.labelling, err = parsePage(funcs, "labelling.html"); err != nil {
		return nil, err
	}
	if p.analytics, err = parsePage(funcs, "analytics.html"); err != nil {
		return nil, err
	}
	if instructions == "" {
		instructions = DefaultInstructions
	}
	p.instructions = p.markdown(instructions)
	p.errorHelp = p.markdown(labels.ErrorCategoriesMarkdown())
	p.passwordHelp = p.markdown(auth.PasswordCriteria)
	return p, nil
}

func parsePage(funcs template.FuncMap, page string) (*template.Template, error) {
	t, err := template.New("layout.html").Funcs(funcs).ParseFS(assets, "templates/layout.html", "templates/"+page)
	if err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", page, err)
	}
	return t, nil
}

// markdown renders src to HTML. Raw HTML in src is dropped by goldmark.
func (p *pages) markdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := p.md.Convert([]byte(src), &buf); err != nil {
		p.logger.Warn("rendering markdown", "error", err)
		return template.HTML(template.HTMLEscapeString(src)) //nolint:gosec
	}
	return template.HTML(buf.String()) //nolint:gosec
}

type labellingPage struct {
	Title        string
	View         webapi.LabellingView
	Results      *webapi.ResultsView
	Instructions template.HTML
	ErrorHelp    template.HTML
	PasswordHelp template.HTML
	LoginPrompt  string
	LoginToSave  string
	Placeholders map[string]string
}

type analyticsPage struct {
	Title           string
	Identity        webapi.Identity
	View            webapi.AnalyticsView
	KeepLowVariance bool
}

func (p *pages) handleLabelling(w http.ResponseWriter, r *http.Request) {
	s, ident := p.handlers.Session(w, r)
	data := labellingPage{
		Title:        AppTitle,
		View:         p.handlers.LabellingView(r.Context(), s, ident),
		Instructions: p.instructions,
		ErrorHelp:    p.errorHelp,
		PasswordHelp: p.passwordHelp,
		LoginPrompt:  auth.MsgLoginPrompt,
		LoginToSave:  auth.MsgLoginToSave,
		Placeholders: map[string]string{
			"groundTruth": MsgNoGroundTruth,
			"prediction":  MsgNoPrediction,
			"context":     MsgNoContext,
		},
	}
	if res, err := webapi.ResultsOf(s); err == nil {
		data.Results = &res
	}
	p.render(w, p.labelling, data)
}

func (p *pages) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	_, ident := p.handlers.Session(w, r)
	if !ident.DataScientist {
		http.Error(w, webapi.MsgAnalystOnly, http.StatusForbidden)
		return
	}
	q := webapi.ParseAnalyticsQuery(r.URL.Query())
	p.render(w, p.analytics, analyticsPage{
		Title:           AppTitle,
		Identity:        ident,
		View:            p.handlers.AnalyticsView(r.Context(), q),
		KeepLowVariance: q.VarianceCheck != nil && !*q.VarianceCheck,
	})
}

func (p *pages) render(w http.ResponseWriter, t *template.Template, data any) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		p.logger.Error("rendering page", "template", t.Name(), "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w) //nolint:errcheck
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// cell formats a table cell of the results overview.
func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			if m, ok := e.(map[string]any); ok {
				parts = append(parts, fmt.Sprintf("%v: %v", m["error"], m["snippet"]))
				continue
			}
			parts = append(parts, fmt.Sprint(e))
		}
		return strings.Join(parts, "; ")
	}
	return fmt.Sprint(v)
}
