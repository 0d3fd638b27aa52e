// Package webapi implements the JSON API behind the labelling and analytics
// pages. Every handler resolves the browser session first; failures are
// reported to the caller and queued as notices on the session.
package webapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/microsoft/evallabel/internal/analysis"
	"github.com/microsoft/evallabel/internal/auth"
	"github.com/microsoft/evallabel/internal/cache"
	"github.com/microsoft/evallabel/internal/projectconfig"
	"github.com/microsoft/evallabel/internal/results"
	"github.com/microsoft/evallabel/internal/session"
)

// Version is set at build time or defaults to dev.
var Version = "0.1.0-dev"

// SessionCookie names the cookie carrying the browser session id.
const SessionCookie = "evallabel_session"

// Config wires the API to its services.
type Config struct {
	Sessions *session.Manager
	Results  *results.Service
	// Users is nil when no users config is available; the app then runs
	// without login.
	Users   *auth.Service
	Loader  *analysis.Loader
	Cache   *cache.Cache
	Project *projectconfig.ProjectConfig
	Logger  *slog.Logger
}

// Handlers holds the HTTP handler methods for the web API.
type Handlers struct {
	sessions *session.Manager
	results  *results.Service
	users    *auth.Service
	loader   *analysis.Loader
	cache    *cache.Cache
	project  *projectconfig.ProjectConfig
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers from cfg.
func NewHandlers(cfg Config) *Handlers {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Project == nil {
		cfg.Project = projectconfig.New()
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.New(cfg.Project.Analysis.CacheTTL)
	}
	return &Handlers{
		sessions: cfg.Sessions,
		results:  cfg.Results,
		users:    cfg.Users,
		loader:   cfg.Loader,
		cache:    cfg.Cache,
		project:  cfg.Project,
		logger:   cfg.Logger,
	}
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

// RegisterRoutes registers all web API routes on the given mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.HandleHealth)

	mux.HandleFunc("GET /api/me", h.HandleMe)
	mux.HandleFunc("POST /api/login", h.HandleLogin)
	mux.HandleFunc("POST /api/logout", h.HandleLogout)
	mux.HandleFunc("POST /api/register", h.HandleRegister)

	mux.HandleFunc("GET /api/files", h.HandleFiles)
	mux.HandleFunc("POST /api/files/load", h.HandleLoad)
	mux.HandleFunc("POST /api/saved/accept", h.HandleAcceptSaved)
	mux.HandleFunc("POST /api/saved/dismiss", h.HandleDismissSaved)

	mux.HandleFunc("GET /api/sample", h.HandleSample)
	mux.HandleFunc("POST /api/navigate", h.HandleNavigate)
	mux.HandleFunc("POST /api/forms/quality", h.HandleQuality)
	mux.HandleFunc("POST /api/forms/error", h.HandleError)
	mux.HandleFunc("POST /api/forms/ground_truth", h.HandleGroundTruth)

	mux.HandleFunc("GET /api/results", h.HandleResults)
	mux.HandleFunc("GET /api/results/download", h.HandleDownload)

	mux.HandleFunc("GET /api/analysis", h.HandleAnalysis)
	mux.HandleFunc("GET /api/analysis/runs/{id}/histogram", h.HandleHistogram)
}

// RegisterRoutes registers all web API routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, cfg Config) *Handlers {
	h := NewHandlers(cfg)
	h.RegisterRoutes(mux)
	return h
}

// CORSMiddleware wraps a handler with CORS headers.
// If allowedOrigins is empty, no CORS header is set (same-origin only).
// Otherwise, the request Origin is checked against the allowed list.
func CORSMiddleware(next http.Handler, allowedOrigins ...string) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if len(allowedOrigins) > 0 && origin != "" && allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Session resolves the browser session of r, issuing a session cookie for a
// new one, and stamps it with the logged-in user.
func (h *Handlers) Session(w http.ResponseWriter, r *http.Request) (*session.State, Identity) {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}
	s, created := h.sessions.Get(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    s.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	ident := h.identify(r)
	s.SetUser(ident.User, ident.DataScientist)
	return s, ident
}

func (h *Handlers) identify(r *http.Request) Identity {
	cfg, ok := h.usersConfig(r)
	if !ok {
		return Identity{}
	}
	ident := Identity{AuthEnabled: true}
	name, err := auth.NewSigner(cfg.Cookie).Verify(r)
	if err != nil {
		return ident
	}
	u, ok := cfg.User(name)
	if !ok {
		return ident
	}
	ident.User = name
	ident.Name = u.Name
	ident.DataScientist = u.DataScientist
	return ident
}

func (h *Handlers) usersConfig(r *http.Request) (*auth.Config, bool) {
	if h.users == nil {
		return nil, false
	}
	cfg, err := h.users.Config(r.Context())
	if err != nil {
		h.logger.Debug("login disabled", "error", err)
		return nil, false
	}
	return cfg, true
}

// isFormPost reports whether r is a plain HTML form submission. Those get a
// redirect back to the page instead of a JSON body.
func isFormPost(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return ct == "application/x-www-form-urlencoded" || ct == "multipart/form-data"
}

// decode reads a JSON body into v. Form posts are handled by the callers.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding request: %w", err)
	}
	return nil
}

// finish answers a mutating request. Form posts are redirected to the page
// they came from with notice queued on the session; API calls get status
// and body.
func (h *Handlers) finish(w http.ResponseWriter, r *http.Request, s *session.State, status int, body any, notice *session.Notice) {
	if isFormPost(r) {
		if notice != nil {
			s.Notify(notice.Level, notice.Message)
		}
		http.Redirect(w, r, redirectTarget(r), http.StatusSeeOther)
		return
	}
	writeJSON(w, status, body)
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, s *session.State, status int, resp ErrorResponse) {
	resp.Code = status
	h.finish(w, r, s, status, resp, &session.Notice{Level: session.LevelError, Message: resp.Error})
}

func redirectTarget(r *http.Request) string {
	if to := r.FormValue("redirect"); strings.HasPrefix(to, "/") && !strings.HasPrefix(to, "//") {
		return to
	}
	return "/"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg, Code: code})
}

func missingColumns(err error) []string {
	var mc *session.MissingColumnsError
	if errors.As(err, &mc) {
		return mc.Columns
	}
	return nil
}
