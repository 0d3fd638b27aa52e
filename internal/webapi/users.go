package webapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/microsoft/evallabel/internal/auth"
	"github.com/microsoft/evallabel/internal/session"
)

// MsgLoginUnavailable is shown when no users config could be read.
const MsgLoginUnavailable = "Login is not available."

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username       string `json:"username"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	RepeatPassword string `json:"repeat_password"`
}

// HandleMe returns the identity of the caller.
func (h *Handlers) HandleMe(w http.ResponseWriter, r *http.Request) {
	_, ident := h.Session(w, r)
	writeJSON(w, http.StatusOK, ident)
}

// HandleLogin checks a username and password and issues the auth cookie.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	s, _ := h.Session(w, r)
	var req loginRequest
	if isFormPost(r) {
		req.Username = r.FormValue("username")
		req.Password = r.FormValue("password")
	} else if err := decode(r, &req); err != nil {
		h.fail(w, r, s, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	cfg, ok := h.usersConfig(r)
	if !ok {
		h.fail(w, r, s, http.StatusServiceUnavailable, ErrorResponse{Error: MsgLoginUnavailable})
		return
	}
	username := strings.TrimSpace(req.Username)
	u, err := h.users.Login(r.Context(), username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.fail(w, r, s, http.StatusUnauthorized, ErrorResponse{Error: auth.MsgLoginFailed})
			return
		}
		h.logger.Error("login", "user", username, "error", err)
		h.fail(w, r, s, http.StatusInternalServerError, ErrorResponse{Error: MsgLoginUnavailable})
		return
	}

	c, err := auth.NewSigner(cfg.Cookie).Issue(username)
	if err != nil {
		h.logger.Error("issuing auth cookie", "user", username, "error", err)
		h.fail(w, r, s, http.StatusInternalServerError, ErrorResponse{Error: MsgLoginUnavailable})
		return
	}
	http.SetCookie(w, c)
	s.SetUser(username, u.DataScientist)
	h.sessions.Record(session.NewEvent(session.EventLogin, s, nil))

	ident := Identity{User: username, Name: u.Name, DataScientist: u.DataScientist, AuthEnabled: true}
	h.finish(w, r, s, http.StatusOK, ident, &session.Notice{
		Level:   session.LevelSuccess,
		Message: fmt.Sprintf(auth.MsgWelcomeFmt, u.Name),
	})
}

// HandleLogout clears the auth cookie. The labelling state of the session
// is kept.
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	s, ident := h.Session(w, r)
	if cfg, ok := h.usersConfig(r); ok {
		http.SetCookie(w, auth.NewSigner(cfg.Cookie).Clear())
	}
	s.SetUser("", false)
	ident.User, ident.Name, ident.DataScientist = "", "", false
	h.finish(w, r, s, http.StatusOK, ident, nil)
}

// HandleRegister adds a user to the users config. Accounts created here
// never carry the analyst role.
func (h *Handlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	s, _ := h.Session(w, r)
	var req registerRequest
	if isFormPost(r) {
		req = registerRequest{
			Username:       r.FormValue("username"),
			Name:           r.FormValue("name"),
			Email:          r.FormValue("email"),
			Password:       r.FormValue("password"),
			RepeatPassword: r.FormValue("repeat_password"),
		}
	} else if err := decode(r, &req); err != nil {
		h.fail(w, r, s, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if _, ok := h.usersConfig(r); !ok {
		h.fail(w, r, s, http.StatusServiceUnavailable, ErrorResponse{Error: MsgLoginUnavailable})
		return
	}

	reg := auth.Registration{
		Username:       strings.TrimSpace(req.Username),
		Name:           strings.TrimSpace(req.Name),
		Email:          strings.TrimSpace(req.Email),
		Password:       req.Password,
		RepeatPassword: req.RepeatPassword,
	}
	err := h.users.Register(r.Context(), reg, false)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrWeakPassword):
		h.fail(w, r, s, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Help: auth.PasswordCriteria})
		return
	case errors.Is(err, auth.ErrUserExists):
		h.fail(w, r, s, http.StatusConflict, ErrorResponse{Error: err.Error()})
		return
	case errors.Is(err, auth.ErrPasswordMismatch), errors.Is(err, auth.ErrInvalidUser):
		h.fail(w, r, s, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	default:
		h.logger.Error("registering user", "user", reg.Username, "error", err)
		h.fail(w, r, s, http.StatusInternalServerError, ErrorResponse{Error: "Could not save the new user."})
		return
	}

	h.finish(w, r, s, http.StatusCreated, Identity{User: reg.Username, Name: reg.Name, AuthEnabled: true}, &session.Notice{
		Level:   session.LevelSuccess,
		Message: auth.MsgRegistered,
	})
}
