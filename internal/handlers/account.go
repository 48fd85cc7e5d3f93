package handlers

import (
	"errors"
	"net/http"
	"strings"

	"spendbook/internal/auth"
	applog "spendbook/internal/log"
	"spendbook/internal/session"
	"spendbook/internal/storage"
)

const (
	msgInvalidCredentials = "Invalid email or password"
	msgMissingCredentials = "Missing credentials"
	msgMissingFields      = "Name, email and password are required"
	msgTryAgain           = "An error occurred. Please try again."
	msgRegistered         = "Account created. Please log in."
)

// AuthViewModel holds data for the login and registration pages.
type AuthViewModel struct {
	Flash string
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "login.html", AuthViewModel{Flash: h.cookies.PopFlash(w, r)})
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	logger := applog.FromContext(r.Context())

	if err := r.ParseForm(); err != nil {
		h.flash(w, r, msgMissingCredentials)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	user, token, err := h.sessions.Login(r.Context(), r.FormValue("email"), r.FormValue("password"))
	switch {
	case errors.Is(err, session.ErrMissingCredentials):
		h.flash(w, r, msgMissingCredentials)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	case errors.Is(err, session.ErrInvalidCredentials):
		logger.Warn("login failed", "email", storage.NormalizeEmail(r.FormValue("email")))
		h.flash(w, r, msgInvalidCredentials)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	case err != nil:
		logger.Error("login", applog.Err(err))
		h.flash(w, r, msgTryAgain)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	if err := h.cookies.SetSession(w, token, h.sessions.Duration()); err != nil {
		logger.Error("set session cookie", applog.Err(err))
		h.flash(w, r, msgTryAgain)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	logger.Info("user logged in", applog.FieldUserID, user.ID)
	http.Redirect(w, r, "/", http.StatusFound)
}

// RegisterForm renders the registration page.
func (h *Handlers) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "register.html", AuthViewModel{Flash: h.cookies.PopFlash(w, r)})
}

// Register creates an account. A taken email sends the caller to /login
// without creating anything.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	logger := applog.FromContext(r.Context())

	if err := r.ParseForm(); err != nil {
		h.flash(w, r, msgMissingFields)
		http.Redirect(w, r, "/register", http.StatusFound)
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	email := storage.NormalizeEmail(r.FormValue("email"))
	password := r.FormValue("password")

	if name == "" || email == "" || password == "" {
		h.flash(w, r, msgMissingFields)
		http.Redirect(w, r, "/register", http.StatusFound)
		return
	}

	_, err := h.db.GetUserByEmail(r.Context(), email)
	if err == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	if !errors.Is(err, storage.ErrNotFound) {
		logger.Error("lookup user", applog.Err(err))
		h.flash(w, r, msgTryAgain)
		http.Redirect(w, r, "/register", http.StatusFound)
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		logger.Error("hash password", applog.Err(err))
		h.flash(w, r, msgTryAgain)
		http.Redirect(w, r, "/register", http.StatusFound)
		return
	}

	user, err := h.db.CreateUser(r.Context(), name, email, hash)
	if errors.Is(err, storage.ErrDuplicateEmail) {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	if err != nil {
		logger.Error("create user", applog.Err(err))
		h.flash(w, r, msgTryAgain)
		http.Redirect(w, r, "/register", http.StatusFound)
		return
	}

	logger.Info("user registered", applog.FieldUserID, user.ID)
	h.flash(w, r, msgRegistered)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// Logout handles user logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context(), h.cookies.SessionToken(r)); err != nil {
		applog.FromContext(r.Context()).Error("logout", applog.Err(err))
		http.Error(w, "Logout failed! please try again...", http.StatusInternalServerError)
		return
	}
	h.cookies.ClearSession(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}
