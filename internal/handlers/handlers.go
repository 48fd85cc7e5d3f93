package handlers

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"spendbook/internal/auth"
	applog "spendbook/internal/log"
	"spendbook/internal/models"
	"spendbook/internal/session"
)

// Context key type to avoid collisions.
type contextKey string

// UserContextKey is the context key for the authenticated user.
const UserContextKey contextKey = "user"

// Store is the persistence the handlers need.
type Store interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, name, email, passwordHash string) (*models.User, error)
	CreateExpense(ctx context.Context, ownerID int64, amount float64, description, category string, date time.Time) (*models.Expense, error)
	ListRecentExpenses(ctx context.Context, ownerID int64, limit int) ([]models.Expense, error)
	ListExpenses(ctx context.Context, ownerID int64) ([]models.Expense, error)
	EarliestExpense(ctx context.Context, ownerID int64) (*models.Expense, error)
	DeleteExpense(ctx context.Context, ownerID, id int64) error
	Ping(ctx context.Context) error
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db        Store
	sessions  *session.Manager
	cookies   *auth.CookieCodec
	templates map[string]*template.Template
}

var pages = []string{"index.html", "login.html", "register.html", "new.html", "all.html"}

// NewHandlers creates a new Handlers instance, parsing every page template
// from templatesFS up front.
func NewHandlers(db Store, sessions *session.Manager, cookies *auth.CookieCodec, templatesFS fs.FS) (*Handlers, error) {
	h := &Handlers{
		db:        db,
		sessions:  sessions,
		cookies:   cookies,
		templates: make(map[string]*template.Template, len(pages)),
	}

	for _, page := range pages {
		tmpl, err := template.New(page).Funcs(templateFuncs).ParseFS(templatesFS, "templates/base.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", page, err)
		}
		h.templates[page] = tmpl
	}
	return h, nil
}

var templateFuncs = template.FuncMap{
	"money": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"day":   FormatDisplayDate,
}

// GetUserFromContext retrieves the authenticated user from request context.
func GetUserFromContext(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// RequireAuth wraps handlers to require authentication. Requests without a
// live session are redirected to /login. Sessions past half their lifetime
// are renewed along with the cookie.
func (h *Handlers) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.cookies.SessionToken(r)
		user, renewed, err := h.sessions.Principal(r.Context(), token)
		if errors.Is(err, session.ErrNoSession) {
			if _, cerr := r.Cookie(auth.SessionCookieName); cerr == nil {
				h.cookies.ClearSession(w)
			}
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		if err != nil {
			applog.FromContext(r.Context()).Error("resolve principal", applog.Err(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		if renewed {
			if err := h.cookies.SetSession(w, token, h.sessions.Duration()); err != nil {
				applog.FromContext(r.Context()).Warn("refresh session cookie", applog.Err(err))
			}
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		ctx = applog.WithLogger(ctx, applog.FromContext(ctx).With(applog.FieldUserID, user.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAnonymous wraps the login and registration pages: callers that are
// already signed in are sent home.
func (h *Handlers) RequireAnonymous(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.cookies.SessionToken(r)
		if token != "" {
			_, _, err := h.sessions.Principal(r.Context(), token)
			if err == nil {
				http.Redirect(w, r, "/", http.StatusFound)
				return
			}
			if !errors.Is(err, session.ErrNoSession) {
				applog.FromContext(r.Context()).Warn("resolve principal", applog.Err(err))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// SecurityHeaders applies browser hardening headers to every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy",
			"default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; "+
				"object-src 'none'; frame-ancestors 'none'; base-uri 'self'; form-action 'self'")
		next.ServeHTTP(w, r)
	})
}

// Health reports whether the database is reachable.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		applog.FromContext(r.Context()).Error("health check", applog.Err(err))
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "ok")
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, viewName string, data any) {
	tmpl, ok := h.templates[viewName]
	if !ok {
		applog.FromContext(r.Context()).Error("unknown template", "template", viewName)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		applog.FromContext(r.Context()).Error("template execution", "template", viewName, applog.Err(err))
	}
}

func (h *Handlers) flash(w http.ResponseWriter, r *http.Request, msg string) {
	if err := h.cookies.SetFlash(w, msg); err != nil {
		applog.FromContext(r.Context()).Warn("set flash", applog.Err(err))
	}
}
