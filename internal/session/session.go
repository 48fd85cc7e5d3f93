// Package session decides who is behind a request: it verifies credentials,
// issues and rolls server-side sessions, and rehydrates the principal.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"spendbook/internal/auth"
	"spendbook/internal/models"
	"spendbook/internal/storage"
)

var (
	// ErrInvalidCredentials is returned when the email is unknown or the password is wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrMissingCredentials is returned when the email or password is empty.
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrNoSession is returned when a token does not name a live session.
	ErrNoSession = errors.New("no active session")
)

// Store is the persistence the manager needs.
type Store interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error
	ValidateSession(ctx context.Context, token string) (*storage.SessionInfo, error)
	RenewSession(ctx context.Context, token string, expiresAt time.Time) error
	DeleteSession(ctx context.Context, token string) error
	CleanExpiredSessions(ctx context.Context) (int64, error)
}

// Manager authenticates users and tracks their sessions.
type Manager struct {
	store    Store
	duration time.Duration
	now      func() time.Time
}

// NewManager creates a Manager issuing sessions that live for duration.
func NewManager(store Store, duration time.Duration) *Manager {
	return &Manager{store: store, duration: duration, now: time.Now}
}

// Duration returns the lifetime of a freshly issued session.
func (m *Manager) Duration() time.Duration {
	return m.duration
}

// Login verifies email and password and opens a new session for the user.
// No session is created when verification fails.
func (m *Manager) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, "", ErrMissingCredentials
	}

	user, err := m.store.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		auth.BurnPasswordCheck(password)
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", fmt.Errorf("lookup user: %w", err)
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return nil, "", ErrInvalidCredentials
	}

	token, err := auth.GenerateSessionToken()
	if err != nil {
		return nil, "", fmt.Errorf("generate session token: %w", err)
	}
	if err := m.store.CreateSession(ctx, token, user.ID, m.now().Add(m.duration)); err != nil {
		return nil, "", fmt.Errorf("create session: %w", err)
	}
	return user, token, nil
}

// Principal returns the user behind token. Sessions past the halfway point of
// their lifetime are renewed; renewed reports whether that happened so the
// caller can refresh the cookie.
func (m *Manager) Principal(ctx context.Context, token string) (user *models.User, renewed bool, err error) {
	if token == "" {
		return nil, false, ErrNoSession
	}

	info, err := m.store.ValidateSession(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, ErrNoSession
	}
	if err != nil {
		return nil, false, fmt.Errorf("validate session: %w", err)
	}

	user, err = m.store.GetUserByID(ctx, info.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, ErrNoSession
	}
	if err != nil {
		return nil, false, fmt.Errorf("load principal: %w", err)
	}

	now := m.now()
	if info.ExpiresAt.Sub(now) < m.duration/2 {
		// A failed renewal leaves the current session usable.
		if err := m.store.RenewSession(ctx, token, now.Add(m.duration)); err == nil {
			renewed = true
		}
	}
	return user, renewed, nil
}

// Logout destroys the session named by token.
func (m *Manager) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.store.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// RunJanitor removes expired sessions every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration, onSweep func(removed int64, err error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed, err := m.store.CleanExpiredSessions(ctx)
			if onSweep != nil {
				onSweep(removed, err)
			}
		}
	}
}
