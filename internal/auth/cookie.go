package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

const (
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"
	// FlashCookieName is the name of the one-time message cookie.
	FlashCookieName = "flash"
)

// CookieCodec signs and verifies the cookies the application issues.
type CookieCodec struct {
	sc     *securecookie.SecureCookie
	secure bool
}

// NewCookieCodec creates a codec keyed by secret. secure sets the Secure
// attribute on every cookie written.
func NewCookieCodec(secret string, secure bool) (*CookieCodec, error) {
	if secret == "" {
		return nil, errors.New("cookie secret cannot be empty")
	}
	sc := securecookie.New([]byte(secret), nil)
	// Expiry is enforced by the session store, not by the cookie timestamp.
	sc.MaxAge(0)
	return &CookieCodec{sc: sc, secure: secure}, nil
}

// SetSession writes the session cookie carrying token.
func (c *CookieCodec) SetSession(w http.ResponseWriter, token string, maxAge time.Duration) error {
	encoded, err := c.sc.Encode(SessionCookieName, token)
	if err != nil {
		return err
	}
	http.SetCookie(w, c.cookie(SessionCookieName, encoded, int(maxAge.Seconds())))
	return nil
}

// SessionToken returns the verified token from the request's session cookie.
// Missing or tampered cookies yield an empty token.
func (c *CookieCodec) SessionToken(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	var token string
	if err := c.sc.Decode(SessionCookieName, cookie.Value, &token); err != nil {
		return ""
	}
	return token
}

// ClearSession expires the session cookie.
func (c *CookieCodec) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(SessionCookieName, "", -1))
}

// SetFlash stores a message to be shown on the next rendered page.
func (c *CookieCodec) SetFlash(w http.ResponseWriter, msg string) error {
	encoded, err := c.sc.Encode(FlashCookieName, msg)
	if err != nil {
		return err
	}
	http.SetCookie(w, c.cookie(FlashCookieName, encoded, 0))
	return nil
}

// PopFlash returns the pending flash message, if any, and clears it.
func (c *CookieCodec) PopFlash(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(FlashCookieName)
	if err != nil {
		return ""
	}
	http.SetCookie(w, c.cookie(FlashCookieName, "", -1))

	var msg string
	if err := c.sc.Decode(FlashCookieName, cookie.Value, &msg); err != nil {
		return ""
	}
	return msg
}

func (c *CookieCodec) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
