package sessions

import (
	"net/http"
	"time"
)

const (
	SessionCookieName      = "session_id"
	SessionStateCookieName = "session_state"
	BrowserStateCookieName = "opbs"
)

// SessionCookie returns the cookie carrying the session id. Non persisted sessions get
// a browser session cookie.
func (e *Engine) SessionCookie(s *Session, secure bool) *http.Cookie {
	c := &http.Cookie{
		Name:     SessionCookieName,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteNoneMode,
	}
	if s.Persisted && e.opts.UnusedLifetime > 0 {
		c.MaxAge = int(e.opts.UnusedLifetime / time.Second)
	}
	if !secure {
		c.SameSite = http.SameSiteLaxMode
	}
	return c
}

// SessionStateCookies exposes session_state and the browser state to the check_session iframe.
func (e *Engine) SessionStateCookies(s *Session, secure bool) []*http.Cookie {
	return []*http.Cookie{
		{Name: SessionStateCookieName, Value: s.SessionState, Path: "/", Secure: secure},
		{Name: BrowserStateCookieName, Value: s.Attributes[AttrOPBrowserState], Path: "/", Secure: secure},
	}
}

// ClearCookies expires the session cookies.
func ClearCookies() []*http.Cookie {
	out := make([]*http.Cookie, 0, 3)
	for _, name := range []string{SessionCookieName, SessionStateCookieName, BrowserStateCookieName} {
		out = append(out, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1})
	}
	return out
}
