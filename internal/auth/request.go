package auth

import (
	"net/http"
	"strings"
)

// SessionCookie carries the session token for browser clients
const SessionCookie = "connected_session"

// TokenFromRequest returns the session token of r: bearer header first, then the
// session cookie, then, when allowQuery is set, the access_token query parameter
// TECHNICAL DISCOVERY: browsers cannot set headers on a WebSocket handshake, the
// realtime endpoint is the only caller that allows the query parameter
func TokenFromRequest(r *http.Request, allowQuery bool) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if allowQuery {
		return r.URL.Query().Get("access_token")
	}
	return ""
}
