package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"connected/internal/auth"
	"connected/internal/logging"
	"connected/internal/session"
	"connected/pkg/types"
)

type LoginRequest struct {
	Email string `json:"email" validate:"required"`
	// Role is honored in dev mode only
	Role types.Role `json:"role" validate:"omitempty,oneof=teacher student"`
}

type PasswordRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password"`
}

type CreatePasswordRequest struct {
	Password string `json:"password"`
}

type DevAuthRequest struct {
	Email string     `json:"email" validate:"required,email"`
	Role  types.Role `json:"role" validate:"omitempty,oneof=teacher student"`
}

type DevAuthResponse struct {
	OK    bool       `json:"ok"`
	ID    string     `json:"id"`
	Email string     `json:"email"`
	Role  types.Role `json:"role"`
}

// DecisionResponse is a Session Router decision, with a message when it carries an error
type DecisionResponse struct {
	Next    string               `json:"next"`
	Token   string               `json:"token,omitempty"`
	Session *types.Authenticated `json:"session,omitempty"`
	Message string               `json:"message,omitempty"`
}

// decisionStatus maps the error that came with a decision to a status code
func decisionStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, session.ErrNotSignedIn):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrRoleUnresolved):
		return http.StatusForbidden
	case errors.Is(err, types.ErrInvalidEmail),
		errors.Is(err, session.ErrPasswordMissing),
		errors.Is(err, session.ErrInvalidRole),
		errors.Is(err, auth.ErrWeakPassword):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeDecision answers with the decision and sets the session cookie when it issues a token
// FUNCTIONAL DISCOVERY: backend failures still carry Next (the access-denied screen), only the
// detail is withheld
func (s *Server) writeDecision(w http.ResponseWriter, r *http.Request, decision session.Decision, err error) {
	if decision.Token != "" {
		s.setSessionCookie(w, decision)
	}

	status := decisionStatus(err)
	response := DecisionResponse{Next: decision.Next, Token: decision.Token, Session: decision.Session}
	switch {
	case err == nil:
	case status == http.StatusInternalServerError:
		logging.FromContext(r.Context()).ErrorContext(r.Context(), "session decision failed", "next", decision.Next, "error", err)
		response.Message = "authentication backend unavailable"
	default:
		response.Message = err.Error()
	}
	writeJSON(w, status, response)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, decision session.Decision) {
	cookie := &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    decision.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if decision.Session != nil && !decision.Session.ExpiresAt.IsZero() {
		cookie.Expires = decision.Session.ExpiresAt
		cookie.MaxAge = int(time.Until(decision.Session.ExpiresAt).Seconds())
	}
	http.SetCookie(w, cookie)
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// FUNCTIONAL DISCOVERY: POST /api/auth/login - dev mode signs in directly, otherwise the
// router picks password entry, a one-time link or the access-denied screen
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendBadRequest(w, err)
		return
	}

	var decision session.Decision
	var err error
	if s.router.DevMode() {
		decision, err = s.router.DevLogin(r.Context(), req.Email, req.Role)
	} else {
		decision, err = s.router.Login(r.Context(), req.Email)
	}
	s.writeDecision(w, r, decision, err)
}

// GET /auth/callback?token= is the landing page of a one-time link
// Browsers are redirected to the next screen, JSON clients get the decision.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	decision, err := s.router.RedeemCallback(r.Context(), r.URL.Query().Get("token"))

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		s.writeDecision(w, r, decision, err)
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).ErrorContext(r.Context(), "callback failed", "error", err)
	}
	if decision.Token != "" {
		s.setSessionCookie(w, decision)
	}
	http.Redirect(w, r, decision.Next, http.StatusSeeOther)
}

// FUNCTIONAL DISCOVERY: POST /api/auth/password - password entry for known identities
func (s *Server) handlePassword(w http.ResponseWriter, r *http.Request) {
	var req PasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendBadRequest(w, err)
		return
	}
	decision, err := s.router.EnterPassword(r.Context(), req.Email, req.Password)
	s.writeDecision(w, r, decision, err)
}

// FUNCTIONAL DISCOVERY: POST /api/auth/password/create - first password after a one-time link
func (s *Server) handleCreatePassword(w http.ResponseWriter, r *http.Request) {
	var req CreatePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendBadRequest(w, err)
		return
	}
	decision, err := s.router.CreatePassword(r.Context(), sessionFromContext(r.Context()), req.Password)
	s.writeDecision(w, r, decision, err)
}

// POST /api/auth/logout works with or without a session and always clears the cookie
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	decision, err := s.router.SignOut(r.Context(), sessionFromContext(r.Context()))
	s.clearSessionCookie(w)
	s.writeDecision(w, r, decision, err)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, authenticated(r.Context()))
}

// FUNCTIONAL DISCOVERY: POST /api/dev-auth - provisions an identity with the shared dev
// password; the route does not exist outside dev mode
func (s *Server) handleDevAuth(w http.ResponseWriter, r *http.Request) {
	if !s.router.DevMode() {
		sendError(w, "Not found", http.StatusNotFound)
		return
	}

	var req DevAuthRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendBadRequest(w, err)
		return
	}

	identity, err := s.router.DevProvision(r.Context(), req.Email, req.Role)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRole) || errors.Is(err, types.ErrInvalidEmail) {
			sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
		logging.FromContext(r.Context()).ErrorContext(r.Context(), "dev provisioning failed", "error", err)
		sendError(w, "Provisioning failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, DevAuthResponse{OK: true, ID: identity.ID, Email: identity.Email, Role: identity.Role})
}
