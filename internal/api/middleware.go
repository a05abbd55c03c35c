package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"connected/internal/auth"
	"connected/internal/logging"
	"connected/pkg/types"
)

// CoordinatorHeader carries the roster editor token
const CoordinatorHeader = "X-Coordinator-Token"

type sessionKey struct{}

// sessionFromContext returns the session stored by loadSession, Unauthenticated if none
func sessionFromContext(ctx context.Context) types.Session {
	if session, ok := ctx.Value(sessionKey{}).(types.Session); ok {
		return session
	}
	return types.Unauthenticated{}
}

// authenticated returns the signed-in session stored by requireSession
func authenticated(ctx context.Context) types.Authenticated {
	authed, _ := sessionFromContext(ctx).(types.Authenticated)
	return authed
}

// resolveSession reads the bearer header or session cookie
func (s *Server) resolveSession(r *http.Request) (types.Session, error) {
	token := auth.TokenFromRequest(r, false)
	if token == "" {
		return types.Unauthenticated{}, nil
	}
	return s.sessions.GetSession(r.Context(), token)
}

// loadSession stores the request session, signed in or not
func (s *Server) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := s.resolveSession(r)
		if err != nil {
			logging.FromContext(r.Context()).ErrorContext(r.Context(), "session lookup failed", "error", err)
			sendError(w, "Session validation failed", http.StatusInternalServerError)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireSession rejects requests without a signed-in session
func (s *Server) requireSession(next http.Handler) http.Handler {
	return s.loadSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := sessionFromContext(r.Context()).(types.Authenticated); !ok {
			sendError(w, "Sign-in required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// requireCoordinator checks X-Coordinator-Token when a coordinator token is configured
func (s *Server) requireCoordinator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.coordinatorToken != "" {
			given := r.Header.Get(CoordinatorHeader)
			if subtle.ConstantTimeCompare([]byte(given), []byte(s.coordinatorToken)) != 1 {
				sendError(w, "Coordinator token required", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
