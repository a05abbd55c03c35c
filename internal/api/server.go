package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"connected/internal/logging"
	"connected/internal/metrics"
	"connected/internal/roster"
	"connected/internal/session"
	"connected/pkg/interfaces"
	"connected/pkg/types"
)

// SessionRouter decides the next screen of the sign-in flow
type SessionRouter interface {
	DevMode() bool
	Login(ctx context.Context, email string) (session.Decision, error)
	DevLogin(ctx context.Context, email string, role types.Role) (session.Decision, error)
	DevProvision(ctx context.Context, email string, role types.Role) (*types.Identity, error)
	RedeemCallback(ctx context.Context, token string) (session.Decision, error)
	EnterPassword(ctx context.Context, email, password string) (session.Decision, error)
	CreatePassword(ctx context.Context, session types.Session, password string) (session.Decision, error)
	SignOut(ctx context.Context, session types.Session) (session.Decision, error)
}

// Roster is the coordinator editor plus the dashboards derived from it
type Roster interface {
	ListStudents(ctx context.Context) ([]types.StudentRow, error)
	ListTeachers(ctx context.Context) ([]types.TeacherRow, error)
	SaveStudents(ctx context.Context, rows []types.StudentRow) ([]types.StudentRow, error)
	SaveTeachers(ctx context.Context, rows []types.TeacherRow) ([]types.TeacherRow, error)
	DeleteStudent(ctx context.Context, key roster.StudentKey) (int64, error)
	DeleteTeacher(ctx context.Context, key roster.TeacherKey) (int64, error)
	StudentDashboard(ctx context.Context, email string) (*types.StudentDashboard, error)
	TeacherDashboard(ctx context.Context, email string) (*types.TeacherDashboard, error)
}

// Conversations opens conversations and reads their history
type Conversations interface {
	Open(ctx context.Context, a, b string) (*types.Conversation, error)
	History(ctx context.Context, email, id string) ([]types.Message, error)
}

// HealthChecker reports whether the store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Registry exposes realtime connection statistics
type Registry interface {
	GetStats() map[string]int
}

// Options carries the Server dependencies
type Options struct {
	Sessions      interfaces.SessionReader
	Router        SessionRouter
	Roster        Roster
	Conversations Conversations
	Messages      interfaces.MessageRouter
	Health        HealthChecker
	Registry      Registry
	Realtime      http.Handler
	Metrics       *metrics.Metrics
	Logger        *slog.Logger

	// CoordinatorToken guards the roster endpoints when non-empty
	CoordinatorToken string
	// SecureCookies marks the session cookie Secure, set for https deployments
	SecureCookies bool
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// No business logic here, only HTTP handling, validation and JSON serialization
type Server struct {
	sessions         interfaces.SessionReader
	router           SessionRouter
	roster           Roster
	conversations    Conversations
	messages         interfaces.MessageRouter
	health           HealthChecker
	registry         Registry
	realtime         http.Handler
	metrics          *metrics.Metrics
	logger           *slog.Logger
	coordinatorToken string
	secureCookies    bool
	started          time.Time
	mux              chi.Router
}

// NewServer builds the server and its route table
func NewServer(opts Options) *Server {
	s := &Server{
		sessions:         opts.Sessions,
		router:           opts.Router,
		roster:           opts.Roster,
		conversations:    opts.Conversations,
		messages:         opts.Messages,
		health:           opts.Health,
		registry:         opts.Registry,
		realtime:         opts.Realtime,
		metrics:          opts.Metrics,
		logger:           opts.Logger.With("component", "api"),
		coordinatorToken: opts.CoordinatorToken,
		secureCookies:    opts.SecureCookies,
		started:          time.Now(),
	}
	s.setupRoutes()
	return s
}

// ARCHITECTURAL DISCOVERY: Route setup follows REST conventions, session and coordinator
// checks are chi middleware applied per route group
func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.healthCheck)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	r.Get("/auth/callback", s.handleCallback)
	if s.realtime != nil {
		r.Handle("/realtime/messages", s.realtime)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(jsonMiddleware)

		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/password", s.handlePassword)
		r.With(s.requireSession).Post("/auth/password/create", s.handleCreatePassword)
		r.With(s.loadSession).Post("/auth/logout", s.handleLogout)
		r.With(s.requireSession).Get("/auth/session", s.handleSession)
		r.Post("/dev-auth", s.handleDevAuth)

		r.With(s.requireSession).Get("/student/dashboard", s.handleStudentDashboard)
		r.With(s.requireSession).Get("/teacher/dashboard", s.handleTeacherDashboard)

		r.With(s.requireSession).Post("/conversations", s.handleOpenConversation)
		r.With(s.requireSession).Get("/conversations/{id}/messages", s.handleListMessages)
		r.With(s.requireSession).Post("/conversations/{id}/messages", s.handleSendMessage)

		r.Route("/roster", func(r chi.Router) {
			r.Use(s.requireCoordinator)
			r.Get("/students", s.handleListStudents)
			r.Put("/students", s.handleSaveStudents)
			r.Delete("/students", s.handleDeleteStudent)
			r.Get("/teachers", s.handleListTeachers)
			r.Put("/teachers", s.handleSaveTeachers)
			r.Delete("/teachers", s.handleDeleteTeacher)
		})
	})

	s.mux = r
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Handler returns the server wrapped in OpenTelemetry request tracing
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s, "connected-http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
	Uptime      string         `json:"uptime"`
}

// FUNCTIONAL DISCOVERY: GET /health - 503 when the store is unreachable
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.health.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	connections := map[string]int{}
	if s.registry != nil {
		connections = s.registry.GetStats()
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Database:    dbStatus,
		Connections: connections,
		Uptime:      time.Since(s.started).Round(time.Second).String(),
	})
}

// requestLogger attaches a request-scoped logger and records the request metrics
// TECHNICAL DISCOVERY: chi's wrapped writer keeps http.Hijacker, so the realtime upgrade
// passes through this middleware
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		logger := s.logger.With("request_id", middleware.GetReqID(r.Context()))
		ctx := logging.ContextWithLogger(r.Context(), logger)

		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		if s.metrics != nil {
			s.metrics.ObserveRequest(r.Method, status, elapsed)
		}
		if !strings.HasPrefix(r.URL.Path, "/health") && r.URL.Path != "/metrics" {
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration_ms", elapsed.Milliseconds())
		}
	})
}

// FUNCTIONAL DISCOVERY: JSON middleware ensures proper content-type headers
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
