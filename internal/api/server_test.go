package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"connected/internal/auth"
	"connected/internal/conversation"
	"connected/internal/logging"
	"connected/internal/metrics"
	"connected/internal/roster"
	"connected/internal/router"
	"connected/internal/session"
	"connected/pkg/interfaces"
	"connected/pkg/types"
)

const testToken = "token-ada"

var testSession = types.Authenticated{
	UserID:      "user-1",
	Email:       "ada@uni.edu",
	Role:        types.RoleStudent,
	PasswordSet: true,
	ExpiresAt:   time.Now().Add(time.Hour),
}

type mockSessions struct {
	err error
}

func (m *mockSessions) GetSession(_ context.Context, token string) (types.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	if token == testToken {
		return testSession, nil
	}
	return types.Unauthenticated{}, nil
}

type mockSessionRouter struct {
	dev      bool
	decision session.Decision
	err      error
	calls    []string

	email       string
	password    string
	role        types.Role
	session     types.Session
	identity    *types.Identity
	identityErr error
}

func (m *mockSessionRouter) DevMode() bool { return m.dev }

func (m *mockSessionRouter) Login(_ context.Context, email string) (session.Decision, error) {
	m.calls = append(m.calls, "login")
	m.email = email
	return m.decision, m.err
}

func (m *mockSessionRouter) DevLogin(_ context.Context, email string, role types.Role) (session.Decision, error) {
	m.calls = append(m.calls, "dev_login")
	m.email, m.role = email, role
	return m.decision, m.err
}

func (m *mockSessionRouter) DevProvision(_ context.Context, email string, role types.Role) (*types.Identity, error) {
	m.calls = append(m.calls, "dev_provision")
	m.email, m.role = email, role
	return m.identity, m.identityErr
}

func (m *mockSessionRouter) RedeemCallback(_ context.Context, token string) (session.Decision, error) {
	m.calls = append(m.calls, "callback:"+token)
	return m.decision, m.err
}

func (m *mockSessionRouter) EnterPassword(_ context.Context, email, password string) (session.Decision, error) {
	m.calls = append(m.calls, "password")
	m.email, m.password = email, password
	return m.decision, m.err
}

func (m *mockSessionRouter) CreatePassword(_ context.Context, s types.Session, password string) (session.Decision, error) {
	m.calls = append(m.calls, "create_password")
	m.session, m.password = s, password
	return m.decision, m.err
}

func (m *mockSessionRouter) SignOut(_ context.Context, s types.Session) (session.Decision, error) {
	m.calls = append(m.calls, "sign_out")
	m.session = s
	return session.Decision{Next: session.ScreenLogin}, nil
}

type mockRoster struct {
	students  []types.StudentRow
	teachers  []types.TeacherRow
	saveErr   error
	deleted   int64
	deleteErr error

	studentKey roster.StudentKey
	teacherKey roster.TeacherKey

	studentDashboard *types.StudentDashboard
	teacherDashboard *types.TeacherDashboard
	dashboardErr     error
}

func (m *mockRoster) ListStudents(context.Context) ([]types.StudentRow, error) { return m.students, nil }
func (m *mockRoster) ListTeachers(context.Context) ([]types.TeacherRow, error) { return m.teachers, nil }

func (m *mockRoster) SaveStudents(_ context.Context, rows []types.StudentRow) ([]types.StudentRow, error) {
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	m.students = rows
	return rows, nil
}

func (m *mockRoster) SaveTeachers(_ context.Context, rows []types.TeacherRow) ([]types.TeacherRow, error) {
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	m.teachers = rows
	return rows, nil
}

func (m *mockRoster) DeleteStudent(_ context.Context, key roster.StudentKey) (int64, error) {
	m.studentKey = key
	return m.deleted, m.deleteErr
}

func (m *mockRoster) DeleteTeacher(_ context.Context, key roster.TeacherKey) (int64, error) {
	m.teacherKey = key
	return m.deleted, m.deleteErr
}

func (m *mockRoster) StudentDashboard(context.Context, string) (*types.StudentDashboard, error) {
	return m.studentDashboard, m.dashboardErr
}

func (m *mockRoster) TeacherDashboard(context.Context, string) (*types.TeacherDashboard, error) {
	return m.teacherDashboard, m.dashboardErr
}

type mockConversations struct {
	conversation *types.Conversation
	openErr      error
	messages     []types.Message
	historyErr   error
	a, b         string
	historyID    string
}

func (m *mockConversations) Open(_ context.Context, a, b string) (*types.Conversation, error) {
	m.a, m.b = a, b
	return m.conversation, m.openErr
}

func (m *mockConversations) History(_ context.Context, _, id string) ([]types.Message, error) {
	m.historyID = id
	return m.messages, m.historyErr
}

type mockMessages struct {
	err            error
	sender         types.Authenticated
	conversationID string
	content        string
}

func (m *mockMessages) RouteMessage(_ context.Context, sender types.Authenticated, conversationID, content string) (*types.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.sender, m.conversationID, m.content = sender, conversationID, content
	return &types.Message{ID: "m1", ConversationID: conversationID, Sender: sender.Email, Content: content}, nil
}

type mockHealth struct {
	err error
}

func (m *mockHealth) HealthCheck(context.Context) error { return m.err }

type mockRegistry struct{}

func (mockRegistry) GetStats() map[string]int {
	return map[string]int{"total_connections": 2, "active_conversations": 1}
}

type testDeps struct {
	sessions      *mockSessions
	router        *mockSessionRouter
	roster        *mockRoster
	conversations *mockConversations
	messages      *mockMessages
	health        *mockHealth
	metrics       *metrics.Metrics
}

func newTestServer(coordinatorToken string) (*Server, *testDeps) {
	deps := &testDeps{
		sessions:      &mockSessions{},
		router:        &mockSessionRouter{},
		roster:        &mockRoster{},
		conversations: &mockConversations{},
		messages:      &mockMessages{},
		health:        &mockHealth{},
		metrics:       metrics.New(),
	}
	server := NewServer(Options{
		Sessions:         deps.sessions,
		Router:           deps.router,
		Roster:           deps.roster,
		Conversations:    deps.conversations,
		Messages:         deps.messages,
		Health:           deps.health,
		Registry:         mockRegistry{},
		Metrics:          deps.metrics,
		Logger:           logging.Discard(),
		CoordinatorToken: coordinatorToken,
	})
	return server, deps
}

func do(server http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(out); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == auth.SessionCookie {
			return cookie
		}
	}
	return nil
}

// FUNCTIONAL VALIDATION TEST: GET /health endpoint
func TestServer_HealthCheck(t *testing.T) {
	server, deps := newTestServer("")

	w := do(server, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	var health HealthResponse
	decode(t, w, &health)
	if health.Status != "healthy" || health.Connections["total_connections"] != 2 {
		t.Errorf("Unexpected health response %+v", health)
	}

	deps.health.err = errors.New("database is locked")
	w = do(server, http.MethodGet, "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
}

// FUNCTIONAL VALIDATION TEST: login decisions and their status codes
func TestServer_Login(t *testing.T) {
	tests := []struct {
		name        string
		decision    session.Decision
		err         error
		wantStatus  int
		wantNext    string
		wantMessage string
	}{
		{"link sent", session.Decision{Next: session.ScreenCheckEmail}, nil, http.StatusOK, "/check-email", ""},
		{"invalid email", session.Decision{Next: session.ScreenLogin}, types.ErrInvalidEmail, http.StatusBadRequest, "/login", types.ErrInvalidEmail.Error()},
		{"backend failure", session.Decision{Next: session.ScreenDenied}, errors.New("smtp down"), http.StatusInternalServerError, "/error", "authentication backend unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, deps := newTestServer("")
			deps.router.decision, deps.router.err = tt.decision, tt.err

			w := do(server, http.MethodPost, "/api/auth/login", `{"email":"ada@uni.edu"}`)
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			var response DecisionResponse
			decode(t, w, &response)
			if response.Next != tt.wantNext || response.Message != tt.wantMessage {
				t.Errorf("Unexpected decision %+v", response)
			}
			if len(deps.router.calls) != 1 || deps.router.calls[0] != "login" {
				t.Errorf("Expected a single Login call, got %v", deps.router.calls)
			}
		})
	}
}

func TestServer_LoginValidation(t *testing.T) {
	server, deps := newTestServer("")

	w := do(server, http.MethodPost, "/api/auth/login", `{"email":""}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	var response ErrorResponse
	decode(t, w, &response)
	if response.Fields["email"] == "" {
		t.Errorf("Expected a field error for email, got %+v", response)
	}

	w = do(server, http.MethodPost, "/api/auth/login", `{"email":"ada@uni.edu","extra":1}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Unknown fields: expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if len(deps.router.calls) != 0 {
		t.Errorf("Router must not be called for invalid bodies, got %v", deps.router.calls)
	}
}

// FUNCTIONAL VALIDATION TEST: dev mode signs in directly and sets the session cookie
func TestServer_DevLogin(t *testing.T) {
	server, deps := newTestServer("")
	deps.router.dev = true
	authed := testSession
	deps.router.decision = session.Decision{Next: session.ScreenTeacher, Token: testToken, Session: &authed}

	w := do(server, http.MethodPost, "/api/auth/login", `{"email":"prof.teacher@uni.edu","role":"teacher"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if deps.router.calls[0] != "dev_login" || deps.router.role != types.RoleTeacher {
		t.Errorf("Expected DevLogin with teacher role, got %v %q", deps.router.calls, deps.router.role)
	}

	cookie := sessionCookie(w)
	if cookie == nil || cookie.Value != testToken || !cookie.HttpOnly || cookie.MaxAge <= 0 {
		t.Errorf("Expected session cookie, got %+v", cookie)
	}

	w = do(server, http.MethodPost, "/api/auth/login", `{"email":"x@uni.edu","role":"admin"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Unknown role: expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

// FUNCTIONAL VALIDATION TEST: one-time link landing for browsers and JSON clients
func TestServer_Callback(t *testing.T) {
	server, deps := newTestServer("")
	authed := testSession
	authed.PasswordSet = false
	deps.router.decision = session.Decision{Next: "/passrst?email=ada%40uni.edu", Token: testToken, Session: &authed}

	w := do(server, http.MethodGet, "/auth/callback?token=abc", "", "Accept", "text/html")
	if w.Code != http.StatusSeeOther {
		t.Fatalf("Expected status %d, got %d", http.StatusSeeOther, w.Code)
	}
	if got := w.Header().Get("Location"); got != "/passrst?email=ada%40uni.edu" {
		t.Errorf("Unexpected redirect %q", got)
	}
	if sessionCookie(w) == nil {
		t.Error("Expected session cookie on redirect")
	}
	if deps.router.calls[0] != "callback:abc" {
		t.Errorf("Expected token to reach the router, got %v", deps.router.calls)
	}

	w = do(server, http.MethodGet, "/auth/callback?token=abc", "", "Accept", "application/json")
	var response DecisionResponse
	decode(t, w, &response)
	if w.Code != http.StatusOK || response.Token != testToken {
		t.Errorf("Expected JSON decision with token, got %d %+v", w.Code, response)
	}
}

// FUNCTIONAL VALIDATION TEST: bearer header and cookie both authenticate
func TestServer_SessionEndpoint(t *testing.T) {
	server, deps := newTestServer("")

	if w := do(server, http.MethodGet, "/api/auth/session", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("No token: expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
	if w := do(server, http.MethodGet, "/api/auth/session", "", "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("Unknown token: expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}

	w := do(server, http.MethodGet, "/api/auth/session", "", "Authorization", "Bearer "+testToken)
	var authed types.Authenticated
	decode(t, w, &authed)
	if w.Code != http.StatusOK || authed.Email != "ada@uni.edu" {
		t.Errorf("Bearer: unexpected %d %+v", w.Code, authed)
	}

	w = do(server, http.MethodGet, "/api/auth/session", "", "Cookie", auth.SessionCookie+"="+testToken)
	if w.Code != http.StatusOK {
		t.Errorf("Cookie: expected status %d, got %d", http.StatusOK, w.Code)
	}

	deps.sessions.err = errors.New("redis unavailable")
	w = do(server, http.MethodGet, "/api/auth/session", "", "Authorization", "Bearer "+testToken)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Lookup failure: expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func TestServer_PasswordFlows(t *testing.T) {
	server, deps := newTestServer("")
	deps.router.decision = session.Decision{Next: "/password?email=ada%40uni.edu"}
	deps.router.err = auth.ErrInvalidCredentials

	w := do(server, http.MethodPost, "/api/auth/password", `{"email":"ada@uni.edu","password":"nope"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Wrong password: expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
	if deps.router.password != "nope" {
		t.Errorf("Password not forwarded, got %q", deps.router.password)
	}

	if w := do(server, http.MethodPost, "/api/auth/password/create", `{"password":"secret1"}`); w.Code != http.StatusUnauthorized {
		t.Errorf("Create without session: expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}

	deps.router.decision = session.Decision{Next: session.ScreenDenied}
	deps.router.err = session.ErrRoleUnresolved
	w = do(server, http.MethodPost, "/api/auth/password/create", `{"password":"secret1"}`, "Authorization", "Bearer "+testToken)
	if w.Code != http.StatusForbidden {
		t.Errorf("Unresolved role: expected status %d, got %d", http.StatusForbidden, w.Code)
	}
	if got, ok := deps.router.session.(types.Authenticated); !ok || got.Email != "ada@uni.edu" {
		t.Errorf("Expected the request session to reach the router, got %#v", deps.router.session)
	}
}

func TestServer_Logout(t *testing.T) {
	server, deps := newTestServer("")

	w := do(server, http.MethodPost, "/api/auth/logout", "", "Authorization", "Bearer "+testToken)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	cookie := sessionCookie(w)
	if cookie == nil || cookie.MaxAge >= 0 {
		t.Errorf("Expected the session cookie to be cleared, got %+v", cookie)
	}
	if _, ok := deps.router.session.(types.Authenticated); !ok {
		t.Errorf("Expected authenticated sign out, got %#v", deps.router.session)
	}

	// Signing out without a session still routes to login
	if w := do(server, http.MethodPost, "/api/auth/logout", ""); w.Code != http.StatusOK {
		t.Errorf("Anonymous logout: expected status %d, got %d", http.StatusOK, w.Code)
	}
}

// FUNCTIONAL VALIDATION TEST: POST /api/dev-auth exists only in dev mode
func TestServer_DevAuth(t *testing.T) {
	server, deps := newTestServer("")

	if w := do(server, http.MethodPost, "/api/dev-auth", `{"email":"a@uni.edu"}`); w.Code != http.StatusNotFound {
		t.Errorf("Outside dev mode: expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	deps.router.dev = true
	deps.router.identity = &types.Identity{ID: "id-1", Email: "a.teacher@uni.edu", Role: types.RoleTeacher}
	w := do(server, http.MethodPost, "/api/dev-auth", `{"email":"a.teacher@uni.edu"}`)
	var response DevAuthResponse
	decode(t, w, &response)
	if w.Code != http.StatusOK || !response.OK || response.Role != types.RoleTeacher || response.ID != "id-1" {
		t.Errorf("Unexpected dev-auth response %d %+v", w.Code, response)
	}

	deps.router.identityErr = errors.New("disk full")
	if w := do(server, http.MethodPost, "/api/dev-auth", `{"email":"a.teacher@uni.edu"}`); w.Code != http.StatusInternalServerError {
		t.Errorf("Provisioning failure: expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func TestServer_Dashboards(t *testing.T) {
	server, deps := newTestServer("")
	deps.roster.studentDashboard = &types.StudentDashboard{Courses: []string{"CS101"}, Teachers: []types.TeacherRow{}}

	w := do(server, http.MethodGet, "/api/student/dashboard", "", "Authorization", "Bearer "+testToken)
	var dashboard types.StudentDashboard
	decode(t, w, &dashboard)
	if w.Code != http.StatusOK || len(dashboard.Courses) != 1 {
		t.Errorf("Unexpected dashboard %d %+v", w.Code, dashboard)
	}

	deps.roster.dashboardErr = roster.ErrNotOnRoster
	if w := do(server, http.MethodGet, "/api/teacher/dashboard", "", "Authorization", "Bearer "+testToken); w.Code != http.StatusNotFound {
		t.Errorf("Not on roster: expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

// FUNCTIONAL VALIDATION TEST: conversation open and its error mapping
func TestServer_OpenConversation(t *testing.T) {
	server, deps := newTestServer("")
	deps.conversations.conversation = &types.Conversation{ID: "conv-1", Participant1: "ada@uni.edu", Participant2: "prof.x@uni.edu"}
	bearer := []string{"Authorization", "Bearer " + testToken}

	w := do(server, http.MethodPost, "/api/conversations", `{"participant":"prof.x@uni.edu"}`, bearer...)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if deps.conversations.a != "ada@uni.edu" || deps.conversations.b != "prof.x@uni.edu" {
		t.Errorf("Expected caller and participant, got %q %q", deps.conversations.a, deps.conversations.b)
	}

	w = do(server, http.MethodPost, "/api/conversations", `{"participant":"nope"}`, bearer...)
	var response ErrorResponse
	decode(t, w, &response)
	if w.Code != http.StatusBadRequest || response.Fields["participant"] == "" {
		t.Errorf("Expected participant field error, got %d %+v", w.Code, response)
	}

	tests := []struct {
		err  error
		want int
	}{
		{conversation.ErrUnknownParticipant, http.StatusNotFound},
		{types.ErrInvalidParticipants, http.StatusBadRequest},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		deps.conversations.openErr = tt.err
		if w := do(server, http.MethodPost, "/api/conversations", `{"participant":"prof.x@uni.edu"}`, bearer...); w.Code != tt.want {
			t.Errorf("%v: expected status %d, got %d", tt.err, tt.want, w.Code)
		}
	}
}

// FUNCTIONAL VALIDATION TEST: history and send under /api/conversations/{id}/messages
func TestServer_Messages(t *testing.T) {
	server, deps := newTestServer("")
	bearer := []string{"Authorization", "Bearer " + testToken}
	deps.conversations.messages = []types.Message{{ID: "m1", ConversationID: "conv-1", Content: "hi"}}

	w := do(server, http.MethodGet, "/api/conversations/conv-1/messages", "", bearer...)
	var messages []types.Message
	decode(t, w, &messages)
	if w.Code != http.StatusOK || len(messages) != 1 || deps.conversations.historyID != "conv-1" {
		t.Errorf("Unexpected history %d %+v", w.Code, messages)
	}

	w = do(server, http.MethodPost, "/api/conversations/conv-1/messages", `{"content":"hello"}`, bearer...)
	var stored types.Message
	decode(t, w, &stored)
	if w.Code != http.StatusCreated || stored.ID != "m1" || deps.messages.sender.Email != "ada@uni.edu" || deps.messages.conversationID != "conv-1" {
		t.Errorf("Unexpected send result %d %+v", w.Code, stored)
	}

	w = do(server, http.MethodPost, "/api/conversations/conv-1/messages", `{"content":"   "}`, bearer...)
	var response ErrorResponse
	decode(t, w, &response)
	if w.Code != http.StatusBadRequest || response.Fields["content"] != "content cannot be blank" {
		t.Errorf("Blank content: unexpected %d %+v", w.Code, response)
	}

	tests := []struct {
		err  error
		want int
	}{
		{router.ErrRateLimitExceeded, http.StatusTooManyRequests},
		{router.ErrSenderNotParticipant, http.StatusForbidden},
		{interfaces.ErrConversationNotFound, http.StatusNotFound},
		{types.ErrContentTooLarge, http.StatusBadRequest},
	}
	for _, tt := range tests {
		deps.messages.err = tt.err
		if w := do(server, http.MethodPost, "/api/conversations/conv-1/messages", `{"content":"hello"}`, bearer...); w.Code != tt.want {
			t.Errorf("%v: expected status %d, got %d", tt.err, tt.want, w.Code)
		}
	}

	deps.conversations.historyErr = conversation.ErrNotParticipant
	if w := do(server, http.MethodGet, "/api/conversations/conv-1/messages", "", bearer...); w.Code != http.StatusForbidden {
		t.Errorf("History of a foreign conversation: expected status %d, got %d", http.StatusForbidden, w.Code)
	}
}

// FUNCTIONAL VALIDATION TEST: roster endpoints behind the coordinator token
func TestServer_Roster(t *testing.T) {
	server, deps := newTestServer("coord-secret")
	coordinator := []string{CoordinatorHeader, "coord-secret"}

	if w := do(server, http.MethodGet, "/api/roster/students", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("Missing token: expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
	if w := do(server, http.MethodGet, "/api/roster/students", "", CoordinatorHeader, "guess"); w.Code != http.StatusUnauthorized {
		t.Errorf("Wrong token: expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}

	w := do(server, http.MethodGet, "/api/roster/teachers", "", coordinator...)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("Empty list: unexpected %d %q", w.Code, w.Body.String())
	}

	w = do(server, http.MethodPut, "/api/roster/students", `[{"roll_no":"R1","name":"Ada","email":"ada@uni.edu","course_code":"CS101"}]`, coordinator...)
	if w.Code != http.StatusOK || len(deps.roster.students) != 1 || deps.roster.students[0].RollNo != "R1" {
		t.Errorf("Save: unexpected %d %+v", w.Code, deps.roster.students)
	}

	w = do(server, http.MethodPut, "/api/roster/teachers", `[{"course_code":"MA201","teacher_email":"not-an-email"}]`, coordinator...)
	if w.Code != http.StatusOK || len(deps.roster.teachers) != 1 || deps.roster.teachers[0].TeacherEmail != "not-an-email" {
		t.Errorf("Rows are passed through unvalidated: unexpected %d %+v", w.Code, deps.roster.teachers)
	}

	deps.roster.saveErr = errors.New("disk full")
	w = do(server, http.MethodPut, "/api/roster/students", `[{"roll_no":"R2"}]`, coordinator...)
	var response ErrorResponse
	decode(t, w, &response)
	if w.Code != http.StatusInternalServerError || response.Message != "Roster operation failed" {
		t.Errorf("Store failure: unexpected %d %+v", w.Code, response)
	}

	deps.roster.deleted = 1
	w = do(server, http.MethodDelete, "/api/roster/teachers?course_code=CS101&teacher_email=prof.x@uni.edu", "", coordinator...)
	var deleted DeleteResponse
	decode(t, w, &deleted)
	if w.Code != http.StatusOK || deleted.Deleted != 1 || deps.roster.teacherKey.CourseCode != "CS101" {
		t.Errorf("Delete: unexpected %d %+v %+v", w.Code, deleted, deps.roster.teacherKey)
	}

	deps.roster.deleteErr = roster.ErrMissingKey
	if w := do(server, http.MethodDelete, "/api/roster/students", "", coordinator...); w.Code != http.StatusBadRequest {
		t.Errorf("Missing key: expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestServer_RosterOpenWithoutToken(t *testing.T) {
	server, _ := newTestServer("")
	if w := do(server, http.MethodGet, "/api/roster/students", ""); w.Code != http.StatusOK {
		t.Errorf("Expected open roster without a configured token, got %d", w.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	server, deps := newTestServer("")

	do(server, http.MethodGet, "/health", "")
	do(server, http.MethodGet, "/api/auth/session", "")

	if got := testutil.ToFloat64(deps.metrics.HTTPRequests.WithLabelValues(http.MethodGet, "401")); got != 1 {
		t.Errorf("Expected one 401 request recorded, got %v", got)
	}

	w := do(server, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "connected_http_requests_total") {
		t.Errorf("Expected prometheus exposition, got %d", w.Code)
	}
}
