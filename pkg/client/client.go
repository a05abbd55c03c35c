package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"connected/pkg/types"
)

// APIError is a non-2xx answer from the service
type APIError struct {
	Status  int               `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("connected: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("connected: %d %s", e.Status, e.Message)
}

// Decision is the next screen chosen by the service
type Decision struct {
	Next    string               `json:"next"`
	Token   string               `json:"token,omitempty"`
	Session *types.Authenticated `json:"session,omitempty"`
	Message string               `json:"message,omitempty"`
}

// Option configures a Client
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithCoordinatorToken sends the roster editor token with every request
func WithCoordinatorToken(token string) Option {
	return func(c *Client) { c.coordinatorToken = token }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client talks to the HTTP and realtime API of one service
// ARCHITECTURAL DISCOVERY: every decision that issues a token updates the client, so a
// sign-in followed by chat calls needs no token plumbing by the caller
type Client struct {
	base             *url.URL
	http             *http.Client
	logger           *slog.Logger
	coordinatorToken string

	mu    sync.RWMutex
	token string
}

// New creates a client for the service at baseURL
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base:   base,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends a JSON request and decodes a 2xx JSON answer into out
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.coordinatorToken != "" {
		req.Header.Set(CoordinatorHeader, c.coordinatorToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{}
		_ = json.Unmarshal(data, apiErr)
		apiErr.Status = resp.StatusCode
		// decisions carry their screen even when they fail
		if out != nil {
			_ = json.Unmarshal(data, out)
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decide posts to a session endpoint and adopts any token it issues
func (c *Client) decide(ctx context.Context, method, path string, query url.Values, body interface{}) (*Decision, error) {
	decision := &Decision{}
	err := c.do(ctx, method, path, query, body, decision)
	if decision.Token != "" {
		c.SetToken(decision.Token)
	}
	return decision, err
}

// Login submits an email; in dev mode role picks the provisioned role
func (c *Client) Login(ctx context.Context, email string, role types.Role) (*Decision, error) {
	body := map[string]string{"email": email}
	if role != types.RoleNone {
		body["role"] = string(role)
	}
	return c.decide(ctx, http.MethodPost, "/api/auth/login", nil, body)
}

func (c *Client) EnterPassword(ctx context.Context, email, password string) (*Decision, error) {
	return c.decide(ctx, http.MethodPost, "/api/auth/password", nil, map[string]string{"email": email, "password": password})
}

// Redeem follows a one-time link; link may be the full URL from the email or the bare token
func (c *Client) Redeem(ctx context.Context, link string) (*Decision, error) {
	token := link
	if u, err := url.Parse(link); err == nil && u.Query().Get("token") != "" {
		token = u.Query().Get("token")
	}
	return c.decide(ctx, http.MethodGet, "/auth/callback", url.Values{"token": {token}}, nil)
}

func (c *Client) CreatePassword(ctx context.Context, password string) (*Decision, error) {
	return c.decide(ctx, http.MethodPost, "/api/auth/password/create", nil, map[string]string{"password": password})
}

// Logout signs out and forgets the token even when the service call fails
func (c *Client) Logout(ctx context.Context) (*Decision, error) {
	decision, err := c.decide(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	c.SetToken("")
	return decision, err
}

func (c *Client) Session(ctx context.Context) (*types.Authenticated, error) {
	var session types.Authenticated
	if err := c.do(ctx, http.MethodGet, "/api/auth/session", nil, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) StudentDashboard(ctx context.Context) (*types.StudentDashboard, error) {
	var dashboard types.StudentDashboard
	if err := c.do(ctx, http.MethodGet, "/api/student/dashboard", nil, nil, &dashboard); err != nil {
		return nil, err
	}
	return &dashboard, nil
}

func (c *Client) TeacherDashboard(ctx context.Context) (*types.TeacherDashboard, error) {
	var dashboard types.TeacherDashboard
	if err := c.do(ctx, http.MethodGet, "/api/teacher/dashboard", nil, nil, &dashboard); err != nil {
		return nil, err
	}
	return &dashboard, nil
}

// OpenConversation returns the caller's conversation with participant
func (c *Client) OpenConversation(ctx context.Context, participant string) (*types.Conversation, error) {
	var conversation types.Conversation
	if err := c.do(ctx, http.MethodPost, "/api/conversations", nil, map[string]string{"participant": participant}, &conversation); err != nil {
		return nil, err
	}
	return &conversation, nil
}

// History returns the messages of a conversation oldest first
func (c *Client) History(ctx context.Context, conversationID string) ([]types.Message, error) {
	var messages []types.Message
	if err := c.do(ctx, http.MethodGet, messagesPath(conversationID), nil, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// Insert sends a message and returns the stored row
func (c *Client) Insert(ctx context.Context, conversationID, content string) (*types.Message, error) {
	var message types.Message
	if err := c.do(ctx, http.MethodPost, messagesPath(conversationID), nil, map[string]string{"content": content}, &message); err != nil {
		return nil, err
	}
	return &message, nil
}

func messagesPath(conversationID string) string {
	return "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
}

// IsStatus reports whether err is an APIError with the given status
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
