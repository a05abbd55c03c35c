package session

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"connected/internal/auth"
	"connected/pkg/types"
)

// Screen paths returned in decisions
const (
	ScreenLogin          = "/login"
	ScreenCheckEmail     = "/check-email"
	ScreenPassword       = "/password"
	ScreenCreatePassword = "/passrst"
	ScreenTeacher        = "/teacher"
	ScreenStudent        = "/student"
	ScreenDenied         = "/error"

	// CallbackPath is where one-time links land
	CallbackPath = "/auth/callback"
)

// AuthProvider is the subset of the auth provider the router drives
type AuthProvider interface {
	LookupIdentity(ctx context.Context, email string) (types.IdentityStatus, error)
	FindIdentity(ctx context.Context, email string) (*types.Identity, error)
	SignInWithPassword(ctx context.Context, email, password string) (*types.SignIn, error)
	SendOneTimeLink(ctx context.Context, email, redirect string) error
	RedeemOneTimeLink(ctx context.Context, token string) (*types.SignIn, error)
	UpdateUser(ctx context.Context, session types.Authenticated, update types.UserUpdate) (*types.SignIn, error)
	SignOut(ctx context.Context, session types.Authenticated) error
	AdminCreateUser(ctx context.Context, email, password string, metadata types.Metadata) (*types.Identity, error)
	AdminUpdateUserByID(ctx context.Context, id, password string, metadata types.Metadata) (*types.Identity, error)
}

// Decision is the outcome of one routing step
type Decision struct {
	Next    string               `json:"next"`
	Token   string               `json:"token,omitempty"`
	Session *types.Authenticated `json:"session,omitempty"`
}

// Options configures a Router
type Options struct {
	DevMode     bool
	DevPassword string
	Logger      *slog.Logger
	// Observe, when set, receives the Next screen of every decision
	Observe func(next string)
}

// Router decides the next screen for each step of the sign-in flow
// ARCHITECTURAL DISCOVERY: the router holds no per-user state, every call carries
// the email or session it decides for
type Router struct {
	auth        AuthProvider
	roster      RosterLookup
	devMode     bool
	devPassword string
	logger      *slog.Logger
	observe     func(string)
}

func NewRouter(provider AuthProvider, roster RosterLookup, opts Options) *Router {
	observe := opts.Observe
	if observe == nil {
		observe = func(string) {}
	}
	return &Router{
		auth:        provider,
		roster:      roster,
		devMode:     opts.DevMode,
		devPassword: opts.DevPassword,
		logger:      opts.Logger.With("component", "session"),
		observe:     observe,
	}
}

// DevMode reports whether the router bypasses one-time links
func (r *Router) DevMode() bool {
	return r.devMode
}

func (r *Router) decide(d Decision, err error) (Decision, error) {
	r.observe(d.Next)
	return d, err
}

// fail routes to the access-denied screen and surfaces err
func (r *Router) fail(ctx context.Context, step string, err error) (Decision, error) {
	r.logger.ErrorContext(ctx, "session routing failed", "step", step, "error", err)
	return r.decide(Decision{Next: ScreenDenied}, err)
}

// ScreenForRole maps a role to its dashboard, or the access-denied screen
func ScreenForRole(role types.Role) string {
	switch role {
	case types.RoleTeacher:
		return ScreenTeacher
	case types.RoleStudent:
		return ScreenStudent
	default:
		return ScreenDenied
	}
}

func withEmail(screen, email string) string {
	return screen + "?email=" + url.QueryEscape(email)
}

// Login routes a submitted email
func (r *Router) Login(ctx context.Context, email string) (Decision, error) {
	email = types.NormalizeEmail(email)
	if !types.IsValidEmail(email) {
		return r.decide(Decision{Next: ScreenLogin}, types.ErrInvalidEmail)
	}

	if r.devMode {
		return r.DevLogin(ctx, email, types.RoleNone)
	}

	// STEP 1: Existence and password state
	status, err := r.auth.LookupIdentity(ctx, email)
	if err != nil {
		return r.fail(ctx, "lookup", err)
	}

	// STEP 2: Known identity with a password goes to password entry
	if status.Exists && status.PasswordSet {
		return r.decide(Decision{Next: withEmail(ScreenPassword, email)}, nil)
	}

	// STEP 3: Unknown identities must be on the roster before a link is sent
	if !status.Exists {
		role, err := RosterRole(ctx, email, r.roster)
		if err != nil {
			return r.fail(ctx, "roster", err)
		}
		if role == types.RoleNone {
			r.logger.InfoContext(ctx, "login denied, email not on roster")
			return r.decide(Decision{Next: ScreenDenied}, nil)
		}
	}

	// STEP 4: First sign-in or no password yet
	if err := r.auth.SendOneTimeLink(ctx, email, CallbackPath); err != nil {
		return r.fail(ctx, "send_link", err)
	}
	return r.decide(Decision{Next: ScreenCheckEmail}, nil)
}

// DevProvision creates or updates the identity with the shared dev password
func (r *Router) DevProvision(ctx context.Context, email string, explicit types.Role) (*types.Identity, error) {
	email = types.NormalizeEmail(email)
	if !types.IsValidEmail(email) {
		return nil, types.ErrInvalidEmail
	}
	role, err := InferDevRole(email, explicit)
	if err != nil {
		return nil, err
	}
	metadata := types.Metadata{Role: role, PasswordSet: true}

	identity, err := r.auth.FindIdentity(ctx, email)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return r.auth.AdminCreateUser(ctx, email, r.devPassword, metadata)
	}
	return r.auth.AdminUpdateUserByID(ctx, identity.ID, r.devPassword, metadata)
}

// DevLogin provisions the identity and signs in with the shared password
func (r *Router) DevLogin(ctx context.Context, email string, explicit types.Role) (Decision, error) {
	identity, err := r.DevProvision(ctx, email, explicit)
	if err != nil {
		if errors.Is(err, ErrInvalidRole) || errors.Is(err, types.ErrInvalidEmail) {
			return r.decide(Decision{Next: ScreenLogin}, err)
		}
		return r.fail(ctx, "dev_provision", err)
	}

	signIn, err := r.auth.SignInWithPassword(ctx, identity.Email, r.devPassword)
	if err != nil {
		return r.fail(ctx, "dev_sign_in", err)
	}
	return r.decide(Decision{
		Next:    ScreenForRole(identity.Role),
		Token:   signIn.Token,
		Session: &signIn.Session,
	}, nil)
}

// Callback routes a session returned by a one-time link
func (r *Router) Callback(ctx context.Context, session types.Session) (Decision, error) {
	authed, ok := session.(types.Authenticated)
	if !ok {
		return r.decide(Decision{Next: ScreenLogin}, nil)
	}
	if !authed.PasswordSet {
		return r.decide(Decision{Next: withEmail(ScreenCreatePassword, authed.Email)}, nil)
	}

	role, err := ResolveRole(ctx, authed, r.roster)
	if err != nil {
		return r.fail(ctx, "resolve_role", err)
	}
	return r.decide(Decision{Next: ScreenForRole(role)}, nil)
}

// RedeemCallback redeems a one-time link token and routes the resulting session
// An unusable link routes back to login, like a callback without a session.
func (r *Router) RedeemCallback(ctx context.Context, token string) (Decision, error) {
	signIn, err := r.auth.RedeemOneTimeLink(ctx, token)
	if errors.Is(err, auth.ErrLinkInvalid) {
		return r.decide(Decision{Next: ScreenLogin}, nil)
	}
	if err != nil {
		return r.fail(ctx, "redeem_link", err)
	}

	decision, err := r.Callback(ctx, signIn.Session)
	if err != nil {
		return decision, err
	}
	decision.Token = signIn.Token
	decision.Session = &signIn.Session
	return decision, nil
}

// EnterPassword signs in from the password-entry screen
func (r *Router) EnterPassword(ctx context.Context, email, password string) (Decision, error) {
	email = types.NormalizeEmail(email)
	if password == "" {
		return r.decide(Decision{Next: withEmail(ScreenPassword, email)}, ErrPasswordMissing)
	}

	signIn, err := r.auth.SignInWithPassword(ctx, email, password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return r.decide(Decision{Next: withEmail(ScreenPassword, email)}, err)
	}
	if err != nil {
		return r.fail(ctx, "sign_in", err)
	}

	role, err := ResolveRole(ctx, signIn.Session, r.roster)
	if err != nil {
		return r.fail(ctx, "resolve_role", err)
	}
	if role == types.RoleNone {
		return r.decide(Decision{Next: ScreenDenied}, nil)
	}
	return r.decide(Decision{Next: ScreenForRole(role), Token: signIn.Token, Session: &signIn.Session}, nil)
}

// CreatePassword sets the first password, stores the roster role and routes by it
// FUNCTIONAL DISCOVERY: the role is resolved before anything is written, a user
// missing from the roster keeps password_set=false and can retry after being added
func (r *Router) CreatePassword(ctx context.Context, session types.Session, password string) (Decision, error) {
	authed, ok := session.(types.Authenticated)
	if !ok {
		return r.decide(Decision{Next: ScreenLogin}, ErrNotSignedIn)
	}
	if password == "" {
		return r.decide(Decision{Next: withEmail(ScreenCreatePassword, authed.Email)}, ErrPasswordMissing)
	}

	role, err := RosterRole(ctx, authed.Email, r.roster)
	if err != nil {
		return r.fail(ctx, "roster", err)
	}
	if role == types.RoleNone {
		return r.decide(Decision{Next: ScreenDenied}, ErrRoleUnresolved)
	}

	signIn, err := r.auth.UpdateUser(ctx, authed, types.UserUpdate{
		Password: &password,
		Metadata: &types.Metadata{Role: role, PasswordSet: true},
	})
	if err != nil {
		if isInputError(err) {
			return r.decide(Decision{Next: withEmail(ScreenCreatePassword, authed.Email)}, err)
		}
		return r.fail(ctx, "update_user", err)
	}
	return r.decide(Decision{Next: ScreenForRole(role), Token: signIn.Token, Session: &signIn.Session}, nil)
}

// SignOut ends the session and routes to login
func (r *Router) SignOut(ctx context.Context, session types.Session) (Decision, error) {
	if authed, ok := session.(types.Authenticated); ok {
		if err := r.auth.SignOut(ctx, authed); err != nil {
			r.logger.ErrorContext(ctx, "sign out failed", "error", err)
			return r.decide(Decision{Next: ScreenLogin}, err)
		}
	}
	return r.decide(Decision{Next: ScreenLogin}, nil)
}

func isInputError(err error) bool {
	return errors.Is(err, auth.ErrWeakPassword)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
