package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"connected/internal/mail"
	"connected/pkg/interfaces"
	"connected/pkg/types"
)

// MinPasswordLength is the shortest password accepted
const MinPasswordLength = 6

// Options configures a Provider
type Options struct {
	Identities interfaces.IdentityStore
	Tokens     TokenStore
	Mailer     mail.Mailer
	Logger     *slog.Logger

	JWTSecret  string
	SessionTTL time.Duration
	LinkTTL    time.Duration
	// PublicURL prefixes one-time links, e.g. https://connected.example.edu
	PublicURL string
	// BcryptCost defaults to bcrypt.DefaultCost
	BcryptCost int
	Now        func() time.Time
}

// Provider is the service's auth provider: identities, passwords, sessions and one-time links
// ARCHITECTURAL DISCOVERY: sessions are stateless JWTs, the token store only holds the
// single-use link tokens and the ids of signed-out sessions
type Provider struct {
	identities interfaces.IdentityStore
	tokens     TokenStore
	mailer     mail.Mailer
	issuer     *TokenIssuer
	logger     *slog.Logger
	linkTTL    time.Duration
	publicURL  string
	cost       int
	now        func() time.Time
}

func NewProvider(opts Options) *Provider {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	cost := opts.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Provider{
		identities: opts.Identities,
		tokens:     opts.Tokens,
		mailer:     opts.Mailer,
		issuer:     NewTokenIssuer(opts.JWTSecret, opts.SessionTTL, now),
		logger:     opts.Logger.With("component", "auth"),
		linkTTL:    opts.LinkTTL,
		publicURL:  strings.TrimRight(opts.PublicURL, "/"),
		cost:       cost,
		now:        now,
	}
}

// LookupIdentity reports whether an identity exists and has a password
func (p *Provider) LookupIdentity(ctx context.Context, email string) (types.IdentityStatus, error) {
	identity, err := p.FindIdentity(ctx, email)
	if err != nil {
		return types.IdentityStatus{}, err
	}
	if identity == nil {
		return types.IdentityStatus{}, nil
	}
	return types.IdentityStatus{Exists: true, PasswordSet: identity.PasswordSet}, nil
}

// FindIdentity returns nil without error when no identity has the email
func (p *Provider) FindIdentity(ctx context.Context, email string) (*types.Identity, error) {
	identity, err := p.identities.GetIdentityByEmail(ctx, types.NormalizeEmail(email))
	if errors.Is(err, interfaces.ErrIdentityNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identity lookup failed: %w", err)
	}
	return identity, nil
}

// SignInWithPassword checks the password and issues a session
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*types.SignIn, error) {
	identity, err := p.FindIdentity(ctx, email)
	if err != nil {
		return nil, err
	}
	// FUNCTIONAL DISCOVERY: unknown email, missing hash and wrong password are
	// indistinguishable to the caller
	if identity == nil || identity.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*identity.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return p.signIn(identity)
}

// SendOneTimeLink emails a single-use sign-in link, creating a password-less identity
// for first-time users
func (p *Provider) SendOneTimeLink(ctx context.Context, email, redirect string) error {
	email = types.NormalizeEmail(email)
	if !types.IsValidEmail(email) {
		return types.ErrInvalidEmail
	}
	if !strings.HasPrefix(redirect, "/") || strings.HasPrefix(redirect, "//") {
		return ErrInvalidRedirect
	}

	identity, err := p.FindIdentity(ctx, email)
	if err != nil {
		return err
	}
	if identity == nil {
		now := p.now().UTC()
		identity = &types.Identity{
			ID:        uuid.NewString(),
			Email:     email,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := p.identities.CreateIdentity(ctx, identity); err != nil {
			return fmt.Errorf("failed to create identity: %w", err)
		}
		p.logger.InfoContext(ctx, "identity created for one-time link", "user_id", identity.ID)
	}

	token, hash, err := NewLinkToken()
	if err != nil {
		return fmt.Errorf("failed to generate link token: %w", err)
	}
	if err := p.tokens.PutLink(ctx, hash, identity.ID, p.linkTTL); err != nil {
		return fmt.Errorf("failed to store link token: %w", err)
	}

	link := p.publicURL + redirect + "?token=" + url.QueryEscape(token)
	msg, err := mail.SignInLink(email, link, p.linkTTL)
	if err != nil {
		return err
	}
	if err := p.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send sign-in link: %w", err)
	}
	return nil
}

// RedeemOneTimeLink exchanges a link token for a session, at most once
func (p *Provider) RedeemOneTimeLink(ctx context.Context, token string) (*types.SignIn, error) {
	if token == "" {
		return nil, ErrLinkInvalid
	}
	userID, err := p.tokens.TakeLink(ctx, HashToken(token))
	if errors.Is(err, ErrTokenNotFound) {
		return nil, ErrLinkInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("failed to redeem link: %w", err)
	}

	identity, err := p.identities.GetIdentityByID(ctx, userID)
	if errors.Is(err, interfaces.ErrIdentityNotFound) {
		return nil, ErrLinkInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("identity lookup failed: %w", err)
	}
	return p.signIn(identity)
}

// GetSession resolves a token to a session
// Invalid, expired and signed-out tokens yield Unauthenticated, errors are backend failures only.
func (p *Provider) GetSession(ctx context.Context, token string) (types.Session, error) {
	if token == "" {
		return types.Unauthenticated{}, nil
	}
	session, err := p.issuer.Parse(token)
	if err != nil {
		return types.Unauthenticated{}, nil
	}
	revoked, err := p.tokens.IsRevoked(ctx, session.TokenID)
	if err != nil {
		return types.Unauthenticated{}, fmt.Errorf("revocation check failed: %w", err)
	}
	if revoked {
		return types.Unauthenticated{}, nil
	}
	return session, nil
}

// UpdateUser changes the signed-in user's password and/or metadata and re-issues the session
func (p *Provider) UpdateUser(ctx context.Context, session types.Authenticated, update types.UserUpdate) (*types.SignIn, error) {
	identity, err := p.identities.GetIdentityByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("identity lookup failed: %w", err)
	}
	if err := p.apply(identity, update.Password, update.Metadata); err != nil {
		return nil, err
	}
	if err := p.identities.UpdateIdentity(ctx, identity); err != nil {
		return nil, fmt.Errorf("failed to update identity: %w", err)
	}
	return p.signIn(identity)
}

// SignOut revokes the session until its natural expiry
func (p *Provider) SignOut(ctx context.Context, session types.Authenticated) error {
	ttl := session.ExpiresAt.Sub(p.now())
	if ttl <= 0 {
		return nil
	}
	if err := p.tokens.Revoke(ctx, session.TokenID, ttl); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// AdminCreateUser provisions an identity with a password and metadata
func (p *Provider) AdminCreateUser(ctx context.Context, email, password string, metadata types.Metadata) (*types.Identity, error) {
	email = types.NormalizeEmail(email)
	if !types.IsValidEmail(email) {
		return nil, types.ErrInvalidEmail
	}
	existing, err := p.FindIdentity(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrIdentityExists
	}

	now := p.now().UTC()
	identity := &types.Identity{ID: uuid.NewString(), Email: email, CreatedAt: now}
	if err := p.apply(identity, &password, &metadata); err != nil {
		return nil, err
	}
	if err := p.identities.CreateIdentity(ctx, identity); err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}
	return identity, nil
}

// AdminUpdateUserByID overwrites an identity's password and metadata
func (p *Provider) AdminUpdateUserByID(ctx context.Context, id, password string, metadata types.Metadata) (*types.Identity, error) {
	identity, err := p.identities.GetIdentityByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("identity lookup failed: %w", err)
	}
	if err := p.apply(identity, &password, &metadata); err != nil {
		return nil, err
	}
	if err := p.identities.UpdateIdentity(ctx, identity); err != nil {
		return nil, fmt.Errorf("failed to update identity: %w", err)
	}
	return identity, nil
}

// apply sets the optional fields on identity and stamps UpdatedAt
func (p *Provider) apply(identity *types.Identity, password *string, metadata *types.Metadata) error {
	if password != nil {
		if len(*password) < MinPasswordLength {
			return ErrWeakPassword
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*password), p.cost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		hashed := string(hash)
		identity.PasswordHash = &hashed
	}
	if metadata != nil {
		identity.Role = metadata.Role
		identity.PasswordSet = metadata.PasswordSet
	}
	identity.UpdatedAt = p.now().UTC()
	return nil
}

func (p *Provider) signIn(identity *types.Identity) (*types.SignIn, error) {
	token, session, err := p.issuer.Issue(identity)
	if err != nil {
		return nil, err
	}
	return &types.SignIn{Token: token, Session: session}, nil
}
