package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"connected/pkg/types"
)

// Claims is the session token payload
type Claims struct {
	Email       string     `json:"email"`
	Role        types.Role `json:"role,omitempty"`
	PasswordSet bool       `json:"password_set"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration, now func() time.Time) *TokenIssuer {
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: now}
}

// Issue signs a token reflecting the identity's current metadata
func (t *TokenIssuer) Issue(identity *types.Identity) (string, types.Authenticated, error) {
	now := t.now().UTC()
	expires := now.Add(t.ttl)
	claims := Claims{
		Email:       identity.Email,
		Role:        identity.Role,
		PasswordSet: identity.PasswordSet,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity.ID,
			Issuer:    "connected",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", types.Authenticated{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, sessionFromClaims(&claims), nil
}

// Parse verifies signature, algorithm and expiry
func (t *TokenIssuer) Parse(token string) (types.Authenticated, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithIssuer("connected"),
		jwt.WithExpirationRequired(),
	)

	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	})
	if err != nil || !parsed.Valid {
		return types.Authenticated{}, ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" {
		return types.Authenticated{}, ErrInvalidToken
	}

	return sessionFromClaims(claims), nil
}

func sessionFromClaims(claims *Claims) types.Authenticated {
	return types.Authenticated{
		UserID:      claims.Subject,
		Email:       claims.Email,
		Role:        claims.Role,
		PasswordSet: claims.PasswordSet,
		TokenID:     claims.ID,
		ExpiresAt:   claims.ExpiresAt.Time,
	}
}

// NewLinkToken returns a random URL-safe token and the hash stored for it
// TECHNICAL DISCOVERY: only the hash is persisted, a leaked token store cannot be replayed
func NewLinkToken() (token, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(buf)
	return token, HashToken(token), nil
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
