package auth

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrLinkInvalid        = errors.New("sign-in link is invalid or has expired")
	ErrInvalidToken       = errors.New("invalid session token")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrIdentityExists     = errors.New("identity already exists")
	ErrInvalidRedirect    = errors.New("redirect must be a path on this service")
	ErrTokenNotFound      = errors.New("token not found")
)
