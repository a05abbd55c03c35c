package session

import "errors"

// Session routing error types
var (
	ErrNotSignedIn     = errors.New("no signed-in session")
	ErrRoleUnresolved  = errors.New("user not found in roster")
	ErrInvalidRole     = errors.New("invalid role: must be 'teacher' or 'student'")
	ErrPasswordMissing = errors.New("password cannot be empty")
)
