package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrIdentityNotFound     = errors.New("identity not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrRowNotFound          = errors.New("roster row not found")
)
