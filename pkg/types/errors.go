package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrInvalidEmail        = errors.New("email must be a valid address")
	ErrEmptyContent        = errors.New("message content cannot be empty")
	ErrContentTooLarge     = errors.New("message content exceeds 4000 characters")
	ErrInvalidParticipants = errors.New("a conversation needs two distinct participants")
)
