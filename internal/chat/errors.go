package chat

import "errors"

var (
	ErrEmptyDraft   = errors.New("draft is empty")
	ErrSendInFlight = errors.New("a message is already being sent")
	ErrNotReady     = errors.New("conversation is not loaded")
	ErrClosed       = errors.New("conversation view is closed")
)
