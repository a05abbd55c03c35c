package router

import "errors"

var (
	ErrRateLimitExceeded    = errors.New("rate limit exceeded: 100 messages per minute")
	ErrSenderNotParticipant = errors.New("sender is not a participant of this conversation")
	ErrMissingConversation  = errors.New("conversation id is required")
)
