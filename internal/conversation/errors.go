package conversation

import "errors"

var (
	ErrNotParticipant     = errors.New("caller is not a participant of this conversation")
	ErrUnknownParticipant = errors.New("participant is not on the roster")
)
