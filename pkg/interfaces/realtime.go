package interfaces

import (
	"context"

	"connected/pkg/types"
)

// Publisher fans a stored message out to realtime subscribers.
type Publisher interface {
	Publish(message *types.Message) error
}

// MessageRouter accepts a message from an authenticated sender
// FUNCTIONAL DISCOVERY: Persist-then-route, the returned message is the stored row
type MessageRouter interface {
	RouteMessage(ctx context.Context, sender types.Authenticated, conversationID, content string) (*types.Message, error)
}

// SessionReader resolves a bearer token into a session.
type SessionReader interface {
	GetSession(ctx context.Context, token string) (types.Session, error)
}

// Connection represents a realtime subscriber connection
// TECHNICAL DISCOVERY: WriteJSON must be safe for concurrent use
type Connection interface {
	WriteJSON(v interface{}) error
	Close() error
	GetID() string
	GetUserEmail() string
	GetConversationID() string
}
