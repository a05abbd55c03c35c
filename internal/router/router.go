package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"connected/internal/conversation"
	"connected/internal/metrics"
	"connected/pkg/interfaces"
	"connected/pkg/types"
)

// Authorizer confirms the sender belongs to the conversation
type Authorizer interface {
	Authorize(ctx context.Context, email, conversationID string) (*types.Conversation, error)
}

// Router implements the MessageRouter interface
// ARCHITECTURAL DISCOVERY: Pure message routing logic, connection handling stays in the
// websocket package and delivery in the hub
type Router struct {
	conversations Authorizer
	store         interfaces.MessageStore
	publisher     interfaces.Publisher
	rateLimiter   *RateLimiter
	metrics       *metrics.Metrics
	logger        *slog.Logger
	now           func() time.Time
}

// NewRouter creates a new message router
// FUNCTIONAL DISCOVERY: Dependency injection enables testing with mock components
func NewRouter(conversations Authorizer, store interfaces.MessageStore, publisher interfaces.Publisher, m *metrics.Metrics, logger *slog.Logger) *Router {
	return &Router{
		conversations: conversations,
		store:         store,
		publisher:     publisher,
		rateLimiter:   NewRateLimiter(DefaultMessagesPerMinute, time.Minute),
		metrics:       m,
		logger:        logger.With("component", "router"),
		now:           time.Now,
	}
}

// RouteMessage validates, stores and publishes one message
// FUNCTIONAL DISCOVERY: Persist-then-route pattern ensures message durability before delivery.
// Server-side ID and timestamp generation prevents client tampering.
func (r *Router) RouteMessage(ctx context.Context, sender types.Authenticated, conversationID, content string) (*types.Message, error) {
	if conversationID == "" {
		return nil, r.reject("missing_conversation", ErrMissingConversation)
	}
	if err := types.ValidateContent(content); err != nil {
		return nil, r.reject("invalid_content", err)
	}

	// STEP 1: Sender must be one side of the conversation
	if _, err := r.conversations.Authorize(ctx, sender.Email, conversationID); err != nil {
		if errors.Is(err, interfaces.ErrConversationNotFound) {
			return nil, r.reject("unknown_conversation", err)
		}
		if errors.Is(err, conversation.ErrNotParticipant) {
			return nil, r.reject("not_participant", ErrSenderNotParticipant)
		}
		return nil, fmt.Errorf("failed to authorize sender: %w", err)
	}

	// STEP 2: Rate limiting applied per sender before persistence
	if !r.rateLimiter.Allow(types.NormalizeEmail(sender.Email)) {
		return nil, r.reject("rate_limited", ErrRateLimitExceeded)
	}

	// STEP 3: Server controls ids and timestamps
	// TECHNICAL DISCOVERY: microsecond precision survives a postgres round trip, so the
	// returned row equals what a later history load returns
	message := &types.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Sender:         types.NormalizeEmail(sender.Email),
		Content:        content,
		CreatedAt:      r.now().UTC().Truncate(time.Microsecond),
	}

	// STEP 4: Persist first
	if err := r.store.InsertMessage(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	// STEP 5: Route; the message is already durable, so a full hub only costs live delivery
	if r.publisher != nil {
		if err := r.publisher.Publish(message); err != nil {
			r.logger.WarnContext(ctx, "realtime publish failed", "message_id", message.ID, "error", err)
		}
	}

	if r.metrics != nil {
		r.metrics.MessagesRouted.Inc()
	}
	return message, nil
}

// Cleanup drops idle rate limiter state (call periodically)
func (r *Router) Cleanup() {
	r.rateLimiter.Cleanup()
}

func (r *Router) reject(reason string, err error) error {
	if r.metrics != nil {
		r.metrics.MessagesRejected.WithLabelValues(reason).Inc()
	}
	return err
}
