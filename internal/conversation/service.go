package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"connected/pkg/interfaces"
	"connected/pkg/types"
)

// Store is the persistence the service needs
type Store interface {
	interfaces.ConversationStore
	interfaces.MessageStore
}

// Directory tells whether an email belongs to the roster
type Directory interface {
	IsTeacher(ctx context.Context, email string) (bool, error)
	IsStudent(ctx context.Context, email string) (bool, error)
}

// Service looks up, creates and authorizes conversations
// ARCHITECTURAL DISCOVERY: uniqueness of the unordered pair lives in the store, the
// service only orders the pair and re-reads after every creation attempt
type Service struct {
	store     Store
	directory Directory
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(store Store, directory Directory, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		directory: directory,
		logger:    logger.With("component", "conversation"),
		now:       time.Now,
	}
}

// Open returns the conversation between a and b, creating it on first contact
// FUNCTIONAL DISCOVERY: repeated and concurrent calls for the same pair in either
// order return the same id
func (s *Service) Open(ctx context.Context, a, b string) (*types.Conversation, error) {
	a, b = types.NormalizeEmail(a), types.NormalizeEmail(b)
	if !types.IsValidEmail(a) || !types.IsValidEmail(b) {
		return nil, types.ErrInvalidEmail
	}
	if a == b {
		return nil, types.ErrInvalidParticipants
	}
	low, high := types.OrderedPair(a, b)

	// STEP 1: Existing row is authoritative
	existing, err := s.store.FindConversation(ctx, low, high)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, interfaces.ErrConversationNotFound) {
		return nil, err
	}

	// STEP 2: Only roster members can be contacted
	if err := s.requireOnRoster(ctx, b); err != nil {
		return nil, err
	}

	// STEP 3: Create, losing quietly to a concurrent creator
	conversation := &types.Conversation{
		ID:              uuid.New().String(),
		Participant1:    a,
		Participant2:    b,
		ParticipantLow:  low,
		ParticipantHigh: high,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.store.CreateConversation(ctx, conversation); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	// STEP 4: Re-read to learn the winning id
	stored, err := s.store.FindConversation(ctx, low, high)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read conversation: %w", err)
	}
	if stored.ID == conversation.ID {
		s.logger.InfoContext(ctx, "conversation created", "conversation_id", stored.ID)
	}
	return stored, nil
}

func (s *Service) requireOnRoster(ctx context.Context, email string) error {
	if s.directory == nil {
		return nil
	}
	isTeacher, err := s.directory.IsTeacher(ctx, email)
	if err != nil {
		return err
	}
	if isTeacher {
		return nil
	}
	isStudent, err := s.directory.IsStudent(ctx, email)
	if err != nil {
		return err
	}
	if !isStudent {
		return ErrUnknownParticipant
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*types.Conversation, error) {
	return s.store.GetConversation(ctx, id)
}

// Authorize returns the conversation when email is one of its participants
func (s *Service) Authorize(ctx context.Context, email, id string) (*types.Conversation, error) {
	conversation, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(email) {
		return nil, ErrNotParticipant
	}
	return conversation, nil
}

// History returns the conversation's messages oldest first
func (s *Service) History(ctx context.Context, email, id string) ([]types.Message, error) {
	if _, err := s.Authorize(ctx, email, id); err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []types.Message{}
	}
	return messages, nil
}
