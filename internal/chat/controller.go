package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"connected/pkg/types"
)

// PendingPrefix marks ids of messages that exist only locally
const PendingPrefix = "local-"

// Backend is what a conversation view needs from the service
type Backend interface {
	History(ctx context.Context, conversationID string) ([]types.Message, error)
	Insert(ctx context.Context, conversationID, content string) (*types.Message, error)
	Subscribe(ctx context.Context, conversationID string) (Subscription, error)
}

// Subscription delivers inserted messages until closed
type Subscription interface {
	Events() <-chan types.Message
	Close() error
}

// State of a conversation view
type State int

const (
	StateLoading State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Entry is one line of the view; Pending entries are local echoes awaiting the server
type Entry struct {
	Message types.Message
	Pending bool
}

// View is a snapshot of the controller state
type View struct {
	ConversationID string
	State          State
	Entries        []Entry
	Draft          string
	Sending        bool
	Err            error
}

// Option configures a Controller
type Option func(*Controller)

// WithListener registers fn to receive a snapshot after every change
// fn runs synchronously and must not call Close.
func WithListener(fn func(View)) Option {
	return func(c *Controller) { c.listener = fn }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// Controller keeps the local mirror of one conversation
// ARCHITECTURAL DISCOVERY: the subscription opens before history loads, events that arrive
// while loading are held back and merged by id afterwards, so nothing inserted between
// the two steps is lost or shown twice
type Controller struct {
	backend        Backend
	conversationID string
	self           string
	listener       func(View)
	logger         *slog.Logger
	now            func() time.Time

	mu      sync.Mutex
	state   State
	entries []Entry
	seen    map[string]bool // confirmed ids only, pending ids never enter
	early   []types.Message
	draft   string
	sending bool
	lastErr error
	sub     Subscription
	opened  bool

	// emitMu orders listener calls against Close
	emitMu sync.Mutex
	closed bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewController creates a view of conversationID for the signed-in user self
func NewController(backend Backend, conversationID, self string, opts ...Option) *Controller {
	c := &Controller{
		backend:        backend,
		conversationID: conversationID,
		self:           types.NormalizeEmail(self),
		logger:         slog.Default(),
		now:            time.Now,
		state:          StateLoading,
		seen:           make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open subscribes, loads history and moves the view to Ready
// A failed Open closes the controller; create a new one to retry.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.opened {
		c.mu.Unlock()
		return nil
	}
	c.opened = true
	c.mu.Unlock()

	// STEP 1: Subscribe first
	sub, err := c.backend.Subscribe(ctx, c.conversationID)
	if err != nil {
		c.fail(err)
		_ = c.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		cancel()
		_ = sub.Close()
		return ErrClosed
	}
	c.sub = sub
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.consume(loopCtx, sub)

	// STEP 2: Load history
	history, err := c.backend.History(ctx, c.conversationID)
	if err != nil {
		c.fail(err)
		_ = c.Close()
		return fmt.Errorf("failed to load history: %w", err)
	}

	// STEP 3: Merge history with held-back events, then go Ready
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	for _, message := range history {
		c.appendConfirmedLocked(message)
	}
	for _, message := range c.early {
		c.appendConfirmedLocked(message)
	}
	c.early = nil
	c.state = StateReady
	view := c.viewLocked()
	c.mu.Unlock()

	c.emit(view)
	return nil
}

func (c *Controller) fail(err error) {
	c.mu.Lock()
	c.lastErr = err
	view := c.viewLocked()
	c.mu.Unlock()
	c.emit(view)
}

// consume applies subscription events until the subscription or the loop ends
func (c *Controller) consume(ctx context.Context, sub Subscription) {
	defer close(c.done)
	events := sub.Events()
	for {
		select {
		case message, ok := <-events:
			if !ok {
				return
			}
			c.handleEvent(message)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Controller) handleEvent(message types.Message) {
	c.mu.Lock()
	if c.state == StateClosed || message.ConversationID != c.conversationID {
		c.mu.Unlock()
		return
	}
	if c.state == StateLoading {
		c.early = append(c.early, message)
		c.mu.Unlock()
		return
	}
	if !c.appendConfirmedLocked(message) {
		c.mu.Unlock()
		return
	}
	view := c.viewLocked()
	c.mu.Unlock()

	c.emit(view)
}

// appendConfirmedLocked appends a server row unless its id is already present
func (c *Controller) appendConfirmedLocked(message types.Message) bool {
	if message.ID == "" || c.seen[message.ID] {
		return false
	}
	c.seen[message.ID] = true
	c.entries = append(c.entries, Entry{Message: message})
	return true
}

// SetDraft replaces the draft text
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.draft = text
	view := c.viewLocked()
	c.mu.Unlock()

	c.emit(view)
}

// Send posts the draft with an optimistic local echo and blocks until the server answers
// FUNCTIONAL DISCOVERY: on failure the echo is removed and the submitted text becomes the
// draft again; on success the echo is replaced by the stored row, or dropped when the
// realtime echo of that row already arrived
func (c *Controller) Send(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.state == StateClosed:
		c.mu.Unlock()
		return ErrClosed
	case c.state != StateReady:
		c.mu.Unlock()
		return ErrNotReady
	case c.sending:
		c.mu.Unlock()
		return ErrSendInFlight
	case strings.TrimSpace(c.draft) == "":
		c.mu.Unlock()
		return ErrEmptyDraft
	}

	content := c.draft
	localID := PendingPrefix + uuid.New().String()
	c.entries = append(c.entries, Entry{
		Message: types.Message{
			ID:             localID,
			ConversationID: c.conversationID,
			Sender:         c.self,
			Content:        content,
			CreatedAt:      c.now().UTC(),
		},
		Pending: true,
	})
	c.draft = ""
	c.sending = true
	c.lastErr = nil
	view := c.viewLocked()
	c.mu.Unlock()
	c.emit(view)

	stored, err := c.backend.Insert(ctx, c.conversationID, content)

	c.mu.Lock()
	if c.state == StateClosed {
		// the view is gone, the result only matters to the caller
		c.mu.Unlock()
		return err
	}
	c.sending = false
	index := c.pendingIndexLocked(localID)

	if err != nil {
		if index >= 0 {
			c.entries = append(c.entries[:index], c.entries[index+1:]...)
		}
		c.draft = content
		c.lastErr = err
		view = c.viewLocked()
		c.mu.Unlock()
		c.emit(view)
		return err
	}

	switch {
	case index < 0:
		c.appendConfirmedLocked(*stored)
	case c.seen[stored.ID]:
		c.entries = append(c.entries[:index], c.entries[index+1:]...)
	default:
		c.seen[stored.ID] = true
		c.entries[index] = Entry{Message: *stored}
	}
	view = c.viewLocked()
	c.mu.Unlock()
	c.emit(view)
	return nil
}

func (c *Controller) pendingIndexLocked(localID string) int {
	for i := range c.entries {
		if c.entries[i].Pending && c.entries[i].Message.ID == localID {
			return i
		}
	}
	return -1
}

// View returns a snapshot of the current state
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	entries := make([]Entry, len(c.entries))
	copy(entries, c.entries)
	return View{
		ConversationID: c.conversationID,
		State:          c.state,
		Entries:        entries,
		Draft:          c.draft,
		Sending:        c.sending,
		Err:            c.lastErr,
	}
}

func (c *Controller) emit(view View) {
	if c.listener == nil {
		return
	}
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if c.closed {
		return
	}
	c.listener(view)
}

// Close releases the subscription; later events and send results leave the state untouched
func (c *Controller) Close() error {
	c.emitMu.Lock()
	c.closed = true
	c.emitMu.Unlock()

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	sub, cancel, done := c.sub, c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if sub != nil {
		err = sub.Close()
	}
	if done != nil {
		<-done
	}
	if err != nil {
		c.logger.Debug("subscription close failed", "conversation_id", c.conversationID, "error", err)
	}
	return err
}
