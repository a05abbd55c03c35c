package hub

import (
	"context"
	"log/slog"
	"sync"

	"connected/internal/metrics"
	"connected/pkg/interfaces"
	"connected/pkg/types"
)

// EventBufferSize is the capacity of the publish queue
const EventBufferSize = 1000

// Subscribers looks up the connections subscribed to a conversation
type Subscribers interface {
	Subscribers(conversationID string) []interfaces.Connection
}

// Hub fans stored messages out to realtime subscribers
// ARCHITECTURAL DISCOVERY: Central coordination point for all realtime delivery, a single
// loop goroutine preserves publish order per conversation
type Hub struct {
	// FUNCTIONAL DISCOVERY: Buffered channel absorbs message bursts
	events   chan *types.Message
	shutdown chan struct{}
	done     chan struct{}

	subscribers Subscribers
	metrics     *metrics.Metrics
	logger      *slog.Logger

	running bool
	mu      sync.RWMutex
}

// NewHub creates a new hub, m may be nil
func NewHub(subscribers Subscribers, m *metrics.Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		events:      make(chan *types.Message, EventBufferSize),
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
		subscribers: subscribers,
		metrics:     m,
		logger:      logger.With("component", "hub"),
	}
}

// Start begins hub processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return ErrHubAlreadyRunning
	}
	select {
	case <-h.shutdown:
		// a stopped hub cannot be restarted
		return ErrHubNotRunning
	default:
	}
	h.running = true

	h.logger.Info("starting realtime hub")
	go h.run(ctx)
	return nil
}

// Stop shuts the loop down and waits for it to exit
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdown)
	h.mu.Unlock()

	<-h.done
	h.logger.Info("realtime hub stopped")
	return nil
}

// Publish queues an insert event for message
// TECHNICAL DISCOVERY: Non-blocking send, a full queue is reported instead of stalling
// the sender's request
func (h *Hub) Publish(message *types.Message) error {
	if message == nil {
		return ErrNilMessage
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		return ErrHubNotRunning
	}

	select {
	case h.events <- message:
		return nil
	default:
		return ErrEventChannelFull
	}
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case message := <-h.events:
			h.deliver(message)

		case <-h.shutdown:
			return

		case <-ctx.Done():
			h.logger.Info("hub context cancelled")
			h.mu.Lock()
			if h.running {
				h.running = false
				close(h.shutdown)
			}
			h.mu.Unlock()
			return
		}
	}
}

// deliver writes the insert event to every subscriber of the message's conversation
// FUNCTIONAL DISCOVERY: delivery continues past a failed subscriber, which is closed so
// its handler releases the registry entry
func (h *Hub) deliver(message *types.Message) {
	event := types.RealtimeEvent{
		Type:   types.EventInsert,
		Table:  types.TableMessages,
		Record: message,
	}

	for _, conn := range h.subscribers.Subscribers(message.ConversationID) {
		if err := conn.WriteJSON(event); err != nil {
			h.logger.Warn("realtime delivery failed",
				"connection_id", conn.GetID(), "message_id", message.ID, "error", err)
			_ = conn.Close()
			continue
		}
		if h.metrics != nil {
			h.metrics.EventsBroadcast.Inc()
		}
	}
}
