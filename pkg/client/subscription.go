package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"connected/internal/chat"
	"connected/pkg/types"
)

const (
	// subscriptionBuffer holds events the consumer has not taken yet
	subscriptionBuffer = 64
	closeGracePeriod   = time.Second
	subscribeTimeout   = 10 * time.Second

	// frameSubscribed confirms the server registered the socket
	frameSubscribed = "subscribed"
)

// Subscription delivers message inserts of one conversation
type Subscription struct {
	conn   *websocket.Conn
	events chan types.Message
	done   chan struct{}
	once   sync.Once
	err    error
	mu     sync.Mutex
}

var _ chat.Subscription = (*Subscription)(nil)

// Subscribe opens the realtime socket for conversationID
// TECHNICAL DISCOVERY: the Go dialer can send the Authorization header, so the token
// never has to travel in the query string
func (c *Client) Subscribe(ctx context.Context, conversationID string) (chat.Subscription, error) {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = u.Path + "/realtime/messages"
	u.RawQuery = url.Values{"conversation_id": {conversationID}}.Encode()

	header := http.Header{}
	if token := c.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: "realtime subscription refused"}
		}
		return nil, fmt.Errorf("failed to dial realtime endpoint: %w", err)
	}

	pending, err := awaitSubscribed(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	sub := &Subscription{
		conn:   conn,
		events: make(chan types.Message, subscriptionBuffer),
		done:   make(chan struct{}),
	}
	go sub.readLoop(c, pending)
	return sub, nil
}

// awaitSubscribed reads until the server confirms the subscription, keeping inserts
// that were queued ahead of the confirmation
func awaitSubscribed(ctx context.Context, conn *websocket.Conn) ([]types.Message, error) {
	deadline := time.Now().Add(subscribeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	var pending []types.Message
	for {
		var event types.RealtimeEvent
		if err := conn.ReadJSON(&event); err != nil {
			return nil, fmt.Errorf("realtime subscription not confirmed: %w", err)
		}
		if event.Type == frameSubscribed {
			return pending, conn.SetReadDeadline(time.Time{})
		}
		if isInsert(event) {
			pending = append(pending, *event.Record)
		}
	}
}

func isInsert(event types.RealtimeEvent) bool {
	return event.Type == types.EventInsert && event.Table == types.TableMessages && event.Record != nil
}

// readLoop forwards pending and then live INSERT events until the socket closes
func (s *Subscription) readLoop(c *Client, pending []types.Message) {
	defer close(s.events)
	for _, message := range pending {
		select {
		case s.events <- message:
		case <-s.done:
			return
		}
	}
	for {
		var event types.RealtimeEvent
		if err := s.conn.ReadJSON(&event); err != nil {
			select {
			case <-s.done:
			default:
				c.logger.Debug("realtime subscription ended", "error", err)
				s.setErr(err)
			}
			return
		}
		if !isInsert(event) {
			continue
		}
		select {
		case s.events <- *event.Record:
		case <-s.done:
			return
		}
	}
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Err returns the error that ended the subscription, nil after a Close
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) Events() <-chan types.Message {
	return s.events
}

// Close sends a close frame and releases the socket
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod))
		err = s.conn.Close()
	})
	return err
}
