package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"connected/internal/auth"
	"connected/internal/config"
	"connected/internal/conversation"
	"connected/pkg/interfaces"
	"connected/pkg/types"
)

// Authorizer confirms a user belongs to a conversation
type Authorizer interface {
	Authorize(ctx context.Context, email, conversationID string) (*types.Conversation, error)
}

// ClientFrame is a message sent by a subscriber over the socket
type ClientFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ServerFrame answers a ClientFrame
type ServerFrame struct {
	Type    string         `json:"type"`
	Record  *types.Message `json:"record,omitempty"`
	Message string         `json:"message,omitempty"`
}

const (
	FrameSend       = "send"
	FrameAck        = "ack"
	FrameError      = "error"
	FrameSubscribed = "subscribed"
)

// Handler serves GET /realtime/messages
// ARCHITECTURAL DISCOVERY: Multi-stage validation (token -> conversation -> membership ->
// upgrade -> registration) keeps invalid requests from consuming a socket
type Handler struct {
	registry      *Registry
	sessions      interfaces.SessionReader
	conversations Authorizer
	router        interfaces.MessageRouter
	config        *config.WebSocketConfig
	logger        *slog.Logger
	upgrader      websocket.Upgrader
}

// NewHandler creates a new WebSocket handler with dependency injection
func NewHandler(registry *Registry, sessions interfaces.SessionReader, conversations Authorizer, router interfaces.MessageRouter, cfg *config.WebSocketConfig, logger *slog.Logger) *Handler {
	return &Handler{
		registry:      registry,
		sessions:      sessions,
		conversations: conversations,
		router:        router,
		config:        cfg,
		logger:        logger.With("component", "websocket"),
		upgrader: websocket.Upgrader{
			// FUNCTIONAL DISCOVERY: the session token authenticates the handshake, so
			// cross-origin pages without the token gain nothing
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// ServeHTTP upgrades an authorized request and subscribes it to one conversation
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// STEP 1: Session
	token := auth.TokenFromRequest(r, true)
	if token == "" {
		http.Error(w, "Missing session token", http.StatusUnauthorized)
		return
	}
	session, err := h.sessions.GetSession(ctx, token)
	if err != nil {
		h.logger.ErrorContext(ctx, "session lookup failed", "error", err)
		http.Error(w, "Session validation failed", http.StatusInternalServerError)
		return
	}
	authed, ok := session.(types.Authenticated)
	if !ok {
		http.Error(w, "Invalid or expired session", http.StatusUnauthorized)
		return
	}

	// STEP 2: Conversation membership
	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		http.Error(w, "Missing required query parameter: conversation_id", http.StatusBadRequest)
		return
	}
	if _, err := h.conversations.Authorize(ctx, authed.Email, conversationID); err != nil {
		switch {
		case errors.Is(err, interfaces.ErrConversationNotFound):
			http.Error(w, "Conversation not found", http.StatusNotFound)
		case errors.Is(err, conversation.ErrNotParticipant):
			http.Error(w, "Not a participant of this conversation", http.StatusForbidden)
		default:
			h.logger.ErrorContext(ctx, "conversation lookup failed", "error", err)
			http.Error(w, "Conversation validation failed", http.StatusInternalServerError)
		}
		return
	}

	// STEP 3: Upgrade after validation so invalid requests get plain HTTP errors
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(ctx, "websocket upgrade failed", "error", err)
		return
	}

	conn := NewConnection(ws, uuid.New().String(), h.config.BufferSize, h.config.WriteTimeout)
	conn.SetCredentials(authed.Email, conversationID)

	// STEP 4: Register, paired with the Unregister in serve
	if err := h.registry.Register(conn); err != nil {
		h.logger.ErrorContext(ctx, "failed to register connection", "error", err)
		_ = conn.Close()
		return
	}
	h.logger.InfoContext(ctx, "subscriber connected",
		"connection_id", conn.GetID(), "conversation_id", conversationID)

	// TECHNICAL DISCOVERY: the 101 goes out before Register, clients wait for this frame
	// to know inserts will reach them
	if err := conn.WriteJSON(ServerFrame{Type: FrameSubscribed}); err != nil {
		h.registry.Unregister(conn)
		_ = conn.Close()
		return
	}

	go h.serve(conn, authed)
}

// serve runs the read pump and heartbeat until the socket closes
// ARCHITECTURAL DISCOVERY: one goroutine reads, a second pings, the writer goroutine of
// the Connection owns all data frames
func (h *Handler) serve(conn *Connection, sender types.Authenticated) {
	defer func() {
		h.registry.Unregister(conn)
		_ = conn.Close()
		h.logger.Info("subscriber disconnected", "connection_id", conn.GetID())
	}()

	// TECHNICAL DISCOVERY: read deadline longer than the ping interval, every pong extends it
	readTimeout := h.config.ReadTimeout
	if err := conn.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go func() {
		ticker := time.NewTicker(h.config.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.config.WriteTimeout)); err != nil {
					_ = conn.Close()
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read ended", "connection_id", conn.GetID(), "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.handleFrame(conn, sender, data)
	}
}

// handleFrame routes a send frame and answers with an ack or an error
func (h *Handler) handleFrame(conn *Connection, sender types.Authenticated, data []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Type != FrameSend {
		_ = conn.WriteJSON(ServerFrame{Type: FrameError, Message: "unsupported frame"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	message, err := h.router.RouteMessage(ctx, sender, conn.GetConversationID(), frame.Content)
	if err != nil {
		_ = conn.WriteJSON(ServerFrame{Type: FrameError, Message: err.Error()})
		return
	}
	_ = conn.WriteJSON(ServerFrame{Type: FrameAck, Record: message})
}
